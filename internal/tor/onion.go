package tor

import (
	"encoding/base32"
	"errors"
	"net/url"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// OnionSuffix is the top-level label of onion services.
	OnionSuffix = ".onion"

	onionV3Version   = 0x03
	onionV3RawLength = 35 // pubkey(32) + checksum(2) + version(1)
)

// ErrInvalidOnionAddress is returned for .onion hosts that are not valid v3
// addresses.
var ErrInvalidOnionAddress = errors.New("invalid v3 onion address")

// checksumPrefix is fixed by the Tor rendezvous specification.
var checksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether host (optionally with a port) is an onion
// service name. Subdomains of an onion address count.
func IsOnionHost(host string) bool {
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return strings.HasSuffix(strings.ToLower(host), OnionSuffix)
}

// IsValidV3Address verifies the length, version byte and SHA3 checksum of a
// v3 onion address such as "<56 chars>.onion". Subdomain labels are ignored.
func IsValidV3Address(address string) bool {
	address = strings.TrimSuffix(strings.ToLower(address), OnionSuffix)
	if i := strings.LastIndexByte(address, '.'); i >= 0 {
		address = address[i+1:]
	}
	if len(address) != 56 {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(address))
	if err != nil || len(decoded) != onionV3RawLength {
		return false
	}

	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != onionV3Version {
		return false
	}
	want := v3Checksum(pubkey)
	return checksum[0] == want[0] && checksum[1] == want[1]
}

// ValidateURL checks that an onion URL names a valid v3 service. Non-onion
// URLs are accepted unchanged.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if !IsOnionHost(u.Host) {
		return nil
	}
	if !IsValidV3Address(u.Hostname()) {
		return ErrInvalidOnionAddress
	}
	return nil
}

// AddressFromPublicKey derives the v3 onion address of an ed25519 public key.
func AddressFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", ErrInvalidOnionAddress
	}
	raw := make([]byte, 0, onionV3RawLength)
	raw = append(raw, pubkey...)
	raw = append(raw, v3Checksum(pubkey)...)
	raw = append(raw, onionV3Version)
	return strings.ToLower(base32.StdEncoding.EncodeToString(raw)) + OnionSuffix, nil
}

// v3Checksum is SHA3-256(".onion checksum" || pubkey || version)[:2].
func v3Checksum(pubkey []byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, onionV3Version)
	sum := sha3.Sum256(data)
	return sum[:2]
}
