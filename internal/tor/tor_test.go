package tor

import (
	"context"
	"crypto/ed25519"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
)

func TestNewDialer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		address string
		valid   bool
	}{
		{"127.0.0.1:9050", true},
		{"localhost:9150", true},
		{"[::1]:9050", true},
		{"127.0.0.1", false},
		{":9050", false},
		{"127.0.0.1:0", false},
		{"127.0.0.1:70000", false},
		{"127.0.0.1:abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			t.Parallel()

			_, err := NewDialer(tt.address)
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
			}
		})
	}
}

// fakeSOCKS5 answers one greeting and one CONNECT with the given reply code.
func fakeSOCKS5(t *testing.T, greeting []byte) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 3)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		if _, err := conn.Write(greeting); err != nil {
			return
		}
		head := make([]byte, 5)
		if _, err := io.ReadFull(conn, head); err != nil {
			return
		}
		rest := make([]byte, int(head[4])+2)
		if _, err := io.ReadFull(conn, rest); err != nil {
			return
		}
		_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
	}()

	return ln.Addr().String()
}

func TestCheckConnection(t *testing.T) {
	t.Parallel()

	t.Run("socks5 proxy", func(t *testing.T) {
		t.Parallel()

		d, err := NewDialer(fakeSOCKS5(t, []byte{0x05, 0x00}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := d.CheckConnection(context.Background()); got != ProxyStatusOK {
			t.Errorf("got %v, expected OK", got)
		}
	})

	t.Run("wrong protocol", func(t *testing.T) {
		t.Parallel()

		d, err := NewDialer(fakeSOCKS5(t, []byte("HT")))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		status := d.CheckConnection(context.Background())
		if status != ProxyStatusWrongType {
			t.Errorf("got %v, expected wrong type", status)
		}
		if !errors.Is(status.Err(), ErrProxyNotSOCKS5) {
			t.Errorf("unexpected error: %v", status.Err())
		}
	})

	t.Run("nothing listening", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		addr := ln.Addr().String()
		ln.Close()

		d, err := NewDialer(addr)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := d.CheckConnection(context.Background()); got != ProxyStatusCannotConnect {
			t.Errorf("got %v, expected cannot connect", got)
		}
	})
}

func TestOnionAddresses(t *testing.T) {
	t.Parallel()

	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	addr, err := AddressFromPublicKey(pub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("derived address is valid", func(t *testing.T) {
		t.Parallel()

		if len(addr) != 62 {
			t.Errorf("got length %d, expected 62", len(addr))
		}
		if !IsValidV3Address(addr) {
			t.Errorf("expected %s to be valid", addr)
		}
		if !IsValidV3Address("www." + strings.ToUpper(addr)) {
			t.Error("expected subdomain and upper case to be accepted")
		}
	})

	t.Run("corrupted checksum is rejected", func(t *testing.T) {
		t.Parallel()

		b := []byte(addr)
		if b[0] == 'a' {
			b[0] = 'b'
		} else {
			b[0] = 'a'
		}
		if IsValidV3Address(string(b)) {
			t.Error("expected corrupted address to be rejected")
		}
	})

	t.Run("validate URL", func(t *testing.T) {
		t.Parallel()

		if err := ValidateURL("http://" + addr + "/index.html"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if err := ValidateURL("http://tooshort.onion/"); !errors.Is(err, ErrInvalidOnionAddress) {
			t.Errorf("expected ErrInvalidOnionAddress, got %v", err)
		}
		if err := ValidateURL("https://example.com/"); err != nil {
			t.Errorf("clearnet URLs must pass, got %v", err)
		}
	})

	t.Run("onion host detection", func(t *testing.T) {
		t.Parallel()

		if !IsOnionHost(addr + ":80") {
			t.Error("expected onion host with port to be detected")
		}
		if IsOnionHost("example.com") {
			t.Error("expected clearnet host not to be detected")
		}
	})
}

func TestEmbeddedTorStopWithoutStart(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor(WithStartupTimeout(0))
	if e.IsRunning() {
		t.Error("expected a fresh instance not to be running")
	}
	if err := e.Stop(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if e.startupTimeout != DefaultStartupTimeout {
		t.Errorf("zero timeout must keep the default, got %v", e.startupTimeout)
	}
}
