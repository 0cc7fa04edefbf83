package model

import "fmt"

// Status is the terminal classification of a URL after the crawler has
// finished with it.
//
// Design decision: We use iota-based constants rather than string constants
// for cheap comparisons in the hot path. MarshalText provides the stable
// string form used in JSON reports and the database.
type Status int

const (
	// StatusOK means the page loaded successfully.
	StatusOK Status = iota

	// StatusDead means the page could not be loaded after the retry budget
	// was exhausted, or failed with a terminal error.
	StatusDead

	// StatusExternalUnvisited means the URL lies outside the target domain and
	// was only referenced, never loaded.
	StatusExternalUnvisited
)

// String returns the canonical name of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusDead:
		return "DEAD"
	case StatusExternalUnvisited:
		return "EXTERNAL-UNVISITED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus converts the canonical name back into a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "OK":
		return StatusOK, nil
	case "DEAD":
		return StatusDead, nil
	case "EXTERNAL-UNVISITED":
		return StatusExternalUnvisited, nil
	default:
		return StatusOK, fmt.Errorf("unknown status %q", s)
	}
}

// FailureKind classifies why a load failed.
// Only FailureAborted is considered transient; the other kinds are terminal.
type FailureKind int

const (
	// FailureNone is the zero value, used for pages that loaded successfully.
	FailureNone FailureKind = iota

	// FailureAborted indicates a server-side rejection, typically triggered by
	// rapid sequential requests (HTTP 429/503, connection reset, ERR_ABORTED).
	FailureAborted

	// FailureTimeout indicates that no response arrived within the load timeout.
	FailureTimeout

	// FailureNetwork covers every other failure: DNS errors, refused
	// connections, TLS failures and HTTP error statuses.
	FailureNetwork
)

// String returns the canonical name of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "NONE"
	case FailureAborted:
		return "ABORTED"
	case FailureTimeout:
		return "TIMEOUT"
	case FailureNetwork:
		return "OTHER_NETWORK_ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *FailureKind) UnmarshalText(text []byte) error {
	parsed, err := ParseFailureKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseFailureKind converts the canonical name back into a FailureKind.
func ParseFailureKind(s string) (FailureKind, error) {
	switch s {
	case "NONE", "":
		return FailureNone, nil
	case "ABORTED":
		return FailureAborted, nil
	case "TIMEOUT":
		return FailureTimeout, nil
	case "OTHER_NETWORK_ERROR":
		return FailureNetwork, nil
	default:
		return FailureNone, fmt.Errorf("unknown failure kind %q", s)
	}
}

// AllFailureKinds lists the failure kinds in report order.
func AllFailureKinds() []FailureKind {
	return []FailureKind{FailureAborted, FailureTimeout, FailureNetwork}
}
