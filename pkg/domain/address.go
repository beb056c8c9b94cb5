package domain

import (
	"strings"

	dErrors "bloodtrace/pkg/domain-errors"
)

// Address is a ledger account identifier: 0x followed by 40 hex characters.
// Addresses are normalized to lowercase on parse so comparisons are plain
// equality; checksum casing is display-only and not preserved.
//
// Usage: construct via ParseAddress at trust boundaries; direct casting
// bypasses validation.
type Address string

// ZeroAddress is the mint/burn sentinel used by the unit registries.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ParseAddress constructs an Address from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, has no 0x prefix,
// has the wrong length, or contains non-hex characters.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must start with 0x")
	}
	hex := s[2:]
	if len(hex) != 40 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must be 20 bytes")
	}
	for _, c := range hex {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return "", dErrors.New(dErrors.CodeInvalidInput, "address contains non-hex characters")
		}
	}
	return Address("0x" + strings.ToLower(hex)), nil
}

// IsZero reports whether the address is empty or the zero sentinel.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

// String returns the normalized string form.
func (a Address) String() string {
	return string(a)
}

// Short returns a truncated display form (0x1234...abcd).
func (a Address) Short() string {
	s := string(a)
	if len(s) < 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}
