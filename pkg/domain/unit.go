package domain

import (
	"strconv"

	dErrors "bloodtrace/pkg/domain-errors"
)

// UnitID identifies a traceable unit (donation or derivative token id).
// Ids are minted by the unit registries and are never zero.
type UnitID uint64

// ParseUnitID constructs a UnitID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, non-numeric,
// or zero.
func ParseUnitID(s string) (UnitID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "unit id cannot be empty")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "unit id must be a positive integer")
	}
	if n == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "unit id cannot be zero")
	}
	return UnitID(n), nil
}

// String returns the decimal form.
func (u UnitID) String() string {
	return strconv.FormatUint(uint64(u), 10)
}

// TokenClass distinguishes the two unit registries.
type TokenClass string

const (
	TokenClassDonation   TokenClass = "donation"
	TokenClassDerivative TokenClass = "derivative"
)

// ParseTokenClass constructs a TokenClass from external input.
func ParseTokenClass(s string) (TokenClass, error) {
	switch TokenClass(s) {
	case TokenClassDonation, TokenClassDerivative:
		return TokenClass(s), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "token class must be donation or derivative")
	}
}

// String returns the string representation.
func (c TokenClass) String() string {
	return string(c)
}

// DerivativeKind is the product minted when a donation is processed.
// Numbering follows the derivative registry's on-chain encoding.
type DerivativeKind uint8

const (
	DerivativePlasma       DerivativeKind = 1
	DerivativeErythrocytes DerivativeKind = 2
	DerivativePlatelets    DerivativeKind = 3
)

// ParseDerivativeKind validates an on-chain kind value.
func ParseDerivativeKind(n uint64) (DerivativeKind, error) {
	switch DerivativeKind(n) {
	case DerivativePlasma, DerivativeErythrocytes, DerivativePlatelets:
		return DerivativeKind(n), nil
	default:
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "unknown derivative kind %d", n)
	}
}

func (k DerivativeKind) String() string {
	switch k {
	case DerivativePlasma:
		return "plasma"
	case DerivativeErythrocytes:
		return "erythrocytes"
	case DerivativePlatelets:
		return "platelets"
	default:
		return "unknown"
	}
}
