package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "bloodtrace/pkg/domain-errors"
)

func TestParseAddress(t *testing.T) {
	t.Run("valid address normalizes to lowercase", func(t *testing.T) {
		addr, err := ParseAddress("0xAbCdEf0123456789abcdef0123456789ABCDEF01")
		require.NoError(t, err)
		assert.Equal(t, Address("0xabcdef0123456789abcdef0123456789abcdef01"), addr)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		cases := map[string]string{
			"empty":     "",
			"no prefix": "abcdef0123456789abcdef0123456789abcdef01",
			"too short": "0xabcd",
			"too long":  "0xabcdef0123456789abcdef0123456789abcdef0123",
			"non hex":   "0xzzcdef0123456789abcdef0123456789abcdef01",
		}
		for name, in := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := ParseAddress(in)
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			})
		}
	})

	t.Run("zero sentinel", func(t *testing.T) {
		assert.True(t, ZeroAddress.IsZero())
		assert.True(t, Address("").IsZero())
		addr, err := ParseAddress("0x1111111111111111111111111111111111111111")
		require.NoError(t, err)
		assert.False(t, addr.IsZero())
	})

	t.Run("short form", func(t *testing.T) {
		addr := Address("0xabcdef0123456789abcdef0123456789abcdef01")
		assert.Equal(t, "0xabcd...ef01", addr.Short())
	})
}

func TestParseUnitID(t *testing.T) {
	id, err := ParseUnitID("7")
	require.NoError(t, err)
	assert.Equal(t, UnitID(7), id)

	for _, in := range []string{"", "0", "-1", "abc", "1.5"} {
		_, err := ParseUnitID(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseTokenClass(t *testing.T) {
	for _, in := range []string{"donation", "derivative"} {
		c, err := ParseTokenClass(in)
		require.NoError(t, err)
		assert.Equal(t, in, c.String())
	}
	_, err := ParseTokenClass("plasma")
	assert.Error(t, err)
}

func TestCompanyRoleMapping(t *testing.T) {
	cases := []struct {
		in   CompanyRole
		want Role
		ok   bool
	}{
		{CompanyRoleDonationCenter, RoleDonationCenter, true},
		{CompanyRoleLaboratory, RoleLaboratory, true},
		{CompanyRoleTrader, RoleTrader, true},
		{CompanyRoleUnset, "", false},
		{CompanyRole(9), "", false},
	}
	for _, tc := range cases {
		got, ok := tc.in.Role()
		assert.Equal(t, tc.ok, ok)
		assert.Equal(t, tc.want, got)
	}
}

func TestParseDerivativeKind(t *testing.T) {
	for n, want := range map[uint64]string{1: "plasma", 2: "erythrocytes", 3: "platelets"} {
		k, err := ParseDerivativeKind(n)
		require.NoError(t, err)
		assert.Equal(t, want, k.String())
	}
	_, err := ParseDerivativeKind(0)
	assert.Error(t, err)
	_, err = ParseDerivativeKind(4)
	assert.Error(t, err)
}
