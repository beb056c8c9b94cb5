package domain

// Role is the capability classification resolved for an identity. It is
// recomputed each session from ledger state and never persisted.
//
// Invariant: exactly one role holds for an identity at a given ledger
// height; resolution precedence is Admin > company role > Donor >
// Unregistered.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleDonationCenter Role = "donation_center"
	RoleLaboratory     Role = "laboratory"
	RoleTrader         Role = "trader"
	RoleDonor          Role = "donor"
	RoleUnregistered   Role = "unregistered"
)

// String returns the string representation.
func (r Role) String() string {
	return string(r)
}

// CompanyRole is the registry's on-chain role encoding.
type CompanyRole uint8

const (
	CompanyRoleUnset          CompanyRole = 0
	CompanyRoleDonationCenter CompanyRole = 1
	CompanyRoleLaboratory     CompanyRole = 2
	CompanyRoleTrader         CompanyRole = 3
)

// Role maps an on-chain company role to a resolved Role. Unset companies
// do not map to a role; callers fall through to donor resolution.
func (c CompanyRole) Role() (Role, bool) {
	switch c {
	case CompanyRoleDonationCenter:
		return RoleDonationCenter, true
	case CompanyRoleLaboratory:
		return RoleLaboratory, true
	case CompanyRoleTrader:
		return RoleTrader, true
	default:
		return "", false
	}
}

// CompanyStatus is the registry's approval-workflow state.
type CompanyStatus uint8

const (
	CompanyStatusNone     CompanyStatus = 0
	CompanyStatusPending  CompanyStatus = 1
	CompanyStatusApproved CompanyStatus = 2
	CompanyStatusRejected CompanyStatus = 3
)

// Company is the registry record for a participant. Created by the external
// approval workflow; read-only to this system.
type Company struct {
	Address  Address
	Role     CompanyRole
	Status   CompanyStatus
	Name     string
	Location string
}
