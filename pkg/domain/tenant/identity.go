package tenant

// UserType classifies the authenticated caller.
type UserType string

// Known user types.
const (
	UserTypeCustomer UserType = "customer"
	UserTypeStaff    UserType = "staff"
	UserTypeAdmin    UserType = "admin"
)

// IsStaff reports whether the user type carries review privileges.
// Staff and admin updates are applied without a pending approval step.
func (t UserType) IsStaff() bool {
	return t == UserTypeStaff || t == UserTypeAdmin
}

// Identity is the authenticated bearer identity attached to requests.
type Identity struct {
	UserID        string
	UserType      UserType
	Organisations []int64
}

// CanAccess reports whether the identity may act on the organisation.
// Staff and admin users are not organisation-scoped.
func (i Identity) CanAccess(orgID int64) bool {
	if i.UserType.IsStaff() {
		return true
	}
	for _, id := range i.Organisations {
		if id == orgID {
			return true
		}
	}
	return false
}
