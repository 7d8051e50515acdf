package enums

import "fmt"

// UserRole represents a platform or tenant permissions role.
type UserRole string

const (
	UserRoleSuperAdmin UserRole = "super_admin"
	UserRoleAdmin      UserRole = "admin"
	UserRoleThirdParty UserRole = "third_party"
	UserRoleBackOffice UserRole = "back_office"
)

var validUserRoles = []UserRole{
	UserRoleSuperAdmin,
	UserRoleAdmin,
	UserRoleThirdParty,
	UserRoleBackOffice,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsPlatform reports whether the role operates outside any tenant.
func (r UserRole) IsPlatform() bool {
	return r == UserRoleSuperAdmin
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
