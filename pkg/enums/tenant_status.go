package enums

import "fmt"

// TenantStatus tracks an organization through its lifecycle.
type TenantStatus string

const (
	TenantStatusPending   TenantStatus = "pending"
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusCancelled TenantStatus = "cancelled"
)

var validTenantStatuses = []TenantStatus{
	TenantStatusPending,
	TenantStatusActive,
	TenantStatusSuspended,
	TenantStatusCancelled,
}

// String implements fmt.Stringer.
func (s TenantStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s TenantStatus) IsValid() bool {
	for _, candidate := range validTenantStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsResolvable reports whether requests may be routed to the tenant.
func (s TenantStatus) IsResolvable() bool {
	return s == TenantStatusActive || s == TenantStatusPending
}

// ParseTenantStatus converts raw input into a TenantStatus.
func ParseTenantStatus(value string) (TenantStatus, error) {
	for _, candidate := range validTenantStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tenant status %q", value)
}
