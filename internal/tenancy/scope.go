package tenancy

import (
	"github.com/google/uuid"
)

// Scope names the isolation context a transaction runs under: a single
// tenant, or the elevated platform context that bypasses row policies.
// The zero value is unusable on purpose; callers must construct one.
type Scope struct {
	tenantID uuid.UUID
	platform bool
	valid    bool
}

// TenantScope returns a scope restricted to the given tenant's rows.
func TenantScope(tenantID uuid.UUID) Scope {
	return Scope{tenantID: tenantID, valid: tenantID != uuid.Nil}
}

// PlatformScope returns the elevated cross-tenant scope. It is reserved
// for platform admins, session resolution, and tenant resolution.
func PlatformScope() Scope {
	return Scope{platform: true, valid: true}
}

// IsPlatform reports whether the scope bypasses tenant isolation.
func (s Scope) IsPlatform() bool {
	return s.platform
}

// IsValid reports whether the scope was properly constructed.
func (s Scope) IsValid() bool {
	return s.valid
}

// TenantID returns the bound tenant id and whether one is present.
func (s Scope) TenantID() (uuid.UUID, bool) {
	if !s.valid || s.platform {
		return uuid.Nil, false
	}
	return s.tenantID, true
}

// String implements fmt.Stringer for log fields.
func (s Scope) String() string {
	switch {
	case !s.valid:
		return "invalid"
	case s.platform:
		return "platform"
	default:
		return "tenant:" + s.tenantID.String()
	}
}
