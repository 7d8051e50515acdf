package rbac

import (
	"github.com/pantrylink/pantrylink-backend/pkg/enums"
)

// Permission names a single gated capability.
type Permission string

const (
	// Platform-only permissions.
	PermOrganizationView   Permission = "ORGANIZATION_VIEW"
	PermOrganizationManage Permission = "ORGANIZATION_MANAGE"
	PermPlanManage         Permission = "PLAN_MANAGE"
	PermInvitationManage   Permission = "INVITATION_MANAGE"

	// Tenant permissions.
	PermUserManage     Permission = "USER_MANAGE"
	PermAgencyManage   Permission = "AGENCY_MANAGE"
	PermCenterManage   Permission = "CENTER_MANAGE"
	PermClientRead     Permission = "CLIENT_READ"
	PermClientCreate   Permission = "CLIENT_CREATE"
	PermClientUpdate   Permission = "CLIENT_UPDATE"
	PermVoucherIssue   Permission = "VOUCHER_ISSUE"
	PermVoucherViewAll Permission = "VOUCHER_VIEW_ALL"
	PermVoucherViewOwn Permission = "VOUCHER_VIEW_OWN_AGENCY"
	PermVoucherRedeem  Permission = "VOUCHER_REDEEM"
	PermVoucherDelete  Permission = "VOUCHER_DELETE"
	PermSettingsManage Permission = "SETTINGS_MANAGE"
)

// Set is an immutable permission collection.
type Set map[Permission]struct{}

// Has reports membership.
func (s Set) Has(perm Permission) bool {
	_, ok := s[perm]
	return ok
}

var tenantPermissions = []Permission{
	PermUserManage,
	PermAgencyManage,
	PermCenterManage,
	PermClientRead,
	PermClientCreate,
	PermClientUpdate,
	PermVoucherIssue,
	PermVoucherViewAll,
	PermVoucherViewOwn,
	PermVoucherRedeem,
	PermVoucherDelete,
	PermSettingsManage,
}

// permissionsByRole is the whole authorization model: a constant mapping
// with no state. super_admin holds platform permissions only; it cannot
// perform tenant operations.
var permissionsByRole = map[enums.UserRole]Set{
	enums.UserRoleSuperAdmin: setOf(
		PermOrganizationView,
		PermOrganizationManage,
		PermPlanManage,
		PermInvitationManage,
	),
	enums.UserRoleAdmin: setOf(tenantPermissions...),
	enums.UserRoleThirdParty: setOf(
		PermClientRead,
		PermClientCreate,
		PermClientUpdate,
		PermVoucherIssue,
		PermVoucherViewOwn,
	),
	enums.UserRoleBackOffice: setOf(
		PermClientRead,
		PermVoucherViewAll,
		PermVoucherRedeem,
	),
}

func setOf(perms ...Permission) Set {
	set := make(Set, len(perms))
	for _, perm := range perms {
		set[perm] = struct{}{}
	}
	return set
}

// PermissionsFor returns the permission set of a role. Unknown roles get
// an empty set.
func PermissionsFor(role enums.UserRole) Set {
	if set, ok := permissionsByRole[role]; ok {
		return set
	}
	return Set{}
}

// Has is the set-membership authorization check. It is necessary but not
// sufficient for row-level access; callers still apply ownership checks.
func Has(role enums.UserRole, perm Permission) bool {
	return PermissionsFor(role).Has(perm)
}
