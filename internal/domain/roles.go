package domain

// UserRole is the organisational role of a user
type UserRole string

const (
	RoleProjectManager       UserRole = "Project Manager"
	RoleSeniorProjectManager UserRole = "Senior Project Manager"
	RoleDirector             UserRole = "Director"
	RoleAdmin                UserRole = "Admin"
)

// IsValid checks if the UserRole is a valid enum value
func (r UserRole) IsValid() bool {
	switch r {
	case RoleProjectManager, RoleSeniorProjectManager, RoleDirector, RoleAdmin:
		return true
	}
	return false
}

// IsUniversal reports whether the role sees every project without assignments
func (r UserRole) IsUniversal() bool {
	switch r {
	case RoleDirector, RoleAdmin, RoleSeniorProjectManager:
		return true
	}
	return false
}

// DefaultPermissions returns the permission preset for a role.
// Unknown roles get the Project Manager preset.
func DefaultPermissions(role UserRole) UserPermissions {
	switch role {
	case RoleSeniorProjectManager:
		return UserPermissions{
			CanCreateProjects:  true,
			CanViewAllProjects: true,
			CanApproveProjects: false,
			CanManageUsers:     false,
			CanManageVendors:   true,
		}
	case RoleDirector, RoleAdmin:
		return UserPermissions{
			CanCreateProjects:  true,
			CanViewAllProjects: true,
			CanApproveProjects: true,
			CanManageUsers:     true,
			CanManageVendors:   true,
		}
	default:
		return UserPermissions{
			CanCreateProjects: true,
		}
	}
}

// ProjectStatus is the lifecycle status of a project
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "Active"
	ProjectStatusCompleted ProjectStatus = "Completed"
	ProjectStatusOnHold    ProjectStatus = "On Hold"
	ProjectStatusCancelled ProjectStatus = "Cancelled"
)

// IsValid checks if the ProjectStatus is a valid enum value
func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectStatusActive, ProjectStatusCompleted, ProjectStatusOnHold, ProjectStatusCancelled:
		return true
	}
	return false
}

// ChangeOrderStatus is the approval state of a change order
type ChangeOrderStatus string

const (
	ChangeOrderPending  ChangeOrderStatus = "Pending"
	ChangeOrderApproved ChangeOrderStatus = "Approved"
	ChangeOrderRejected ChangeOrderStatus = "Rejected"
)

// IsValid checks if the ChangeOrderStatus is a valid enum value
func (s ChangeOrderStatus) IsValid() bool {
	switch s {
	case ChangeOrderPending, ChangeOrderApproved, ChangeOrderRejected:
		return true
	}
	return false
}

// AccessLevel is the level of an explicit project assignment
type AccessLevel string

const (
	AccessViewer AccessLevel = "Viewer"
	AccessEditor AccessLevel = "Editor"
	AccessAdmin  AccessLevel = "Admin"
)

// IsValid checks if the AccessLevel is a valid enum value
func (l AccessLevel) IsValid() bool {
	switch l {
	case AccessViewer, AccessEditor, AccessAdmin:
		return true
	}
	return false
}

// Permissions derives the assignment permission flags for an access level
func (l AccessLevel) Permissions() AssignmentPermissions {
	switch l {
	case AccessAdmin:
		return AssignmentPermissions{
			CanView:           true,
			CanEdit:           true,
			CanApprove:        true,
			CanComment:        true,
			CanViewFinancials: true,
		}
	case AccessEditor:
		return AssignmentPermissions{
			CanView:           true,
			CanEdit:           true,
			CanComment:        true,
			CanViewFinancials: true,
		}
	case AccessViewer:
		return AssignmentPermissions{
			CanView:    true,
			CanComment: true,
		}
	}
	return AssignmentPermissions{}
}

// ProjectPermission names an action on a single project
type ProjectPermission string

const (
	PermissionView           ProjectPermission = "view"
	PermissionEdit           ProjectPermission = "edit"
	PermissionApprove        ProjectPermission = "approve"
	PermissionComment        ProjectPermission = "comment"
	PermissionViewFinancials ProjectPermission = "viewFinancials"
)

// Allows maps a permission name onto the matching assignment flag.
// Unknown permission names are never granted.
func (p AssignmentPermissions) Allows(permission ProjectPermission) bool {
	switch permission {
	case PermissionView:
		return p.CanView
	case PermissionEdit:
		return p.CanEdit
	case PermissionApprove:
		return p.CanApprove
	case PermissionComment:
		return p.CanComment
	case PermissionViewFinancials:
		return p.CanViewFinancials
	}
	return false
}
