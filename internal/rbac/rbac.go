package rbac

type Role string
type Action string

const (
	RoleNone   Role = ""
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

const (
	ActionRead          Action = "read"
	ActionWrite         Action = "write"
	ActionManageMembers Action = "manage_members"
	ActionManageSpace   Action = "manage_space"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionWrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps a stored role string onto a known role. Unknown values
// collapse to viewer so a corrupted record never grants write access.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleOwner:
		return Role(role)
	default:
		return RoleViewer
	}
}

// ParseAssignable accepts only the roles a member can be moved between.
// Owner is set at space creation and is never assignable.
func ParseAssignable(role string) (Role, bool) {
	switch Role(role) {
	case RoleEditor, RoleViewer:
		return Role(role), true
	default:
		return RoleNone, false
	}
}
