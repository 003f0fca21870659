package rbac

// Role is a user's relation to a project.
type Role string
type Action string

const (
	RoleOutsider Role = "outsider"
	RoleMember   Role = "member"
	RoleCreator  Role = "creator"
)

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Can reports whether role may perform action. Reads are open to any
// registered user; writes need membership and deletes need the creator.
func Can(role Role, action Action) bool {
	switch role {
	case RoleCreator:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionWrite
	case RoleOutsider:
		return action == ActionRead
	default:
		return false
	}
}

// RoleFor derives the relation of userID to a project from its creator and
// the user's membership.
func RoleFor(creatorID, userID string, member bool) Role {
	switch {
	case userID != "" && creatorID == userID:
		return RoleCreator
	case member:
		return RoleMember
	default:
		return RoleOutsider
	}
}
