package rbac

// Role names. Keep these stable; they are part of auth contracts.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	// RoleSupport can impersonate users for troubleshooting; it is hidden
	// and must be allowed explicitly per route.
	RoleSupport = "support"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsHiddenRole(role string) bool { return role == RoleSupport }
