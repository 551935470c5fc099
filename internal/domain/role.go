package domain

// Caller roles carried in access tokens.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Caller is the authenticated identity performing an operation.
type Caller struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller has the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CanModify reports whether the caller may change a resource owned by ownerID.
func (c Caller) CanModify(ownerID string) bool {
	return c.IsAdmin() || (c.UserID != "" && c.UserID == ownerID)
}
