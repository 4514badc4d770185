package enums

// Role is the actor role carried in access tokens.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

var roles = newSet(
	RoleBuyer,
	RoleSeller,
	RoleAdmin,
)

func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	return roles.has(r)
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	return roles.parse("role", value)
}
