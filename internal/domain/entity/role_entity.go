package entity

// Role is the membership tier of a user.
type Role string

const (
	RoleMember    Role = "member"
	RoleAffiliate Role = "affiliate"
	RoleEmployee  Role = "employee"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleAffiliate, RoleEmployee, RoleAdmin:
		return true
	}
	return false
}

// SelfAssignable reports whether a visitor may pick r at registration.
func (r Role) SelfAssignable() bool {
	return r == RoleMember || r == RoleAffiliate
}

// Staff reports whether r may use the back-office endpoints.
func (r Role) Staff() bool {
	return r == RoleEmployee || r == RoleAdmin
}

func (r Role) String() string { return string(r) }
