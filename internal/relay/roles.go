package relay

// Role classifies an identity by equality against the configured ids.
type Role int

const (
	RolePlain Role = iota
	RoleAdmin
	RoleTechManager
)

// Gate is the static authorization check. No hierarchy: operations require
// either Admin alone or Admin-or-TechManager, checked where invoked.
type Gate struct {
	AdminID       int64
	TechManagerID int64
	MonitorID     int64
}

// RoleOf resolves the role of an identity.
func (g Gate) RoleOf(id int64) Role {
	switch id {
	case g.AdminID:
		return RoleAdmin
	case g.TechManagerID:
		return RoleTechManager
	}
	return RolePlain
}

// IsPrivileged reports whether id may run admin-or-tech operations
// (broadcast, stats).
func (g Gate) IsPrivileged(id int64) bool {
	return id == g.AdminID || id == g.TechManagerID
}

// IsStaff reports whether id belongs to any service identity. Staff content
// never enters the user question flow.
func (g Gate) IsStaff(id int64) bool {
	return id == g.AdminID || id == g.TechManagerID || (g.MonitorID != 0 && id == g.MonitorID)
}
