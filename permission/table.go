package permission

import "sort"

// Capability names, "<kind>:<verb>" over the fixed resource kinds.
const (
	UserRead   = "user:read"
	UserWrite  = "user:write"
	UserDelete = "user:delete"

	CompanyRead   = "company:read"
	CompanyWrite  = "company:write"
	CompanyDelete = "company:delete"

	ProjectRead          = "project:read"
	ProjectWrite         = "project:write"
	ProjectDelete        = "project:delete"
	ProjectAssignManager = "project:assign_manager"

	TaskRead   = "task:read"
	TaskWrite  = "task:write"
	TaskDelete = "task:delete"
	TaskAssign = "task:assign"

	SprintRead   = "sprint:read"
	SprintWrite  = "sprint:write"
	SprintDelete = "sprint:delete"

	CommentRead   = "comment:read"
	CommentWrite  = "comment:write"
	CommentDelete = "comment:delete"
)

var allCapabilities = []string{
	UserRead, UserWrite, UserDelete,
	CompanyRead, CompanyWrite, CompanyDelete,
	ProjectRead, ProjectWrite, ProjectDelete, ProjectAssignManager,
	TaskRead, TaskWrite, TaskDelete, TaskAssign,
	SprintRead, SprintWrite, SprintDelete,
	CommentRead, CommentWrite, CommentDelete,
}

var roleGrants = map[string][]string{
	"ADMIN": allCapabilities,
	"PROJECT_MANAGER": {
		ProjectRead, ProjectWrite, ProjectAssignManager,
		TaskRead, TaskWrite, TaskAssign,
		SprintRead, SprintWrite,
		CommentRead, CommentWrite,
	},
	"DEVELOPER": {
		ProjectRead,
		TaskRead, TaskWrite,
		SprintRead,
		CommentRead, CommentWrite,
	},
	"QA": {
		ProjectRead,
		TaskRead, TaskWrite,
		SprintRead,
		CommentRead, CommentWrite,
	},
	"STAKEHOLDER": {
		ProjectRead,
		TaskRead,
		SprintRead,
		CommentRead,
	},
}

// Table is the immutable role→capability mapping. Built once at process
// start; Allowed is a pure map-and-bitmask lookup with no I/O.
type Table struct {
	registry *Registry
	masks    map[string]Mask64
}

// NewTable builds the fixed table. The capability enumeration and role
// grants never change at runtime.
func NewTable() *Table {
	registry := NewRegistry()
	for _, name := range allCapabilities {
		// Registration of a fixed unique list cannot fail.
		_, _ = registry.Register(name)
	}
	registry.Freeze()

	masks := make(map[string]Mask64, len(roleGrants))
	for role, grants := range roleGrants {
		var mask Mask64
		for _, name := range grants {
			if bit, ok := registry.Bit(name); ok {
				mask.Set(bit)
			}
		}
		masks[role] = mask
	}

	return &Table{registry: registry, masks: masks}
}

// Allowed reports whether the role holds the named capability. Unknown
// roles and unknown capability names deny.
func (t *Table) Allowed(role, capability string) bool {
	mask, ok := t.masks[role]
	if !ok {
		return false
	}
	bit, ok := t.registry.Bit(capability)
	if !ok {
		return false
	}
	return mask.Has(bit)
}

// Capabilities returns the sorted capability names granted to the role.
func (t *Table) Capabilities(role string) []string {
	mask, ok := t.masks[role]
	if !ok {
		return nil
	}

	var names []string
	for bit := 0; bit < t.registry.Count(); bit++ {
		if !mask.Has(bit) {
			continue
		}
		if name, ok := t.registry.Name(bit); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Roles returns the sorted role names the table knows about.
func (t *Table) Roles() []string {
	roles := make([]string, 0, len(t.masks))
	for role := range t.masks {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
