package permission

import "testing"

func TestAdminHoldsEveryCapability(t *testing.T) {
	table := NewTable()
	for _, capability := range allCapabilities {
		if !table.Allowed("ADMIN", capability) {
			t.Fatalf("ADMIN must hold %s", capability)
		}
	}
	if got := len(table.Capabilities("ADMIN")); got != len(allCapabilities) {
		t.Fatalf("expected %d capabilities, got %d", len(allCapabilities), got)
	}
}

func TestProjectManagerGrants(t *testing.T) {
	table := NewTable()

	for _, capability := range []string{
		ProjectRead, ProjectWrite, ProjectAssignManager,
		TaskRead, TaskWrite, TaskAssign,
		SprintRead, SprintWrite,
		CommentRead, CommentWrite,
	} {
		if !table.Allowed("PROJECT_MANAGER", capability) {
			t.Fatalf("PROJECT_MANAGER must hold %s", capability)
		}
	}
	for _, capability := range []string{
		UserRead, UserWrite, UserDelete,
		CompanyRead, CompanyWrite, CompanyDelete,
		ProjectDelete, TaskDelete, SprintDelete, CommentDelete,
	} {
		if table.Allowed("PROJECT_MANAGER", capability) {
			t.Fatalf("PROJECT_MANAGER must not hold %s", capability)
		}
	}
}

func TestDeveloperAndQAAreIdentical(t *testing.T) {
	table := NewTable()

	developer := table.Capabilities("DEVELOPER")
	qa := table.Capabilities("QA")
	if len(developer) != len(qa) {
		t.Fatalf("grant sets differ in size: %d vs %d", len(developer), len(qa))
	}
	for i := range developer {
		if developer[i] != qa[i] {
			t.Fatalf("grant sets diverge at %s vs %s", developer[i], qa[i])
		}
	}

	if !table.Allowed("DEVELOPER", TaskWrite) {
		t.Fatal("DEVELOPER must hold task:write")
	}
	if table.Allowed("DEVELOPER", ProjectWrite) {
		t.Fatal("DEVELOPER must not hold project:write")
	}
}

func TestStakeholderIsReadOnly(t *testing.T) {
	table := NewTable()

	for _, capability := range []string{ProjectRead, TaskRead, SprintRead, CommentRead} {
		if !table.Allowed("STAKEHOLDER", capability) {
			t.Fatalf("STAKEHOLDER must hold %s", capability)
		}
	}
	for _, capability := range []string{
		TaskWrite, CommentWrite, ProjectWrite, SprintWrite,
		UserRead, CompanyRead, TaskAssign,
	} {
		if table.Allowed("STAKEHOLDER", capability) {
			t.Fatalf("STAKEHOLDER must not hold %s", capability)
		}
	}
}

func TestUnknownRoleAndCapabilityDeny(t *testing.T) {
	table := NewTable()

	if table.Allowed("WIZARD", ProjectRead) {
		t.Fatal("unknown role must deny")
	}
	if table.Allowed("ADMIN", "project:launch") {
		t.Fatal("unknown capability must deny, even for ADMIN")
	}
	if caps := table.Capabilities("WIZARD"); caps != nil {
		t.Fatalf("unknown role must have no capabilities, got %v", caps)
	}
}

func TestRolesEnumeration(t *testing.T) {
	table := NewTable()

	want := []string{"ADMIN", "DEVELOPER", "PROJECT_MANAGER", "QA", "STAKEHOLDER"}
	got := table.Roles()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
