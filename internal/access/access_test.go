package access

import (
	"testing"

	"cassian/api/internal/store"
)

func testProject() store.Project {
	return store.Project{
		ID:      "prj_1",
		OwnerID: "usr_owner",
		Admins:  []string{"usr_admin"},
		Devs:    []string{"usr_dev"},
		Public:  false,
	}
}

func TestRoleHierarchy(t *testing.T) {
	project := testProject()

	cases := []struct {
		name    string
		userID  string
		isOwner bool
		isAdmin bool
		isDev   bool
	}{
		{name: "owner implies admin and dev", userID: "usr_owner", isOwner: true, isAdmin: true, isDev: true},
		{name: "admin implies dev but not owner", userID: "usr_admin", isOwner: false, isAdmin: true, isDev: true},
		{name: "dev implies neither admin nor owner", userID: "usr_dev", isOwner: false, isAdmin: false, isDev: true},
		{name: "stranger has no role", userID: "usr_other", isOwner: false, isAdmin: false, isDev: false},
		{name: "anonymous has no role", userID: "", isOwner: false, isAdmin: false, isDev: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsOwner(project, tc.userID); got != tc.isOwner {
				t.Errorf("IsOwner(%q) = %v, want %v", tc.userID, got, tc.isOwner)
			}
			if got := IsAdmin(project, tc.userID); got != tc.isAdmin {
				t.Errorf("IsAdmin(%q) = %v, want %v", tc.userID, got, tc.isAdmin)
			}
			if got := IsDev(project, tc.userID); got != tc.isDev {
				t.Errorf("IsDev(%q) = %v, want %v", tc.userID, got, tc.isDev)
			}
		})
	}
}

func TestCanView(t *testing.T) {
	private := testProject()
	public := testProject()
	public.Public = true

	if CanView(private, "") {
		t.Error("anonymous must not view a private project")
	}
	if CanView(private, "usr_other") {
		t.Error("non-member must not view a private project")
	}
	for _, userID := range []string{"usr_owner", "usr_admin", "usr_dev"} {
		if !CanView(private, userID) {
			t.Errorf("%s must view the private project", userID)
		}
	}
	if !CanView(public, "") {
		t.Error("anonymous must view a public project")
	}
}

func TestAnonymousAlwaysFalse(t *testing.T) {
	project := testProject()
	project.Admins = append(project.Admins, "")
	project.Devs = append(project.Devs, "")

	// An empty id in a member list must never grant the anonymous caller a role.
	if IsAdmin(project, "") || IsDev(project, "") || IsOwner(project, "") {
		t.Error("anonymous caller gained a role from an empty member entry")
	}
}
