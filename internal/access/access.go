// Package access holds the role predicates for project authorization. Every
// predicate is a pure function of a project and a user id; the anonymous
// caller is the empty id and is never granted anything beyond public
// visibility. The hierarchy is total: owner implies admin implies dev.
package access

import "cassian/api/internal/store"

// IsOwner reports whether userID owns the project.
func IsOwner(project store.Project, userID string) bool {
	return userID != "" && project.OwnerID == userID
}

// IsAdmin reports whether userID administers the project. Owners are
// implicitly admins.
func IsAdmin(project store.Project, userID string) bool {
	return IsOwner(project, userID) || contains(project.Admins, userID)
}

// IsDev reports whether userID is a developer on the project. Admins and
// owners are implicitly devs.
func IsDev(project store.Project, userID string) bool {
	return IsAdmin(project, userID) || contains(project.Devs, userID)
}

// CanView reports whether userID may see the project at all.
func CanView(project store.Project, userID string) bool {
	return project.Public || IsDev(project, userID)
}

func contains(ids []string, userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range ids {
		if id == userID {
			return true
		}
	}
	return false
}
