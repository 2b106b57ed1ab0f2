package permissions

import "github.com/wikicampus/wikicampus/internal/common"

// EditFlags is the outcome of evaluating one actor against one target
// entity. StudentSuggestion is true only when editing was granted through
// the included-item path, so callers know to stamp the provenance qualifier.
type EditFlags struct {
	CanEditItem       bool
	StudentSuggestion bool
}

// AdminFromGroups reports whether the group set grants administrator
// rights. Only the sysop group counts; all other group names are ignored.
func AdminFromGroups(groups []string) bool {
	for _, g := range groups {
		if g == common.AdminGroup {
			return true
		}
	}
	return false
}

// EvaluateEdit decides whether an actor may mutate targetEntityID.
//
// Admins and actors editing their own entity may edit freely. A non-admin
// editing a different entity may edit only when the target is confirmed to
// be in one of the actor's courses, and such edits are flagged as student
// suggestions. Everything else is denied.
func EvaluateEdit(isAdmin bool, actorEntityID, targetEntityID string, targetIncluded bool) EditFlags {
	if isAdmin || (actorEntityID != "" && actorEntityID == targetEntityID) {
		return EditFlags{CanEditItem: true}
	}
	if targetIncluded {
		return EditFlags{CanEditItem: true, StudentSuggestion: true}
	}
	return EditFlags{}
}
