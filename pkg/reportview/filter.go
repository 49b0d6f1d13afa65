package reportview

import (
	"strings"

	"citizen-reporting-system/pkg/models"
)

// Matches decides whether r belongs to the view described by f.
// Private reports never match. A dimension left empty (or "all") always
// passes; a report missing the value a set dimension asks for fails that
// dimension.
func Matches(r models.Report, f models.FilterState) bool {
	if !r.IsPublic {
		return false
	}
	if !f.AnyCategory() && !strings.EqualFold(r.Category, strings.TrimSpace(f.Category)) {
		return false
	}
	if !f.Admits(r.Status) {
		return false
	}
	if !f.AnyPriority() && r.Priority != f.Priority {
		return false
	}
	if term := f.SearchTerm(); term != "" {
		return containsFold(r.Title, term) ||
			containsFold(r.Description, term) ||
			containsFold(r.DisplayReporter(), term)
	}
	return true
}

// containsFold expects term to be lower-cased already.
func containsFold(s, term string) bool {
	if s == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), term)
}
