package models

import "strings"

// All is the explicit "no constraint" value a client may send for any filter dimension.
const All = "all"

// FilterState is the user-facing filter of a report view.
//
// Status selects a single status. When it is empty (or "all") the view admits
// any status in Admitted, and an empty Admitted means every known status.
type FilterState struct {
	Category string   `json:"category,omitempty"`
	Status   Status   `json:"status,omitempty"`
	Admitted []Status `json:"admitted,omitempty"`
	Priority Priority `json:"priority,omitempty"`
	Search   string   `json:"search,omitempty"`
}

func isAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, All)
}

func (f FilterState) AnyCategory() bool { return isAll(f.Category) }
func (f FilterState) AnyPriority() bool { return isAll(string(f.Priority)) }
func (f FilterState) AnyStatus() bool   { return isAll(string(f.Status)) }

// SearchTerm returns the normalised search term, "" when search is off.
func (f FilterState) SearchTerm() string {
	return strings.ToLower(strings.TrimSpace(f.Search))
}

// AdmittedStatuses returns the statuses the filter lets through.
func (f FilterState) AdmittedStatuses() []Status {
	if !f.AnyStatus() {
		return []Status{f.Status}
	}
	if len(f.Admitted) == 0 {
		out := make([]Status, len(Statuses))
		copy(out, Statuses)
		return out
	}
	out := make([]Status, len(f.Admitted))
	copy(out, f.Admitted)
	return out
}

// Admits reports whether status s passes the status dimension. An absent
// status never passes.
func (f FilterState) Admits(s Status) bool {
	if s == "" {
		return false
	}
	for _, a := range f.AdmittedStatuses() {
		if a == s {
			return true
		}
	}
	return false
}

// Equal compares two filters dimension by dimension.
func (f FilterState) Equal(o FilterState) bool {
	if f.Category != o.Category || f.Status != o.Status || f.Priority != o.Priority || f.Search != o.Search {
		return false
	}
	if len(f.Admitted) != len(o.Admitted) {
		return false
	}
	for i := range f.Admitted {
		if f.Admitted[i] != o.Admitted[i] {
			return false
		}
	}
	return true
}
