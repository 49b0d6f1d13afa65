package models

import "time"

// OptimisticEntry is a report the user just submitted, staged so the next
// view can show it before the backend confirms it. Marker travels with the
// submission and comes back as Report.CorrelationID on the confirmed report.
type OptimisticEntry struct {
	Marker         string    `json:"marker"`
	Report         Report    `json:"report"`
	ExpectedStatus Status    `json:"expected_status"`
	StagedAt       time.Time `json:"staged_at"`
}

// ViewID is the id the entry occupies in a view until it is reconciled.
func (e OptimisticEntry) ViewID() string {
	return "optimistic:" + e.Marker
}

// AsReport returns the placeholder report shown in the view.
func (e OptimisticEntry) AsReport() Report {
	r := e.Report
	r.ID = e.ViewID()
	r.CorrelationID = e.Marker
	if e.ExpectedStatus != "" {
		r.Status = e.ExpectedStatus
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = e.StagedAt
	}
	return r
}
