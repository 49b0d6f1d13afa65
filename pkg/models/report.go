package models

import (
	"strings"
	"time"
)

// AnonymousReporter replaces the reporter name of anonymous reports in every view.
const AnonymousReporter = "Pelapor Anonim"

type Status string

const (
	StatusPending              Status = "pending"
	StatusVerifying            Status = "verifying"
	StatusAwaitingVerification Status = "awaiting_verification"
	StatusInProgress           Status = "in_progress"
	StatusResolved             Status = "resolved"
	StatusRejected             Status = "rejected"
)

// Statuses lists every known report status in workflow order.
var Statuses = []Status{
	StatusPending,
	StatusVerifying,
	StatusAwaitingVerification,
	StatusInProgress,
	StatusResolved,
	StatusRejected,
}

func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus accepts both the snake_case values and the upper-case/hyphenated
// spellings older clients still send (IN_PROGRESS, in-progress).
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	return s, s.Valid()
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type Report struct {
	ID          string   `json:"id" validate:"required"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Priority    Priority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Status      Status   `json:"status" validate:"required,oneof=pending verifying awaiting_verification in_progress resolved rejected"`
	Location    string   `json:"location,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	IsAnonymous bool     `json:"is_anonymous"`
	IsPublic    bool     `json:"is_public"`
	ReporterID  string   `json:"reporter_id"`
	Reporter    string   `json:"reporter_name"`
	AssignedTo  string   `json:"assigned_to,omitempty"`
	Likes       int      `json:"likes" validate:"gte=0"`
	Comments    int      `json:"comments" validate:"gte=0"`
	// CorrelationID is the marker the submitting client staged its optimistic
	// copy under. Empty for reports that were never staged.
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DisplayReporter returns the reporter name as it may be shown (and searched).
func (r Report) DisplayReporter() string {
	if r.IsAnonymous {
		return AnonymousReporter
	}
	return r.Reporter
}

// Masked returns a copy with the reporter name hidden for anonymous reports.
func (r Report) Masked() Report {
	if r.IsAnonymous {
		r.Reporter = AnonymousReporter
	}
	return r
}
