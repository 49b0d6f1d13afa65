package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Routing keys of the four report topics on the "reports" exchange.
const (
	TopicCreated         = "report.created"
	TopicStatusChanged   = "report.status_changed"
	TopicLikesChanged    = "report.likes_changed"
	TopicCommentsChanged = "report.comments_changed"
)

// Topics lists the routing keys a view subscribes to.
var Topics = []string{TopicCreated, TopicStatusChanged, TopicLikesChanged, TopicCommentsChanged}

// ErrMalformedEvent marks a push event that is missing required fields or
// carries values outside their domain.
var ErrMalformedEvent = errors.New("malformed event")

var validate = validator.New()

// Event is the closed set of push events a view reconciles. Version is the
// backend's per-report generation marker; 0 means the publisher did not send one.
type Event interface {
	ReportID() string
	Generation() int64
	Topic() string
	Validate() error
	isEvent()
}

type EventCreated struct {
	Report  Report `json:"report"`
	Version int64  `json:"version,omitempty" validate:"gte=0"`
}

type EventStatusChanged struct {
	ID         string `json:"id" validate:"required"`
	Status     Status `json:"status" validate:"required,oneof=pending verifying awaiting_verification in_progress resolved rejected"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Version    int64  `json:"version,omitempty" validate:"gte=0"`
}

type EventLikeCountChanged struct {
	ID      string `json:"id" validate:"required"`
	Count   int    `json:"count" validate:"gte=0"`
	Version int64  `json:"version,omitempty" validate:"gte=0"`
}

type EventCommentCountChanged struct {
	ID      string `json:"id" validate:"required"`
	Count   int    `json:"count" validate:"gte=0"`
	Version int64  `json:"version,omitempty" validate:"gte=0"`
}

func (e EventCreated) ReportID() string             { return e.Report.ID }
func (e EventStatusChanged) ReportID() string       { return e.ID }
func (e EventLikeCountChanged) ReportID() string    { return e.ID }
func (e EventCommentCountChanged) ReportID() string { return e.ID }

func (e EventCreated) Generation() int64             { return e.Version }
func (e EventStatusChanged) Generation() int64       { return e.Version }
func (e EventLikeCountChanged) Generation() int64    { return e.Version }
func (e EventCommentCountChanged) Generation() int64 { return e.Version }

func (EventCreated) Topic() string             { return TopicCreated }
func (EventStatusChanged) Topic() string       { return TopicStatusChanged }
func (EventLikeCountChanged) Topic() string    { return TopicLikesChanged }
func (EventCommentCountChanged) Topic() string { return TopicCommentsChanged }

func (EventCreated) isEvent()             {}
func (EventStatusChanged) isEvent()       {}
func (EventLikeCountChanged) isEvent()    {}
func (EventCommentCountChanged) isEvent() {}

// Nested structs are validated too, so EventCreated checks the full snapshot.
func (e EventCreated) Validate() error             { return validateEvent(e) }
func (e EventStatusChanged) Validate() error       { return validateEvent(e) }
func (e EventLikeCountChanged) Validate() error    { return validateEvent(e) }
func (e EventCommentCountChanged) Validate() error { return validateEvent(e) }

func validateEvent(e Event) error {
	if err := validate.Struct(e); err != nil {
		return malformed(e, err)
	}
	return nil
}

func malformed(e Event, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, e.Topic(), err)
}
