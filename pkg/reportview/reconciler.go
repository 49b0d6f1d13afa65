package reportview

import (
	"sync"

	"github.com/sirupsen/logrus"

	"citizen-reporting-system/pkg/metrics"
	"citizen-reporting-system/pkg/models"
)

// PushChannel delivers the four report topics. Each On* call registers a
// callback and returns the function that removes it. Callbacks may run
// concurrently with each other and with fetches.
type PushChannel interface {
	OnCreated(func(models.EventCreated)) func()
	OnStatusChanged(func(models.EventStatusChanged)) func()
	OnLikeCountChanged(func(models.EventLikeCountChanged)) func()
	OnCommentCountChanged(func(models.EventCommentCountChanged)) func()
}

// Subscription cancels the four topic subscriptions of one view together.
type Subscription struct {
	once    sync.Once
	cancels []func()
}

// Cancel is synchronous and safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		for _, cancel := range s.cancels {
			cancel()
		}
	})
}

// Reconciler validates push events and hands them to the view.
type Reconciler struct {
	handle func(models.Event) Outcome
	log    logrus.FieldLogger
}

func NewReconciler(handle func(models.Event) Outcome, log logrus.FieldLogger) *Reconciler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconciler{handle: handle, log: log}
}

func (r *Reconciler) Subscribe(ch PushChannel) *Subscription {
	return &Subscription{cancels: []func(){
		ch.OnCreated(func(e models.EventCreated) { r.Deliver(e) }),
		ch.OnStatusChanged(func(e models.EventStatusChanged) { r.Deliver(e) }),
		ch.OnLikeCountChanged(func(e models.EventLikeCountChanged) { r.Deliver(e) }),
		ch.OnCommentCountChanged(func(e models.EventCommentCountChanged) { r.Deliver(e) }),
	}}
}

// Deliver drops malformed events and applies the rest.
func (r *Reconciler) Deliver(ev models.Event) Outcome {
	if err := ev.Validate(); err != nil {
		metrics.Events.WithLabelValues(ev.Topic(), "malformed").Inc()
		r.log.WithError(err).WithField("report_id", ev.ReportID()).Warn("dropping malformed event")
		return OutcomeIgnored
	}
	o := r.handle(ev)
	metrics.Events.WithLabelValues(ev.Topic(), o.String()).Inc()
	return o
}
