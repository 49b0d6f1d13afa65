package reportview

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"citizen-reporting-system/pkg/metrics"
	"citizen-reporting-system/pkg/models"
)

const DefaultFetchTimeout = 10 * time.Second

// Lister is the backend query of the view.
type Lister interface {
	List(ctx context.Context, f models.FilterState) ([]models.Report, error)
}

// FetchError is the view-level error of a failed or timed-out fetch. The view
// keeps its last good contents; the user may retry.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string   { return "report fetch failed: " + e.Err.Error() }
func (e *FetchError) Unwrap() error   { return e.Err }
func (e *FetchError) Retryable() bool { return true }

type Config struct {
	Filter           models.FilterState
	Debounce         time.Duration
	FetchTimeout     time.Duration
	OptimisticMaxAge time.Duration
}

// State is a point-in-time copy of a view.
type State struct {
	Version   uint64             `json:"version"`
	Filter    models.FilterState `json:"filter"`
	Fetch     string             `json:"fetch_state"`
	Error     string             `json:"error,omitempty"`
	Retryable bool               `json:"retryable,omitempty"`
	Reports   []models.Report    `json:"reports"`
}

// View owns one Store and everything that writes to it. All store access
// goes through mu, which plays the role of the single event loop: fetch
// completions and push callbacks are applied one at a time.
type View struct {
	mu         sync.Mutex
	store      *Store
	filter     models.FilterState
	generation uint64
	err        error
	closed     bool

	lister     Lister
	push       PushChannel
	buffer     *OptimisticBuffer
	coord      *Coordinator
	reconciler *Reconciler
	sub        *Subscription
	timeout    time.Duration
	log        logrus.FieldLogger

	changes chan struct{}
	done    chan struct{}
}

// New builds a view. buffer may be nil when the session has no staging slot.
func New(lister Lister, push PushChannel, buffer *OptimisticBuffer, cfg Config, log logrus.FieldLogger) *View {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	v := &View{
		store:   NewStore(WithOptimisticMaxAge(cfg.OptimisticMaxAge)),
		filter:  cfg.Filter,
		lister:  lister,
		push:    push,
		buffer:  buffer,
		timeout: cfg.FetchTimeout,
		log:     log,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	v.coord = NewCoordinator(v.fetch, cfg.Debounce, log)
	v.reconciler = NewReconciler(v.apply, log)
	return v
}

// Open shows a staged optimistic entry, subscribes to the push topics and
// issues the first fetch.
func (v *View) Open(ctx context.Context) {
	if v.buffer != nil {
		v.mu.Lock()
		f := v.filter
		v.mu.Unlock()

		if entry, ok := v.buffer.Consume(ctx, f); ok {
			v.mu.Lock()
			if v.store.StageOptimistic(entry, v.filter) {
				v.log.WithField("marker", entry.Marker).Debug("optimistic report shown")
				v.notify()
			}
			v.mu.Unlock()
		}
	}

	v.sub = v.reconciler.Subscribe(v.push)
	metrics.ActiveViews.Inc()
	v.coord.RequestNow()
}

// SetFilter switches the view to f. Results of fetches issued for an older
// filter are discarded; the refetch is debounced.
func (v *View) SetFilter(f models.FilterState) {
	v.mu.Lock()
	if v.closed || v.filter.Equal(f) {
		v.mu.Unlock()
		return
	}
	v.filter = f
	v.generation++
	v.mu.Unlock()

	v.coord.Request()
}

// Refresh fetches now, for example after the user dismissed an error.
func (v *View) Refresh() {
	v.coord.RequestNow()
}

// Deliver applies one event as if it came from the push channel.
func (v *View) Deliver(ev models.Event) Outcome {
	return v.reconciler.Deliver(ev)
}

func (v *View) apply(ev models.Event) Outcome {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return OutcomeIgnored
	}
	before := v.store.Version()
	o := v.store.Apply(ev, v.filter)
	if v.store.Version() != before {
		v.notify()
	}
	v.mu.Unlock()

	if o == OutcomeBackfill {
		v.log.WithField("report_id", ev.ReportID()).Debug("requesting backfill fetch")
		v.coord.RequestNow()
	}
	return o
}

func (v *View) fetch() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	f, gen := v.filter, v.generation
	v.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	reports, err := v.lister.List(ctx, f)
	cancel()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || gen != v.generation {
		v.log.WithField("generation", gen).Debug("discarding stale fetch result")
		return nil
	}
	if err != nil {
		v.err = &FetchError{Err: err}
		v.log.WithError(err).Warn("report fetch failed")
		v.notify()
		return v.err
	}
	v.err = nil
	v.store.Replace(reports, f)
	v.notify()
	return nil
}

// notify must be called with mu held.
func (v *View) notify() {
	select {
	case v.changes <- struct{}{}:
	default:
	}
}

// Changes signals (coalesced) whenever the view's state changed.
func (v *View) Changes() <-chan struct{} { return v.changes }

// Done is closed by Close.
func (v *View) Done() <-chan struct{} { return v.done }

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := State{
		Version: v.store.Version(),
		Filter:  v.filter,
		Fetch:   v.coord.State().String(),
		Reports: v.store.Snapshot(),
	}
	if v.err != nil {
		s.Error = v.err.Error()
		s.Retryable = true
	}
	return s
}

// Err returns the error of the last fetch, nil after a successful one.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Close cancels the four subscriptions before returning. A fetch still in
// flight finishes but its result is dropped.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	if v.sub != nil {
		v.sub.Cancel()
		metrics.ActiveViews.Dec()
	}
	v.coord.Close()
	close(v.done)
}

// Wait blocks until the view has no fetch in flight.
func (v *View) Wait() { v.coord.Wait() }
