package reportview

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"citizen-reporting-system/pkg/metrics"
)

type FetchState int

const (
	Idle FetchState = iota
	Fetching
	FetchingWithPendingRerun
)

func (s FetchState) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case FetchingWithPendingRerun:
		return "fetching_with_pending_rerun"
	default:
		return "idle"
	}
}

// FetchFunc performs one list fetch and installs its result. It runs on the
// coordinator's goroutine, never concurrently with itself.
type FetchFunc func() error

// Coordinator keeps at most one fetch in flight. A request that arrives
// while a fetch runs is remembered once and honoured when that fetch ends.
// Failed fetches are not retried.
type Coordinator struct {
	mu     sync.Mutex
	state  FetchState
	closed bool

	fetch    FetchFunc
	debounce *Debouncer
	log      logrus.FieldLogger

	requests int
	fetches  int
	wg       sync.WaitGroup
}

func NewCoordinator(fetch FetchFunc, window time.Duration, log logrus.FieldLogger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		fetch:    fetch,
		debounce: NewDebouncer(window),
		log:      log,
	}
}

// Request asks for a fetch after the debounce window.
func (c *Coordinator) Request() {
	c.debounce.Debounce(c.RequestNow)
}

// RequestNow asks for a fetch without debouncing.
func (c *Coordinator) RequestNow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.requests++

	switch c.state {
	case Idle:
		c.state = Fetching
		c.wg.Add(1)
		go c.run()
	case Fetching:
		c.state = FetchingWithPendingRerun
		metrics.FetchReruns.Inc()
	case FetchingWithPendingRerun:
		// one queued rerun covers any number of requests
	}
}

func (c *Coordinator) run() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		c.fetches++
		c.mu.Unlock()

		metrics.FetchesInFlight.Inc()
		start := time.Now()
		err := c.fetch()
		metrics.FetchDuration.Observe(time.Since(start).Seconds())
		metrics.FetchesInFlight.Dec()
		if err != nil {
			metrics.Fetches.WithLabelValues("error").Inc()
			c.log.WithError(err).Debug("report fetch failed")
		} else {
			metrics.Fetches.WithLabelValues("ok").Inc()
		}

		c.mu.Lock()
		if c.state == FetchingWithPendingRerun && !c.closed {
			c.state = Fetching
			c.mu.Unlock()
			continue
		}
		c.state = Idle
		c.mu.Unlock()
		return
	}
}

func (c *Coordinator) State() FetchState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns how many fetches were requested and how many were issued.
func (c *Coordinator) Stats() (requests, fetches int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests, c.fetches
}

// Close cancels a pending debounced request and drops any queued rerun.
// A fetch already in flight runs to completion.
func (c *Coordinator) Close() {
	c.debounce.Cancel()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Wait blocks until no fetch is running.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
