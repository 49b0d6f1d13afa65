package reportview

import (
	"sort"
	"time"

	"citizen-reporting-system/pkg/models"
)

// Outcome describes what Store.Apply did with an event.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeInserted
	OutcomePatched
	OutcomeEvicted
	// OutcomeBackfill: the event names a report the view does not hold but
	// whose known fields match the filter. The caller fetches it.
	OutcomeBackfill
	// OutcomeStale: the event's version is not newer than what the view
	// already applied to that field.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomePatched:
		return "patched"
	case OutcomeEvicted:
		return "evicted"
	case OutcomeBackfill:
		return "backfill"
	case OutcomeStale:
		return "stale"
	default:
		return "ignored"
	}
}

type field int

const (
	fieldStatus field = iota
	fieldLikes
	fieldComments
	numFields
)

// stamps holds the highest event version applied per field of one report.
// They outlive eviction until the next Replace so a replayed older event
// cannot resurrect a report.
type stamps [numFields]int64

// backfillReplaces is how many Replace calls an id awaiting a backfill keeps
// its stamps for: the fetch already in flight and the rerun it queued.
const backfillReplaces = 2

// Store is the in-memory set of reports currently believed to match the
// active filter. It does no I/O and is not safe for concurrent use; the
// owning View serialises access.
type Store struct {
	reports    map[string]models.Report
	stamps     map[string]stamps
	backfills  map[string]int
	optimistic *models.OptimisticEntry
	version    uint64

	maxOptimisticAge time.Duration
	now              func() time.Time
}

type StoreOption func(*Store)

// WithOptimisticMaxAge drops a still-unconfirmed optimistic entry on the
// first Replace after it is older than d. Zero keeps it until reconciled.
func WithOptimisticMaxAge(d time.Duration) StoreOption {
	return func(s *Store) { s.maxOptimisticAge = d }
}

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		reports:   make(map[string]models.Report),
		stamps:    make(map[string]stamps),
		backfills: make(map[string]int),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Version is bumped by every call that changes the view's contents.
func (s *Store) Version() uint64 { return s.version }

// Len counts the reports in the view, the optimistic placeholder included.
func (s *Store) Len() int {
	if s.optimistic != nil {
		return len(s.reports) + 1
	}
	return len(s.reports)
}

func (s *Store) Get(id string) (models.Report, bool) {
	r, ok := s.reports[id]
	return r, ok
}

func (s *Store) Optimistic() (models.OptimisticEntry, bool) {
	if s.optimistic == nil {
		return models.OptimisticEntry{}, false
	}
	return *s.optimistic, true
}

// Snapshot returns the view newest first, anonymous reporters masked.
func (s *Store) Snapshot() []models.Report {
	out := make([]models.Report, 0, s.Len())
	for _, r := range s.reports {
		out = append(out, r.Masked())
	}
	if s.optimistic != nil {
		out = append(out, s.optimistic.AsReport().Masked())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// StageOptimistic places entry in the view unless its confirmed report is
// already present or it does not match f. Reports true when it was placed.
func (s *Store) StageOptimistic(entry models.OptimisticEntry, f models.FilterState) bool {
	if entry.Marker == "" || s.confirmed(entry.Marker) || !Matches(entry.AsReport(), f) {
		return false
	}
	e := entry
	s.optimistic = &e
	s.version++
	return true
}

func (s *Store) confirmed(marker string) bool {
	for _, r := range s.reports {
		if r.CorrelationID == marker {
			return true
		}
	}
	return false
}

// Replace installs the result of a fetch. Reports not matching f are left
// out. The optimistic entry survives only while its confirmed counterpart is
// absent, it still matches f and it is younger than the max age.
func (s *Store) Replace(reports []models.Report, f models.FilterState) {
	next := make(map[string]models.Report, len(reports))
	for _, r := range reports {
		if r.ID == "" || !Matches(r, f) {
			continue
		}
		next[r.ID] = r
	}
	s.reports = next
	s.prune()

	if s.optimistic != nil {
		entry := *s.optimistic
		switch {
		case s.confirmed(entry.Marker):
			s.optimistic = nil
		case !Matches(entry.AsReport(), f):
			s.optimistic = nil
		case s.maxOptimisticAge > 0 && s.now().Sub(entry.StagedAt) > s.maxOptimisticAge:
			s.optimistic = nil
		}
	}
	s.version++
}

// prune forgets stamps of ids that are neither in the view nor awaiting a
// backfill, so stamps stay bounded by what the view holds.
func (s *Store) prune() {
	for id, left := range s.backfills {
		if _, ok := s.reports[id]; ok || left <= 1 {
			delete(s.backfills, id)
			continue
		}
		s.backfills[id] = left - 1
	}
	for id := range s.stamps {
		if _, ok := s.reports[id]; ok {
			continue
		}
		if _, ok := s.backfills[id]; ok {
			continue
		}
		delete(s.stamps, id)
	}
}

// Apply reconciles one push event into the view.
func (s *Store) Apply(ev models.Event, f models.FilterState) Outcome {
	switch e := ev.(type) {
	case models.EventCreated:
		return s.applyCreated(e, f)
	case models.EventStatusChanged:
		return s.patch(e.ID, fieldStatus, e.Version, f,
			models.Report{ID: e.ID, IsPublic: true, Status: e.Status, AssignedTo: e.AssignedTo},
			func(r *models.Report) bool {
				changed := r.Status != e.Status
				r.Status = e.Status
				if e.AssignedTo != "" && r.AssignedTo != e.AssignedTo {
					r.AssignedTo = e.AssignedTo
					changed = true
				}
				return changed
			})
	case models.EventLikeCountChanged:
		return s.patch(e.ID, fieldLikes, e.Version, f,
			models.Report{ID: e.ID, IsPublic: true, Likes: e.Count},
			func(r *models.Report) bool {
				changed := r.Likes != e.Count
				r.Likes = e.Count
				return changed
			})
	case models.EventCommentCountChanged:
		return s.patch(e.ID, fieldComments, e.Version, f,
			models.Report{ID: e.ID, IsPublic: true, Comments: e.Count},
			func(r *models.Report) bool {
				changed := r.Comments != e.Count
				r.Comments = e.Count
				return changed
			})
	}
	return OutcomeIgnored
}

func (s *Store) applyCreated(e models.EventCreated, f models.FilterState) Outcome {
	r := e.Report
	reconciled := false
	if s.optimistic != nil && r.CorrelationID != "" && r.CorrelationID == s.optimistic.Marker {
		s.optimistic = nil
		reconciled = true
	}

	if s.isStale(r.ID, fieldStatus, e.Version) {
		return s.settle(reconciled, OutcomeStale)
	}
	if _, ok := s.reports[r.ID]; ok {
		return s.settle(reconciled, OutcomeIgnored)
	}
	if !Matches(r, f) {
		return s.settle(reconciled, OutcomeIgnored)
	}

	s.reports[r.ID] = r
	delete(s.backfills, r.ID)
	for fl := field(0); fl < numFields; fl++ {
		if !s.isStale(r.ID, fl, e.Version) {
			s.stamp(r.ID, fl, e.Version)
		}
	}
	s.version++
	return OutcomeInserted
}

// settle accounts for a Created event that removed the optimistic placeholder
// without inserting its confirmed report.
func (s *Store) settle(reconciled bool, o Outcome) Outcome {
	if reconciled {
		s.version++
		return OutcomeEvicted
	}
	return o
}

func (s *Store) isStale(id string, fl field, version int64) bool {
	if version <= 0 {
		return false
	}
	st, ok := s.stamps[id]
	return ok && st[fl] >= version
}

func (s *Store) stamp(id string, fl field, version int64) {
	if version <= 0 {
		return
	}
	st := s.stamps[id]
	st[fl] = version
	s.stamps[id] = st
}

// patch applies a single-field event. candidate is the minimal report built
// from the event alone, used only to decide on a backfill. Events do not say
// whether a report is private, so candidates are taken as public and the
// backfill fetch decides.
func (s *Store) patch(id string, fl field, version int64, f models.FilterState, candidate models.Report, mutate func(*models.Report) bool) Outcome {
	if s.isStale(id, fl, version) {
		return OutcomeStale
	}

	cur, ok := s.reports[id]
	if !ok {
		if !Matches(candidate, f) {
			return OutcomeIgnored
		}
		s.stamp(id, fl, version)
		s.backfills[id] = backfillReplaces
		return OutcomeBackfill
	}
	s.stamp(id, fl, version)

	changed := mutate(&cur)
	if !Matches(cur, f) {
		delete(s.reports, id)
		s.version++
		return OutcomeEvicted
	}
	if !changed {
		return OutcomeIgnored
	}
	s.reports[id] = cur
	s.version++
	return OutcomePatched
}
