// Package leaderboard ranks contributors and caches the ranking per scope.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"citizen-reporting-system/pkg/metrics"
	"citizen-reporting-system/pkg/models"
)

const DefaultTTL = 5 * time.Minute

// Source returns the unranked standings of a scope.
type Source interface {
	ListRanked(ctx context.Context, scope models.LeaderboardScope) ([]models.Standing, error)
}

type cached struct {
	entries   []models.LeaderboardEntry
	fetchedAt time.Time
}

// Cache serves a ranking from memory while it is younger than the TTL.
// Concurrent misses for one scope share a single backend call.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	log    logrus.FieldLogger

	mu        sync.Mutex
	entries   map[models.LeaderboardScope]cached
	prevRanks map[models.LeaderboardScope]map[string]int

	group singleflight.Group
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Cache) { c.log = log }
}

func NewCache(source Source, opts ...Option) *Cache {
	c := &Cache{
		source:    source,
		ttl:       DefaultTTL,
		now:       time.Now,
		log:       logrus.StandardLogger(),
		entries:   make(map[models.LeaderboardScope]cached),
		prevRanks: make(map[models.LeaderboardScope]map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the ranking of scope, fetching it when the cached one expired.
func (c *Cache) Get(ctx context.Context, scope models.LeaderboardScope) ([]models.LeaderboardEntry, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("unknown leaderboard scope %q", scope)
	}

	c.mu.Lock()
	hit, ok := c.entries[scope]
	fresh := ok && c.now().Sub(hit.fetchedAt) < c.ttl
	c.mu.Unlock()
	if fresh {
		metrics.CacheRequests.WithLabelValues(string(scope), "hit").Inc()
		return copyEntries(hit.entries), nil
	}

	metrics.CacheRequests.WithLabelValues(string(scope), "miss").Inc()
	v, err, shared := c.group.Do(string(scope), func() (interface{}, error) {
		return c.refresh(ctx, scope)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.WithField("scope", scope).Debug("leaderboard fetch shared")
	}
	return copyEntries(v.([]models.LeaderboardEntry)), nil
}

func (c *Cache) refresh(ctx context.Context, scope models.LeaderboardScope) ([]models.LeaderboardEntry, error) {
	standings, err := c.source.ListRanked(ctx, scope)
	if err != nil {
		c.log.WithError(err).WithField("scope", scope).Warn("leaderboard fetch failed")
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := Rank(standings, c.prevRanks[scope])
	ranks := make(map[string]int, len(entries))
	for _, e := range entries {
		ranks[e.UserID] = e.Rank
	}
	c.prevRanks[scope] = ranks
	c.entries[scope] = cached{entries: entries, fetchedAt: c.now()}
	return entries, nil
}

// Invalidate forgets the cached ranking of scope. Previous ranks are kept.
func (c *Cache) Invalidate(scope models.LeaderboardScope) {
	c.mu.Lock()
	delete(c.entries, scope)
	c.mu.Unlock()
}

// Rank orders standings by score, highest first, ties broken by user id,
// and computes each entry's movement against prev.
func Rank(standings []models.Standing, prev map[string]int) []models.LeaderboardEntry {
	sorted := make([]models.Standing, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	out := make([]models.LeaderboardEntry, len(sorted))
	for i, s := range sorted {
		e := models.LeaderboardEntry{Standing: s, Rank: i + 1}
		if p, ok := prev[s.UserID]; ok {
			e.PreviousRank = p
			e.Delta = p - e.Rank
			e.HasDelta = true
		}
		out[i] = e
	}
	return out
}

func copyEntries(in []models.LeaderboardEntry) []models.LeaderboardEntry {
	out := make([]models.LeaderboardEntry, len(in))
	copy(out, in)
	return out
}
