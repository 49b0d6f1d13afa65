package reports

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"citizen-reporting-system/pkg/models"
)

func TestBuildFilter(t *testing.T) {
	t.Run("empty filter", func(t *testing.T) {
		f := BuildFilter(models.FilterState{})

		assert.Equal(t, true, f["is_public"])
		assert.NotContains(t, f, "category")
		assert.NotContains(t, f, "priority")
		assert.NotContains(t, f, "$or")
		status := f["status"].(bson.M)["$in"].(bson.A)
		assert.Len(t, status, 2*len(models.Statuses))
		for _, stored := range []string{"PENDING", "IN_PROGRESS", "RESOLVED", "REJECTED", "pending", "in_progress"} {
			assert.Contains(t, status, stored)
		}
	})

	t.Run("every dimension", func(t *testing.T) {
		f := BuildFilter(models.FilterState{
			Category: "Jalan Rusak",
			Status:   models.StatusInProgress,
			Priority: models.PriorityHigh,
			Search:   "  Lubang (besar) ",
		})

		assert.Equal(t, primitive.Regex{Pattern: `^Jalan Rusak$`, Options: "i"}, f["category"])
		assert.Equal(t, bson.M{"$in": bson.A{"in_progress", "IN_PROGRESS"}}, f["status"])
		assert.Equal(t, "high", f["priority"])

		or := f["$or"].(bson.A)
		require.Len(t, or, 3)
		rx := primitive.Regex{Pattern: `lubang \(besar\)`, Options: "i"}
		assert.Equal(t, bson.M{"title": rx}, or[0])
		assert.Equal(t, bson.M{"description": rx}, or[1])
		assert.Equal(t, bson.M{"reporter_name": rx, "is_anonymous": false}, or[2])
	})

	t.Run("admitted set", func(t *testing.T) {
		f := BuildFilter(models.FilterState{Admitted: []models.Status{models.StatusPending, models.StatusVerifying}})
		assert.Equal(t, bson.M{"$in": bson.A{"pending", "PENDING", "verifying", "VERIFYING"}}, f["status"])
	})

	t.Run("padded category", func(t *testing.T) {
		f := BuildFilter(models.FilterState{Category: "  Sampah "})
		assert.Equal(t, primitive.Regex{Pattern: `^Sampah$`, Options: "i"}, f["category"])
	})
}

func TestScopeStart(t *testing.T) {
	now := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 24, 12, 0, 0, 0, time.UTC), ScopeStart(models.ScopeWeekly, now))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), ScopeStart(models.ScopeMonthly, now))
	assert.True(t, ScopeStart(models.ScopeAllTime, now).IsZero())
}

func TestRankedPipeline(t *testing.T) {
	now := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)

	t.Run("windowed scope filters by created_at", func(t *testing.T) {
		p := RankedPipeline(models.ScopeWeekly, now)
		require.Len(t, p, 3)
		match := p[0][0].Value.(bson.D)
		assert.Contains(t, match, bson.E{Key: "created_at", Value: bson.M{"$gte": now.AddDate(0, 0, -7)}})
	})

	t.Run("resolved counts both stored spellings", func(t *testing.T) {
		p := RankedPipeline(models.ScopeAllTime, now)
		group := p[1][0].Value.(bson.D)
		var resolved interface{}
		for _, e := range group {
			if e.Key == "resolved" {
				resolved = e.Value
			}
		}
		cond := bson.M{"$cond": bson.A{bson.M{"$in": bson.A{"$status", bson.A{"resolved", "RESOLVED"}}}, 1, 0}}
		assert.Equal(t, bson.M{"$sum": cond}, resolved)
	})

	t.Run("all time has no window", func(t *testing.T) {
		p := RankedPipeline(models.ScopeAllTime, now)
		match := p[0][0].Value.(bson.D)
		for _, e := range match {
			assert.NotEqual(t, "created_at", e.Key)
		}
	})
}

func TestDocumentToModel(t *testing.T) {
	id := primitive.NewObjectID()
	doc := reportDocument{
		ID:           id,
		Title:        "Banjir",
		Status:       "IN_PROGRESS",
		Upvotes:      4,
		CommentCount: 2,
		Reporter:     "Siti",
		IsAnonymous:  true,
	}

	r := doc.toModel()
	assert.Equal(t, id.Hex(), r.ID)
	assert.Equal(t, models.StatusInProgress, r.Status)
	assert.Equal(t, 4, r.Likes)
	assert.Equal(t, 2, r.Comments)
	assert.Equal(t, models.AnonymousReporter, r.DisplayReporter())
}
