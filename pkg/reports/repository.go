// Package reports reads the report collection: filtered lists for views and
// per-reporter aggregates for the leaderboard.
package reports

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"citizen-reporting-system/pkg/models"
)

const (
	Collection   = "reports"
	DefaultLimit = 100

	// Leaderboard weights.
	PointsPerResolved = 10
	PointsPerReport   = 2
	PointsPerLike     = 1
)

type reportDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Title         string             `bson:"title"`
	Description   string             `bson:"description"`
	Category      string             `bson:"category"`
	Priority      string             `bson:"priority,omitempty"`
	Location      string             `bson:"location,omitempty"`
	IsAnonymous   bool               `bson:"is_anonymous"`
	IsPublic      bool               `bson:"is_public"`
	ReporterID    string             `bson:"reporter_id"`
	Reporter      string             `bson:"reporter_name"`
	AssignedTo    string             `bson:"assigned_to,omitempty"`
	ImageURL      string             `bson:"image_url,omitempty"`
	Status        string             `bson:"status"`
	Upvotes       int                `bson:"upvotes"`
	CommentCount  int                `bson:"comment_count"`
	CorrelationID string             `bson:"correlation_id,omitempty"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

func (d reportDocument) toModel() models.Report {
	status := models.Status(d.Status)
	if s, ok := models.ParseStatus(d.Status); ok {
		status = s
	}
	return models.Report{
		ID:            d.ID.Hex(),
		Title:         d.Title,
		Description:   d.Description,
		Category:      d.Category,
		Priority:      models.Priority(d.Priority),
		Status:        status,
		Location:      d.Location,
		ImageURL:      d.ImageURL,
		IsAnonymous:   d.IsAnonymous,
		IsPublic:      d.IsPublic,
		ReporterID:    d.ReporterID,
		Reporter:      d.Reporter,
		AssignedTo:    d.AssignedTo,
		Likes:         d.Upvotes,
		Comments:      d.CommentCount,
		CorrelationID: d.CorrelationID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type Repository struct {
	coll  *mongo.Collection
	limit int64
	now   func() time.Time
}

func NewRepository(db *mongo.Database, limit int) *Repository {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Repository{coll: db.Collection(Collection), limit: int64(limit), now: time.Now}
}

// List returns public reports matching f, newest first, capped at the limit.
func (r *Repository) List(ctx context.Context, f models.FilterState) ([]models.Report, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(r.limit)

	cursor, err := r.coll.Find(ctx, BuildFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reports: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []reportDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode reports: %w", err)
	}

	out := make([]models.Report, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

// BuildFilter translates a view filter into a report query.
func BuildFilter(f models.FilterState) bson.M {
	filter := bson.M{
		"is_public": true,
	}

	if !f.AnyCategory() {
		filter["category"] = exactFold(f.Category)
	}

	admitted := f.AdmittedStatuses()
	statuses := make(bson.A, 0, 2*len(admitted))
	for _, s := range admitted {
		statuses = append(statuses, storedSpellings(s)...)
	}
	filter["status"] = bson.M{"$in": statuses}

	if !f.AnyPriority() {
		filter["priority"] = string(f.Priority)
	}

	if term := f.SearchTerm(); term != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": rx},
			bson.M{"description": rx},
			bson.M{"reporter_name": rx, "is_anonymous": false},
		}
	}

	return filter
}

func exactFold(v string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(strings.TrimSpace(v)) + "$", Options: "i"}
}

// storedSpellings lists the values a status may have in the collection:
// the snake_case form and the upper-case form status updates write.
func storedSpellings(s models.Status) bson.A {
	return bson.A{string(s), strings.ToUpper(string(s))}
}

// ScopeStart returns the earliest created_at a scope covers; zero for all_time.
func ScopeStart(scope models.LeaderboardScope, now time.Time) time.Time {
	switch scope {
	case models.ScopeWeekly:
		return now.AddDate(0, 0, -7)
	case models.ScopeMonthly:
		return now.AddDate(0, 0, -30)
	default:
		return time.Time{}
	}
}

// RankedPipeline aggregates non-anonymous reports per reporter.
func RankedPipeline(scope models.LeaderboardScope, now time.Time) mongo.Pipeline {
	match := bson.D{
		{Key: "is_anonymous", Value: false},
		{Key: "reporter_id", Value: bson.M{"$ne": ""}},
	}
	if start := ScopeStart(scope, now); !start.IsZero() {
		match = append(match, bson.E{Key: "created_at", Value: bson.M{"$gte": start}})
	}

	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$reporter_id"},
			{Key: "display_name", Value: bson.M{"$last": "$reporter_name"}},
			{Key: "reports", Value: bson.M{"$sum": 1}},
			{Key: "resolved", Value: bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$in": bson.A{"$status", storedSpellings(models.StatusResolved)}}, 1, 0},
			}}},
			{Key: "likes", Value: bson.M{"$sum": "$upvotes"}},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.M{"$add": bson.A{
				bson.M{"$multiply": bson.A{"$resolved", PointsPerResolved}},
				bson.M{"$multiply": bson.A{"$reports", PointsPerReport}},
				bson.M{"$multiply": bson.A{"$likes", PointsPerLike}},
			}}},
		}}},
	}
}

// ListRanked returns unsorted standings for scope; ranking happens in the caller.
func (r *Repository) ListRanked(ctx context.Context, scope models.LeaderboardScope) ([]models.Standing, error) {
	cursor, err := r.coll.Aggregate(ctx, RankedPipeline(scope, r.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate standings: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Standing
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode standings: %w", err)
	}
	return out, nil
}
