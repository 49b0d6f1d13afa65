package models

type LeaderboardScope string

const (
	ScopeWeekly  LeaderboardScope = "weekly"
	ScopeMonthly LeaderboardScope = "monthly"
	ScopeAllTime LeaderboardScope = "all_time"
)

func (s LeaderboardScope) Valid() bool {
	return s == ScopeWeekly || s == ScopeMonthly || s == ScopeAllTime
}

// Standing is one contributor's unranked aggregate as the backend returns it.
type Standing struct {
	UserID      string `json:"user_id" bson:"_id"`
	DisplayName string `json:"display_name" bson:"display_name"`
	Score       int    `json:"score" bson:"score"`
	Reports     int    `json:"reports" bson:"reports"`
	Resolved    int    `json:"resolved" bson:"resolved"`
	Likes       int    `json:"likes" bson:"likes"`
}

// LeaderboardEntry is a ranked standing. PreviousRank is 0 when the user was
// not ranked in the previous generation; Delta is then 0 and HasDelta false.
// A positive Delta means the user moved up.
type LeaderboardEntry struct {
	Standing
	Rank         int  `json:"rank"`
	PreviousRank int  `json:"previous_rank,omitempty"`
	Delta        int  `json:"change"`
	HasDelta     bool `json:"has_change"`
}
