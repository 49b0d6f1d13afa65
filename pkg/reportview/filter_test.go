package reportview

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"citizen-reporting-system/pkg/models"
)

func TestMatches(t *testing.T) {
	base := models.Report{
		ID:          "r1",
		Title:       "Lampu jalan mati",
		Description: "Sudah tiga hari gelap",
		Category:    "Lampu Jalan",
		Priority:    models.PriorityHigh,
		Status:      models.StatusPending,
		Reporter:    "Budi Santoso",
		IsPublic:    true,
	}

	tests := []struct {
		name   string
		report func(models.Report) models.Report
		filter models.FilterState
		want   bool
	}{
		{"empty filter", nil, models.FilterState{}, true},
		{"private never matches", func(r models.Report) models.Report { r.IsPublic = false; return r }, models.FilterState{}, false},
		{"explicit all", nil, models.FilterState{Category: "all", Status: "all", Priority: "all"}, true},
		{"category case-insensitive", nil, models.FilterState{Category: "lampu jalan"}, true},
		{"category mismatch", nil, models.FilterState{Category: "Sampah"}, false},
		{"missing category fails", func(r models.Report) models.Report { r.Category = ""; return r }, models.FilterState{Category: "Sampah"}, false},
		{"status match", nil, models.FilterState{Status: models.StatusPending}, true},
		{"status mismatch", nil, models.FilterState{Status: models.StatusResolved}, false},
		{"missing status fails", func(r models.Report) models.Report { r.Status = ""; return r }, models.FilterState{}, false},
		{"admitted set excludes", nil, models.FilterState{Admitted: []models.Status{models.StatusResolved}}, false},
		{"priority mismatch", nil, models.FilterState{Priority: models.PriorityLow}, false},
		{"missing priority fails", func(r models.Report) models.Report { r.Priority = ""; return r }, models.FilterState{Priority: models.PriorityHigh}, false},
		{"search title", nil, models.FilterState{Search: "MATI"}, true},
		{"search description", nil, models.FilterState{Search: "gelap"}, true},
		{"search reporter", nil, models.FilterState{Search: "santoso"}, true},
		{"search miss", nil, models.FilterState{Search: "banjir"}, false},
		{"anonymous reporter not searchable by name", func(r models.Report) models.Report { r.IsAnonymous = true; return r }, models.FilterState{Search: "budi"}, false},
		{"anonymous label searchable", func(r models.Report) models.Report { r.IsAnonymous = true; return r }, models.FilterState{Search: "anonim"}, true},
		{"blank search is off", nil, models.FilterState{Search: "   "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			if tt.report != nil {
				r = tt.report(r)
			}
			assert.Equal(t, tt.want, Matches(r, tt.filter))
		})
	}
}
