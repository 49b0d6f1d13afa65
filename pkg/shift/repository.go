package shift

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"citizen-reporting-system/pkg/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the duty_schedules table.
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&models.DutySchedule{}); err != nil {
		return fmt.Errorf("failed to migrate duty schedules: %w", err)
	}
	return nil
}

// ListByDate returns the schedules recorded for the calendar day of date.
func (r *Repository) ListByDate(ctx context.Context, date time.Time) ([]models.DutySchedule, error) {
	var out []models.DutySchedule
	day := date.Format("2006-01-02")
	if err := r.db.WithContext(ctx).Where("date = ?", day).Order("shift, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch duty schedules: %w", err)
	}
	return out, nil
}
