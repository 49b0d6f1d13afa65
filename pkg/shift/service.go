package shift

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"citizen-reporting-system/pkg/metrics"
	"citizen-reporting-system/pkg/models"
)

// Lister returns the schedules of one calendar day.
type Lister interface {
	ListByDate(ctx context.Context, date time.Time) ([]models.DutySchedule, error)
}

type Active struct {
	Date  string       `json:"date"`
	Shift models.Shift `json:"shift"`
	Count int          `json:"count"`
}

type Service struct {
	classifier *Classifier
	schedules  Lister
	now        func() time.Time
	log        logrus.FieldLogger
}

func NewService(classifier *Classifier, schedules Lister, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{classifier: classifier, schedules: schedules, now: time.Now, log: log}
}

// Active reports the running shift and how many staffed schedules cover it.
func (s *Service) Active(ctx context.Context) (Active, error) {
	now := s.now()
	date := s.classifier.DutyDate(now)

	rows, err := s.schedules.ListByDate(ctx, date)
	if err != nil {
		s.log.WithError(err).Warn("duty schedule lookup failed")
		return Active{}, err
	}

	a := Active{
		Date:  date.Format("2006-01-02"),
		Shift: s.classifier.Band(now),
		Count: s.classifier.ActiveCount(now, rows),
	}
	metrics.ActiveShiftCount.Set(float64(a.Count))
	return a, nil
}
