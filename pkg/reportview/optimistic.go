package reportview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"citizen-reporting-system/pkg/models"
	"citizen-reporting-system/pkg/security"
	"citizen-reporting-system/pkg/staging"
)

// OptimisticBuffer hands one just-submitted report from the submit flow to
// the next view across a navigation. Staging is best effort: anything that
// cannot be read back is dropped without surfacing an error.
type OptimisticBuffer struct {
	slot   staging.Slot
	sealer *security.Sealer
	now    func() time.Time
	log    logrus.FieldLogger
}

// NewOptimisticBuffer seals payloads when sealer is non-nil.
func NewOptimisticBuffer(slot staging.Slot, sealer *security.Sealer, log logrus.FieldLogger) *OptimisticBuffer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OptimisticBuffer{slot: slot, sealer: sealer, now: time.Now, log: log}
}

// Stage overwrites the slot with entry. A missing marker, staging time or
// expected status is filled in; the stored entry is returned so the caller
// can send the marker along with the submission.
func (b *OptimisticBuffer) Stage(ctx context.Context, entry models.OptimisticEntry) (models.OptimisticEntry, error) {
	if entry.Marker == "" {
		entry.Marker = uuid.NewString()
	}
	if entry.StagedAt.IsZero() {
		entry.StagedAt = b.now()
	}
	if entry.ExpectedStatus == "" {
		entry.ExpectedStatus = models.StatusPending
	}
	entry.Report.CorrelationID = entry.Marker

	payload, err := json.Marshal(entry)
	if err != nil {
		return entry, fmt.Errorf("failed to encode optimistic entry: %w", err)
	}
	if b.sealer != nil {
		if payload, err = b.sealer.Seal(payload); err != nil {
			return entry, fmt.Errorf("failed to seal optimistic entry: %w", err)
		}
	}
	if err := b.slot.Write(ctx, payload); err != nil {
		return entry, err
	}
	return entry, nil
}

// Consume reads and clears the slot. It reports false when nothing usable was
// staged or when the entry's expected status is not admitted by f.
func (b *OptimisticBuffer) Consume(ctx context.Context, f models.FilterState) (models.OptimisticEntry, bool) {
	payload, err := b.slot.ReadAndClear(ctx)
	if err != nil {
		if !errors.Is(err, staging.ErrEmpty) {
			b.log.WithError(err).Debug("optimistic slot unreadable")
		}
		return models.OptimisticEntry{}, false
	}

	entry, err := b.decode(payload)
	if err != nil {
		b.log.WithError(err).Debug("discarding staged optimistic entry")
		return models.OptimisticEntry{}, false
	}
	if !f.Admits(entry.ExpectedStatus) {
		return models.OptimisticEntry{}, false
	}
	return entry, true
}

func (b *OptimisticBuffer) decode(payload []byte) (models.OptimisticEntry, error) {
	var entry models.OptimisticEntry
	if b.sealer != nil {
		pt, err := b.sealer.Open(payload)
		if err != nil {
			return entry, err
		}
		payload = pt
	}
	if err := json.Unmarshal(payload, &entry); err != nil {
		return entry, err
	}
	if entry.Marker == "" {
		return entry, errors.New("staged entry has no marker")
	}
	if !entry.ExpectedStatus.Valid() {
		return entry, fmt.Errorf("staged entry has unknown status %q", entry.ExpectedStatus)
	}
	return entry, nil
}
