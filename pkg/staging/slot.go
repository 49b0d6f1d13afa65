// Package staging keeps one short-lived payload per session: written by the
// submit flow, read and cleared by the next view that opens.
package staging

import (
	"context"
	"errors"
	"sync"
)

// ErrEmpty is returned by ReadAndClear when nothing is staged.
var ErrEmpty = errors.New("staging slot is empty")

// Slot is a single-writer, single-reader handoff. A second Write before the
// read overwrites the first.
type Slot interface {
	Write(ctx context.Context, payload []byte) error
	ReadAndClear(ctx context.Context) ([]byte, error)
}

// Factory returns the slot of one session.
type Factory func(sessionID string) Slot

// SlotKey is the well-known key of a session's slot.
func SlotKey(sessionID string) string {
	return "staging:optimistic:" + sessionID
}

type MemorySlot struct {
	mu      sync.Mutex
	payload []byte
}

func (s *MemorySlot) Write(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = append([]byte(nil), payload...)
	return nil
}

func (s *MemorySlot) ReadAndClear(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload == nil {
		return nil, ErrEmpty
	}
	p := s.payload
	s.payload = nil
	return p, nil
}

// NewMemoryFactory keeps slots in process memory. Used when no shared
// store is configured and in tests.
func NewMemoryFactory() Factory {
	var mu sync.Mutex
	slots := make(map[string]*MemorySlot)
	return func(sessionID string) Slot {
		mu.Lock()
		defer mu.Unlock()
		s, ok := slots[sessionID]
		if !ok {
			s = &MemorySlot{}
			slots[sessionID] = s
		}
		return s
	}
}
