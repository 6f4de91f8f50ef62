package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lumenpay/internal/settlement/models"
	"lumenpay/pkg/platform/sentinel"
)

// InMemory is the test double for the postgres mirror. Semantics match: rows
// are append-only, and a pending row resolves at most once.
type InMemory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*models.SettlementRecord
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[uuid.UUID]*models.SettlementRecord)}
}

func (s *InMemory) Append(_ context.Context, record *models.SettlementRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return fmt.Errorf("record %s: %w", record.ID, sentinel.ErrAlreadyUsed)
	}
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *InMemory) Resolve(_ context.Context, id uuid.UUID, status models.Status, txRef, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return fmt.Errorf("record %s: %w", id, sentinel.ErrNotFound)
	}
	if !record.Status.CanTransitionTo(status) {
		return fmt.Errorf("record %s is %s: %w", id, record.Status, sentinel.ErrInvalidState)
	}
	if status == models.StatusCompleted && txRef == "" {
		return fmt.Errorf("record %s: completed without tx ref: %w", id, sentinel.ErrInvalidState)
	}

	record.Status = status
	record.LedgerTxRef = txRef
	record.Reason = reason
	record.ResolvedAt = at
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, sentinel.ErrNotFound)
	}
	clone := *record
	return &clone, nil
}

// History returns records where the owner is sender or recipient, most recent
// first, strictly older than before, at most limit entries.
func (s *InMemory) History(_ context.Context, ownerID string, before time.Time, limit int) ([]*models.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.SettlementRecord
	for _, record := range s.records {
		if record.SenderOwnerID != ownerID && record.RecipientOwnerID != ownerID {
			continue
		}
		if !record.CreatedAt.Before(before) {
			continue
		}
		clone := *record
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func validateRecord(record *models.SettlementRecord) error {
	switch record.Status {
	case models.StatusCompleted:
		if record.LedgerTxRef == "" {
			return fmt.Errorf("completed record without tx ref: %w", sentinel.ErrInvalidState)
		}
	case models.StatusFailed, models.StatusPending:
		if record.LedgerTxRef != "" {
			return fmt.Errorf("%s record with tx ref: %w", record.Status, sentinel.ErrInvalidState)
		}
	default:
		return fmt.Errorf("unknown status %q: %w", record.Status, sentinel.ErrInvalidState)
	}
	return nil
}
