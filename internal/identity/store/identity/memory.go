package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lumenpay/internal/identity/models"
	"lumenpay/pkg/platform/sentinel"
)

// InMemory mirrors the postgres store's semantics for unit tests: reservation
// is an atomic check-and-insert under one lock, exactly like the unique
// constraint it stands in for.
type InMemory struct {
	mu       sync.RWMutex
	byHandle map[models.Handle]*models.Identity
	byOwner  map[string]models.Handle
}

func NewInMemory() *InMemory {
	return &InMemory{
		byHandle: make(map[models.Handle]*models.Identity),
		byOwner:  make(map[string]models.Handle),
	}
}

// Reserve inserts the reservation if neither the handle nor the owner is
// taken. Both checks and the insert happen under one critical section.
func (s *InMemory) Reserve(_ context.Context, ident *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHandle[ident.Handle]; ok {
		return fmt.Errorf("handle %q: %w", ident.Handle, sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.byOwner[ident.OwnerID]; ok {
		return fmt.Errorf("owner %q: %w", ident.OwnerID, sentinel.ErrAlreadyUsed)
	}

	clone := *ident
	s.byHandle[ident.Handle] = &clone
	s.byOwner[ident.OwnerID] = ident.Handle
	return nil
}

// Bind transitions a reserved row to active, attaching the provisioned
// account. A row that is not reserved cannot be bound again.
func (s *InMemory) Bind(_ context.Context, handle models.Handle, address, secret, txRef string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.byHandle[handle]
	if !ok {
		return fmt.Errorf("handle %q: %w", handle, sentinel.ErrNotFound)
	}
	if ident.Status != models.StatusReserved {
		return fmt.Errorf("handle %q: %w", handle, sentinel.ErrInvalidState)
	}
	for _, other := range s.byHandle {
		if other.Address == address && other.Address != "" {
			return fmt.Errorf("address %q: %w", address, sentinel.ErrAlreadyUsed)
		}
	}

	ident.Address = address
	ident.SigningSecret = secret
	ident.LedgerTxRef = txRef
	ident.Status = models.StatusActive
	ident.BoundAt = at
	return nil
}

// Release frees a reserved handle after a failed claim. Active rows are
// permanent and cannot be released.
func (s *InMemory) Release(_ context.Context, handle models.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.byHandle[handle]
	if !ok {
		return fmt.Errorf("handle %q: %w", handle, sentinel.ErrNotFound)
	}
	if ident.Status != models.StatusReserved {
		return fmt.Errorf("handle %q: %w", handle, sentinel.ErrInvalidState)
	}
	delete(s.byHandle, handle)
	delete(s.byOwner, ident.OwnerID)
	return nil
}

func (s *InMemory) FindByHandle(_ context.Context, handle models.Handle) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ident, ok := s.byHandle[handle]
	if !ok {
		return nil, fmt.Errorf("handle %q: %w", handle, sentinel.ErrNotFound)
	}
	clone := *ident
	return &clone, nil
}

func (s *InMemory) FindByOwner(_ context.Context, ownerID string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle, ok := s.byOwner[ownerID]
	if !ok {
		return nil, fmt.Errorf("owner %q: %w", ownerID, sentinel.ErrNotFound)
	}
	clone := *s.byHandle[handle]
	return &clone, nil
}
