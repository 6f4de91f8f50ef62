package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"lumenpay/internal/identity/models"
	"lumenpay/pkg/platform/sentinel"
)

type IdentityStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *IdentityStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestIdentityStoreSuite(t *testing.T) {
	suite.Run(t, new(IdentityStoreSuite))
}

func (s *IdentityStoreSuite) reserve(handle, owner string) *models.Identity {
	ident, err := models.NewReservation(models.Handle(handle), owner, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reserve(s.ctx, ident))
	return ident
}

func (s *IdentityStoreSuite) TestReservationAndLookups() {
	s.Run("reserves and finds by handle and owner", func() {
		s.reserve("alice", "owner-a")

		found, err := s.store.FindByHandle(s.ctx, "alice")
		s.Require().NoError(err)
		s.Equal(models.StatusReserved, found.Status)

		found, err = s.store.FindByOwner(s.ctx, "owner-a")
		s.Require().NoError(err)
		s.Equal(models.Handle("alice"), found.Handle)
	})

	s.Run("returns ErrNotFound for unknown handle", func() {
		_, err := s.store.FindByHandle(s.ctx, "nobody")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *IdentityStoreSuite) TestReservationUniqueness() {
	s.Run("rejects duplicate handle", func() {
		s.reserve("alice", "owner-a")

		dup, err := models.NewReservation("alice", "owner-b", time.Now())
		s.Require().NoError(err)
		s.Require().ErrorIs(s.store.Reserve(s.ctx, dup), sentinel.ErrAlreadyUsed)
	})

	s.Run("rejects second handle for the same owner", func() {
		s.reserve("bob", "owner-b")

		second, err := models.NewReservation("bob_backup", "owner-b", time.Now())
		s.Require().NoError(err)
		s.Require().ErrorIs(s.store.Reserve(s.ctx, second), sentinel.ErrAlreadyUsed)
	})
}

func (s *IdentityStoreSuite) TestBind() {
	s.Run("binds a reserved handle exactly once", func() {
		s.reserve("alice", "owner-a")

		err := s.store.Bind(s.ctx, "alice", "GADDR", "SSECRET", "tx_1", time.Now())
		s.Require().NoError(err)

		found, err := s.store.FindByHandle(s.ctx, "alice")
		s.Require().NoError(err)
		s.True(found.IsActive())
		s.Equal("GADDR", found.Address)
		s.Equal("tx_1", found.LedgerTxRef)

		// Second bind hits an active row.
		err = s.store.Bind(s.ctx, "alice", "GOTHER", "SOTHER", "tx_2", time.Now())
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("rejects address reuse across handles", func() {
		s.reserve("carol", "owner-c")
		s.Require().NoError(s.store.Bind(s.ctx, "carol", "GSAME", "S1", "tx_1", time.Now()))

		s.reserve("dave", "owner-d")
		err := s.store.Bind(s.ctx, "dave", "GSAME", "S2", "tx_2", time.Now())
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})
}

func (s *IdentityStoreSuite) TestRelease() {
	s.Run("frees a reserved handle for a new claim", func() {
		s.reserve("alice", "owner-a")
		s.Require().NoError(s.store.Release(s.ctx, "alice"))

		_, err := s.store.FindByHandle(s.ctx, "alice")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		// Handle and owner are both available again.
		s.reserve("alice", "owner-a")
	})

	s.Run("refuses to release an active handle", func() {
		s.reserve("bob", "owner-b")
		s.Require().NoError(s.store.Bind(s.ctx, "bob", "GB", "SB", "tx", time.Now()))
		s.Require().ErrorIs(s.store.Release(s.ctx, "bob"), sentinel.ErrInvalidState)
	})
}
