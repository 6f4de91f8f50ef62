package service

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	identitystore "lumenpay/internal/identity/store/identity"
	"lumenpay/internal/ledger"
	"lumenpay/internal/ledger/ledgertest"
	"lumenpay/internal/provisioner"
	dErrors "lumenpay/pkg/domain-errors"
	auditmemory "lumenpay/pkg/platform/audit/store/memory"
	"lumenpay/pkg/platform/audit/publisher"
)

type ClaimSuite struct {
	suite.Suite
	ctx    context.Context
	store  *identitystore.InMemory
	fake   *ledgertest.Fake
	audits *auditmemory.InMemoryStore
	svc    *Service
}

func (s *ClaimSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = identitystore.NewInMemory()
	s.fake = ledgertest.New()
	s.audits = auditmemory.NewInMemoryStore()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	prov := provisioner.New(s.fake, provisioner.WithBackoff(time.Millisecond), provisioner.WithLogger(logger))
	s.svc = New(s.store, prov, s.fake,
		WithLogger(logger),
		WithAuditPublisher(publisher.NewPublisher(s.audits)),
	)
}

func TestClaimSuite(t *testing.T) {
	suite.Run(t, new(ClaimSuite))
}

func (s *ClaimSuite) TestClaimSucceeds() {
	ident, err := s.svc.Claim(s.ctx, "alice", "owner-a")
	s.Require().NoError(err)

	s.True(ident.IsActive())
	s.True(ledger.IsAddress(ident.Address))
	s.NotEmpty(ident.SigningSecret)
	s.NotEmpty(ident.LedgerTxRef)
	s.True(s.fake.Activated(ident.Address), "claimed account must be activated on the network")

	available, err := s.svc.CheckAvailability(s.ctx, "alice")
	s.Require().NoError(err)
	s.False(available)
}

func (s *ClaimSuite) TestClaimValidatesFormat() {
	for _, handle := range []string{"ab", "Alice", "way_too_long_for_a_handle", "has space", "dash-ed", ""} {
		_, err := s.svc.Claim(s.ctx, handle, "owner-a")
		s.Require().Error(err, "handle %q", handle)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), "handle %q should be a validation error", handle)
	}
}

func (s *ClaimSuite) TestSecondClaimConflicts() {
	_, err := s.svc.Claim(s.ctx, "alice", "owner-a")
	s.Require().NoError(err)

	_, err = s.svc.Claim(s.ctx, "alice", "owner-b")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ClaimSuite) TestOneHandlePerOwner() {
	_, err := s.svc.Claim(s.ctx, "alice", "owner-a")
	s.Require().NoError(err)

	_, err = s.svc.Claim(s.ctx, "alice_backup", "owner-a")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

// TestConcurrentClaims races many claimants for one handle: exactly one may
// win, everyone else observes the conflict.
func (s *ClaimSuite) TestConcurrentClaims() {
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32

	for i := range goroutines {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.svc.Claim(s.ctx, "alice", "owner-"+string(rune('a'+n)))
			switch {
			case err == nil:
				successCount.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflictCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one claim should win")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should observe the conflict")
}

// TestProvisioningFailureFreesHandle is the no-orphaned-claims property: a
// failed claim must not leave the handle reserved.
func (s *ClaimSuite) TestProvisioningFailureFreesHandle() {
	s.fake.FailActivations(10) // exhausts the provisioner's attempts

	_, err := s.svc.Claim(s.ctx, "alice", "owner-a")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeExternal))

	available, err := s.svc.CheckAvailability(s.ctx, "alice")
	s.Require().NoError(err)
	s.True(available, "handle must be freed after provisioning failure")

	// A fresh claimant succeeds.
	_, err = s.svc.Claim(s.ctx, "alice", "owner-b")
	s.Require().NoError(err)
}

func (s *ClaimSuite) TestRegistrationFailureFreesHandle() {
	s.fake.FailRegistrations(1)

	_, err := s.svc.Claim(s.ctx, "alice", "owner-a")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeExternal))

	available, err := s.svc.CheckAvailability(s.ctx, "alice")
	s.Require().NoError(err)
	s.True(available)
}

func (s *ClaimSuite) TestClaimEmitsAuditTrail() {
	_, err := s.svc.Claim(s.ctx, "alice", "owner-a")
	s.Require().NoError(err)

	events, err := s.audits.ListByOwner(s.ctx, "owner-a")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("identity_claimed", events[0].Action)
	s.Equal("alice", events[0].Handle)
}
