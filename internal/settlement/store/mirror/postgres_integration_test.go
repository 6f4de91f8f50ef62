//go:build integration

package mirror_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"lumenpay/internal/settlement/models"
	"lumenpay/internal/settlement/store/mirror"
	"lumenpay/pkg/platform/sentinel"
	"lumenpay/pkg/testutil/containers"
)

type PostgresMirrorSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *mirror.PostgresStore
}

func TestPostgresMirrorSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresMirrorSuite))
}

func (s *PostgresMirrorSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = mirror.NewPostgres(s.postgres.DB)
}

func (s *PostgresMirrorSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "settlements"))
}

func (s *PostgresMirrorSuite) newPending(sender string) *models.SettlementRecord {
	return &models.SettlementRecord{
		ID:               uuid.New(),
		SenderOwnerID:    sender,
		RecipientOwnerID: "owner-recipient",
		SenderHandle:     "sender",
		Recipient:        "recipient",
		RecipientAddress: "GADDR",
		Amount:           decimal.RequireFromString("12.5"),
		Asset:            "XLM",
		Status:           models.StatusPending,
		CreatedAt:        time.Now().UTC(),
	}
}

func (s *PostgresMirrorSuite) TestAppendAndRoundTrip() {
	ctx := context.Background()
	record := s.newPending("owner-a")
	record.Note = "rent"
	s.Require().NoError(s.store.Append(ctx, record))

	found, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, found.Status)
	s.True(found.Amount.Equal(record.Amount), "amount must survive the numeric column")
	s.Equal("rent", found.Note)
	s.True(found.ResolvedAt.IsZero())
}

// TestConcurrentResolution verifies the guarded UPDATE: many concurrent
// resolvers, exactly one wins.
func (s *PostgresMirrorSuite) TestConcurrentResolution() {
	ctx := context.Background()
	record := s.newPending("owner-a")
	s.Require().NoError(s.store.Append(ctx, record))

	const goroutines = 20
	var wg sync.WaitGroup
	var successCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := s.store.Resolve(ctx, record.ID, models.StatusCompleted,
				"tx_winner", "", time.Now().UTC())
			if err == nil {
				successCount.Add(1)
			} else if !errors.Is(err, sentinel.ErrInvalidState) {
				s.T().Errorf("unexpected resolve error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "a pending row resolves exactly once")

	found, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, found.Status)
	s.Equal("tx_winner", found.LedgerTxRef)
}

func (s *PostgresMirrorSuite) TestHistoryPagination() {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		record := s.newPending("owner-a")
		record.Status = models.StatusFailed
		record.Reason = "test"
		record.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		s.Require().NoError(s.store.Append(ctx, record))
	}

	page, err := s.store.History(ctx, "owner-a", time.Now().UTC(), 3)
	s.Require().NoError(err)
	s.Require().Len(page, 3)
	for i := 1; i < len(page); i++ {
		s.False(page[i-1].CreatedAt.Before(page[i].CreatedAt))
	}

	rest, err := s.store.History(ctx, "owner-a", page[2].CreatedAt, 0)
	s.Require().NoError(err)
	s.Len(rest, 2)

	// The recipient sees the same rows.
	received, err := s.store.History(ctx, "owner-recipient", time.Now().UTC(), 0)
	s.Require().NoError(err)
	s.Len(received, 5)
}
