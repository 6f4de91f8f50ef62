package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"lumenpay/internal/identity/models"
	"lumenpay/pkg/platform/sentinel"
)

// PostgresStore persists identities in PostgreSQL. The unique constraints on
// handle, owner and address are the source of truth for claim arbitration: a
// 23505 on insert means the race was lost, not that the store failed.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) Reserve(ctx context.Context, ident *models.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (id, handle, owner_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ident.ID, string(ident.Handle), ident.OwnerID, string(ident.Status), ident.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("reserve %q: %w", ident.Handle, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("reserve %q: %w", ident.Handle, err)
	}
	return nil
}

func (s *PostgresStore) Bind(ctx context.Context, handle models.Handle, address, secret, txRef string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE identities
		SET address = $2, signing_secret = $3, ledger_tx_ref = $4, status = $5, bound_at = $6
		WHERE handle = $1 AND status = $7
	`, string(handle), address, secret, txRef, string(models.StatusActive), at, string(models.StatusReserved))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("bind %q: address %w", handle, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("bind %q: %w", handle, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bind %q: %w", handle, err)
	}
	if affected == 0 {
		// Either the row is gone or it is already active.
		if _, findErr := s.FindByHandle(ctx, handle); findErr != nil {
			return fmt.Errorf("bind %q: %w", handle, sentinel.ErrNotFound)
		}
		return fmt.Errorf("bind %q: %w", handle, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, handle models.Handle) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM identities WHERE handle = $1 AND status = $2
	`, string(handle), string(models.StatusReserved))
	if err != nil {
		return fmt.Errorf("release %q: %w", handle, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release %q: %w", handle, err)
	}
	if affected == 0 {
		if _, findErr := s.FindByHandle(ctx, handle); findErr != nil {
			return fmt.Errorf("release %q: %w", handle, sentinel.ErrNotFound)
		}
		// Active rows are permanent.
		return fmt.Errorf("release %q: %w", handle, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) FindByHandle(ctx context.Context, handle models.Handle) (*models.Identity, error) {
	return s.findOne(ctx, `WHERE handle = $1`, string(handle))
}

func (s *PostgresStore) FindByOwner(ctx context.Context, ownerID string) (*models.Identity, error) {
	return s.findOne(ctx, `WHERE owner_id = $1`, ownerID)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Identity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, handle, owner_id, address, signing_secret, status, ledger_tx_ref, created_at, bound_at
		FROM identities `+where, arg)

	var ident models.Identity
	var handle, status string
	var boundAt sql.NullTime
	err := row.Scan(&ident.ID, &handle, &ident.OwnerID, &ident.Address, &ident.SigningSecret,
		&status, &ident.LedgerTxRef, &ident.CreatedAt, &boundAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	ident.Handle = models.Handle(handle)
	ident.Status = models.Status(status)
	if boundAt.Valid {
		ident.BoundAt = boundAt.Time
	}
	return &ident, nil
}
