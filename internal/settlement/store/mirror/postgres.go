package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lumenpay/internal/settlement/models"
	"lumenpay/pkg/platform/sentinel"
)

// PostgresStore persists the transaction mirror. Rows are append-only; the
// UPDATE in Resolve is guarded on status = 'pending' so a row can only leave
// pending once, whichever caller gets there first.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, record *models.SettlementRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	var resolvedAt sql.NullTime
	if !record.ResolvedAt.IsZero() {
		resolvedAt = sql.NullTime{Time: record.ResolvedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlements (
			id, sender_owner_id, recipient_owner_id, sender_handle, recipient,
			recipient_address, amount, asset, note, ledger_tx_ref, status,
			reason, created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, record.ID, record.SenderOwnerID, record.RecipientOwnerID, record.SenderHandle,
		record.Recipient, record.RecipientAddress, record.Amount.String(), record.Asset,
		record.Note, record.LedgerTxRef, string(record.Status), record.Reason,
		record.CreatedAt, resolvedAt)
	if err != nil {
		return fmt.Errorf("append settlement %s: %w", record.ID, err)
	}
	return nil
}

func (s *PostgresStore) Resolve(ctx context.Context, id uuid.UUID, status models.Status, txRef, reason string, at time.Time) error {
	if !models.StatusPending.CanTransitionTo(status) {
		return fmt.Errorf("resolve to %q: %w", status, sentinel.ErrInvalidState)
	}
	if status == models.StatusCompleted && txRef == "" {
		return fmt.Errorf("resolve %s: completed without tx ref: %w", id, sentinel.ErrInvalidState)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE settlements
		SET status = $2, ledger_tx_ref = $3, reason = $4, resolved_at = $5
		WHERE id = $1 AND status = $6
	`, id, string(status), txRef, reason, at, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("resolve settlement %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve settlement %s: %w", id, err)
	}
	if affected == 0 {
		if _, findErr := s.FindByID(ctx, id); findErr != nil {
			return fmt.Errorf("settlement %s: %w", id, sentinel.ErrNotFound)
		}
		return fmt.Errorf("settlement %s already resolved: %w", id, sentinel.ErrInvalidState)
	}
	return nil
}

const selectColumns = `
	id, sender_owner_id, recipient_owner_id, sender_handle, recipient,
	recipient_address, amount, asset, note, ledger_tx_ref, status,
	reason, created_at, resolved_at
`

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.SettlementRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM settlements WHERE id = $1`, id)
	record, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("settlement %s: %w", id, sentinel.ErrNotFound)
	}
	return record, err
}

func (s *PostgresStore) History(ctx context.Context, ownerID string, before time.Time, limit int) ([]*models.SettlementRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM settlements
		WHERE (sender_owner_id = $1 OR recipient_owner_id = $1) AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, ownerID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []*models.SettlementRecord
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return out, nil
}

func scanRecord(scan func(...any) error) (*models.SettlementRecord, error) {
	var record models.SettlementRecord
	var amount, status string
	var resolvedAt sql.NullTime
	err := scan(&record.ID, &record.SenderOwnerID, &record.RecipientOwnerID,
		&record.SenderHandle, &record.Recipient, &record.RecipientAddress,
		&amount, &record.Asset, &record.Note, &record.LedgerTxRef,
		&status, &record.Reason, &record.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	record.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("scan settlement amount: %w", err)
	}
	record.Status = models.Status(status)
	if resolvedAt.Valid {
		record.ResolvedAt = resolvedAt.Time
	}
	return &record, nil
}
