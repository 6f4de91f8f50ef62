package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dErrors "lumenpay/pkg/domain-errors"
)

// Status of a settlement attempt in the transaction mirror.
type Status string

const (
	// StatusPending marks an attempt whose ledger outcome is not yet known
	// (submission timed out without confirmation). Pending rows are resolved
	// exactly once by reconciliation.
	StatusPending Status = "pending"
	// StatusCompleted marks a ledger-confirmed transfer. Completed rows
	// always carry the confirming transaction reference.
	StatusCompleted Status = "completed"
	// StatusFailed marks a definitive non-transfer: validation passed but the
	// network rejected or never received the submission.
	StatusFailed Status = "failed"
)

// CanTransitionTo restricts mirror updates: only pending rows move, and only
// to a terminal status.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && (next == StatusCompleted || next == StatusFailed)
}

// maxAmountPlaces is the network's minimum denomination: amounts finer than
// 1e-7 are not expressible on the ledger.
const maxAmountPlaces = 7

// ParseAmount validates a caller-supplied amount string. The amount must be a
// finite positive decimal expressible in the asset's minimum denomination.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, dErrors.Newf(dErrors.CodeValidation, "amount %q is not a number", s)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if amount.Exponent() < -maxAmountPlaces {
		return decimal.Decimal{}, dErrors.Newf(dErrors.CodeValidation,
			"amount supports at most %d decimal places", maxAmountPlaces)
	}
	return amount, nil
}

// SettlementRecord is one attempted transfer in the transaction mirror. The
// mirror is derived from ledger state, never authoritative over it: a
// completed record exists only after the network confirmed the transfer.
//
// Records are append-only. The single permitted mutation is resolving a
// pending row to its terminal status.
type SettlementRecord struct {
	ID uuid.UUID `json:"id"`

	SenderOwnerID    string `json:"-"`
	RecipientOwnerID string `json:"-"`

	SenderHandle string `json:"sender"`
	// Recipient is the display label: the resolved handle when the recipient
	// was a registered identity, otherwise the raw input.
	Recipient        string `json:"recipient"`
	RecipientAddress string `json:"recipient_address"`

	Amount decimal.Decimal `json:"amount"`
	Asset  string          `json:"asset"`
	Note   string          `json:"note,omitempty"`

	LedgerTxRef string `json:"ledger_tx_ref,omitempty"`
	Status      Status `json:"status"`
	// Reason carries the network's rejection reason for failed records.
	Reason string `json:"reason,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at,omitzero"`
}
