// Package ledger defines the capability surface of the external settlement
// network. The core calls this interface; it never talks to the network
// directly. Transfers confirmed through this interface are the single source
// of truth for fund movement — the local mirror is derived from it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NativeAsset is the asset code used for balances and settlement records on
// this network.
const NativeAsset = "XLM"

// Account is a freshly generated network identity. Secret is the signing
// credential; it is handed to the registry at claim time and read back only
// at the moment of submission.
type Account struct {
	Address string
	Secret  string
}

// Balance is one asset position on an account.
type Balance struct {
	Asset   string          `json:"asset"`
	Balance decimal.Decimal `json:"balance"`
}

// TransferQuery identifies a transfer by its parameters for reconciliation.
// Since covers the submission window; a match is any confirmed transfer with
// the same endpoints and amount at or after it.
type TransferQuery struct {
	From   string
	To     string
	Amount decimal.Decimal
	Since  time.Time
}

// Client is the consumed capability of the ledger network.
//
// Error contract for SubmitTransfer:
//   - a *RejectionError means the network definitively rejected the transfer
//     (nothing moved);
//   - an error matching ErrIndeterminate means the outcome is unknown — the
//     transfer may have executed. Callers must reconcile before retrying;
//   - an error matching ErrUnavailable means the request never reached the
//     network (definite failure).
type Client interface {
	// CreateAccount generates a fresh keypair for the network. No network
	// call is involved; the account exists on the ledger only after Activate.
	CreateAccount() (Account, error)

	// Activate performs the network's activation step (minimum-balance
	// funding) so the account becomes usable for transfers.
	Activate(ctx context.Context, address string) error

	// RegisterHandle anchors handle ownership on the network and returns the
	// anchoring transaction reference.
	RegisterHandle(ctx context.Context, handle, address string) (string, error)

	// SubmitTransfer signs and submits a transfer of amount from the account
	// owning secret to the destination address. The returned reference is
	// only valid once the network has confirmed the transaction.
	SubmitTransfer(ctx context.Context, secret, toAddress string, amount decimal.Decimal) (string, error)

	// GetBalances loads the asset balances of an account.
	GetBalances(ctx context.Context, address string) ([]Balance, error)

	// FindTransfer searches confirmed ledger state for a transfer matching
	// the query. Used to reconcile indeterminate submissions.
	FindTransfer(ctx context.Context, q TransferQuery) (txRef string, found bool, err error)
}

// ErrIndeterminate marks a submission whose outcome could not be confirmed
// within the waiting period. It is distinct from failure: the transfer may
// have executed.
var ErrIndeterminate = errors.New("ledger outcome indeterminate")

// ErrUnavailable marks a request that never reached the network.
var ErrUnavailable = errors.New("ledger unavailable")

// RejectionError carries the network's reason for a definitive rejection,
// e.g. an insufficient balance.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("ledger rejected transfer: %s", e.Reason)
}
