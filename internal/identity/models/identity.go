package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	dErrors "lumenpay/pkg/domain-errors"
)

// Handle is a claimed human-readable name. Construct via ParseHandle at trust
// boundaries to enforce the format rule; direct casting bypasses validation.
type Handle string

var handlePattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

// ParseHandle validates the handle format: 3-20 characters, lowercase
// alphanumeric and underscore only.
func ParseHandle(s string) (Handle, error) {
	if !handlePattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeValidation,
			"handle must be 3-20 characters: lowercase letters, digits and underscore")
	}
	return Handle(s), nil
}

func (h Handle) String() string { return string(h) }

// Status of an identity record during the claim sequence.
type Status string

const (
	// StatusReserved marks a handle row that won its uniqueness race but has
	// no bound account yet. Reserved rows are invisible to resolution and are
	// released if provisioning or registration fails.
	StatusReserved Status = "reserved"
	// StatusActive marks a fully claimed handle with a bound, usable account.
	StatusActive Status = "active"
)

// Identity is one claimed handle.
//
// Invariants:
//   - Handle is globally unique and immutable once claimed
//   - OwnerID is set once; one active handle per owner
//   - Address is bound exactly once and never reused across handles
//   - Active identities are never updated or deleted
//
// SigningSecret is the ownership credential for the bound ledger account. It
// is write-once and read only by the settlement engine at the moment of
// submission, never cached beyond the call.
type Identity struct {
	ID            uuid.UUID `json:"id"`
	Handle        Handle    `json:"handle"`
	OwnerID       string    `json:"owner_id"`
	Address       string    `json:"address"`
	SigningSecret string    `json:"-"`
	Status        Status    `json:"status"`
	LedgerTxRef   string    `json:"ledger_tx_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	BoundAt       time.Time `json:"bound_at,omitzero"`
}

// NewReservation constructs the reserved row inserted during claim
// arbitration. Address and secret are bound later, after provisioning.
func NewReservation(handle Handle, ownerID string, now time.Time) (*Identity, error) {
	if handle == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "handle cannot be empty")
	}
	if ownerID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owner id cannot be empty")
	}
	return &Identity{
		ID:        uuid.New(),
		Handle:    handle,
		OwnerID:   ownerID,
		Status:    StatusReserved,
		CreatedAt: now,
	}, nil
}

// IsActive reports whether the identity has a bound, usable account.
func (i *Identity) IsActive() bool {
	return i.Status == StatusActive
}
