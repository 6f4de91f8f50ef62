// Package audit captures the key decisions of the registry and settlement
// engine as an append-only event trail.
//
// The local transaction mirror is derived state; the audit trail is what makes
// the eventual-consistency policy between the registry, the ledger network and
// the mirror inspectable after the fact. Events are emitted from domain logic
// and fanned out to a store (memory for tests, Kafka for deployments).
package audit

import (
	"context"
	"time"
)

// Event is emitted from domain logic on every state-changing decision. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	OwnerID   string
	Action    string
	Handle    string
	Address   string
	TxRef     string
	Reason    string
	RequestID string
}

// AuditEvent names the actions recorded by this deployment.
type AuditEvent string

const (
	// Identity registry events.
	EventIdentityClaimed  AuditEvent = "identity_claimed"
	EventClaimRejected    AuditEvent = "claim_rejected"
	EventIdentityReleased AuditEvent = "identity_released"

	// Settlement events. Indeterminate outcomes get their own action so the
	// trail distinguishes "never happened" from "unconfirmed".
	EventSettlementCompleted     AuditEvent = "settlement_completed"
	EventSettlementFailed        AuditEvent = "settlement_failed"
	EventSettlementIndeterminate AuditEvent = "settlement_indeterminate"
	EventSettlementReconciled    AuditEvent = "settlement_reconciled"
)

// Store persists audit events. Implementations must be safe for concurrent
// use.
type Store interface {
	Append(ctx context.Context, event Event) error
}
