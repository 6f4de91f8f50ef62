package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	identitymodels "lumenpay/internal/identity/models"
	"lumenpay/internal/ledger"
	"lumenpay/internal/resolver"
	"lumenpay/internal/settlement/metrics"
	"lumenpay/internal/settlement/models"
	dErrors "lumenpay/pkg/domain-errors"
	audit "lumenpay/pkg/platform/audit"
	"lumenpay/pkg/platform/circuit"
	"lumenpay/pkg/platform/sentinel"
	"lumenpay/pkg/requestcontext"
)

// IdentityReader is the read-only slice of the registry the engine needs.
type IdentityReader interface {
	FindByOwner(ctx context.Context, ownerID string) (*identitymodels.Identity, error)
}

// AddressResolver classifies and resolves recipient input.
type AddressResolver interface {
	Resolve(ctx context.Context, input string) (resolver.Resolution, error)
}

// MirrorStore is the transaction mirror persistence contract. Append-only;
// Resolve moves a pending row to its terminal status exactly once.
type MirrorStore interface {
	Append(ctx context.Context, record *models.SettlementRecord) error
	Resolve(ctx context.Context, id uuid.UUID, status models.Status, txRef, reason string, at time.Time) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.SettlementRecord, error)
	History(ctx context.Context, ownerID string, before time.Time, limit int) ([]*models.SettlementRecord, error)
}

// LedgerClient is the slice of the network capability the engine consumes.
type LedgerClient interface {
	SubmitTransfer(ctx context.Context, secret, toAddress string, amount decimal.Decimal) (string, error)
	FindTransfer(ctx context.Context, q ledger.TransferQuery) (string, bool, error)
	GetBalances(ctx context.Context, address string) ([]ledger.Balance, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const defaultSubmitTimeout = 30 * time.Second

// Engine executes transfers against the ledger network and records their
// outcomes in the mirror.
//
// Ordering is the engine's one hard rule: the network confirmation
// happens-before the mirror write, so a completed record always corresponds
// to a real transfer. When no confirmation arrives within the submit timeout
// the outcome is indeterminate — recorded as pending and surfaced distinctly,
// never converted into success or failure. The engine performs no automatic
// retries: resubmitting an indeterminate transfer can double-pay, so retries
// are caller-initiated after Reconcile.
type Engine struct {
	identities IdentityReader
	resolver   AddressResolver
	mirror     MirrorStore
	ledger     LedgerClient

	breaker       *circuit.Breaker
	submitTimeout time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor AuditPublisher

	// Per-sender-account serialization. The network orders transactions per
	// source account; overlapping submissions from one account would trip its
	// sequencing and fail spuriously.
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(e *Engine) { e.auditor = p }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(e *Engine) { e.breaker = b }
}

// WithSubmitTimeout bounds the wait for ledger confirmation. Expiry is an
// indeterminate outcome, not a failure: the submission cannot be revoked once
// sent.
func WithSubmitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.submitTimeout = d
		}
	}
}

func New(identities IdentityReader, addressResolver AddressResolver, mirror MirrorStore, ledgerClient LedgerClient, opts ...Option) *Engine {
	e := &Engine{
		identities:    identities,
		resolver:      addressResolver,
		mirror:        mirror,
		ledger:        ledgerClient,
		submitTimeout: defaultSubmitTimeout,
		logger:        slog.Default(),
		locks:         make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) accountLock(address string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	lock, ok := e.locks[address]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[address] = lock
	}
	return lock
}

// Settle executes one transfer. On failure and indeterminate outcomes the
// returned record (when non-nil) is the mirror row that documents the
// attempt; validation errors return no record because nothing was attempted
// against the ledger.
func (e *Engine) Settle(ctx context.Context, ownerID, recipientInput, amountInput, note string) (*models.SettlementRecord, error) {
	// Step order is fixed: sender, recipient, amount, submit, record.
	ident, err := e.identities.FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "sender has no provisioned identity")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sender identity")
	}
	if !ident.IsActive() {
		return nil, dErrors.New(dErrors.CodeNotFound, "sender has no provisioned identity")
	}

	res, err := e.resolver.Resolve(ctx, recipientInput)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeOf(err), "recipient could not be resolved")
	}

	amount, err := models.ParseAmount(amountInput)
	if err != nil {
		return nil, err
	}

	record := &models.SettlementRecord{
		ID:               uuid.New(),
		SenderOwnerID:    ownerID,
		RecipientOwnerID: res.OwnerID,
		SenderHandle:     ident.Handle.String(),
		Recipient:        recipientLabel(res, recipientInput),
		RecipientAddress: res.Address,
		Amount:           amount,
		Asset:            ledger.NativeAsset,
		Note:             note,
		CreatedAt:        requestcontext.Now(ctx),
	}

	lock := e.accountLock(ident.Address)
	lock.Lock()
	defer lock.Unlock()

	if e.breaker != nil && !e.breaker.Allow() {
		// Nothing was submitted; this is a definite failure.
		return e.recordFailed(ctx, record, "ledger temporarily unavailable"),
			dErrors.New(dErrors.CodeExternal, "ledger temporarily unavailable")
	}

	submitCtx, cancel := context.WithTimeout(ctx, e.submitTimeout)
	defer cancel()

	start := time.Now()
	// The signing secret is read here and nowhere else; it lives only for
	// the duration of this call.
	txRef, err := e.ledger.SubmitTransfer(submitCtx, ident.SigningSecret, res.Address, amount)
	if e.metrics != nil {
		e.metrics.ObserveSubmit(start)
	}

	switch {
	case err == nil:
		if e.breaker != nil {
			e.breaker.RecordSuccess()
		}
		return e.recordCompleted(ctx, record, txRef), nil

	case isRejection(err):
		// The network answered; the circuit stays closed.
		if e.breaker != nil {
			e.breaker.RecordSuccess()
		}
		var rej *ledger.RejectionError
		errors.As(err, &rej)
		return e.recordFailed(ctx, record, rej.Reason),
			dErrors.Newf(dErrors.CodeExternal, "transfer rejected: %s", rej.Reason)

	case isIndeterminate(err):
		return e.recordPending(ctx, record),
			dErrors.New(dErrors.CodeIndeterminate,
				"no confirmation received; reconcile before retrying")

	default:
		if e.breaker != nil {
			if _, change := e.breaker.RecordFailure(); change.Opened {
				e.logger.Warn("ledger circuit opened")
			}
		}
		return e.recordFailed(ctx, record, "ledger unreachable"),
			dErrors.Wrap(err, dErrors.CodeExternal, "ledger unreachable")
	}
}

// Reconcile resolves a pending settlement by re-querying confirmed ledger
// state for a transfer matching the record's parameters. Already-resolved
// records are returned unchanged, so the call is idempotent and safe to
// repeat until the network answers.
func (e *Engine) Reconcile(ctx context.Context, ownerID string, recordID uuid.UUID) (*models.SettlementRecord, error) {
	record, err := e.mirror.FindByID(ctx, recordID)
	if err != nil || record.SenderOwnerID != ownerID {
		// A foreign record is indistinguishable from a missing one.
		return nil, dErrors.New(dErrors.CodeNotFound, "settlement record not found")
	}
	if record.Status != models.StatusPending {
		return record, nil
	}

	ident, err := e.identities.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sender identity")
	}

	// The window opens slightly before the recorded creation time to absorb
	// clock skew between this process and the network.
	txRef, found, err := e.ledger.FindTransfer(ctx, ledger.TransferQuery{
		From:   ident.Address,
		To:     record.RecipientAddress,
		Amount: record.Amount,
		Since:  record.CreatedAt.Add(-time.Minute),
	})
	if err != nil {
		// Leave the record pending; the caller retries reconciliation later.
		return record, dErrors.Wrap(err, dErrors.CodeExternal, "reconciliation query failed")
	}

	now := requestcontext.Now(ctx)
	if found {
		err = e.mirror.Resolve(ctx, record.ID, models.StatusCompleted, txRef, "", now)
	} else {
		err = e.mirror.Resolve(ctx, record.ID, models.StatusFailed, "",
			"no matching transfer found on ledger", now)
	}
	if err != nil && !errors.Is(err, sentinel.ErrInvalidState) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve settlement record")
	}

	if e.metrics != nil {
		e.metrics.SettlementsReconciled.Inc()
	}
	resolved, err := e.mirror.FindByID(ctx, record.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload settlement record")
	}
	e.logAudit(ctx, audit.EventSettlementReconciled, audit.Event{
		OwnerID: ownerID, TxRef: resolved.LedgerTxRef, Reason: string(resolved.Status),
	})
	return resolved, nil
}

// History returns the owner's settlement records (as sender or recipient),
// most recent first. A zero before starts from now; limit caps the page.
func (e *Engine) History(ctx context.Context, ownerID string, before time.Time, limit int) ([]*models.SettlementRecord, error) {
	if before.IsZero() {
		before = requestcontext.Now(ctx).Add(time.Second)
	}
	records, err := e.mirror.History(ctx, ownerID, before, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history")
	}
	return records, nil
}

// GetBalances passes through to the ledger for the owner's bound address. An
// owner without a provisioned identity has no balances rather than an error,
// matching what a wallet shows before onboarding completes.
func (e *Engine) GetBalances(ctx context.Context, ownerID string) ([]ledger.Balance, error) {
	ident, err := e.identities.FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return []ledger.Balance{}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	if !ident.IsActive() {
		return []ledger.Balance{}, nil
	}

	balances, err := e.ledger.GetBalances(ctx, ident.Address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return []ledger.Balance{}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeExternal, "failed to load balances")
	}
	if balances == nil {
		balances = []ledger.Balance{}
	}
	return balances, nil
}

func (e *Engine) recordCompleted(ctx context.Context, record *models.SettlementRecord, txRef string) *models.SettlementRecord {
	record.Status = models.StatusCompleted
	record.LedgerTxRef = txRef
	record.ResolvedAt = requestcontext.Now(ctx)
	e.append(ctx, record)
	if e.metrics != nil {
		e.metrics.SettlementsCompleted.Inc()
	}
	e.logAudit(ctx, audit.EventSettlementCompleted, audit.Event{
		OwnerID: record.SenderOwnerID, TxRef: txRef, Address: record.RecipientAddress,
	})
	return record
}

func (e *Engine) recordFailed(ctx context.Context, record *models.SettlementRecord, reason string) *models.SettlementRecord {
	record.Status = models.StatusFailed
	record.Reason = reason
	record.ResolvedAt = requestcontext.Now(ctx)
	e.append(ctx, record)
	if e.metrics != nil {
		e.metrics.SettlementsFailed.Inc()
	}
	e.logAudit(ctx, audit.EventSettlementFailed, audit.Event{
		OwnerID: record.SenderOwnerID, Address: record.RecipientAddress, Reason: reason,
	})
	return record
}

func (e *Engine) recordPending(ctx context.Context, record *models.SettlementRecord) *models.SettlementRecord {
	record.Status = models.StatusPending
	e.append(ctx, record)
	if e.metrics != nil {
		e.metrics.SettlementsIndeterminate.Inc()
	}
	e.logAudit(ctx, audit.EventSettlementIndeterminate, audit.Event{
		OwnerID: record.SenderOwnerID, Address: record.RecipientAddress,
	})
	return record
}

func (e *Engine) append(ctx context.Context, record *models.SettlementRecord) {
	if err := e.mirror.Append(ctx, record); err != nil {
		// The transfer outcome stands; a mirror divergence is an audit
		// finding, not a reason to misreport the settlement.
		e.logger.Error("mirror append failed",
			"record_id", record.ID, "status", record.Status, "error", err)
	}
}

func (e *Engine) logAudit(ctx context.Context, action audit.AuditEvent, event audit.Event) {
	if e.auditor == nil {
		return
	}
	event.Action = string(action)
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := e.auditor.Emit(ctx, event); err != nil {
		e.logger.Error("audit emit failed", "action", action, "error", err)
	}
}

func recipientLabel(res resolver.Resolution, input string) string {
	if res.Handle != "" {
		return res.Handle.String()
	}
	return input
}

func isRejection(err error) bool {
	var rej *ledger.RejectionError
	return errors.As(err, &rej)
}

func isIndeterminate(err error) bool {
	return errors.Is(err, ledger.ErrIndeterminate) ||
		errors.Is(err, context.DeadlineExceeded)
}
