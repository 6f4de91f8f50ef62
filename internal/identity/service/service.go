package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lumenpay/internal/identity/metrics"
	"lumenpay/internal/identity/models"
	"lumenpay/internal/ledger"
	dErrors "lumenpay/pkg/domain-errors"
	audit "lumenpay/pkg/platform/audit"
	"lumenpay/pkg/platform/sentinel"
	"lumenpay/pkg/requestcontext"
)

// IdentityStore is the persistence contract for claim arbitration. Reserve
// must be atomic against the backing store: a lost race surfaces as
// sentinel.ErrAlreadyUsed, never as a success for two callers.
type IdentityStore interface {
	Reserve(ctx context.Context, ident *models.Identity) error
	Bind(ctx context.Context, handle models.Handle, address, secret, txRef string, at time.Time) error
	Release(ctx context.Context, handle models.Handle) error
	FindByHandle(ctx context.Context, handle models.Handle) (*models.Identity, error)
	FindByOwner(ctx context.Context, ownerID string) (*models.Identity, error)
}

// Provisioner creates an activated ledger account for a claim.
type Provisioner interface {
	Provision(ctx context.Context) (ledger.Account, error)
}

// Registrar anchors handle ownership on the ledger network.
type Registrar interface {
	RegisterHandle(ctx context.Context, handle, address string) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the identity registry: it arbitrates claims and resolves
// handles. Handles are permanent once claimed; there is no update or delete
// path for active identities.
type Service struct {
	store       IdentityStore
	provisioner Provisioner
	registrar   Registrar

	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

func New(store IdentityStore, provisioner Provisioner, registrar Registrar, opts ...Option) *Service {
	s := &Service{
		store:       store,
		provisioner: provisioner,
		registrar:   registrar,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAvailability reports whether a handle can still be claimed. The answer
// is advisory: only the atomic reservation in Claim decides the race.
func (s *Service) CheckAvailability(ctx context.Context, handle string) (bool, error) {
	parsed, err := models.ParseHandle(handle)
	if err != nil {
		return false, err
	}
	_, err = s.store.FindByHandle(ctx, parsed)
	if errors.Is(err, sentinel.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check availability")
	}
	return false, nil
}

// Get returns the owner's identity, if any.
func (s *Service) Get(ctx context.Context, ownerID string) (*models.Identity, error) {
	ident, err := s.store.FindByOwner(ctx, ownerID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no identity claimed")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	return ident, nil
}

// Claim reserves the handle, provisions an activated ledger account, anchors
// the handle on the network and binds the account to the reservation — in
// that order. Any failure after the reservation releases it, so a handle is
// never left claimed without a usable account.
func (s *Service) Claim(ctx context.Context, handle, ownerID string) (*models.Identity, error) {
	start := time.Now()

	parsed, err := models.ParseHandle(handle)
	if err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}

	// One handle per principal. The store's owner uniqueness constraint is
	// the backstop; this check only produces the friendlier error.
	if existing, err := s.store.FindByOwner(ctx, ownerID); err == nil {
		return nil, dErrors.Newf(dErrors.CodeConflict, "owner already claimed %q", existing.Handle)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing claim")
	}

	ident, err := models.NewReservation(parsed, ownerID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	// Atomic check-and-insert. A constraint violation here means the handle
	// is taken, not that the store failed.
	if err := s.store.Reserve(ctx, ident); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			if s.metrics != nil {
				s.metrics.ClaimConflicts.Inc()
			}
			s.logAudit(ctx, audit.EventClaimRejected, audit.Event{
				OwnerID: ownerID, Handle: handle, Reason: "handle already taken",
			})
			return nil, dErrors.New(dErrors.CodeConflict, "handle already taken")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve handle")
	}

	account, err := s.provisioner.Provision(ctx)
	if err != nil {
		s.rollback(ctx, parsed, ownerID, "provisioning failed")
		return nil, dErrors.Wrap(err, dErrors.CodeExternal, "account provisioning failed, handle released")
	}

	txRef, err := s.registrar.RegisterHandle(ctx, handle, account.Address)
	if err != nil {
		s.rollback(ctx, parsed, ownerID, "ledger registration failed")
		return nil, dErrors.Wrap(err, dErrors.CodeExternal, "handle registration failed, handle released")
	}

	boundAt := requestcontext.Now(ctx)
	if err := s.store.Bind(ctx, parsed, account.Address, account.Secret, txRef, boundAt); err != nil {
		s.rollback(ctx, parsed, ownerID, "binding failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to bind account, handle released")
	}

	ident.Address = account.Address
	ident.SigningSecret = account.Secret
	ident.LedgerTxRef = txRef
	ident.Status = models.StatusActive
	ident.BoundAt = boundAt

	if s.metrics != nil {
		s.metrics.IdentitiesClaimed.Inc()
		s.metrics.ObserveClaim(start)
	}
	s.logAudit(ctx, audit.EventIdentityClaimed, audit.Event{
		OwnerID: ownerID, Handle: handle, Address: account.Address, TxRef: txRef,
	})
	s.logger.Info("identity claimed", "handle", handle, "address", account.Address)

	return ident, nil
}

// rollback releases a reservation after a failed claim step. Release of an
// already-released handle is not an error worth surfacing; losing the row is
// the goal either way.
func (s *Service) rollback(ctx context.Context, handle models.Handle, ownerID, reason string) {
	if err := s.store.Release(ctx, handle); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.Error("failed to release reserved handle", "handle", handle, "error", err)
	}
	if s.metrics != nil {
		s.metrics.ClaimRollbacks.Inc()
	}
	s.logAudit(ctx, audit.EventIdentityReleased, audit.Event{
		OwnerID: ownerID, Handle: string(handle), Reason: reason,
	})
}

func (s *Service) logAudit(ctx context.Context, action audit.AuditEvent, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.Action = string(action)
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.Error("audit emit failed", "action", action, "error", err)
	}
}
