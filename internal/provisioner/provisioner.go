// Package provisioner creates and activates ledger accounts for newly
// claimed identities.
package provisioner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lumenpay/internal/ledger"
)

// Provisioner generates a fresh keypair and performs the network activation
// step that makes the account usable for transfers. Activation may be retried
// with bounded attempts; a final failure leaves no partially-usable account
// anywhere — the keypair is simply discarded and the caller rolls back its
// reservation.
type Provisioner struct {
	client      ledger.Client
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

type Option func(*Provisioner)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) { p.logger = logger }
}

// WithMaxAttempts bounds activation retries.
func WithMaxAttempts(n int) Option {
	return func(p *Provisioner) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBackoff sets the pause between activation attempts.
func WithBackoff(d time.Duration) Option {
	return func(p *Provisioner) { p.backoff = d }
}

func New(client ledger.Client, opts ...Option) *Provisioner {
	p := &Provisioner{
		client:      client,
		logger:      slog.Default(),
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision returns an activated account ready for transfers.
func (p *Provisioner) Provision(ctx context.Context) (ledger.Account, error) {
	account, err := p.client.CreateAccount()
	if err != nil {
		return ledger.Account{}, fmt.Errorf("create account: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if lastErr = p.client.Activate(ctx, account.Address); lastErr == nil {
			return account, nil
		}
		p.logger.Warn("account activation failed",
			"address", account.Address,
			"attempt", attempt,
			"error", lastErr)

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-time.After(p.backoff):
		case <-ctx.Done():
			return ledger.Account{}, fmt.Errorf("activate %s: %w", account.Address, ctx.Err())
		}
	}
	return ledger.Account{}, fmt.Errorf("activate %s after %d attempts: %w",
		account.Address, p.maxAttempts, lastErr)
}
