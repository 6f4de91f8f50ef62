// Package resolver classifies recipient input and resolves handles to ledger
// addresses.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"lumenpay/internal/identity/models"
	"lumenpay/internal/ledger"
	dErrors "lumenpay/pkg/domain-errors"
	"lumenpay/pkg/platform/sentinel"
)

// DefaultSuffix is the handle decoration accepted in user-facing input, as in
// "alice@lumen".
const DefaultSuffix = "@lumen"

// Resolution is the outcome of classifying and resolving one input string.
// Handle is empty when the input was a raw ledger address.
type Resolution struct {
	Address string
	Handle  models.Handle
	OwnerID string
}

// RegistryReader is the read-only slice of the identity store the resolver
// needs. Resolution never mutates registry state.
type RegistryReader interface {
	FindByHandle(ctx context.Context, handle models.Handle) (*models.Identity, error)
}

// Cache is an optional lookaside for handle resolutions. Identity records are
// immutable once active, so a cached resolution can never go stale; the TTL
// is hygiene, not correctness.
type Cache interface {
	Get(ctx context.Context, handle string) (Resolution, bool)
	Set(ctx context.Context, handle string, res Resolution)
}

// Resolver classifies input by a single deterministic rule: anything that is
// a syntactically valid native address (checksum included) is an address and
// is returned unresolved; everything else is treated as a handle, with the
// suffix decoration stripped. Address syntax always wins — a string can never
// be resolved probabilistically.
type Resolver struct {
	registry RegistryReader
	cache    Cache
	suffix   string
	logger   *slog.Logger
	group    singleflight.Group
}

type Option func(*Resolver)

func WithCache(cache Cache) Option {
	return func(r *Resolver) { r.cache = cache }
}

func WithSuffix(suffix string) Option {
	return func(r *Resolver) {
		if suffix != "" {
			r.suffix = suffix
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func New(registry RegistryReader, opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry,
		suffix:   DefaultSuffix,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve classifies input and returns its ledger address.
func (r *Resolver) Resolve(ctx context.Context, input string) (Resolution, error) {
	input = strings.TrimSpace(input)

	if ledger.IsAddress(input) {
		return Resolution{Address: input}, nil
	}

	bare := strings.TrimSuffix(strings.ToLower(input), r.suffix)
	handle, err := models.ParseHandle(bare)
	if err != nil {
		return Resolution{}, dErrors.Newf(dErrors.CodeNotFound,
			"%q is neither a ledger address nor a valid handle", input)
	}

	if r.cache != nil {
		if res, ok := r.cache.Get(ctx, bare); ok {
			return res, nil
		}
	}

	// Collapse concurrent lookups for the same handle into one registry read.
	v, err, _ := r.group.Do(bare, func() (any, error) {
		ident, err := r.registry.FindByHandle(ctx, handle)
		if err != nil {
			return Resolution{}, err
		}
		if !ident.IsActive() {
			// Reserved rows have no bound account yet.
			return Resolution{}, sentinel.ErrNotFound
		}
		return Resolution{Address: ident.Address, Handle: ident.Handle, OwnerID: ident.OwnerID}, nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Resolution{}, dErrors.Newf(dErrors.CodeNotFound, "handle %q not found", bare)
		}
		return Resolution{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve handle")
	}

	res := v.(Resolution)
	if r.cache != nil {
		r.cache.Set(ctx, bare, res)
	}
	return res, nil
}
