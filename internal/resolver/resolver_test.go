package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumenpay/internal/identity/models"
	identitystore "lumenpay/internal/identity/store/identity"
	"lumenpay/internal/ledger"
	"lumenpay/internal/ledger/ledgertest"
	dErrors "lumenpay/pkg/domain-errors"
)

func newStoreWithIdentity(t *testing.T, handle, owner string) (*identitystore.InMemory, string) {
	t.Helper()
	store := identitystore.NewInMemory()

	fake := ledgertest.New()
	account, err := fake.CreateAccount()
	require.NoError(t, err)

	ident, err := models.NewReservation(models.Handle(handle), owner, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Reserve(context.Background(), ident))
	require.NoError(t, store.Bind(context.Background(), ident.Handle, account.Address, account.Secret, "tx_reg", time.Now()))
	return store, account.Address
}

func TestResolveRawAddressPassesThrough(t *testing.T) {
	store, address := newStoreWithIdentity(t, "bob", "owner-b")
	r := New(store)

	res, err := r.Resolve(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, address, res.Address)
	assert.Empty(t, res.Handle, "raw addresses resolve without registry lookup")
}

func TestResolveHandleRoundTrip(t *testing.T) {
	store, address := newStoreWithIdentity(t, "bob", "owner-b")
	r := New(store)

	// Bare handle and suffixed handle resolve to the same bound address.
	for _, input := range []string{"bob", "bob@lumen", "  bob@lumen  ", "BOB@lumen"} {
		res, err := r.Resolve(context.Background(), input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, address, res.Address, "input %q", input)
		assert.Equal(t, models.Handle("bob"), res.Handle)
		assert.Equal(t, "owner-b", res.OwnerID)
	}
}

func TestResolveUnknownInputs(t *testing.T) {
	store, _ := newStoreWithIdentity(t, "bob", "owner-b")
	r := New(store)

	for _, input := range []string{"carol", "carol@lumen", "not a handle!", ""} {
		_, err := r.Resolve(context.Background(), input)
		require.Error(t, err, "input %q", input)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "input %q", input)
	}
}

func TestResolveSkipsReservedRows(t *testing.T) {
	store := identitystore.NewInMemory()
	ident, err := models.NewReservation("pending", "owner-p", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Reserve(context.Background(), ident))

	r := New(store)
	_, err = r.Resolve(context.Background(), "pending")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

// countingRegistry counts FindByHandle calls to observe cache behavior.
type countingRegistry struct {
	inner RegistryReader
	mu    sync.Mutex
	calls int
}

func (c *countingRegistry) FindByHandle(ctx context.Context, handle models.Handle) (*models.Identity, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.FindByHandle(ctx, handle)
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]Resolution
}

func (c *mapCache) Get(_ context.Context, handle string) (Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.m[handle]
	return res, ok
}

func (c *mapCache) Set(_ context.Context, handle string, res Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[handle] = res
}

func TestResolveUsesCache(t *testing.T) {
	store, address := newStoreWithIdentity(t, "bob", "owner-b")
	registry := &countingRegistry{inner: store}
	r := New(registry, WithCache(&mapCache{m: make(map[string]Resolution)}))

	for range 5 {
		res, err := r.Resolve(context.Background(), "bob@lumen")
		require.NoError(t, err)
		assert.Equal(t, address, res.Address)
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	assert.Equal(t, 1, registry.calls, "repeated resolutions should hit the cache")
}

func TestResolveAddressSyntaxWins(t *testing.T) {
	// A string that decodes as an address must never be treated as a handle,
	// even if a handle of the same spelling could exist.
	store, address := newStoreWithIdentity(t, "bob", "owner-b")
	r := New(store)

	res, err := r.Resolve(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, address, res.Address)
	assert.True(t, ledger.IsAddress(res.Address))
}
