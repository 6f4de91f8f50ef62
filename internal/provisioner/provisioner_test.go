package provisioner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumenpay/internal/ledger"
	"lumenpay/internal/ledger/ledgertest"
)

func TestProvisionActivatesAccount(t *testing.T) {
	fake := ledgertest.New()
	p := New(fake, WithBackoff(time.Millisecond))

	account, err := p.Provision(context.Background())
	require.NoError(t, err)
	assert.True(t, ledger.IsAddress(account.Address))
	assert.True(t, fake.Activated(account.Address))
}

func TestProvisionRetriesActivation(t *testing.T) {
	fake := ledgertest.New()
	fake.FailActivations(2)
	p := New(fake, WithMaxAttempts(3), WithBackoff(time.Millisecond))

	account, err := p.Provision(context.Background())
	require.NoError(t, err)
	assert.True(t, fake.Activated(account.Address))
}

func TestProvisionSurfacesExhaustedRetries(t *testing.T) {
	fake := ledgertest.New()
	fake.FailActivations(5)
	p := New(fake, WithMaxAttempts(3), WithBackoff(time.Millisecond))

	_, err := p.Provision(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
}
