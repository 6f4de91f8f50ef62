// Package ledgertest provides a scriptable in-memory ledger network for
// tests. It behaves like the real network at the interface contract level:
// confirmed transfers are recorded, rejections move nothing, and
// indeterminate outcomes may or may not have executed.
package ledgertest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lumenpay/internal/ledger"
)

// Transfer is one confirmed transfer on the fake network.
type Transfer struct {
	TxRef  string
	From   string
	To     string
	Amount decimal.Decimal
	At     time.Time
}

// Fake implements ledger.Client. Zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	accounts  map[string]string // secret -> address
	activated map[string]bool
	transfers []Transfer

	activationFailures int
	registerFailures   int
	rejectReasons      []string
	indeterminate      []bool // per queued outcome: did the transfer execute anyway
	submitDelay        time.Duration

	inFlight    map[string]int // per source address
	maxInFlight map[string]int
}

func New() *Fake {
	return &Fake{
		accounts:    make(map[string]string),
		activated:   make(map[string]bool),
		inFlight:    make(map[string]int),
		maxInFlight: make(map[string]int),
	}
}

// FailActivations makes the next n Activate calls fail.
func (f *Fake) FailActivations(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activationFailures = n
}

// FailRegistrations makes the next n RegisterHandle calls fail.
func (f *Fake) FailRegistrations(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerFailures = n
}

// RejectNext makes the next SubmitTransfer fail definitively with reason.
func (f *Fake) RejectNext(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectReasons = append(f.rejectReasons, reason)
}

// IndeterminateNext makes the next SubmitTransfer return an indeterminate
// outcome. When executed is true the transfer is nonetheless confirmed on the
// fake network, so reconciliation will find it.
func (f *Fake) IndeterminateNext(executed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indeterminate = append(f.indeterminate, executed)
}

// SetSubmitDelay makes every SubmitTransfer take d before resolving.
func (f *Fake) SetSubmitDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitDelay = d
}

func (f *Fake) CreateAccount() (ledger.Account, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return ledger.Account{}, err
	}
	address, err := ledger.EncodeAddress(pub)
	if err != nil {
		return ledger.Account{}, err
	}
	secret, err := ledger.EncodeSeed(priv.Seed())
	if err != nil {
		return ledger.Account{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[secret] = address
	return ledger.Account{Address: address, Secret: secret}, nil
}

func (f *Fake) Activate(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activationFailures > 0 {
		f.activationFailures--
		return fmt.Errorf("activate %s: %w", address, ledger.ErrUnavailable)
	}
	f.activated[address] = true
	return nil
}

func (f *Fake) RegisterHandle(_ context.Context, handle, address string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerFailures > 0 {
		f.registerFailures--
		return "", fmt.Errorf("register %s: %w", handle, ledger.ErrUnavailable)
	}
	return "reg_" + uuid.NewString(), nil
}

func (f *Fake) SubmitTransfer(ctx context.Context, secret, toAddress string, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	from, ok := f.accounts[secret]
	if !ok {
		f.mu.Unlock()
		return "", &ledger.RejectionError{Reason: "unknown source account"}
	}
	f.inFlight[from]++
	if f.inFlight[from] > f.maxInFlight[from] {
		f.maxInFlight[from] = f.inFlight[from]
	}
	delay := f.submitDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			f.finishSubmit(from)
			return "", fmt.Errorf("submit: %v: %w", ctx.Err(), ledger.ErrIndeterminate)
		}
	}

	f.mu.Lock()
	defer func() {
		f.inFlight[from]--
		f.mu.Unlock()
	}()

	if len(f.rejectReasons) > 0 {
		reason := f.rejectReasons[0]
		f.rejectReasons = f.rejectReasons[1:]
		return "", &ledger.RejectionError{Reason: reason}
	}

	if len(f.indeterminate) > 0 {
		executed := f.indeterminate[0]
		f.indeterminate = f.indeterminate[1:]
		if executed {
			f.transfers = append(f.transfers, Transfer{
				TxRef:  "tx_" + uuid.NewString(),
				From:   from,
				To:     toAddress,
				Amount: amount,
				At:     time.Now(),
			})
		}
		return "", fmt.Errorf("submit: no confirmation: %w", ledger.ErrIndeterminate)
	}

	tx := Transfer{
		TxRef:  "tx_" + uuid.NewString(),
		From:   from,
		To:     toAddress,
		Amount: amount,
		At:     time.Now(),
	}
	f.transfers = append(f.transfers, tx)
	return tx.TxRef, nil
}

func (f *Fake) finishSubmit(from string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight[from]--
}

func (f *Fake) GetBalances(_ context.Context, address string) ([]ledger.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.activated[address] {
		return nil, nil
	}
	// Activated accounts start with the friendbot grant; transfers adjust it.
	balance := decimal.NewFromInt(10000)
	for _, t := range f.transfers {
		if t.From == address {
			balance = balance.Sub(t.Amount)
		}
		if t.To == address {
			balance = balance.Add(t.Amount)
		}
	}
	return []ledger.Balance{{Asset: ledger.NativeAsset, Balance: balance}}, nil
}

func (f *Fake) FindTransfer(_ context.Context, q ledger.TransferQuery) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transfers {
		if t.From == q.From && t.To == q.To && t.Amount.Equal(q.Amount) && !t.At.Before(q.Since) {
			return t.TxRef, true, nil
		}
	}
	return "", false, nil
}

// Transfers returns a copy of all confirmed transfers.
func (f *Fake) Transfers() []Transfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transfer{}, f.transfers...)
}

// MaxInFlight reports the highest number of concurrent submissions observed
// for the given source address.
func (f *Fake) MaxInFlight(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight[address]
}

// Activated reports whether an address has been funded.
func (f *Fake) Activated(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activated[address]
}
