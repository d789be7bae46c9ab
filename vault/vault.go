// Package vault defines the value-transfer primitive used to pay holders and
// the operator, plus an in-memory fund pool.
package vault

import (
	"context"
	"fmt"
	"sync"
)

// Vault holds the distributable funds. Every method is all-or-nothing: on
// error no balance has changed.
type Vault interface {
	// Balance returns the funds currently on hand.
	Balance(ctx context.Context) (uint64, error)

	// Transfer moves amount out of the vault to the address to.
	Transfer(ctx context.Context, to string, amount uint64) error

	// Receive credits amount sent by from.
	Receive(ctx context.Context, from string, amount uint64) error
}

// Referenced is implemented by vaults that tag transfers with a caller
// reference and can later report whether a reference was paid. It lets a
// restarted distributor tell a completed payment from an interrupted one.
type Referenced interface {
	Vault

	// TransferRef is Transfer tagged with ref. Repeating a paid ref is a no-op.
	TransferRef(ctx context.Context, ref, to string, amount uint64) error

	// Transferred reports whether a transfer tagged ref was made.
	Transferred(ctx context.Context, ref string) (bool, error)
}

// MemVault is a mutex-guarded in-memory Vault.
type MemVault struct {
	mu       sync.Mutex
	balance  uint64
	paid     map[string]uint64
	received map[string]uint64
	refs     map[string]struct{}
}

// Compile-time interface check.
var _ Referenced = (*MemVault)(nil)

// NewMemVault creates a vault holding initial funds.
func NewMemVault(initial uint64) *MemVault {
	return &MemVault{
		balance:  initial,
		paid:     make(map[string]uint64),
		received: make(map[string]uint64),
		refs:     make(map[string]struct{}),
	}
}

// Balance returns the funds currently on hand.
func (v *MemVault) Balance(_ context.Context) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

// Transfer debits amount and credits it to to. A zero amount is accepted and
// has no effect.
func (v *MemVault) Transfer(_ context.Context, to string, amount uint64) error {
	if to == "" {
		return ErrInvalidRecipient
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.transfer(to, amount)
}

// TransferRef is Transfer tagged with ref.
func (v *MemVault) TransferRef(_ context.Context, ref, to string, amount uint64) error {
	if ref == "" {
		return ErrInvalidRef
	}
	if to == "" {
		return ErrInvalidRecipient
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.refs[ref]; ok {
		return nil
	}
	if err := v.transfer(to, amount); err != nil {
		return err
	}
	v.refs[ref] = struct{}{}
	return nil
}

// Transferred reports whether a transfer tagged ref was made.
func (v *MemVault) Transferred(_ context.Context, ref string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.refs[ref]
	return ok, nil
}

func (v *MemVault) transfer(to string, amount uint64) error {
	if amount > v.balance {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, amount, v.balance)
	}
	v.balance -= amount
	v.paid[to] += amount
	return nil
}

// Receive credits amount from from.
func (v *MemVault) Receive(_ context.Context, from string, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.balance+amount < v.balance {
		return fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
	}
	v.balance += amount
	v.received[from] += amount
	return nil
}

// Paid returns the total transferred to addr.
func (v *MemVault) Paid(addr string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paid[addr]
}

// Received returns the total deposited by addr.
func (v *MemVault) Received(addr string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.received[addr]
}
