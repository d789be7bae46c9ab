// Package registry defines the ownership oracle consulted by the payout
// distributor, together with in-memory implementations.
package registry

import (
	"context"
	"fmt"
	"sync"
)

// Oracle answers ownership and supply questions for a token collection.
type Oracle interface {
	// OwnerOf returns the owner of tokenID, or ErrTokenNotFound.
	OwnerOf(ctx context.Context, tokenID uint64) (string, error)

	// BalanceOf returns how many tokens owner holds.
	BalanceOf(ctx context.Context, owner string) (uint64, error)

	// CurrentSupply returns the number of tokens in existence.
	CurrentSupply(ctx context.Context) (uint64, error)
}

// Resolver maps a registry address to the Oracle serving it.
type Resolver interface {
	Resolve(ctx context.Context, addr string) (Oracle, error)
}

// Directory is a static Resolver backed by a map.
type Directory struct {
	mu      sync.RWMutex
	oracles map[string]Oracle
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{oracles: make(map[string]Oracle)}
}

// Register binds addr to o, replacing any previous binding.
func (d *Directory) Register(addr string, o Oracle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.oracles[addr] = o
}

// Resolve returns the oracle registered under addr.
func (d *Directory) Resolve(_ context.Context, addr string) (Oracle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.oracles[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegistry, addr)
	}
	return o, nil
}

// Compile-time interface checks.
var (
	_ Resolver = (*Directory)(nil)
	_ Oracle   = (*MemRegistry)(nil)
	_ Oracle   = (*MockOracle)(nil)
)
