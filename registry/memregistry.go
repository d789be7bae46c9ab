package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// MemRegistry is an in-memory ERC-721 style ownership registry.
// The owner and balance maps are kept consistent on every mutation.
type MemRegistry struct {
	mu       sync.RWMutex
	owners   map[uint64]string
	balances map[string]uint64
}

// NewMemRegistry creates an empty registry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{
		owners:   make(map[uint64]string),
		balances: make(map[string]uint64),
	}
}

// Mint assigns a new token to owner.
func (r *MemRegistry) Mint(owner string, tokenID uint64) error {
	if owner == "" {
		return fmt.Errorf("%w: owner", ErrEmptyAddress)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.owners[tokenID]; exists {
		return fmt.Errorf("%w: %d", ErrTokenExists, tokenID)
	}
	r.owners[tokenID] = owner
	r.balances[owner]++
	return nil
}

// Transfer moves tokenID from its current owner from to to.
func (r *MemRegistry) Transfer(from, to string, tokenID uint64) error {
	if to == "" {
		return fmt.Errorf("%w: recipient", ErrEmptyAddress)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	if owner != from {
		return fmt.Errorf("%w: token %d", ErrNotTokenOwner, tokenID)
	}
	r.owners[tokenID] = to
	r.decrement(from)
	r.balances[to]++
	return nil
}

// Burn destroys tokenID, reducing the supply.
func (r *MemRegistry) Burn(tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	delete(r.owners, tokenID)
	r.decrement(owner)
	return nil
}

func (r *MemRegistry) decrement(owner string) {
	if r.balances[owner] <= 1 {
		delete(r.balances, owner)
		return
	}
	r.balances[owner]--
}

// OwnerOf returns the owner of tokenID.
func (r *MemRegistry) OwnerOf(_ context.Context, tokenID uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrTokenNotFound, tokenID)
	}
	return owner, nil
}

// BalanceOf returns the number of tokens held by owner.
func (r *MemRegistry) BalanceOf(_ context.Context, owner string) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.balances[owner], nil
}

// CurrentSupply returns the number of minted, unburned tokens.
func (r *MemRegistry) CurrentSupply(_ context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.owners)), nil
}

// snapshotFile is the JSON layout read by LoadFile:
//
//	{"tokens": {"1": "1A1zP1...", "2": "1BoatS..."}}
type snapshotFile struct {
	Tokens map[string]string `json:"tokens"`
}

// LoadFile builds a MemRegistry from a JSON ownership snapshot.
func LoadFile(path string) (*MemRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read snapshot: %w", err)
	}
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	r := NewMemRegistry()
	for idStr, owner := range snap.Tokens {
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: token id %q", ErrInvalidSnapshot, idStr)
		}
		if err := r.Mint(owner, id); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
	}
	return r, nil
}
