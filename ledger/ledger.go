// Package ledger records which tokens have been paid in which interval and
// persists the distributor's checkpoint.
package ledger

import (
	"sync"
	"time"

	"github.com/bitfsorg/royalty-go/config"
	"github.com/bitfsorg/royalty-go/epoch"
)

// Ledger enforces at most one payout per (interval, token).
// Records are never removed on the normal path.
type Ledger interface {
	// IsClaimed reports whether tokenID was paid in interval.
	IsClaimed(interval, tokenID uint64) (bool, error)

	// MarkClaimed records every tokenID as paid in interval, atomically.
	// Marking an already-claimed token is harmless.
	MarkClaimed(interval uint64, tokenIDs ...uint64) error

	// Revert undoes a MarkClaimed whose payout transfer failed.
	Revert(interval uint64, tokenIDs ...uint64) error

	// ClaimCount returns the number of tokens paid in interval.
	ClaimCount(interval uint64) (int, error)
}

// Transfer is an outgoing payment recorded durably before it is sent.
type Transfer struct {
	Ref       string   // unique per payment, passed to vaults that support references
	Interval  uint64   // interval of TokenIDs
	TokenIDs  []uint64 // claim records written with the payment; empty for withdrawals
	Recipient string
	Amount    uint64
}

// Checkpoint is the distributor state persisted after every mutation.
type Checkpoint struct {
	Snapshot    epoch.Snapshot
	TotalPayout uint64
	Settings    config.Settings
	SavedAt     time.Time

	// Pending is set between recording a payment and confirming its transfer.
	Pending *Transfer
	// Seq numbers payments; it only grows.
	Seq uint64
	// Funds is the vault balance the distributor expects to find.
	Funds uint64
}

// clone returns a deep copy of cp.
func (cp *Checkpoint) clone() *Checkpoint {
	c := *cp
	if cp.Pending != nil {
		p := *cp.Pending
		p.TokenIDs = append([]uint64(nil), cp.Pending.TokenIDs...)
		c.Pending = &p
	}
	return &c
}

// CheckpointStore persists the latest Checkpoint.
type CheckpointStore interface {
	// LoadCheckpoint returns the saved checkpoint, or ErrNoCheckpoint.
	LoadCheckpoint() (*Checkpoint, error)

	// SaveCheckpoint replaces the saved checkpoint.
	SaveCheckpoint(cp *Checkpoint) error
}

// Committer is a CheckpointStore that writes claim records and the
// checkpoint in a single atomic step. It must share storage with the Ledger
// it is used alongside.
type Committer interface {
	CheckpointStore

	// Commit marks tokenIDs claimed in interval and saves cp.
	Commit(interval uint64, tokenIDs []uint64, cp *Checkpoint) error

	// Abort removes the records for tokenIDs in interval and saves cp.
	Abort(interval uint64, tokenIDs []uint64, cp *Checkpoint) error
}

type claimKey struct {
	interval uint64
	tokenID  uint64
}

// MemLedger is an in-memory Ledger keyed sparsely by (interval, token).
type MemLedger struct {
	mu     sync.RWMutex
	claims map[claimKey]struct{}
	counts map[uint64]int
}

// NewMemLedger creates an empty in-memory ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{
		claims: make(map[claimKey]struct{}),
		counts: make(map[uint64]int),
	}
}

// IsClaimed reports whether tokenID was paid in interval.
func (l *MemLedger) IsClaimed(interval, tokenID uint64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.claims[claimKey{interval, tokenID}]
	return ok, nil
}

// MarkClaimed records tokenIDs as paid in interval.
func (l *MemLedger) MarkClaimed(interval uint64, tokenIDs ...uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range tokenIDs {
		k := claimKey{interval, id}
		if _, ok := l.claims[k]; ok {
			continue
		}
		l.claims[k] = struct{}{}
		l.counts[interval]++
	}
	return nil
}

// Revert removes the records for tokenIDs in interval.
func (l *MemLedger) Revert(interval uint64, tokenIDs ...uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range tokenIDs {
		k := claimKey{interval, id}
		if _, ok := l.claims[k]; !ok {
			continue
		}
		delete(l.claims, k)
		l.counts[interval]--
	}
	if l.counts[interval] == 0 {
		delete(l.counts, interval)
	}
	return nil
}

// ClaimCount returns the number of tokens paid in interval.
func (l *MemLedger) ClaimCount(interval uint64) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[interval], nil
}

// MemCheckpoints is an in-memory CheckpointStore for testing.
type MemCheckpoints struct {
	mu    sync.Mutex
	cp    *Checkpoint
	saves int
}

// NewMemCheckpoints creates an empty checkpoint store.
func NewMemCheckpoints() *MemCheckpoints {
	return &MemCheckpoints{}
}

// LoadCheckpoint returns a copy of the saved checkpoint.
func (m *MemCheckpoints) LoadCheckpoint() (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cp == nil {
		return nil, ErrNoCheckpoint
	}
	return m.cp.clone(), nil
}

// SaveCheckpoint stores a copy of cp.
func (m *MemCheckpoints) SaveCheckpoint(cp *Checkpoint) error {
	if cp == nil {
		return ErrNilCheckpoint
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp = cp.clone()
	m.saves++
	return nil
}

// Saves returns how many times SaveCheckpoint succeeded.
func (m *MemCheckpoints) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Compile-time interface checks.
var (
	_ Ledger          = (*MemLedger)(nil)
	_ CheckpointStore = (*MemCheckpoints)(nil)
)
