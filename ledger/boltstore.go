package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var (
	bucketClaims = []byte("claims")
	bucketState  = []byte("state")

	keyCheckpoint = []byte("checkpoint")
)

// BoltStore wraps a bbolt database holding claim records and the checkpoint.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketClaims, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("boltstore: create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// Claims returns a Ledger backed by this database.
func (s *BoltStore) Claims() *BoltLedger { return &BoltLedger{db: s.db} }

// Checkpoints returns a CheckpointStore backed by this database.
func (s *BoltStore) Checkpoints() *BoltCheckpoints { return &BoltCheckpoints{db: s.db} }

// intervalKey encodes an interval as an 8-byte big-endian prefix.
func intervalKey(interval uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, interval)
	return k
}

// claimKeyBytes encodes (interval, tokenID) as 16 bytes so that a cursor
// seek on the interval prefix walks one interval's claims in token order.
func claimKeyBytes(interval, tokenID uint64) []byte {
	k := make([]byte, 16)
	binary.BigEndian.PutUint64(k[:8], interval)
	binary.BigEndian.PutUint64(k[8:], tokenID)
	return k
}

// ---------------------------------------------------------------------------
// BoltLedger implements Ledger.
// ---------------------------------------------------------------------------

// BoltLedger persists claim records in bbolt.
type BoltLedger struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ Ledger = (*BoltLedger)(nil)

// IsClaimed reports whether tokenID was paid in interval.
func (l *BoltLedger) IsClaimed(interval, tokenID uint64) (bool, error) {
	var claimed bool
	err := l.db.View(func(tx *bbolt.Tx) error {
		claimed = tx.Bucket(bucketClaims).Get(claimKeyBytes(interval, tokenID)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("boltstore: is claimed: %w", err)
	}
	return claimed, nil
}

// MarkClaimed records tokenIDs as paid in interval in a single transaction.
func (l *BoltLedger) MarkClaimed(interval uint64, tokenIDs ...uint64) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		return putClaims(tx, interval, tokenIDs)
	})
}

// Revert removes the records for tokenIDs in interval in a single transaction.
func (l *BoltLedger) Revert(interval uint64, tokenIDs ...uint64) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		return deleteClaims(tx, interval, tokenIDs)
	})
}

func putClaims(tx *bbolt.Tx, interval uint64, tokenIDs []uint64) error {
	b := tx.Bucket(bucketClaims)
	for _, id := range tokenIDs {
		if err := b.Put(claimKeyBytes(interval, id), []byte{}); err != nil {
			return fmt.Errorf("boltstore: mark claimed: %w", err)
		}
	}
	return nil
}

func deleteClaims(tx *bbolt.Tx, interval uint64, tokenIDs []uint64) error {
	b := tx.Bucket(bucketClaims)
	for _, id := range tokenIDs {
		if err := b.Delete(claimKeyBytes(interval, id)); err != nil {
			return fmt.Errorf("boltstore: revert claim: %w", err)
		}
	}
	return nil
}

// ClaimCount returns the number of tokens paid in interval.
func (l *BoltLedger) ClaimCount(interval uint64) (int, error) {
	prefix := intervalKey(interval)
	var n int
	err := l.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketClaims).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("boltstore: claim count: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// BoltCheckpoints implements CheckpointStore.
// ---------------------------------------------------------------------------

// BoltCheckpoints persists the distributor checkpoint in bbolt.
type BoltCheckpoints struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ Committer = (*BoltCheckpoints)(nil)

// LoadCheckpoint returns the saved checkpoint, or ErrNoCheckpoint.
func (s *BoltCheckpoints) LoadCheckpoint() (*Checkpoint, error) {
	var cp Checkpoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketState).Get(keyCheckpoint)
		if data == nil {
			return ErrNoCheckpoint
		}
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cp); err != nil {
			return fmt.Errorf("boltstore: decode checkpoint: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// SaveCheckpoint replaces the saved checkpoint.
func (s *BoltCheckpoints) SaveCheckpoint(cp *Checkpoint) error {
	data, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putCheckpoint(tx, data)
	})
}

// Commit marks tokenIDs claimed in interval and saves cp in one transaction.
func (s *BoltCheckpoints) Commit(interval uint64, tokenIDs []uint64, cp *Checkpoint) error {
	data, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := putClaims(tx, interval, tokenIDs); err != nil {
			return err
		}
		return putCheckpoint(tx, data)
	})
}

// Abort removes the records for tokenIDs in interval and saves cp in one transaction.
func (s *BoltCheckpoints) Abort(interval uint64, tokenIDs []uint64, cp *Checkpoint) error {
	data, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteClaims(tx, interval, tokenIDs); err != nil {
			return err
		}
		return putCheckpoint(tx, data)
	})
}

func encodeCheckpoint(cp *Checkpoint) ([]byte, error) {
	if cp == nil {
		return nil, ErrNilCheckpoint
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cp); err != nil {
		return nil, fmt.Errorf("boltstore: encode checkpoint: %w", err)
	}
	return buf.Bytes(), nil
}

func putCheckpoint(tx *bbolt.Tx, data []byte) error {
	if err := tx.Bucket(bucketState).Put(keyCheckpoint, data); err != nil {
		return fmt.Errorf("boltstore: put checkpoint: %w", err)
	}
	return nil
}
