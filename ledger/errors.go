package ledger

import "errors"

var (
	// ErrNoCheckpoint indicates no checkpoint has been saved yet.
	ErrNoCheckpoint = errors.New("ledger: no checkpoint")

	// ErrNilCheckpoint indicates a nil checkpoint was passed to SaveCheckpoint.
	ErrNilCheckpoint = errors.New("ledger: checkpoint is nil")
)
