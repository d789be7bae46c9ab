// Package payout distributes each interval's fund snapshot to token holders
// and exposes the owner-gated operations that configure it.
//
// A Distributor serialises every call behind one mutex. Each call either
// completes fully or leaves no trace: in-memory state is restored, claim
// records are reverted and the checkpoint is rewritten when a later step
// (typically the outgoing transfer) fails.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bitfsorg/royalty-go/account"
	"github.com/bitfsorg/royalty-go/config"
	"github.com/bitfsorg/royalty-go/epoch"
	"github.com/bitfsorg/royalty-go/ledger"
	"github.com/bitfsorg/royalty-go/logger"
	"github.com/bitfsorg/royalty-go/metrics"
	"github.com/bitfsorg/royalty-go/registry"
	"github.com/bitfsorg/royalty-go/vault"
)

// Options carries the distributor's collaborators.
type Options struct {
	Ledger      ledger.Ledger          // required
	Resolver    registry.Resolver      // required
	Vault       vault.Vault            // required
	Checkpoints ledger.CheckpointStore // nil disables persistence; a ledger.Committer must share storage with Ledger
	Sink        Sink
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Status is a point-in-time view of the distributor.
type Status struct {
	Interval      uint64          `json:"interval"`
	LastBalance   uint64          `json:"last_balance"`
	LastTimestamp time.Time       `json:"last_timestamp"`
	TotalPayout   uint64          `json:"total_payout"`
	ClaimShare    uint64          `json:"claim_share"`
	Supply        uint64          `json:"supply"`
	WithinWindow  bool            `json:"within_window"`
	NeedsRollover bool            `json:"needs_rollover"`
	Settings      config.Settings `json:"settings"`
}

// Distributor is the payout engine plus its administrative surface.
type Distributor struct {
	mu sync.Mutex

	settings    *config.Settings
	tracker     *epoch.Tracker
	ledger      ledger.Ledger
	checkpoints ledger.CheckpointStore
	resolver    registry.Resolver
	oracle      registry.Oracle
	vault       vault.Vault
	sink        Sink
	clock       clockwork.Clock
	log         *slog.Logger

	totalPayout uint64
	funds       uint64 // vault balance as of the last operation
	seq         uint64 // last payment number
}

// New creates a distributor over settings. When a checkpoint exists it wins
// over settings; otherwise interval 0 starts now with the vault's balance.
func New(ctx context.Context, settings *config.Settings, opts Options) (*Distributor, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: settings", ErrNilParam)
	}
	if opts.Ledger == nil || opts.Resolver == nil || opts.Vault == nil {
		return nil, fmt.Errorf("%w: ledger, resolver and vault are required", ErrNilParam)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Sink == nil {
		opts.Sink = SinkFunc(func(Event) {})
	}

	d := &Distributor{
		settings:    settings,
		ledger:      opts.Ledger,
		checkpoints: opts.Checkpoints,
		resolver:    opts.Resolver,
		vault:       opts.Vault,
		sink:        opts.Sink,
		clock:       opts.Clock,
		log:         opts.Logger,
	}

	snap, cp, err := d.initialSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	restored := cp != nil
	d.tracker = epoch.NewTracker(settings, snap)

	if err := account.Validate(settings.Owner); err != nil {
		return nil, fmt.Errorf("%w: owner: %w", ErrInvalidAddress, err)
	}
	oracle, err := d.resolveRegistry(ctx, settings.Registry)
	if err != nil {
		return nil, err
	}
	d.oracle = oracle

	switch {
	case !restored:
		if err := d.persist(); err != nil {
			return nil, err
		}
	case cp.Pending != nil:
		if err := d.recoverTransfer(ctx, cp.Pending); err != nil {
			return nil, err
		}
		d.checkFunds(ctx)
	default:
		d.checkFunds(ctx)
	}
	d.observe()
	d.log.Info("payout: distributor ready",
		"interval", snap.Interval, "last_balance", snap.LastBalance,
		"total_payout", d.totalPayout, "restored", restored)
	return d, nil
}

// initialSnapshot returns the restored snapshot and checkpoint, or a fresh
// interval-0 snapshot and a nil checkpoint.
func (d *Distributor) initialSnapshot(ctx context.Context) (epoch.Snapshot, *ledger.Checkpoint, error) {
	if d.checkpoints != nil {
		cp, err := d.checkpoints.LoadCheckpoint()
		switch {
		case err == nil:
			*d.settings = cp.Settings
			d.totalPayout = cp.TotalPayout
			d.funds = cp.Funds
			d.seq = cp.Seq
			return cp.Snapshot, cp, nil
		case !errors.Is(err, ledger.ErrNoCheckpoint):
			return epoch.Snapshot{}, nil, fmt.Errorf("%w: load: %w", ErrPersist, err)
		}
	}
	bal, err := d.vault.Balance(ctx)
	if err != nil {
		return epoch.Snapshot{}, nil, fmt.Errorf("%w: balance: %w", ErrVault, err)
	}
	d.funds = bal
	return epoch.Snapshot{LastBalance: bal, LastTimestamp: d.clock.Now()}, nil, nil
}

// recoverTransfer resolves a payment left pending by an interrupted call. A
// payment the vault confirms is settled. Anything else is reverted so the
// tokens can be claimed again.
func (d *Distributor) recoverTransfer(ctx context.Context, p *ledger.Transfer) error {
	if v, ok := d.vault.(vault.Referenced); ok {
		done, err := v.Transferred(ctx, p.Ref)
		if err != nil {
			return fmt.Errorf("%w: transferred %s: %w", ErrVault, p.Ref, err)
		}
		if done {
			d.log.Info("payout: settled interrupted transfer",
				"ref", p.Ref, "recipient", p.Recipient, "amount", p.Amount)
			return d.persist()
		}
	}

	d.totalPayout = subSat(d.totalPayout, p.Amount)
	d.funds += p.Amount
	if err := d.unrecord(p.Interval, p.TokenIDs); err != nil {
		return err
	}
	d.log.Warn("payout: reverted interrupted transfer",
		"ref", p.Ref, "recipient", p.Recipient, "amount", p.Amount,
		"interval", p.Interval, "tokens", len(p.TokenIDs))
	return nil
}

// checkFunds warns when the vault holds a different balance than the
// restored state expects.
func (d *Distributor) checkFunds(ctx context.Context) {
	bal, err := d.vault.Balance(ctx)
	if err != nil {
		d.log.Warn("payout: read vault balance", "error", err)
		return
	}
	if bal != d.funds {
		d.log.Warn("payout: vault balance differs from restored state",
			"vault_balance", bal, "expected", d.funds)
	}
}

func (d *Distributor) resolveRegistry(ctx context.Context, addr string) (registry.Oracle, error) {
	if err := account.Validate(addr); err != nil {
		return nil, fmt.Errorf("%w: registry: %w", ErrInvalidAddress, err)
	}
	o, err := d.resolver.Resolve(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownRegistry, err)
	}
	return o, nil
}

// Status returns the current state. Supply and share are best effort: an
// oracle failure leaves them zero.
func (d *Distributor) Status(ctx context.Context) Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	snap := d.tracker.Snapshot()
	st := Status{
		Interval:      snap.Interval,
		LastBalance:   snap.LastBalance,
		LastTimestamp: snap.LastTimestamp,
		TotalPayout:   d.totalPayout,
		WithinWindow:  d.tracker.IsWithinWindow(now),
		NeedsRollover: d.tracker.NeedsRollover(now),
		Settings:      *d.settings,
	}
	if supply, err := d.oracle.CurrentSupply(ctx); err == nil {
		st.Supply = supply
		st.ClaimShare = ClaimShare(snap.LastBalance, supply)
	}
	return st
}

// IsClaimed reports whether tokenID was paid in interval.
func (d *Distributor) IsClaimed(interval, tokenID uint64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	claimed, err := d.ledger.IsClaimed(interval, tokenID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLedger, err)
	}
	return claimed, nil
}

// Settings returns a copy of the live settings.
func (d *Distributor) Settings() config.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.settings
}

// TotalPayout returns the accumulator of all claim payouts and withdrawals.
func (d *Distributor) TotalPayout() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalPayout
}

// savepoint captures the in-memory state an operation may change.
type savepoint struct {
	snap        epoch.Snapshot
	settings    config.Settings
	oracle      registry.Oracle
	totalPayout uint64
	funds       uint64
}

func (d *Distributor) save() savepoint {
	return savepoint{
		snap:        d.tracker.Snapshot(),
		settings:    *d.settings,
		oracle:      d.oracle,
		totalPayout: d.totalPayout,
		funds:       d.funds,
	}
}

// rollback restores sp and undoes the durable effects of the aborted call:
// claim records it wrote and, if it had saved one, its checkpoint.
func (d *Distributor) rollback(sp savepoint, interval uint64, marked []uint64, persisted bool) {
	d.tracker.Restore(sp.snap)
	*d.settings = sp.settings
	d.oracle = sp.oracle
	d.totalPayout = sp.totalPayout
	d.funds = sp.funds

	if persisted {
		if err := d.unrecord(interval, marked); err != nil {
			d.log.Error("payout: rewrite checkpoint after rollback", "interval", interval, "tokens", marked, "error", err)
		}
		return
	}
	if len(marked) > 0 {
		if err := d.ledger.Revert(interval, marked...); err != nil {
			d.log.Error("payout: revert claims", "interval", interval, "tokens", marked, "error", err)
		}
	}
}

func (d *Distributor) checkpoint(pending *ledger.Transfer) *ledger.Checkpoint {
	return &ledger.Checkpoint{
		Snapshot:    d.tracker.Snapshot(),
		TotalPayout: d.totalPayout,
		Settings:    *d.settings,
		SavedAt:     d.clock.Now(),
		Pending:     pending,
		Funds:       d.funds,
		Seq:         d.seq,
	}
}

// persist saves the current state with no pending payment.
func (d *Distributor) persist() error {
	if d.checkpoints == nil {
		return nil
	}
	if err := d.checkpoints.SaveCheckpoint(d.checkpoint(nil)); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// record writes claim records for tokenIDs and a checkpoint carrying
// pending. With a ledger.Committer both land in one write.
func (d *Distributor) record(interval uint64, tokenIDs []uint64, pending *ledger.Transfer) error {
	cp := d.checkpoint(pending)
	if c, ok := d.checkpoints.(ledger.Committer); ok {
		if err := c.Commit(interval, tokenIDs, cp); err != nil {
			return fmt.Errorf("%w: %w", ErrPersist, err)
		}
		return nil
	}
	if err := d.ledger.MarkClaimed(interval, tokenIDs...); err != nil {
		return fmt.Errorf("%w: %w", ErrLedger, err)
	}
	if d.checkpoints == nil {
		return nil
	}
	if err := d.checkpoints.SaveCheckpoint(cp); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// unrecord removes claim records for tokenIDs and saves the current state.
func (d *Distributor) unrecord(interval uint64, tokenIDs []uint64) error {
	if c, ok := d.checkpoints.(ledger.Committer); ok {
		if err := c.Abort(interval, tokenIDs, d.checkpoint(nil)); err != nil {
			return fmt.Errorf("%w: %w", ErrPersist, err)
		}
		return nil
	}
	if len(tokenIDs) > 0 {
		if err := d.ledger.Revert(interval, tokenIDs...); err != nil {
			return fmt.Errorf("%w: %w", ErrLedger, err)
		}
	}
	return d.persist()
}

// newTransfer numbers a payment about to be recorded.
func (d *Distributor) newTransfer(interval uint64, tokenIDs []uint64, to string, amount uint64) *ledger.Transfer {
	d.seq++
	return &ledger.Transfer{
		Ref:       fmt.Sprintf("payout-%d", d.seq),
		Interval:  interval,
		TokenIDs:  tokenIDs,
		Recipient: to,
		Amount:    amount,
	}
}

// send makes a recorded payment, tagged with its reference when the vault
// supports it.
func (d *Distributor) send(ctx context.Context, p *ledger.Transfer) error {
	var err error
	if v, ok := d.vault.(vault.Referenced); ok {
		err = v.TransferRef(ctx, p.Ref, p.Recipient, p.Amount)
	} else {
		err = d.vault.Transfer(ctx, p.Recipient, p.Amount)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

// settle clears a payment that has been made. The money has moved, so a
// failed save is logged and left for recoverTransfer on the next start.
func (d *Distributor) settle(p *ledger.Transfer) {
	if err := d.persist(); err != nil {
		d.log.Error("payout: settle transfer", "ref", p.Ref, "error", err)
	}
}

func subSat(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func (d *Distributor) publish(events []Event) {
	for _, e := range events {
		d.sink.Publish(e)
	}
}

func (d *Distributor) observe() {
	snap := d.tracker.Snapshot()
	metrics.CurrentInterval.Set(float64(snap.Interval))
	metrics.SnapshotBalance.Set(float64(snap.LastBalance))
	metrics.TotalPayout.Set(float64(d.totalPayout))
}
