package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfsorg/royalty-go/account"
	"github.com/bitfsorg/royalty-go/ledger"
	"github.com/bitfsorg/royalty-go/metrics"
)

// adminOp is the body of an owner-gated operation. It runs under the lock
// and returns the events to publish on success. persisted must be set once
// the body has saved a checkpoint, so a later failure rewrites it.
type adminOp func(ctx context.Context, now time.Time, persisted *bool) ([]Event, error)

// runAdmin gates op on caller being the owner and undoes its in-memory
// effects when it fails.
func (d *Distributor) runAdmin(ctx context.Context, name, caller string, op adminOp) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.admin(ctx, caller, op)
	metrics.AdminOperationsTotal.WithLabelValues(name, reason(err)).Inc()
	if err != nil {
		d.log.Info("payout: admin operation rejected", "op", name, "caller", caller, "error", err)
		return err
	}
	d.observe()
	d.log.Info("payout: admin operation", "op", name, "interval", d.tracker.Snapshot().Interval)
	return nil
}

func (d *Distributor) admin(ctx context.Context, caller string, op adminOp) error {
	if caller != d.settings.Owner {
		return ErrNotOwner
	}
	sp := d.save()
	var persisted bool
	events, err := op(ctx, d.clock.Now(), &persisted)
	if err == nil && !persisted {
		if err = d.persist(); err == nil {
			persisted = true
		}
	}
	if err != nil {
		d.rollback(sp, 0, nil, persisted)
		return err
	}
	d.publish(events)
	return nil
}

// ChangeOwner hands sole authority to newOwner.
func (d *Distributor) ChangeOwner(ctx context.Context, caller, newOwner string) error {
	return d.runAdmin(ctx, "change_owner", caller, func(context.Context, time.Time, *bool) ([]Event, error) {
		if err := account.Validate(newOwner); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
		}
		d.settings.Owner = newOwner
		return nil, nil
	})
}

// SetRegistryAddress switches to the ownership registry at addr. The address
// must resolve before the switch takes effect.
func (d *Distributor) SetRegistryAddress(ctx context.Context, caller, addr string) error {
	return d.runAdmin(ctx, "set_registry", caller, func(ctx context.Context, _ time.Time, _ *bool) ([]Event, error) {
		oracle, err := d.resolveRegistry(ctx, addr)
		if err != nil {
			return nil, err
		}
		d.settings.Registry = addr
		d.oracle = oracle
		return nil, nil
	})
}

// SetAutomated toggles automated rollover and always starts a fresh interval
// stamped now.
func (d *Distributor) SetAutomated(ctx context.Context, caller string, automated bool) error {
	return d.runAdmin(ctx, "set_automated", caller, func(_ context.Context, now time.Time, _ *bool) ([]Event, error) {
		d.settings.Automated = automated
		ch := d.tracker.Restart(now)
		return []Event{intervalChanged(ch)}, nil
	})
}

// SetPaused pauses or resumes claims.
func (d *Distributor) SetPaused(ctx context.Context, caller string, paused bool) error {
	return d.runAdmin(ctx, "set_paused", caller, func(context.Context, time.Time, *bool) ([]Event, error) {
		d.settings.Paused = paused
		return nil, nil
	})
}

// IncrementInterval advances the interval without refreshing the snapshot
// balance or timestamp.
func (d *Distributor) IncrementInterval(ctx context.Context, caller string) error {
	return d.runAdmin(ctx, "increment_interval", caller, func(context.Context, time.Time, *bool) ([]Event, error) {
		ch := d.tracker.ForceRollover()
		return []Event{intervalChanged(ch)}, nil
	})
}

// SetPayoutWindowLength sets how long claims stay open after a rollover.
func (d *Distributor) SetPayoutWindowLength(ctx context.Context, caller string, window time.Duration) error {
	return d.runAdmin(ctx, "set_window", caller, func(context.Context, time.Time, *bool) ([]Event, error) {
		if window < 0 {
			return nil, fmt.Errorf("%w: window %s", ErrInvalidDuration, window)
		}
		d.settings.PayoutWindow = window
		return nil, nil
	})
}

// SetIntervalLength sets the minimum snapshot age before an automated rollover.
func (d *Distributor) SetIntervalLength(ctx context.Context, caller string, length time.Duration) error {
	return d.runAdmin(ctx, "set_interval_length", caller, func(context.Context, time.Time, *bool) ([]Event, error) {
		if length < 0 {
			return nil, fmt.Errorf("%w: interval %s", ErrInvalidDuration, length)
		}
		d.settings.IntervalLength = length
		return nil, nil
	})
}

// Withdraw pays the owner 20% of the snapshot balance and returns the amount.
// The amount is added to TotalPayout alongside holder payouts.
func (d *Distributor) Withdraw(ctx context.Context, caller string) (uint64, error) {
	var amount uint64
	err := d.runAdmin(ctx, "withdraw", caller, func(ctx context.Context, _ time.Time, persisted *bool) ([]Event, error) {
		snap := d.tracker.Snapshot()
		amount = OperatorShare(snap.LastBalance)
		d.totalPayout += amount
		d.funds = subSat(d.funds, amount)
		var pending *ledger.Transfer
		if amount > 0 {
			pending = d.newTransfer(snap.Interval, nil, d.settings.Owner, amount)
		}
		if err := d.record(snap.Interval, nil, pending); err != nil {
			return nil, err
		}
		*persisted = true
		if pending != nil {
			if err := d.send(ctx, pending); err != nil {
				return nil, err
			}
			d.settle(pending)
		}
		metrics.PayoutAmountTotal.WithLabelValues("withdraw").Add(float64(amount))
		return nil, nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// Deposit accepts amount into the vault and refreshes the snapshot balance
// to the vault's total. In automated mode deposits are refused while the
// payout window is open.
func (d *Distributor) Deposit(ctx context.Context, caller string, amount uint64) error {
	return d.runAdmin(ctx, "deposit", caller, func(ctx context.Context, now time.Time, persisted *bool) ([]Event, error) {
		if amount == 0 {
			return nil, fmt.Errorf("%w: zero deposit", ErrInvalidAmount)
		}
		if d.settings.Automated && d.tracker.IsWithinWindow(now) {
			return nil, ErrWithinWindow
		}
		if err := d.vault.Receive(ctx, caller, amount); err != nil {
			return nil, fmt.Errorf("%w: receive: %w", ErrVault, err)
		}
		bal, err := d.vault.Balance(ctx)
		if err != nil {
			d.refund(ctx, caller, amount)
			return nil, fmt.Errorf("%w: balance: %w", ErrVault, err)
		}
		d.tracker.SetBalance(bal)
		d.funds = bal
		if err := d.persist(); err != nil {
			d.refund(ctx, caller, amount)
			return nil, err
		}
		*persisted = true
		metrics.DepositAmountTotal.Add(float64(amount))
		return nil, nil
	})
}

// refund returns a deposit whose bookkeeping failed.
func (d *Distributor) refund(ctx context.Context, to string, amount uint64) {
	if err := d.vault.Transfer(ctx, to, amount); err != nil {
		d.log.Error("payout: refund deposit", "to", to, "amount", amount, "error", err)
	}
}
