package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfsorg/royalty-go/ledger"
	"github.com/bitfsorg/royalty-go/metrics"
	"github.com/bitfsorg/royalty-go/registry"
)

// Claim pays caller its share for every token in tokenIDs that it owns and
// that has not been paid in the current interval, and returns the amount
// transferred.
//
// The call is rejected without effect when the distributor is paused, when
// caller holds no tokens, or, in automated mode, when the payout window has
// closed. Ineligible tokens are skipped; a batch with no eligible token
// succeeds with a zero payout.
func (d *Distributor) Claim(ctx context.Context, caller string, tokenIDs []uint64) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	amount, paid, err := d.claim(ctx, caller, tokenIDs)
	metrics.ClaimsTotal.WithLabelValues(reason(err)).Inc()
	if err != nil {
		d.log.Info("payout: claim rejected", "caller", caller, "tokens", len(tokenIDs), "error", err)
		return 0, err
	}

	metrics.TokensPaidTotal.Add(float64(paid))
	metrics.PayoutAmountTotal.WithLabelValues("claim").Add(float64(amount))
	d.observe()
	d.log.Info("payout: claim",
		"caller", caller, "interval", d.tracker.Snapshot().Interval,
		"requested", len(tokenIDs), "paid", paid, "amount", amount)
	return amount, nil
}

func (d *Distributor) claim(ctx context.Context, caller string, tokenIDs []uint64) (amount uint64, paid int, err error) {
	if d.settings.Paused {
		return 0, 0, ErrPaused
	}
	held, err := d.oracle.BalanceOf(ctx, caller)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: balance of caller: %w", ErrOracle, err)
	}
	if held == 0 {
		return 0, 0, ErrNotHolder
	}

	sp := d.save()
	var (
		marked    []uint64
		interval  uint64
		persisted bool
	)
	defer func() {
		if err != nil {
			d.rollback(sp, interval, marked, persisted)
		}
	}()

	var events []Event
	now := d.clock.Now()
	if d.settings.Automated {
		if d.tracker.NeedsRollover(now) {
			bal, err := d.vault.Balance(ctx)
			if err != nil {
				return 0, 0, fmt.Errorf("%w: balance: %w", ErrVault, err)
			}
			if ch, ok := d.tracker.Rollover(now, bal); ok {
				d.funds = bal
				events = append(events, intervalChanged(ch))
			}
		}
		if !d.tracker.IsWithinWindow(now) {
			return 0, 0, ErrOutsideWindow
		}
	}

	// Supply and interval are read once and hold for the whole batch.
	supply, err := d.oracle.CurrentSupply(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: current supply: %w", ErrOracle, err)
	}
	if supply == 0 {
		return 0, 0, ErrZeroSupply
	}
	snap := d.tracker.Snapshot()
	interval = snap.Interval
	share := ClaimShare(snap.LastBalance, supply)

	eligible, err := d.eligible(ctx, caller, interval, tokenIDs)
	if err != nil {
		return 0, 0, err
	}
	amount, ok := mulAmount(share, len(eligible))
	if !ok {
		return 0, 0, fmt.Errorf("%w: %d tokens at %d", ErrOverflow, len(eligible), share)
	}

	// The claim records and the pending payment are saved before any money
	// moves; see recoverTransfer.
	marked = eligible
	d.totalPayout += amount
	d.funds = subSat(d.funds, amount)
	var pending *ledger.Transfer
	if amount > 0 {
		pending = d.newTransfer(interval, eligible, caller, amount)
	}
	if err := d.record(interval, eligible, pending); err != nil {
		return 0, 0, err
	}
	persisted = true

	if pending != nil {
		if err := d.send(ctx, pending); err != nil {
			return 0, 0, err
		}
		d.settle(pending)
	}

	events = append(events, PayoutMade{Recipient: caller, TotalPayout: d.totalPayout, Amount: amount})
	d.publish(events)
	return amount, len(eligible), nil
}

// eligible filters tokenIDs, in order, to those owned by caller and unpaid
// in interval. Duplicates within the batch count once.
func (d *Distributor) eligible(ctx context.Context, caller string, interval uint64, tokenIDs []uint64) ([]uint64, error) {
	seen := make(map[uint64]struct{}, len(tokenIDs))
	var out []uint64
	for _, id := range tokenIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		owner, err := d.oracle.OwnerOf(ctx, id)
		if errors.Is(err, registry.ErrTokenNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: owner of %d: %w", ErrOracle, id, err)
		}
		if owner != caller {
			continue
		}

		claimed, err := d.ledger.IsClaimed(interval, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLedger, err)
		}
		if claimed {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
