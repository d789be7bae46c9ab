package payout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/royalty-go/config"
	"github.com/bitfsorg/royalty-go/registry"
)

func TestAdmin_RejectsNonOwner(t *testing.T) {
	e := newEnv(t, 1000, nil)
	before := e.d.Status(e.ctx)

	calls := map[string]func(caller string) error{
		"ChangeOwner":           func(c string) error { return e.d.ChangeOwner(e.ctx, c, e.bob) },
		"SetRegistryAddress":    func(c string) error { return e.d.SetRegistryAddress(e.ctx, c, e.regAddr) },
		"SetAutomated":          func(c string) error { return e.d.SetAutomated(e.ctx, c, true) },
		"SetPaused":             func(c string) error { return e.d.SetPaused(e.ctx, c, true) },
		"IncrementInterval":     func(c string) error { return e.d.IncrementInterval(e.ctx, c) },
		"SetPayoutWindowLength": func(c string) error { return e.d.SetPayoutWindowLength(e.ctx, c, time.Hour) },
		"SetIntervalLength":     func(c string) error { return e.d.SetIntervalLength(e.ctx, c, time.Hour) },
		"Deposit":               func(c string) error { return e.d.Deposit(e.ctx, c, 500) },
		"Withdraw": func(c string) error {
			_, err := e.d.Withdraw(e.ctx, c)
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call(e.alice)
			require.ErrorIs(t, err, ErrNotOwner)
			assert.True(t, IsAuthorization(err))
		})
	}
	assert.Equal(t, before, e.d.Status(e.ctx))
	assert.Empty(t, e.events.Events())
	assert.Equal(t, uint64(1000), e.balance(t))
}

func TestChangeOwner(t *testing.T) {
	e := newEnv(t, 1000, nil)

	require.ErrorIs(t, e.d.ChangeOwner(e.ctx, e.owner, ""), ErrInvalidAddress)
	require.ErrorIs(t, e.d.ChangeOwner(e.ctx, e.owner, "not-an-address"), ErrInvalidAddress)
	assert.Equal(t, e.owner, e.d.Settings().Owner)

	require.NoError(t, e.d.ChangeOwner(e.ctx, e.owner, e.bob))
	assert.Equal(t, e.bob, e.d.Settings().Owner)
	assert.Equal(t, e.bob, e.settings.Owner)

	require.ErrorIs(t, e.d.SetPaused(e.ctx, e.owner, true), ErrNotOwner)
	require.NoError(t, e.d.SetPaused(e.ctx, e.bob, true))
}

func TestSetRegistryAddress(t *testing.T) {
	e := newEnv(t, 1000, nil)

	require.ErrorIs(t, e.d.SetRegistryAddress(e.ctx, e.owner, "bogus"), ErrInvalidAddress)
	require.ErrorIs(t, e.d.SetRegistryAddress(e.ctx, e.owner, newAddr(t)), ErrUnknownRegistry)
	assert.Equal(t, e.regAddr, e.d.Settings().Registry)

	// A second collection where alice owns token 50 of 10.
	other := registry.NewMemRegistry()
	for id := uint64(41); id <= 50; id++ {
		owner := e.bob
		if id == 50 {
			owner = e.alice
		}
		require.NoError(t, other.Mint(owner, id))
	}
	otherAddr := newAddr(t)
	e.dir.Register(otherAddr, other)

	require.NoError(t, e.d.SetRegistryAddress(e.ctx, e.owner, otherAddr))
	assert.Equal(t, otherAddr, e.d.Settings().Registry)

	amount, err := e.d.Claim(e.ctx, e.alice, []uint64{3, 50})
	require.NoError(t, err)
	assert.Equal(t, uint64(80), amount) // 800 / 10, token 3 is not in this collection
}

func TestSetAutomated_StartsNewInterval(t *testing.T) {
	e := newEnv(t, 1000, nil)
	e.clock.Advance(time.Minute)

	require.NoError(t, e.d.SetAutomated(e.ctx, e.owner, true))
	st := e.d.Status(e.ctx)
	assert.Equal(t, uint64(1), st.Interval)
	assert.Equal(t, t0.Add(time.Minute), st.LastTimestamp)
	assert.Equal(t, uint64(1000), st.LastBalance)
	assert.True(t, st.Settings.Automated)

	// Disabling also restarts.
	require.NoError(t, e.d.SetAutomated(e.ctx, e.owner, false))
	assert.Equal(t, uint64(2), e.d.Status(e.ctx).Interval)

	events := e.events.Events()
	require.Len(t, events, 2)
	assert.Equal(t, IntervalChanged{
		DidChange:       true,
		Automated:       true,
		SnapshotBalance: 1000,
		Timestamp:       t0.Add(time.Minute),
		WindowLength:    120 * time.Second,
		Interval:        1,
	}, events[0])
	assert.False(t, events[1].(IntervalChanged).Automated)
}

func TestIncrementInterval_KeepsSnapshot(t *testing.T) {
	e := newEnv(t, 1000, nil)
	e.clock.Advance(time.Hour)

	require.NoError(t, e.d.IncrementInterval(e.ctx, e.owner))
	st := e.d.Status(e.ctx)
	assert.Equal(t, uint64(1), st.Interval)
	assert.Equal(t, t0, st.LastTimestamp)
	assert.Equal(t, uint64(1000), st.LastBalance)

	events := e.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].(IntervalChanged).Interval)
}

func TestSetDurations(t *testing.T) {
	e := newEnv(t, 1000, nil)

	require.ErrorIs(t, e.d.SetPayoutWindowLength(e.ctx, e.owner, -time.Second), ErrInvalidDuration)
	require.ErrorIs(t, e.d.SetIntervalLength(e.ctx, e.owner, -time.Second), ErrInvalidDuration)

	require.NoError(t, e.d.SetPayoutWindowLength(e.ctx, e.owner, 5*time.Minute))
	require.NoError(t, e.d.SetIntervalLength(e.ctx, e.owner, 2*time.Hour))
	s := e.d.Settings()
	assert.Equal(t, 5*time.Minute, s.PayoutWindow)
	assert.Equal(t, 2*time.Hour, s.IntervalLength)

	cp, err := e.checkpoints.LoadCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cp.Settings.PayoutWindow)
	assert.Equal(t, 2*time.Hour, cp.Settings.IntervalLength)
}

func TestWithdraw(t *testing.T) {
	e := newEnv(t, 1000, nil)

	amount, err := e.d.Withdraw(e.ctx, e.owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), amount)
	assert.Equal(t, uint64(200), e.vault.Paid(e.owner))
	assert.Equal(t, uint64(800), e.balance(t))
	assert.Equal(t, uint64(200), e.d.TotalPayout(), "withdrawals count toward the payout total")
	assert.Empty(t, e.events.Events())

	// Holder claims are still computed from the unchanged snapshot.
	got, err := e.d.Claim(e.ctx, e.alice, []uint64{3})
	require.NoError(t, err)
	assert.Equal(t, uint64(8), got)
	assert.Equal(t, uint64(208), e.d.TotalPayout())
}

func TestWithdraw_TransferFailure(t *testing.T) {
	e := newEnv(t, 1000, nil)
	e.vault.transferErr = errBoom

	_, err := e.d.Withdraw(e.ctx, e.owner)
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Zero(t, e.d.TotalPayout())

	cp, err := e.checkpoints.LoadCheckpoint()
	require.NoError(t, err)
	assert.Zero(t, cp.TotalPayout)
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	e := newEnv(t, 1000, nil)
	// Drain the vault below the operator share.
	require.NoError(t, e.vault.MemVault.Transfer(e.ctx, e.bob, 900))

	_, err := e.d.Withdraw(e.ctx, e.owner)
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Zero(t, e.d.TotalPayout())
	assert.Equal(t, uint64(100), e.balance(t))
}

func TestDeposit_RefreshesSnapshot(t *testing.T) {
	e := newEnv(t, 1000, nil)

	require.NoError(t, e.d.Deposit(e.ctx, e.owner, 500))
	st := e.d.Status(e.ctx)
	assert.Equal(t, uint64(1500), st.LastBalance)
	assert.Equal(t, uint64(0), st.Interval)
	assert.Equal(t, t0, st.LastTimestamp)
	assert.Equal(t, uint64(500), e.vault.Received(e.owner))

	amount, err := e.d.Claim(e.ctx, e.alice, []uint64{3})
	require.NoError(t, err)
	assert.Equal(t, uint64(12), amount)
}

func TestDeposit_UsesVaultBalance(t *testing.T) {
	e := newEnv(t, 1000, nil)
	_, err := e.d.Claim(e.ctx, e.alice, []uint64{3, 7})
	require.NoError(t, err)

	require.NoError(t, e.d.Deposit(e.ctx, e.owner, 500))
	assert.Equal(t, uint64(1484), e.d.Status(e.ctx).LastBalance)
}

func TestDeposit_Rejections(t *testing.T) {
	t.Run("zero amount", func(t *testing.T) {
		e := newEnv(t, 1000, nil)
		err := e.d.Deposit(e.ctx, e.owner, 0)
		require.ErrorIs(t, err, ErrInvalidAmount)
		assert.True(t, IsInput(err))
	})

	t.Run("automated inside window", func(t *testing.T) {
		e := newEnv(t, 1000, func(s *config.Settings) { s.Automated = true })
		err := e.d.Deposit(e.ctx, e.owner, 500)
		require.ErrorIs(t, err, ErrWithinWindow)
		assert.Equal(t, uint64(1000), e.balance(t))
		assert.Equal(t, uint64(1000), e.d.Status(e.ctx).LastBalance)

		e.clock.Advance(120 * time.Second)
		require.NoError(t, e.d.Deposit(e.ctx, e.owner, 500))
		assert.Equal(t, uint64(1500), e.d.Status(e.ctx).LastBalance)
	})

	t.Run("persist failure refunds", func(t *testing.T) {
		e := newEnv(t, 1000, nil)
		e.checkpoints.saveErr = errBoom
		err := e.d.Deposit(e.ctx, e.owner, 500)
		require.ErrorIs(t, err, ErrPersist)
		assert.Equal(t, uint64(1000), e.balance(t))
		assert.Equal(t, uint64(500), e.vault.Paid(e.owner))
		assert.Equal(t, uint64(1000), e.d.Status(e.ctx).LastBalance)
	})
}

func TestAdmin_PersistFailureRollsBack(t *testing.T) {
	e := newEnv(t, 1000, nil)
	e.checkpoints.saveErr = errBoom

	require.ErrorIs(t, e.d.IncrementInterval(e.ctx, e.owner), ErrPersist)
	require.ErrorIs(t, e.d.SetPaused(e.ctx, e.owner, true), ErrPersist)
	assert.Equal(t, uint64(0), e.d.Status(e.ctx).Interval)
	assert.False(t, e.d.Settings().Paused)
	assert.Empty(t, e.events.Events())
}
