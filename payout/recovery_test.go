package payout

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/royalty-go/ledger"
	"github.com/bitfsorg/royalty-go/logger"
	"github.com/bitfsorg/royalty-go/vault"
)

// crashingVault dies before any money moves.
type crashingVault struct {
	*vault.MemVault
}

func (crashingVault) Transfer(context.Context, string, uint64) error {
	panic("crash before transfer")
}

func (crashingVault) TransferRef(context.Context, string, string, uint64) error {
	panic("crash before transfer")
}

// crashingCheckpoints dies on the first plain save once armed, which is the
// save that clears a completed payment.
type crashingCheckpoints struct {
	*ledger.BoltCheckpoints
	armed bool
}

func (c *crashingCheckpoints) SaveCheckpoint(cp *ledger.Checkpoint) error {
	if c.armed {
		panic("crash after transfer")
	}
	return c.BoltCheckpoints.SaveCheckpoint(cp)
}

// plainVault hides the reference-tracking methods of the vault it wraps.
type plainVault struct {
	vault.Vault
}

type restartEnv struct {
	*env
	path string
}

func newRestartEnv(t *testing.T) *restartEnv {
	t.Helper()
	return &restartEnv{env: newEnv(t, 1000, nil), path: filepath.Join(t.TempDir(), "royalty.db")}
}

// start opens the store and builds a distributor over it. The store is
// closed when the test ends unless the caller closes it first.
func (r *restartEnv) start(t *testing.T, v vault.Vault, wrap func(*ledger.BoltCheckpoints) ledger.CheckpointStore, log *bytes.Buffer) (*Distributor, *ledger.BoltStore) {
	t.Helper()
	store, err := ledger.OpenBoltStore(r.path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var cps ledger.CheckpointStore = store.Checkpoints()
	if wrap != nil {
		cps = wrap(store.Checkpoints())
	}
	opts := Options{
		Ledger: store.Claims(), Checkpoints: cps,
		Resolver: r.dir, Vault: v, Clock: clockwork.NewFakeClockAt(t0),
	}
	if log != nil {
		opts.Logger = logger.NewWithWriter(log, "debug")
	}
	settings := *r.settings
	d, err := New(r.ctx, &settings, opts)
	require.NoError(t, err)
	return d, store
}

func TestRestart_CrashBeforeTransferRevertsClaim(t *testing.T) {
	r := newRestartEnv(t)
	v := vault.NewMemVault(1000)

	d, store := r.start(t, crashingVault{v}, nil, nil)
	assert.Panics(t, func() { _, _ = d.Claim(r.ctx, r.alice, []uint64{3, 7}) })
	require.NoError(t, store.Close())

	var log bytes.Buffer
	d, _ = r.start(t, v, nil, &log)
	assert.Contains(t, log.String(), "reverted interrupted transfer")
	assert.NotContains(t, log.String(), "vault balance differs")

	claimed, err := d.IsClaimed(0, 3)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Zero(t, d.TotalPayout())

	amount, err := d.Claim(r.ctx, r.alice, []uint64{3, 7})
	require.NoError(t, err)
	assert.Equal(t, uint64(16), amount)
	assert.Equal(t, uint64(16), v.Paid(r.alice))
}

func TestRestart_CrashAfterTransferKeepsClaim(t *testing.T) {
	r := newRestartEnv(t)
	v := vault.NewMemVault(1000)

	var cps *crashingCheckpoints
	d, store := r.start(t, v, func(b *ledger.BoltCheckpoints) ledger.CheckpointStore {
		cps = &crashingCheckpoints{BoltCheckpoints: b}
		return cps
	}, nil)
	cps.armed = true
	assert.Panics(t, func() { _, _ = d.Claim(r.ctx, r.alice, []uint64{3, 7}) })
	require.Equal(t, uint64(16), v.Paid(r.alice), "payment left before the crash")
	require.NoError(t, store.Close())

	var log bytes.Buffer
	d, store = r.start(t, v, nil, &log)
	assert.Contains(t, log.String(), "settled interrupted transfer")
	assert.NotContains(t, log.String(), "vault balance differs")

	claimed, err := d.IsClaimed(0, 3)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, uint64(16), d.TotalPayout())

	cp, err := store.Checkpoints().LoadCheckpoint()
	require.NoError(t, err)
	assert.Nil(t, cp.Pending)

	amount, err := d.Claim(r.ctx, r.alice, []uint64{3, 7})
	require.NoError(t, err)
	assert.Zero(t, amount)
	assert.Equal(t, uint64(16), v.Paid(r.alice), "paid exactly once")
}

func TestRestart_CrashDuringWithdrawReverts(t *testing.T) {
	r := newRestartEnv(t)
	v := vault.NewMemVault(1000)

	d, store := r.start(t, crashingVault{v}, nil, nil)
	assert.Panics(t, func() { _, _ = d.Withdraw(r.ctx, r.owner) })
	require.NoError(t, store.Close())

	d, _ = r.start(t, v, nil, nil)
	assert.Zero(t, d.TotalPayout())

	amount, err := d.Withdraw(r.ctx, r.owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), amount)
	bal, err := v.Balance(r.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(800), bal)
}

func TestRestart_VaultWithoutReferencesReverts(t *testing.T) {
	r := newRestartEnv(t)
	v := vault.NewMemVault(1000)

	d, store := r.start(t, crashingVault{v}, nil, nil)
	assert.Panics(t, func() { _, _ = d.Claim(r.ctx, r.alice, []uint64{3}) })
	require.NoError(t, store.Close())

	d, _ = r.start(t, plainVault{v}, nil, nil)
	claimed, err := d.IsClaimed(0, 3)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Zero(t, d.TotalPayout())
}

func TestRestart_WarnsOnVaultBalanceMismatch(t *testing.T) {
	r := newRestartEnv(t)

	d, store := r.start(t, vault.NewMemVault(1000), nil, nil)
	_, err := d.Claim(r.ctx, r.alice, []uint64{3, 7})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// A vault rebuilt at its starting balance has lost the 16 paid out.
	var log bytes.Buffer
	d, _ = r.start(t, vault.NewMemVault(1000), nil, &log)
	assert.Contains(t, log.String(), "vault balance differs from restored state")
	assert.Equal(t, uint64(16), d.TotalPayout())
	assert.Equal(t, uint64(1000), d.Status(r.ctx).LastBalance)
}
