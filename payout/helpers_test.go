package payout

import (
	"context"
	"errors"
	"testing"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/royalty-go/account"
	"github.com/bitfsorg/royalty-go/config"
	"github.com/bitfsorg/royalty-go/ledger"
	"github.com/bitfsorg/royalty-go/registry"
	"github.com/bitfsorg/royalty-go/vault"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newAddr(t *testing.T) string {
	t.Helper()
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := account.FromPublicKey(priv.PubKey(), false)
	require.NoError(t, err)
	return addr
}

// flakyVault fails transfers on demand.
type flakyVault struct {
	*vault.MemVault
	transferErr error
}

func (f *flakyVault) Transfer(ctx context.Context, to string, amount uint64) error {
	if f.transferErr != nil {
		return f.transferErr
	}
	return f.MemVault.Transfer(ctx, to, amount)
}

func (f *flakyVault) TransferRef(ctx context.Context, ref, to string, amount uint64) error {
	if f.transferErr != nil {
		return f.transferErr
	}
	return f.MemVault.TransferRef(ctx, ref, to, amount)
}

// flakyCheckpoints fails saves on demand.
type flakyCheckpoints struct {
	*ledger.MemCheckpoints
	saveErr error
}

func (f *flakyCheckpoints) SaveCheckpoint(cp *ledger.Checkpoint) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemCheckpoints.SaveCheckpoint(cp)
}

var errBoom = errors.New("boom")

type env struct {
	ctx         context.Context
	clock       *clockwork.FakeClock
	settings    *config.Settings
	reg         *registry.MemRegistry
	dir         *registry.Directory
	vault       *flakyVault
	ledger      *ledger.MemLedger
	checkpoints *flakyCheckpoints
	events      *Recorder
	d           *Distributor

	owner, regAddr, alice, bob string
}

// newEnv builds a distributor over a 100-token collection: alice owns 3 and
// 7, bob owns the rest. The vault starts with balance funds.
func newEnv(t *testing.T, balance uint64, mutate func(*config.Settings)) *env {
	t.Helper()
	e := &env{
		ctx:         context.Background(),
		clock:       clockwork.NewFakeClockAt(t0),
		reg:         registry.NewMemRegistry(),
		dir:         registry.NewDirectory(),
		vault:       &flakyVault{MemVault: vault.NewMemVault(balance)},
		ledger:      ledger.NewMemLedger(),
		checkpoints: &flakyCheckpoints{MemCheckpoints: ledger.NewMemCheckpoints()},
		events:      &Recorder{},
		owner:       newAddr(t),
		regAddr:     newAddr(t),
		alice:       newAddr(t),
		bob:         newAddr(t),
	}
	for id := uint64(1); id <= 100; id++ {
		owner := e.bob
		if id == 3 || id == 7 {
			owner = e.alice
		}
		require.NoError(t, e.reg.Mint(owner, id))
	}
	e.dir.Register(e.regAddr, e.reg)

	e.settings = &config.Settings{
		Owner:          e.owner,
		Registry:       e.regAddr,
		IntervalLength: 24 * time.Hour,
		PayoutWindow:   120 * time.Second,
	}
	if mutate != nil {
		mutate(e.settings)
	}

	d, err := New(e.ctx, e.settings, Options{
		Ledger:      e.ledger,
		Resolver:    e.dir,
		Vault:       e.vault,
		Checkpoints: e.checkpoints,
		Sink:        e.events,
		Clock:       e.clock,
	})
	require.NoError(t, err)
	e.d = d
	return e
}

func (e *env) balance(t *testing.T) uint64 {
	t.Helper()
	b, err := e.vault.Balance(e.ctx)
	require.NoError(t, err)
	return b
}

func (e *env) claimed(t *testing.T, interval, tokenID uint64) bool {
	t.Helper()
	c, err := e.d.IsClaimed(interval, tokenID)
	require.NoError(t, err)
	return c
}

func (e *env) claimCount(t *testing.T, interval uint64) int {
	t.Helper()
	n, err := e.ledger.ClaimCount(interval)
	require.NoError(t, err)
	return n
}
