package escrow_test

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Theia-Protocol/nft-escrow-sc-near/escrow"
	"github.com/Theia-Protocol/nft-escrow-sc-near/fixed"
	"github.com/Theia-Protocol/nft-escrow-sc-near/kvstore"
)

const (
	escrowAccount = "escrow.test"
	owner         = "owner.test"
	treasury      = "treasury.test"
	finder        = "finder.test"
	alice         = "alice.test"
	bob           = "bob.test"

	testDecimals = uint8(6)
)

type fakeClock struct {
	now uint64
}

func (c *fakeClock) Now() uint64 { return c.now }

func (c *fakeClock) tick(d uint64) { c.now += d }

// fakeLedger is an in-memory stable-coin ledger with balance enforcement,
// so a refund that overdraws the escrow account fails the test. failNext
// fails the next transfer; failTo fails the next transfer to one account.
type fakeLedger struct {
	balances map[string]*big.Int
	failNext bool
	failTo   string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[string]*big.Int)}
}

func (l *fakeLedger) credit(account string, amount *big.Int) {
	l.balances[account] = new(big.Int).Add(l.balanceOf(account), amount)
}

func (l *fakeLedger) balanceOf(account string) *big.Int {
	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (l *fakeLedger) Transfer(from, to string, amount *big.Int) error {
	if l.failNext {
		l.failNext = false
		return fmt.Errorf("ledger unavailable")
	}
	if l.failTo != "" && to == l.failTo {
		l.failTo = ""
		return fmt.Errorf("ledger unavailable for %s", to)
	}
	balance := l.balanceOf(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance of %s: have %s, need %s", from, balance, amount)
	}
	l.balances[from] = balance.Sub(balance, amount)
	l.credit(to, amount)
	return nil
}

type fakeMinter struct {
	minted map[string]*big.Int
}

func newFakeMinter() *fakeMinter {
	return &fakeMinter{minted: make(map[string]*big.Int)}
}

func (m *fakeMinter) Mint(recipient string, amount *big.Int) error {
	current, ok := m.minted[recipient]
	if !ok {
		current = big.NewInt(0)
	}
	m.minted[recipient] = current.Add(current, amount)
	return nil
}

func (m *fakeMinter) mintedTo(recipient string) *big.Int {
	if b, ok := m.minted[recipient]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

type recordedEvent struct {
	name    string
	payload []byte
}

type recorderSink struct {
	events []recordedEvent
}

func (s *recorderSink) Emit(event string, payload []byte) error {
	s.events = append(s.events, recordedEvent{name: event, payload: payload})
	return nil
}

func (s *recorderSink) names() []string {
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.name
	}
	return out
}

type testWorld struct {
	escrow *escrow.Escrow
	stable *fakeLedger
	token  *fakeMinter
	clock  *fakeClock
	sink   *recorderSink
}

func newTestWorld() *testWorld {
	w := &testWorld{
		stable: newFakeLedger(),
		token:  newFakeMinter(),
		clock:  &fakeClock{now: 1_000_000},
		sink:   &recorderSink{},
	}
	w.escrow = escrow.New(escrowAccount, kvstore.NewMemory(), w.stable, w.token, w.clock, w.sink, zerolog.Nop())
	return w
}

// coins parses a whole-unit decimal string into minor units at the test
// scale. coins(t, "10") with 6 decimals is 10_000_000.
func coins(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := fixed.Parse(s, testDecimals)
	require.NoError(t, err)
	return v
}

func baseConfig() escrow.Config {
	return escrow.Config{
		OwnerID:            owner,
		StableCoinID:       "usdc.test",
		StableCoinDecimals: testDecimals,
		CurveType:          "Horizontal",
		CurveArgs:          map[string]string{"arg_a": "10"},
		TreasuryID:         treasury,
		FinderID:           finder,
		Name:               "Aurora Fund",
		Symbol:             "AURA",
		MaxSupply:          "1000000",
		FundThreshold:      "100",
		ConversionPeriod:   3_600_000_000_000,
	}
}

func TestActivate(t *testing.T) {
	t.Run("opens funding and mints the pre-mint", func(t *testing.T) {
		w := newTestWorld()
		cfg := baseConfig()
		cfg.PreMintAmount = "50"

		require.NoError(t, w.escrow.Activate(owner, cfg))

		phase, err := w.escrow.CurrentPhase()
		require.NoError(t, err)
		require.Equal(t, escrow.PhaseFunding, phase)
		require.Equal(t, coins(t, "50"), w.token.mintedTo(owner))
		require.Contains(t, w.sink.names(), escrow.EventActivated)
	})

	t.Run("rejects a second activation", func(t *testing.T) {
		w := newTestWorld()
		require.NoError(t, w.escrow.Activate(owner, baseConfig()))
		require.ErrorIs(t, w.escrow.Activate(owner, baseConfig()), escrow.ErrConfig)
	})

	t.Run("rejects a non-owner caller", func(t *testing.T) {
		w := newTestWorld()
		require.ErrorIs(t, w.escrow.Activate(alice, baseConfig()), escrow.ErrUnauthorized)
	})

	t.Run("config validation", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*escrow.Config)
		}{
			{"missing owner", func(c *escrow.Config) { c.OwnerID = "" }},
			{"short symbol", func(c *escrow.Config) { c.Symbol = "A" }},
			{"unknown curve", func(c *escrow.Config) { c.CurveType = "Cubic" }},
			{"wrong curve arity", func(c *escrow.Config) {
				c.CurveArgs = map[string]string{"arg_a": "10", "arg_b": "1"}
			}},
			{"negative curve arg", func(c *escrow.Config) {
				c.CurveArgs = map[string]string{"arg_a": "-10"}
			}},
			{"zero threshold", func(c *escrow.Config) { c.FundThreshold = "0" }},
			{"malformed max supply", func(c *escrow.Config) { c.MaxSupply = "not-a-number" }},
			{"pre-mint above max supply", func(c *escrow.Config) {
				c.MaxSupply = "5"
				c.PreMintAmount = "6"
			}},
			{"fee at divisor", func(c *escrow.Config) { c.TreasuryFee = 10000 }},
			{"fee sum at divisor", func(c *escrow.Config) {
				c.TreasuryFee = 9000
				c.FinderFee = 1000
			}},
			{"missing conversion period", func(c *escrow.Config) { c.ConversionPeriod = 0 }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := newTestWorld()
				cfg := baseConfig()
				tt.mutate(&cfg)

				err := w.escrow.Activate(cfg.OwnerID, cfg)
				require.ErrorIs(t, err, escrow.ErrConfig)

				_, err = w.escrow.Project()
				require.ErrorIs(t, err, escrow.ErrNotInitialized, "failed activation must create no state")
			})
		}
	})
}

func TestCallsBeforeActivation(t *testing.T) {
	w := newTestWorld()
	require.ErrorIs(t, w.escrow.Contribute(alice, coins(t, "1")), escrow.ErrNotInitialized)
	require.ErrorIs(t, w.escrow.Convert(alice), escrow.ErrNotInitialized)
	require.ErrorIs(t, w.escrow.Finalize(owner), escrow.ErrNotInitialized)
}

func TestContribute(t *testing.T) {
	t.Run("takes custody and records the amount", func(t *testing.T) {
		w := newTestWorld()
		require.NoError(t, w.escrow.Activate(owner, baseConfig()))
		w.stable.credit(alice, coins(t, "40"))

		require.NoError(t, w.escrow.Contribute(alice, coins(t, "25")))

		require.Equal(t, coins(t, "15"), w.stable.balanceOf(alice))
		require.Equal(t, coins(t, "25"), w.stable.balanceOf(escrowAccount))

		record, err := w.escrow.ContributionOf(alice)
		require.NoError(t, err)
		require.Equal(t, coins(t, "25").String(), record.AmountContributed)

		total, err := w.escrow.TotalFunds()
		require.NoError(t, err)
		require.Equal(t, coins(t, "25"), total)
	})

	t.Run("rejects a non-positive amount", func(t *testing.T) {
		w := newTestWorld()
		require.NoError(t, w.escrow.Activate(owner, baseConfig()))
		require.ErrorIs(t, w.escrow.Contribute(alice, big.NewInt(0)), escrow.ErrConfig)
		require.ErrorIs(t, w.escrow.Contribute(alice, big.NewInt(-5)), escrow.ErrConfig)
	})

	t.Run("failed transfer leaves the ledger untouched", func(t *testing.T) {
		w := newTestWorld()
		require.NoError(t, w.escrow.Activate(owner, baseConfig()))
		w.stable.failNext = true

		err := w.escrow.Contribute(alice, coins(t, "10"))
		require.ErrorIs(t, err, escrow.ErrTransfer)

		total, err := w.escrow.TotalFunds()
		require.NoError(t, err)
		require.Zero(t, total.Sign())

		record, err := w.escrow.ContributionOf(alice)
		require.NoError(t, err)
		require.Nil(t, record)
	})

	t.Run("reaching the threshold latches the timestamp and enters buffer", func(t *testing.T) {
		w := newTestWorld()
		cfg := baseConfig()
		cfg.BufferPeriod = 500
		require.NoError(t, w.escrow.Activate(owner, cfg))
		w.stable.credit(alice, coins(t, "200"))

		require.NoError(t, w.escrow.Contribute(alice, coins(t, "100")))

		project, err := w.escrow.Project()
		require.NoError(t, err)
		require.Equal(t, escrow.PhaseBuffer, project.Phase)
		require.Equal(t, w.clock.now, project.ThresholdReachedAt)
		require.Contains(t, w.sink.names(), escrow.EventThresholdReached)

		// Funding is over; the buffer accepts no money.
		require.ErrorIs(t, w.escrow.Contribute(alice, coins(t, "1")), escrow.ErrPhase)

		// The latch never moves, no matter how much time passes.
		reachedAt := project.ThresholdReachedAt
		w.clock.tick(499)
		project, err = w.escrow.Project()
		require.NoError(t, err)
		require.Equal(t, escrow.PhaseBuffer, project.Phase)
		require.Equal(t, reachedAt, project.ThresholdReachedAt)

		w.clock.tick(1)
		project, err = w.escrow.Project()
		require.NoError(t, err)
		require.Equal(t, escrow.PhaseConverting, project.Phase)
		require.Equal(t, reachedAt, project.ThresholdReachedAt)
	})
}

func TestPause(t *testing.T) {
	w := newTestWorld()
	require.NoError(t, w.escrow.Activate(owner, baseConfig()))
	w.stable.credit(alice, coins(t, "10"))

	require.ErrorIs(t, w.escrow.Pause(alice), escrow.ErrUnauthorized)

	require.NoError(t, w.escrow.Pause(owner))
	require.ErrorIs(t, w.escrow.Contribute(alice, coins(t, "10")), escrow.ErrPhase)

	require.NoError(t, w.escrow.Resume(owner))
	require.NoError(t, w.escrow.Contribute(alice, coins(t, "10")))
}

func TestSetOwner(t *testing.T) {
	w := newTestWorld()
	require.NoError(t, w.escrow.Activate(owner, baseConfig()))

	require.ErrorIs(t, w.escrow.SetOwner(alice, alice), escrow.ErrUnauthorized)
	require.ErrorIs(t, w.escrow.SetOwner(owner, ""), escrow.ErrConfig)

	require.NoError(t, w.escrow.SetOwner(owner, bob))

	// Every owner-gated operation follows the new owner.
	require.ErrorIs(t, w.escrow.Pause(owner), escrow.ErrUnauthorized)
	require.NoError(t, w.escrow.Pause(bob))
}

func TestEmergencyStop(t *testing.T) {
	w := newTestWorld()
	require.NoError(t, w.escrow.Activate(owner, baseConfig()))
	w.stable.credit(alice, coins(t, "10"))
	require.NoError(t, w.escrow.Contribute(alice, coins(t, "10")))

	require.ErrorIs(t, w.escrow.EmergencyStop(alice), escrow.ErrUnauthorized)

	require.NoError(t, w.escrow.EmergencyStop(owner))
	phase, err := w.escrow.CurrentPhase()
	require.NoError(t, err)
	require.Equal(t, escrow.PhaseFailed, phase)

	// Terminal: a second stop is rejected, and refunds open up.
	require.ErrorIs(t, w.escrow.EmergencyStop(owner), escrow.ErrPhase)
	require.NoError(t, w.escrow.RefundAll(alice))
	require.Equal(t, coins(t, "10"), w.stable.balanceOf(alice))
}
