package main

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Theia-Protocol/nft-escrow-sc-near/escrow"
	"github.com/Theia-Protocol/nft-escrow-sc-near/fixed"
	"github.com/Theia-Protocol/nft-escrow-sc-near/kvstore"
)

const simEscrowAccount = "escrow.sim"

// logSink prints every escrow event to the log, tagged with a generated
// envelope ID so a run's event stream can be correlated later.
type logSink struct {
	log zerolog.Logger
}

func (s logSink) Emit(event string, payload []byte) error {
	s.log.Info().
		Str("id", uuid.NewString()).
		Str("event", event).
		RawJSON("payload", payload).
		Msg("escrow event")
	return nil
}

// simLedger is the simulated stable-coin bank. Contributor accounts are
// funded on demand; the escrow account is not, so an overdraw fails the
// run the way it would fail on a real ledger.
type simLedger struct {
	balances map[string]*big.Int
}

func newSimLedger() *simLedger {
	return &simLedger{balances: make(map[string]*big.Int)}
}

func (l *simLedger) credit(account string, amount *big.Int) {
	current, ok := l.balances[account]
	if !ok {
		current = big.NewInt(0)
		l.balances[account] = current
	}
	current.Add(current, amount)
}

func (l *simLedger) balanceOf(account string) *big.Int {
	if b, ok := l.balances[account]; ok {
		return b
	}
	return big.NewInt(0)
}

func (l *simLedger) Transfer(from, to string, amount *big.Int) error {
	balance, ok := l.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance of %s", from)
	}
	balance.Sub(balance, amount)
	l.credit(to, amount)
	return nil
}

// simMinter tallies minted tokens per recipient.
type simMinter struct {
	minted map[string]*big.Int
}

func newSimMinter() *simMinter {
	return &simMinter{minted: make(map[string]*big.Int)}
}

func (m *simMinter) Mint(recipient string, amount *big.Int) error {
	current, ok := m.minted[recipient]
	if !ok {
		current = big.NewInt(0)
		m.minted[recipient] = current
	}
	current.Add(current, amount)
	return nil
}

// simClock is a manually advanced nanosecond clock.
type simClock struct {
	now uint64
}

func (c *simClock) Now() uint64 { return c.now }

// newSimulateCmd runs one full campaign in-process: every contributor
// deposits the same amount, the conversion window is fast-forwarded, and
// the final balances are logged. If the deposits never reach the
// threshold the failure path runs instead and everyone is refunded.
func newSimulateCmd() *cobra.Command {
	var (
		contributors int
		deposit      string
		dbPath       string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a full campaign in-process and log every event",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := configFromViper()

			var store escrow.StateStore = kvstore.NewMemory()
			if dbPath != "" {
				db, err := kvstore.OpenBolt(dbPath)
				if err != nil {
					return err
				}
				defer db.Close()
				store = db
			}

			ledger := newSimLedger()
			minter := newSimMinter()
			clock := &simClock{now: 1}
			esc := escrow.New(simEscrowAccount, store, ledger, minter, clock,
				logSink{log: log}, log)

			if err := esc.Activate(cfg.OwnerID, cfg); err != nil {
				return fmt.Errorf("activation failed: %w", err)
			}

			amount, err := fixed.Parse(deposit, cfg.StableCoinDecimals)
			if err != nil {
				return fmt.Errorf("invalid deposit amount: %w", err)
			}

			accounts := make([]string, contributors)
			for i := range accounts {
				accounts[i] = fmt.Sprintf("contributor-%d.sim", i+1)
				ledger.credit(accounts[i], amount)
				if err := esc.Contribute(accounts[i], amount); err != nil {
					return fmt.Errorf("contribution by %s failed: %w", accounts[i], err)
				}
			}

			project, err := esc.Project()
			if err != nil {
				return err
			}

			if project.ThresholdReachedAt == 0 {
				// Threshold missed: jump past the funding deadline and
				// unwind.
				if cfg.FundingPeriod == 0 {
					return fmt.Errorf("threshold not reached and no funding deadline set")
				}
				clock.now = project.ActivatedAt + cfg.FundingPeriod
				if err := esc.RefundAll(cfg.OwnerID); err != nil {
					return fmt.Errorf("refund sweep failed: %w", err)
				}
				log.Info().Msg("campaign failed, all contributors refunded")
				return nil
			}

			clock.now = project.ThresholdReachedAt + cfg.BufferPeriod
			for _, account := range accounts {
				err := esc.Convert(account)
				if errors.Is(err, escrow.ErrCapacity) {
					log.Warn().Str("contributor", account).Msg("supply exhausted, residual refunded")
					continue
				}
				if err != nil {
					return fmt.Errorf("conversion by %s failed: %w", account, err)
				}
			}

			if err := esc.Finalize(cfg.OwnerID); err != nil {
				return fmt.Errorf("finalize failed: %w", err)
			}

			for _, account := range accounts {
				tokens := minter.minted[account]
				if tokens == nil {
					tokens = big.NewInt(0)
				}
				log.Info().
					Str("contributor", account).
					Str("tokens", fixed.Format(tokens, cfg.StableCoinDecimals)).
					Msg("conversion result")
			}
			log.Info().
				Str("owner_payout", fixed.Format(ledger.balanceOf(cfg.OwnerID), cfg.StableCoinDecimals)).
				Str("treasury_fee", fixed.Format(ledger.balanceOf(cfg.TreasuryID), cfg.StableCoinDecimals)).
				Msg("campaign finalized")
			return nil
		},
	}
	cmd.Flags().IntVar(&contributors, "contributors", 3, "number of simulated contributors")
	cmd.Flags().StringVar(&deposit, "deposit", "100", "deposit per contributor, in whole coins")
	cmd.Flags().StringVar(&dbPath, "db", "", "persist state to a bbolt file instead of memory")
	return cmd
}
