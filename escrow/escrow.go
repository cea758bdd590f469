// Package escrow implements a bonding-curve fundraising escrow: contributed
// stable-coin funds are converted into minted project tokens through a
// phased, time-gated state machine (Funding, Buffer, Converting). The
// engine consumes injected capabilities (state store, asset transfer, mint,
// clock) and is fully deterministic.
package escrow

import (
	"math/big"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Theia-Protocol/nft-escrow-sc-near/curve"
	"github.com/Theia-Protocol/nft-escrow-sc-near/fixed"
)

// Escrow is the public contract surface. It validates the caller and the
// phase, then routes to the fund ledger or the conversion engine; it holds
// no business state of its own, everything lives in the state store.
//
// All calls are serialized on a single mutex: fund and threshold checks
// must never interleave, so one logical thread of control per call is a
// correctness requirement, not an optimization.
type Escrow struct {
	accountID string
	store     StateStore
	stable    AssetLedger
	token     TokenLedger
	clock     Clock
	sink      EventSink
	log       zerolog.Logger
	validate  *validator.Validate

	mu sync.Mutex
}

// New wires the escrow to its capabilities. accountID is the escrow's own
// account on the stable-coin ledger (the custody account).
func New(accountID string, store StateStore, stable AssetLedger, token TokenLedger, clock Clock, sink EventSink, log zerolog.Logger) *Escrow {
	return &Escrow{
		accountID: accountID,
		store:     store,
		stable:    stable,
		token:     token,
		clock:     clock,
		sink:      sink,
		log:       log.With().Str("component", "escrow").Logger(),
		validate:  validator.New(),
	}
}

// Activate creates the project, mints the pre-mint to the owner, and opens
// the funding window. Inactive -> Active -> Funding in one atomic call;
// Active exists so the pre-mint is observable as its own transition.
func (e *Escrow) Activate(caller string, cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.getProject()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInitialized
	}
	if caller != cfg.OwnerID {
		return ErrNotOwner(caller)
	}

	project, err := e.buildProject(cfg)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	project.ActivatedAt = now

	e.setPhase(project, PhaseActive)

	preMint, _ := project.preMintAmount()
	if preMint.Sign() > 0 {
		if err := e.token.Mint(project.OwnerID, preMint); err != nil {
			return ErrTransferFailed("pre-mint", err)
		}
	}

	e.setPhase(project, PhaseFunding)
	if err := e.putProject(project); err != nil {
		return err
	}

	e.emit(EventActivated, ActivatedEvent{
		OwnerID:       project.OwnerID,
		Name:          project.Name,
		Symbol:        project.Symbol,
		CurveType:     project.CurveType,
		MaxSupply:     project.MaxSupply,
		PreMintAmount: project.PreMintAmount,
		FundThreshold: project.FundThreshold,
		ActivatedAt:   now,
	})
	e.log.Info().Str("name", project.Name).Str("curve", project.CurveType).Msg("campaign activated")
	return nil
}

// buildProject validates the activation config and converts it into the
// stored Project. Any rejection here is a ConfigError and creates no state.
func (e *Escrow) buildProject(cfg Config) (*Project, error) {
	if err := e.validate.Struct(cfg); err != nil {
		return nil, ErrInvalidConfig("activation config", err)
	}

	if _, err := curve.Parse(cfg.CurveType, cfg.CurveArgs, cfg.StableCoinDecimals); err != nil {
		return nil, ErrInvalidConfig("curve", err)
	}

	maxSupply, err := fixed.Parse(cfg.MaxSupply, cfg.StableCoinDecimals)
	if err != nil {
		return nil, ErrInvalidConfig("max_supply", err)
	}
	if maxSupply.Sign() <= 0 {
		return nil, ErrInvalidConfig("max_supply", errMustBePositive)
	}

	threshold, err := fixed.Parse(cfg.FundThreshold, cfg.StableCoinDecimals)
	if err != nil {
		return nil, ErrInvalidConfig("fund_threshold", err)
	}
	if threshold.Sign() <= 0 {
		return nil, ErrInvalidConfig("fund_threshold", errMustBePositive)
	}

	preMint := big.NewInt(0)
	if cfg.PreMintAmount != "" {
		preMint, err = fixed.Parse(cfg.PreMintAmount, cfg.StableCoinDecimals)
		if err != nil {
			return nil, ErrInvalidConfig("pre_mint_amount", err)
		}
	}
	if preMint.Cmp(maxSupply) > 0 {
		return nil, ErrInvalidConfig("pre_mint_amount", errPreMintExceedsSupply)
	}

	treasuryFee := cfg.TreasuryFee
	if treasuryFee == 0 {
		treasuryFee = DefaultTreasuryFee
	}
	finderFee := cfg.FinderFee
	if finderFee == 0 {
		finderFee = DefaultFinderFee
	}
	if uint64(treasuryFee)+uint64(finderFee) >= FeeDivisor {
		return nil, ErrInvalidConfig("fees", errFeesExceedDivisor)
	}

	return &Project{
		OwnerID:            cfg.OwnerID,
		TreasuryID:         cfg.TreasuryID,
		FinderID:           cfg.FinderID,
		StableCoinID:       cfg.StableCoinID,
		StableCoinDecimals: cfg.StableCoinDecimals,
		CurveType:          cfg.CurveType,
		CurveArgs:          cfg.CurveArgs,
		Name:               cfg.Name,
		Symbol:             cfg.Symbol,
		BaseURI:            cfg.BaseURI,
		BlankMediaURI:      cfg.BlankMediaURI,
		TreasuryFee:        treasuryFee,
		FinderFee:          finderFee,
		MaxSupply:          maxSupply.String(),
		PreMintAmount:      preMint.String(),
		FundThreshold:      threshold.String(),
		FundingPeriod:      cfg.FundingPeriod,
		BufferPeriod:       cfg.BufferPeriod,
		ConversionPeriod:   cfg.ConversionPeriod,
		Phase:              PhaseInactive,
		TotalFunds:         "0",
		TotalRefunded:      "0",
		TotalMinted:        "0",
	}, nil
}

// Contribute records a funding call from caller. Requires the Funding
// phase; takes custody of amount atomically with the ledger update.
func (e *Escrow) Contribute(caller string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	project, now, err := e.beginCall()
	if err != nil {
		return err
	}
	return e.contribute(project, caller, amount, now)
}

// Convert mints the caller's owed tokens per the recorded contribution
// order. Valid only during Converting.
func (e *Escrow) Convert(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	project, _, err := e.beginCall()
	if err != nil {
		return err
	}
	return e.convert(project, caller)
}

// Finalize pays the raised funds out to the treasury, the finder, and the
// owner. Owner-only; valid once conversion has completed or its deadline
// elapsed.
func (e *Escrow) Finalize(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	project, _, err := e.beginCall()
	if err != nil {
		return err
	}
	return e.finalize(project, caller)
}

// RefundAll returns every contributor's recorded amount after the campaign
// failed. Callable by anyone; idempotent.
func (e *Escrow) RefundAll(string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	project, _, err := e.beginCall()
	if err != nil {
		return err
	}
	return e.refundAll(project)
}

// RefundResidual returns the caller's principal when they missed the
// conversion window.
func (e *Escrow) RefundResidual(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	project, _, err := e.beginCall()
	if err != nil {
		return err
	}
	return e.refundResidual(project, caller)
}

// EmergencyStop moves the campaign to Failed. Owner-only, available from
// any non-terminal phase, never blockable by a stuck contributor.
func (e *Escrow) EmergencyStop(caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	project, _, err := e.beginCall()
	if err != nil {
		return err
	}
	if caller != project.OwnerID {
		return ErrNotOwner(caller)
	}
	if project.Phase.terminal() {
		return ErrInvalidPhase("emergency_stop", project.Phase)
	}

	e.setPhase(project, PhaseFailed)
	e.emit(EventFailed, FailedEvent{Reason: "emergency stop by owner"})
	return e.putProject(project)
}

// SetOwner hands the campaign to a new owner, who takes over every
// owner-gated operation including the Finalize payout destination.
func (e *Escrow) SetOwner(caller, newOwner string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	project, _, err := e.beginCall()
	if err != nil {
		return err
	}
	if caller != project.OwnerID {
		return ErrNotOwner(caller)
	}
	if newOwner == "" {
		return ErrInvalidConfig("owner_id", errMustBeSet)
	}

	project.OwnerID = newOwner
	e.log.Info().Str("from", caller).Str("to", newOwner).Msg("ownership transferred")
	return e.putProject(project)
}

// Pause blocks Contribute and Convert until Resume. Owner-only. Pausing
// does not stop phase deadlines from elapsing.
func (e *Escrow) Pause(caller string) error {
	return e.setPaused(caller, true)
}

// Resume lifts a pause. Owner-only.
func (e *Escrow) Resume(caller string) error {
	return e.setPaused(caller, false)
}

func (e *Escrow) setPaused(caller string, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	project, _, err := e.beginCall()
	if err != nil {
		return err
	}
	if caller != project.OwnerID {
		return ErrNotOwner(caller)
	}
	if project.Paused == paused {
		return nil
	}

	project.Paused = paused
	if paused {
		e.log.Info().Str("by", caller).Msg("escrow paused")
	} else {
		e.log.Info().Str("by", caller).Msg("escrow resumed")
	}
	return e.putProject(project)
}

// Project returns the stored project with lazily elapsed deadlines
// applied. Like every other call, it persists transitions the clock
// implies, so each PhaseChanged event is emitted exactly once.
func (e *Escrow) Project() (*Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	project, _, err := e.beginCall()
	if err != nil {
		return nil, err
	}
	return project, nil
}

// CurrentPhase is a convenience view over Project.
func (e *Escrow) CurrentPhase() (Phase, error) {
	project, err := e.Project()
	if err != nil {
		return PhaseInactive, err
	}
	return project.Phase, nil
}

// TotalFunds returns the aggregate contributed amount in minor units.
func (e *Escrow) TotalFunds() (*big.Int, error) {
	project, err := e.Project()
	if err != nil {
		return nil, err
	}
	return project.totalFunds()
}

// ContributionOf returns the caller's record, or nil if they never funded.
func (e *Escrow) ContributionOf(contributorID string) (*Contribution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getContribution(contributorID)
}

// beginCall is the shared prologue of every mutating operation: load the
// project, read the clock once, and apply lazily elapsed deadlines. Phase
// changes produced by advance are persisted even when the operation itself
// is later rejected; the wall clock moved the machine, not the caller.
func (e *Escrow) beginCall() (*Project, uint64, error) {
	project, err := e.getProject()
	if err != nil {
		return nil, 0, err
	}
	if project == nil {
		return nil, 0, ErrNotInitialized
	}

	now := e.clock.Now()
	if e.advance(project, now) {
		if err := e.putProject(project); err != nil {
			return nil, 0, err
		}
	}
	return project, now, nil
}
