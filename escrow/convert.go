package escrow

import (
	"math/big"

	"github.com/Theia-Protocol/nft-escrow-sc-near/curve"
	"github.com/Theia-Protocol/nft-escrow-sc-near/fixed"
)

// Conversion engine. Each contributor's recorded entries are priced against
// the cumulative total as of their own insertion point, in recorded order,
// so the tokens owed depend only on history that existed when the money
// arrived.

// convert mints the caller's owed tokens, capping at the remaining supply.
// When the cap binds, the mintable remainder is minted, the value of the
// unminted portion is refunded in stable coin, and the call reports
// ErrCapacity; funds are never silently dropped. A contributor converts at
// most once; the claimed flag blocks replay.
func (e *Escrow) convert(project *Project, caller string) error {
	if project.Paused {
		return ErrPaused
	}

	contribution, err := e.getContribution(caller)
	if err != nil {
		return err
	}
	// A claimed record with a recorded residual is a conversion whose
	// refund transfer failed: settle it, in any phase. The tokens were
	// already minted.
	if contribution != nil && contribution.Claimed {
		return e.settlePendingRefund(project, contribution)
	}
	if project.Phase != PhaseConverting {
		return ErrInvalidPhase("convert", project.Phase)
	}
	if contribution == nil {
		return ErrUnknownContributor(caller)
	}

	pricing, err := curve.Parse(project.CurveType, project.CurveArgs, project.StableCoinDecimals)
	if err != nil {
		return err
	}

	maxSupply, err := project.maxSupply()
	if err != nil {
		return err
	}
	preMint, err := project.preMintAmount()
	if err != nil {
		return err
	}
	minted, err := project.totalMinted()
	if err != nil {
		return err
	}
	remaining := new(big.Int).Sub(maxSupply, preMint)
	remaining.Sub(remaining, minted)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}

	entries, err := e.getContributionLog()
	if err != nil {
		return err
	}

	one := fixed.One(project.StableCoinDecimals)
	tokens := big.NewInt(0)
	refund := big.NewInt(0)
	capped := false
	for _, entry := range entries {
		if entry.ContributorID != caller {
			continue
		}
		amount, err := amountOf("entry amount", entry.Amount)
		if err != nil {
			return err
		}
		position, err := amountOf("cumulative_before", entry.CumulativeBefore)
		if err != nil {
			return err
		}

		price := pricing.PriceAt(position)
		owed := fixed.MulDiv(amount, one, price)

		capacity := new(big.Int).Sub(remaining, tokens)
		if owed.Cmp(capacity) <= 0 {
			tokens.Add(tokens, owed)
			continue
		}

		// Cap hit mid-entry: mint what fits, refund the coin value of the
		// rest of this entry, and everything after it in full.
		capped = true
		tokens.Add(tokens, capacity)
		used := fixed.MulDiv(capacity, price, one)
		refund.Add(refund, new(big.Int).Sub(amount, used))
	}

	if tokens.Sign() > 0 {
		if err := e.token.Mint(caller, tokens); err != nil {
			return ErrTransferFailed("minting converted tokens", err)
		}
	}

	// A mint cannot be undone or retried, so its effects are persisted
	// before any stable coin moves. The residual is recorded on the
	// contribution and settled by a transfer that a later call can retry.
	contribution.Claimed = true
	contribution.RefundOwed = refund.String()
	if err := e.putContribution(contribution); err != nil {
		return err
	}

	project.TotalMinted = minted.Add(minted, tokens).String()

	// Last contributor out closes the campaign.
	done, err := e.allContributorsProcessed()
	if err != nil {
		return err
	}
	if done {
		e.setPhase(project, PhaseFinalized)
	}

	if err := e.putProject(project); err != nil {
		return err
	}

	e.emit(EventConverted, ConvertedEvent{
		ContributorID: caller,
		Tokens:        tokens.String(),
		Refund:        refund.String(),
	})

	if !capped {
		return nil
	}
	if refund.Sign() == 0 {
		return ErrSupplyExhausted(caller)
	}
	return e.settlePendingRefund(project, contribution)
}

// settlePendingRefund pays out a recorded capacity residual. The claimed
// flag stays set; only the owed amount and the refunded total move, so the
// settlement is replay-safe.
func (e *Escrow) settlePendingRefund(project *Project, contribution *Contribution) error {
	owed, err := amountOf("refund_owed", contribution.RefundOwed)
	if err != nil {
		return err
	}
	if owed.Sign() == 0 {
		return ErrAlreadyClaimed(contribution.ContributorID)
	}

	if err := e.stable.Transfer(e.accountID, contribution.ContributorID, owed); err != nil {
		return ErrTransferFailed("refunding capacity residual", err)
	}

	contribution.RefundOwed = "0"
	if err := e.putContribution(contribution); err != nil {
		return err
	}

	refunded, err := project.totalRefunded()
	if err != nil {
		return err
	}
	project.TotalRefunded = refunded.Add(refunded, owed).String()
	if err := e.putProject(project); err != nil {
		return err
	}

	e.emit(EventRefunded, RefundedEvent{
		ContributorID: contribution.ContributorID,
		Amount:        owed.String(),
	})
	return ErrSupplyExhausted(contribution.ContributorID)
}
