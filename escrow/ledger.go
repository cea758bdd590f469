package escrow

import (
	"fmt"
	"math/big"
)

// Fund ledger: contribution intake, refunds, and the Finalize payout. The
// ledger owns the monetary totals on the Project; sum(amount_contributed)
// over all Contribution records is the source of truth and TotalFunds is
// kept equal to it on every write.

func (e *Escrow) contribute(project *Project, caller string, amount *big.Int, now uint64) error {
	if project.Paused {
		return ErrPaused
	}
	if project.Phase != PhaseFunding {
		return ErrInvalidPhase("contribute", project.Phase)
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount(amount)
	}

	total, err := project.totalFunds()
	if err != nil {
		return err
	}

	contribution, err := e.getContribution(caller)
	if err != nil {
		return err
	}
	if contribution == nil {
		contribution = &Contribution{ContributorID: caller, AmountContributed: "0"}
	}
	contributed, err := amountOf("amount_contributed", contribution.AmountContributed)
	if err != nil {
		return err
	}

	// Take custody before recording anything; a failed transfer leaves the
	// ledger untouched.
	if err := e.stable.Transfer(caller, e.accountID, amount); err != nil {
		return ErrTransferFailed("taking custody of contribution", err)
	}

	entry := ContributionEntry{
		ContributorID:    caller,
		Amount:           amount.String(),
		CumulativeBefore: total.String(),
	}
	entries, err := e.getContributionLog()
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	contribution.AmountContributed = new(big.Int).Add(contributed, amount).String()
	project.TotalFunds = new(big.Int).Add(total, amount).String()

	if err := e.putContribution(contribution); err != nil {
		return err
	}
	if err := e.putContributionLog(entries); err != nil {
		return err
	}

	e.emit(EventContributionReceived, ContributionReceivedEvent{
		ContributorID: caller,
		Amount:        amount.String(),
		TotalFunds:    project.TotalFunds,
	})

	threshold, err := project.fundThreshold()
	if err != nil {
		return err
	}
	newTotal, _ := project.totalFunds()
	if project.ThresholdReachedAt == 0 && newTotal.Cmp(threshold) >= 0 {
		e.reachThreshold(project, now)
	}

	return e.putProject(project)
}

// refundAll pays every unclaimed contributor back in contribution order.
// Idempotent: contributors already marked claimed are skipped, so a retry
// after a mid-run transfer failure resumes where the failed run stopped and
// nobody is paid twice.
func (e *Escrow) refundAll(project *Project) error {
	if project.Phase != PhaseFailed {
		return ErrInvalidPhase("refund_all", project.Phase)
	}

	entries, err := e.getContributionLog()
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if seen[entry.ContributorID] {
			continue
		}
		seen[entry.ContributorID] = true

		if err := e.refundContributor(project, entry.ContributorID); err != nil {
			return err
		}
	}
	return nil
}

// refundResidual refunds one contributor who was never converted before the
// conversion deadline. Their minting chance is forfeited; the stable-coin
// principal is not.
func (e *Escrow) refundResidual(project *Project, caller string) error {
	if project.Phase != PhaseFinalized {
		return ErrInvalidPhase("refund_residual", project.Phase)
	}

	contribution, err := e.getContribution(caller)
	if err != nil {
		return err
	}
	if contribution == nil {
		return ErrUnknownContributor(caller)
	}
	if contribution.Claimed {
		return ErrAlreadyClaimed(caller)
	}
	return e.refundContributor(project, caller)
}

// refundContributor moves one contributor's full recorded amount back and
// marks the record claimed. State is persisted per contributor so partial
// progress survives a later failure.
func (e *Escrow) refundContributor(project *Project, contributorID string) error {
	contribution, err := e.getContribution(contributorID)
	if err != nil {
		return err
	}
	if contribution == nil || contribution.Claimed {
		return nil
	}
	amount, err := amountOf("amount_contributed", contribution.AmountContributed)
	if err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}

	if err := e.stable.Transfer(e.accountID, contributorID, amount); err != nil {
		return ErrTransferFailed(fmt.Sprintf("refunding %s", contributorID), err)
	}

	contribution.Claimed = true
	if err := e.putContribution(contribution); err != nil {
		return err
	}

	refunded, err := project.totalRefunded()
	if err != nil {
		return err
	}
	project.TotalRefunded = refunded.Add(refunded, amount).String()
	if err := e.putProject(project); err != nil {
		return err
	}

	e.emit(EventRefunded, RefundedEvent{
		ContributorID: contributorID,
		Amount:        amount.String(),
	})
	return nil
}

// finalize pays out the raised funds: the finder and treasury fee shares
// first, the remainder to the owner. Residuals of never-converted
// contributors stay in escrow for refund_residual claims.
func (e *Escrow) finalize(project *Project, caller string) error {
	if caller != project.OwnerID {
		return ErrNotOwner(caller)
	}

	if project.Phase == PhaseConverting {
		done, err := e.allContributorsProcessed()
		if err != nil {
			return err
		}
		if done {
			e.setPhase(project, PhaseFinalized)
		}
	}
	if project.Phase != PhaseFinalized {
		return ErrInvalidPhase("finalize", project.Phase)
	}
	if project.FundsClaimed {
		return ErrInvalidPhase("finalize", project.Phase)
	}

	total, err := project.totalFunds()
	if err != nil {
		return err
	}
	refunded, err := project.totalRefunded()
	if err != nil {
		return err
	}
	reserve, err := e.residualReserve()
	if err != nil {
		return err
	}

	distributable := new(big.Int).Sub(total, refunded)
	distributable.Sub(distributable, reserve)
	if distributable.Sign() < 0 {
		return fmt.Errorf("distributable amount is negative: %s", distributable)
	}

	divisor := big.NewInt(FeeDivisor)
	treasuryFee := new(big.Int).Mul(distributable, big.NewInt(int64(project.TreasuryFee)))
	treasuryFee.Quo(treasuryFee, divisor)
	finderFee := big.NewInt(0)
	if project.FinderID != "" {
		finderFee.Mul(distributable, big.NewInt(int64(project.FinderFee)))
		finderFee.Quo(finderFee, divisor)
	}
	ownerPayout := new(big.Int).Sub(distributable, treasuryFee)
	ownerPayout.Sub(ownerPayout, finderFee)

	// Each recipient's marker is persisted as soon as their transfer
	// succeeds, so a retry after a failed transfer resumes with the next
	// recipient instead of paying anyone twice. The amounts are stable
	// across retries: the totals the split is computed from only change
	// through residual claims, which move money between the refunded total
	// and the reserve without changing their sum.
	if !project.TreasuryPaid {
		if treasuryFee.Sign() > 0 {
			if err := e.stable.Transfer(e.accountID, project.TreasuryID, treasuryFee); err != nil {
				return ErrTransferFailed("paying treasury fee", err)
			}
		}
		project.TreasuryPaid = true
		if err := e.putProject(project); err != nil {
			return err
		}
	}
	if !project.FinderPaid {
		if finderFee.Sign() > 0 {
			if err := e.stable.Transfer(e.accountID, project.FinderID, finderFee); err != nil {
				return ErrTransferFailed("paying finder fee", err)
			}
		}
		project.FinderPaid = true
		if err := e.putProject(project); err != nil {
			return err
		}
	}
	if ownerPayout.Sign() > 0 {
		if err := e.stable.Transfer(e.accountID, project.OwnerID, ownerPayout); err != nil {
			return ErrTransferFailed("paying owner", err)
		}
	}

	project.FundsClaimed = true
	if err := e.putProject(project); err != nil {
		return err
	}

	e.emit(EventFinalized, FinalizedEvent{
		TotalFunds:  project.TotalFunds,
		TotalMinted: project.TotalMinted,
		OwnerPayout: ownerPayout.String(),
		TreasuryFee: treasuryFee.String(),
		FinderFee:   finderFee.String(),
	})
	e.log.Info().
		Str("owner_payout", ownerPayout.String()).
		Str("treasury_fee", treasuryFee.String()).
		Str("finder_fee", finderFee.String()).
		Msg("campaign finalized")
	return nil
}

// residualReserve sums the money still claimable by contributors: the full
// recorded amounts of those who never converted, plus the unsettled
// capacity residuals of those who did. Both are excluded from the payout.
func (e *Escrow) residualReserve() (*big.Int, error) {
	entries, err := e.getContributionLog()
	if err != nil {
		return nil, err
	}

	reserve := big.NewInt(0)
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if seen[entry.ContributorID] {
			continue
		}
		seen[entry.ContributorID] = true

		contribution, err := e.getContribution(entry.ContributorID)
		if err != nil {
			return nil, err
		}
		if contribution == nil {
			continue
		}
		field, raw := "amount_contributed", contribution.AmountContributed
		if contribution.Claimed {
			field, raw = "refund_owed", contribution.RefundOwed
		}
		amount, err := amountOf(field, raw)
		if err != nil {
			return nil, err
		}
		reserve.Add(reserve, amount)
	}
	return reserve, nil
}

func (e *Escrow) allContributorsProcessed() (bool, error) {
	entries, err := e.getContributionLog()
	if err != nil {
		return false, err
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if seen[entry.ContributorID] {
			continue
		}
		seen[entry.ContributorID] = true

		contribution, err := e.getContribution(entry.ContributorID)
		if err != nil {
			return false, err
		}
		if contribution != nil && !contribution.Claimed {
			return false, nil
		}
	}
	return true, nil
}
