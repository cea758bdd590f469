package escrow

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Config is the activation surface. Mirrors the JSON blobs the deployment
// scripts generate; amount fields are decimal strings so no precision is
// lost on the wire, and durations are integer nanoseconds.
type Config struct {
	OwnerID            string            `json:"owner_id" validate:"required"`
	StableCoinID       string            `json:"stable_coin_id" validate:"required"`
	StableCoinDecimals uint8             `json:"stable_coin_decimals" validate:"lte=24"`
	CurveType          string            `json:"curve_type" validate:"required"`
	CurveArgs          map[string]string `json:"curve_args" validate:"required"`
	TreasuryID         string            `json:"treasury_id" validate:"required"`
	Name               string            `json:"name" validate:"required,min=3"`
	Symbol             string            `json:"symbol" validate:"required,min=3,max=12"`
	BaseURI            string            `json:"base_uri,omitempty"`
	BlankMediaURI      string            `json:"blank_media_uri,omitempty"`
	MaxSupply          string            `json:"max_supply" validate:"required"`
	FinderID           string            `json:"finder_id,omitempty"`
	PreMintAmount      string            `json:"pre_mint_amount"`
	FundThreshold      string            `json:"fund_threshold" validate:"required"`
	// FundingPeriod bounds how long the Funding phase may wait for the
	// threshold; 0 means no deadline.
	FundingPeriod    uint64 `json:"funding_period,omitempty"`
	BufferPeriod     uint64 `json:"buffer_period"`
	ConversionPeriod uint64 `json:"conversion_period" validate:"required"`
	// Fee basis points; zero values fall back to the protocol defaults.
	TreasuryFee uint32 `json:"treasury_fee,omitempty" validate:"lt=10000"`
	FinderFee   uint32 `json:"finder_fee,omitempty" validate:"lt=10000"`
}

// Project is one escrow campaign. Amounts are decimal strings in
// stable-coin minor units, timestamps are nanoseconds. Aggregate fields are
// owned by exactly one component: the phase controller writes Phase and the
// timestamps, the fund ledger writes the totals, the conversion engine
// writes TotalMinted.
type Project struct {
	OwnerID            string            `json:"owner_id"`
	TreasuryID         string            `json:"treasury_id"`
	FinderID           string            `json:"finder_id,omitempty"`
	StableCoinID       string            `json:"stable_coin_id"`
	StableCoinDecimals uint8             `json:"stable_coin_decimals"`
	CurveType          string            `json:"curve_type"`
	CurveArgs          map[string]string `json:"curve_args"`
	Name               string            `json:"name"`
	Symbol             string            `json:"symbol"`
	BaseURI            string            `json:"base_uri,omitempty"`
	BlankMediaURI      string            `json:"blank_media_uri,omitempty"`
	TreasuryFee        uint32            `json:"treasury_fee"`
	FinderFee          uint32            `json:"finder_fee"`

	MaxSupply     string `json:"max_supply"`
	PreMintAmount string `json:"pre_mint_amount"`
	FundThreshold string `json:"fund_threshold"`

	FundingPeriod    uint64 `json:"funding_period"`
	BufferPeriod     uint64 `json:"buffer_period"`
	ConversionPeriod uint64 `json:"conversion_period"`

	Phase              Phase  `json:"phase"`
	Paused             bool   `json:"paused"`
	ActivatedAt        uint64 `json:"activated_at"`
	ThresholdReachedAt uint64 `json:"threshold_reached_at"`

	// TotalFunds is the sum of all recorded contributions (the audit
	// total, never reduced). TotalRefunded and TotalMinted track money and
	// tokens that already left the escrow.
	TotalFunds    string `json:"total_funds"`
	TotalRefunded string `json:"total_refunded"`
	TotalMinted   string `json:"total_minted"`
	// The payout runs in three transfers; each marker is persisted as its
	// transfer succeeds so a retried Finalize resumes instead of paying a
	// recipient twice. FundsClaimed is set once the owner's share is out.
	TreasuryPaid bool `json:"treasury_paid,omitempty"`
	FinderPaid   bool `json:"finder_paid,omitempty"`
	FundsClaimed bool `json:"funds_claimed"`
}

// Contribution is one contributor's aggregate record. AmountContributed is
// monotonically non-decreasing; records are never deleted so the claim
// history stays replayable.
type Contribution struct {
	ContributorID     string `json:"contributor_id"`
	AmountContributed string `json:"amount_contributed"`
	Claimed           bool   `json:"claimed"`
	// RefundOwed is the capacity residual still owed after a conversion
	// whose refund transfer has not succeeded yet.
	RefundOwed string `json:"refund_owed,omitempty"`
}

// ContributionEntry is one funding call in the ordered log. The conversion
// engine prices each entry against CumulativeBefore — the running total at
// the entry's insertion point — so late contributions can never move an
// earlier price bracket.
type ContributionEntry struct {
	ContributorID    string `json:"contributor_id"`
	Amount           string `json:"amount"`
	CumulativeBefore string `json:"cumulative_before"`
}

func amountOf(field, s string) (*big.Int, error) {
	if s == "" {
		s = "0"
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount format for %s: %q", field, s)
	}
	return v, nil
}

func (p *Project) fundThreshold() (*big.Int, error) { return amountOf("fund_threshold", p.FundThreshold) }
func (p *Project) maxSupply() (*big.Int, error)     { return amountOf("max_supply", p.MaxSupply) }
func (p *Project) preMintAmount() (*big.Int, error) {
	return amountOf("pre_mint_amount", p.PreMintAmount)
}
func (p *Project) totalFunds() (*big.Int, error)    { return amountOf("total_funds", p.TotalFunds) }
func (p *Project) totalRefunded() (*big.Int, error) { return amountOf("total_refunded", p.TotalRefunded) }
func (p *Project) totalMinted() (*big.Int, error)   { return amountOf("total_minted", p.TotalMinted) }

func contributionKey(contributorID string) string {
	return contributionPrefix + contributorID
}

func (e *Escrow) getProject() (*Project, error) {
	data, err := e.store.Get(projectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get project state: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var project Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return &project, nil
}

func (e *Escrow) putProject(project *Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	if err := e.store.Put(projectKey, data); err != nil {
		return fmt.Errorf("failed to set project state: %w", err)
	}
	return nil
}

func (e *Escrow) getContribution(contributorID string) (*Contribution, error) {
	data, err := e.store.Get(contributionKey(contributorID))
	if err != nil {
		return nil, fmt.Errorf("failed to get contribution for %s: %w", contributorID, err)
	}
	if data == nil {
		return nil, nil
	}

	var contribution Contribution
	if err := json.Unmarshal(data, &contribution); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contribution for %s: %w", contributorID, err)
	}
	return &contribution, nil
}

func (e *Escrow) putContribution(contribution *Contribution) error {
	data, err := json.Marshal(contribution)
	if err != nil {
		return fmt.Errorf("failed to marshal contribution for %s: %w", contribution.ContributorID, err)
	}
	if err := e.store.Put(contributionKey(contribution.ContributorID), data); err != nil {
		return fmt.Errorf("failed to set contribution for %s: %w", contribution.ContributorID, err)
	}
	return nil
}

func (e *Escrow) getContributionLog() ([]ContributionEntry, error) {
	data, err := e.store.Get(contributionLogKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get contribution log: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var entries []ContributionEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contribution log: %w", err)
	}
	return entries, nil
}

func (e *Escrow) putContributionLog(entries []ContributionEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal contribution log: %w", err)
	}
	if err := e.store.Put(contributionLogKey, data); err != nil {
		return fmt.Errorf("failed to set contribution log: %w", err)
	}
	return nil
}
