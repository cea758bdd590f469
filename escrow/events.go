package escrow

import "encoding/json"

// Event names, one per state transition and fund movement.
const (
	EventActivated            = "Activated"
	EventContributionReceived = "ContributionReceived"
	EventThresholdReached     = "ThresholdReached"
	EventPhaseChanged         = "PhaseChanged"
	EventConverted            = "Converted"
	EventRefunded             = "Refunded"
	EventFailed               = "Failed"
	EventFinalized            = "Finalized"
)

type ActivatedEvent struct {
	OwnerID       string `json:"owner_id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	CurveType     string `json:"curve_type"`
	MaxSupply     string `json:"max_supply"`
	PreMintAmount string `json:"pre_mint_amount"`
	FundThreshold string `json:"fund_threshold"`
	ActivatedAt   uint64 `json:"activated_at"`
}

type ContributionReceivedEvent struct {
	ContributorID string `json:"contributor_id"`
	Amount        string `json:"amount"`
	TotalFunds    string `json:"total_funds"`
}

type ThresholdReachedEvent struct {
	TotalFunds string `json:"total_funds"`
	ReachedAt  uint64 `json:"reached_at"`
}

type PhaseChangedEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ConvertedEvent struct {
	ContributorID string `json:"contributor_id"`
	Tokens        string `json:"tokens"`
	Refund        string `json:"refund,omitempty"`
}

type RefundedEvent struct {
	ContributorID string `json:"contributor_id"`
	Amount        string `json:"amount"`
}

type FailedEvent struct {
	Reason string `json:"reason"`
}

type FinalizedEvent struct {
	TotalFunds  string `json:"total_funds"`
	TotalMinted string `json:"total_minted"`
	OwnerPayout string `json:"owner_payout"`
	TreasuryFee string `json:"treasury_fee"`
	FinderFee   string `json:"finder_fee,omitempty"`
}

// emit marshals the payload and hands it to the sink. Sink problems are
// logged and dropped: events exist for observability, not correctness.
func (e *Escrow) emit(event string, payload any) {
	if e.sink == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error().Err(err).Str("event", event).Msg("failed to marshal event")
		return
	}
	if err := e.sink.Emit(event, data); err != nil {
		e.log.Warn().Err(err).Str("event", event).Msg("event sink rejected event")
	}
}

func (e *Escrow) emitPhaseChange(from, to Phase) {
	e.emit(EventPhaseChanged, PhaseChangedEvent{From: from.String(), To: to.String()})
}
