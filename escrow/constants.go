package escrow

// Phase is the campaign state machine position. Transitions are monotone:
// no phase is ever revisited, and Failed is the only state reachable out of
// order (from any non-terminal phase).
type Phase int

const (
	PhaseInactive Phase = iota
	PhaseActive
	PhaseFunding
	PhaseBuffer
	PhaseConverting
	PhaseFinalized
	PhaseFailed
)

func (p Phase) String() string {
	return [...]string{
		"Inactive",
		"Active",
		"Funding",
		"Buffer",
		"Converting",
		"Finalized",
		"Failed",
	}[p]
}

// terminal reports whether no further transition is possible.
func (p Phase) terminal() bool {
	return p == PhaseFinalized || p == PhaseFailed
}

const (
	// Fee basis points. 100/10000 = 1%, matching the protocol defaults.
	FeeDivisor         = 10000
	DefaultTreasuryFee = 100
	DefaultFinderFee   = 100

	projectKey         = "project"
	contributionPrefix = "contribution_"
	contributionLogKey = "contribution_log"
)
