package escrow

// Phase controller. The only writers of Phase and the two timestamps live
// in this file (plus activation, which seeds them). Deadlines are evaluated
// lazily: a phase that "should" have moved does so when the next call
// observes the elapsed deadline through advance.

// setPhase applies a transition and emits PhaseChanged. It refuses to move
// out of a terminal phase, which is what makes transitions monotone.
func (e *Escrow) setPhase(project *Project, to Phase) {
	if project.Phase == to || project.Phase.terminal() {
		return
	}
	from := project.Phase
	project.Phase = to
	e.emitPhaseChange(from, to)

	switch to {
	case PhaseFailed:
		e.log.Info().Str("from", from.String()).Msg("campaign failed")
	default:
		e.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("phase changed")
	}
}

// advance applies every deadline the clock reading has passed. Called at
// the start of each operation, before phase validation, so callers always
// observe the phase the wall clock implies. Returns true if anything
// changed and needs persisting.
func (e *Escrow) advance(project *Project, now uint64) bool {
	changed := false
	for {
		before := project.Phase
		switch project.Phase {
		case PhaseFunding:
			// Threshold latched: buffer entry happens inside contribute.
			// Here only the funding deadline can fire.
			if project.FundingPeriod > 0 && now >= project.ActivatedAt+project.FundingPeriod {
				e.setPhase(project, PhaseFailed)
				e.emit(EventFailed, FailedEvent{Reason: "funding deadline elapsed before threshold"})
			}
		case PhaseBuffer:
			// The threshold cannot be un-reached, so the elapsed buffer is
			// the only condition.
			if now >= project.ThresholdReachedAt+project.BufferPeriod {
				e.setPhase(project, PhaseConverting)
			}
		case PhaseConverting:
			if now >= project.ThresholdReachedAt+project.BufferPeriod+project.ConversionPeriod {
				e.setPhase(project, PhaseFinalized)
			}
		}
		if project.Phase == before {
			return changed
		}
		changed = true
	}
}

// reachThreshold latches threshold_reached_at and enters Buffer. The
// timestamp is written once and never reset; it is the sole gate for
// Buffer and Converting.
func (e *Escrow) reachThreshold(project *Project, now uint64) {
	if project.ThresholdReachedAt != 0 {
		return
	}
	project.ThresholdReachedAt = now
	e.emit(EventThresholdReached, ThresholdReachedEvent{
		TotalFunds: project.TotalFunds,
		ReachedAt:  now,
	})
	e.setPhase(project, PhaseBuffer)
	// A zero buffer period opens conversion immediately.
	e.advance(project, now)
}
