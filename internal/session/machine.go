package session

// Phase is the presentation loop's state. Transitions are strictly
// sequential: a timer or an explicit advance signal moves the machine, and
// nothing else does.
type Phase int

const (
	// PhaseIdle is the pre-start state.
	PhaseIdle Phase = iota

	// PhaseCueDisplay shows the to-be-remembered cues one by one.
	PhaseCueDisplay

	// PhaseCueWait suspends until the participant signals advance.
	PhaseCueWait

	// PhaseCueFixation shows the fixation marker before trial 0.
	PhaseCueFixation

	// PhaseTrialImage shows the current trial's stimulus.
	PhaseTrialImage

	// PhaseTrialFixation shows the fixation marker between trials.
	PhaseTrialFixation

	// PhaseBlockEndWait suspends at block end until advance.
	PhaseBlockEndWait

	// PhaseGenFailed blocks on a trial-generation fault awaiting manual retry.
	PhaseGenFailed

	// PhaseDone is terminal; the aggregate result has been emitted.
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCueDisplay:
		return "cueDisplay"
	case PhaseCueWait:
		return "cueWaitForAdvance"
	case PhaseCueFixation:
		return "cueToTrialFixation"
	case PhaseTrialImage:
		return "trialImage"
	case PhaseTrialFixation:
		return "trialFixation"
	case PhaseBlockEndWait:
		return "blockEndWaitForAdvance"
	case PhaseGenFailed:
		return "generationFailed"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is an input to the within-block transition function.
type Event int

const (
	// EventTimer is the expiry of the current phase's dwell timer.
	EventTimer Event = iota

	// EventAdvance is the participant's advance keypress.
	EventAdvance
)

// machineState is the pure within-block position of the loop.
type machineState struct {
	phase    Phase
	cueIdx   int
	trialIdx int
}

// bounds carries the block dimensions the transition function needs.
type bounds struct {
	cues   int
	trials int
}

// step is the pure transition function for the within-block loop. It returns
// the next state and whether the event applied; block scoring, block
// advancement and finalization are the controller's business. Events that do
// not apply in the current phase are ignored.
func step(s machineState, ev Event, b bounds) (machineState, bool) {
	switch s.phase {
	case PhaseCueDisplay:
		if ev != EventTimer {
			return s, false
		}
		if s.cueIdx+1 < b.cues {
			s.cueIdx++
			return s, true
		}
		s.phase = PhaseCueWait
		return s, true

	case PhaseCueWait:
		if ev != EventAdvance {
			return s, false
		}
		s.phase = PhaseCueFixation
		return s, true

	case PhaseCueFixation:
		if ev != EventTimer {
			return s, false
		}
		if b.trials == 0 {
			s.phase = PhaseBlockEndWait
			return s, true
		}
		s.phase = PhaseTrialImage
		s.trialIdx = 0
		return s, true

	case PhaseTrialImage:
		if ev != EventTimer {
			return s, false
		}
		s.phase = PhaseTrialFixation
		return s, true

	case PhaseTrialFixation:
		if ev != EventTimer {
			return s, false
		}
		if s.trialIdx+1 >= b.trials {
			s.phase = PhaseBlockEndWait
			return s, true
		}
		s.trialIdx++
		s.phase = PhaseTrialImage
		return s, true
	}

	return s, false
}

// startState is where a freshly generated block begins: cue display, or the
// advance gate directly when the block has no cues to show.
func startState(b bounds) machineState {
	if b.cues == 0 {
		return machineState{phase: PhaseCueWait}
	}
	return machineState{phase: PhaseCueDisplay}
}
