package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStep_Transitions(t *testing.T) {
	b := bounds{cues: 2, trials: 3}

	tests := []struct {
		name   string
		in     machineState
		ev     Event
		want   machineState
		wantOK bool
	}{
		{
			name:   "cue display advances to next cue",
			in:     machineState{phase: PhaseCueDisplay, cueIdx: 0},
			ev:     EventTimer,
			want:   machineState{phase: PhaseCueDisplay, cueIdx: 1},
			wantOK: true,
		},
		{
			name:   "last cue moves to wait gate",
			in:     machineState{phase: PhaseCueDisplay, cueIdx: 1},
			ev:     EventTimer,
			want:   machineState{phase: PhaseCueWait, cueIdx: 1},
			wantOK: true,
		},
		{
			name:   "cue display ignores advance",
			in:     machineState{phase: PhaseCueDisplay},
			ev:     EventAdvance,
			want:   machineState{phase: PhaseCueDisplay},
			wantOK: false,
		},
		{
			name:   "cue gate opens on advance",
			in:     machineState{phase: PhaseCueWait, cueIdx: 1},
			ev:     EventAdvance,
			want:   machineState{phase: PhaseCueFixation, cueIdx: 1},
			wantOK: true,
		},
		{
			name:   "cue gate ignores timer",
			in:     machineState{phase: PhaseCueWait},
			ev:     EventTimer,
			want:   machineState{phase: PhaseCueWait},
			wantOK: false,
		},
		{
			name:   "cue fixation enters trial zero",
			in:     machineState{phase: PhaseCueFixation, cueIdx: 1},
			ev:     EventTimer,
			want:   machineState{phase: PhaseTrialImage, cueIdx: 1, trialIdx: 0},
			wantOK: true,
		},
		{
			name:   "trial image moves to fixation",
			in:     machineState{phase: PhaseTrialImage, trialIdx: 1},
			ev:     EventTimer,
			want:   machineState{phase: PhaseTrialFixation, trialIdx: 1},
			wantOK: true,
		},
		{
			name:   "fixation advances the trial index",
			in:     machineState{phase: PhaseTrialFixation, trialIdx: 0},
			ev:     EventTimer,
			want:   machineState{phase: PhaseTrialImage, trialIdx: 1},
			wantOK: true,
		},
		{
			name:   "last fixation ends the block",
			in:     machineState{phase: PhaseTrialFixation, trialIdx: 2},
			ev:     EventTimer,
			want:   machineState{phase: PhaseBlockEndWait, trialIdx: 2},
			wantOK: true,
		},
		{
			name:   "block end ignores timer",
			in:     machineState{phase: PhaseBlockEndWait},
			ev:     EventTimer,
			want:   machineState{phase: PhaseBlockEndWait},
			wantOK: false,
		},
		{
			name:   "terminal state is inert",
			in:     machineState{phase: PhaseDone},
			ev:     EventTimer,
			want:   machineState{phase: PhaseDone},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := step(tt.in, tt.ev, b)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestStep_EmptyTrialList(t *testing.T) {
	got, ok := step(machineState{phase: PhaseCueFixation}, EventTimer, bounds{cues: 2, trials: 0})
	assert.True(t, ok)
	assert.Equal(t, PhaseBlockEndWait, got.phase)
}

func TestStartState(t *testing.T) {
	assert.Equal(t, PhaseCueDisplay, startState(bounds{cues: 6, trials: 70}).phase)
	// A block with no cues to show skips straight to the advance gate.
	assert.Equal(t, PhaseCueWait, startState(bounds{cues: 0, trials: 70}).phase)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "trialImage", PhaseTrialImage.String())
	assert.Equal(t, "blockEndWaitForAdvance", PhaseBlockEndWait.String())
	assert.Equal(t, "unknown", Phase(99).String())
}
