// Package scoring replays a trial list against the recorded responses and
// tallies hits, misses and false alarms for the 1-back task and the
// prospective-memory cue task.
package scoring

import (
	"fmt"
	"time"

	"github.com/coglabtools/pmback/internal/capture"
	"github.com/coglabtools/pmback/internal/trials"
)

// BlockResult is the immutable score of one block, computed once at block
// end and folded into the session aggregate.
type BlockResult struct {
	Category trials.Category `json:"category"`
	Block    int             `json:"block"`

	NBackCorrect     int `json:"nBackCorrect"`
	NBackMissed      int `json:"nBackMissed"`
	NBackFalseAlarms int `json:"nBackFalseAlarms"`

	PMCueCorrect     int `json:"pmCueCorrect"`
	PMCueMissed      int `json:"pmCueMissed"`
	PMCueFalseAlarms int `json:"pmCueFalseAlarms"`

	TotalImages       int `json:"totalImages"`
	TotalPMCues       int `json:"totalPMCues"`
	TotalNBackMatches int `json:"totalNBackMatches"`
}

// ScoreBlock scores the first `presented` trials of a set against the
// response map. Pass len(set.Trials) for a completed block; an early exit
// passes the number of trials actually shown so unvisited indices are never
// consulted.
func ScoreBlock(set *trials.Set, presented int, responses *capture.Map) BlockResult {
	r := BlockResult{Category: set.Category, Block: set.Block}

	if presented > len(set.Trials) {
		presented = len(set.Trials)
	}
	seq := set.Trials[:presented]

	for i, t := range seq {
		r.TotalImages++

		repeat := i >= 1 && t.ID == seq[i-1].ID
		if repeat {
			r.TotalNBackMatches++
			if responses.Has(i, capture.KeyRepeat) {
				r.NBackCorrect++
			} else {
				r.NBackMissed++
			}
		} else if responses.Has(i, capture.KeyRepeat) {
			r.NBackFalseAlarms++
		}

		if t.IsCue {
			r.TotalPMCues++
			if responses.Has(i, capture.KeyCue) {
				r.PMCueCorrect++
			} else {
				r.PMCueMissed++
			}
		} else if responses.Has(i, capture.KeyCue) {
			r.PMCueFalseAlarms++
		}
	}
	return r
}

// Accuracy formats correct/(correct+missed) as a percentage with two
// decimals. A zero denominator reads "0.00".
func Accuracy(correct, missed int) string {
	total := correct + missed
	if total == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(correct)/float64(total)*100)
}

// Aggregate folds block results into session totals. Owned by the session
// controller; consumed by the result display and the export collaborator.
type Aggregate struct {
	SessionID   string
	StartedAt   time.Time
	CompletedAt time.Time

	NBackCorrect     int
	NBackMissed      int
	NBackFalseAlarms int

	PMCueCorrect     int
	PMCueMissed      int
	PMCueFalseAlarms int

	TotalImages       int
	TotalPMCues       int
	TotalNBackMatches int

	Blocks []BlockResult
}

// NewAggregate creates an empty session accumulator.
func NewAggregate(sessionID string) *Aggregate {
	return &Aggregate{SessionID: sessionID, StartedAt: time.Now()}
}

// Fold adds one block result to the running session totals.
func (a *Aggregate) Fold(r BlockResult) {
	a.NBackCorrect += r.NBackCorrect
	a.NBackMissed += r.NBackMissed
	a.NBackFalseAlarms += r.NBackFalseAlarms
	a.PMCueCorrect += r.PMCueCorrect
	a.PMCueMissed += r.PMCueMissed
	a.PMCueFalseAlarms += r.PMCueFalseAlarms
	a.TotalImages += r.TotalImages
	a.TotalPMCues += r.TotalPMCues
	a.TotalNBackMatches += r.TotalNBackMatches
	a.Blocks = append(a.Blocks, r)
}

// Summary is the finalized result object handed to the result-display and
// export collaborators.
type Summary struct {
	SessionID string `json:"sessionId"`

	NBackCorrect     int `json:"nBackCorrect"`
	NBackMissed      int `json:"nBackMissed"`
	NBackFalseAlarms int `json:"nBackFalseAlarms"`

	PMCueCorrect     int `json:"pmCueCorrect"`
	PMCueMissed      int `json:"pmCueMissed"`
	PMCueFalseAlarms int `json:"pmCueFalseAlarms"`

	TotalImages       int `json:"totalImages"`
	TotalPMCues       int `json:"totalPMCues"`
	TotalNBackMatches int `json:"totalNBackMatches"`

	NBackAccuracy string `json:"nBackAccuracy"`
	PMCueAccuracy string `json:"pmCueAccuracy"`

	SessionResults []BlockResult `json:"sessionResults"`

	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// Summarize stamps the completion time and emits the final summary.
func (a *Aggregate) Summarize() Summary {
	a.CompletedAt = time.Now()
	return Summary{
		SessionID:         a.SessionID,
		NBackCorrect:      a.NBackCorrect,
		NBackMissed:       a.NBackMissed,
		NBackFalseAlarms:  a.NBackFalseAlarms,
		PMCueCorrect:      a.PMCueCorrect,
		PMCueMissed:       a.PMCueMissed,
		PMCueFalseAlarms:  a.PMCueFalseAlarms,
		TotalImages:       a.TotalImages,
		TotalPMCues:       a.TotalPMCues,
		TotalNBackMatches: a.TotalNBackMatches,
		NBackAccuracy:     Accuracy(a.NBackCorrect, a.NBackMissed),
		PMCueAccuracy:     Accuracy(a.PMCueCorrect, a.PMCueMissed),
		SessionResults:    a.Blocks,
		StartedAt:         a.StartedAt,
		CompletedAt:       a.CompletedAt,
	}
}
