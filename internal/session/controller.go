// Package session drives the timed presentation loop: cue display, trial
// images, fixation intervals, pause/resume and early exit, with scoring at
// every block boundary. The loop is a finite-state machine; all suspension
// points are either a single pending timer or an explicit wait for the
// advance key.
package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coglabtools/pmback/internal/capture"
	"github.com/coglabtools/pmback/internal/scoring"
	"github.com/coglabtools/pmback/internal/trials"
)

// Timing holds the dwell durations of the presentation loop.
type Timing struct {
	// Cue is the dwell of each pre-block cue image.
	Cue time.Duration

	// CueFixation is the fixation dwell between the cue gate and trial 0.
	CueFixation time.Duration

	// Trial is the stimulus dwell of an ordinary trial.
	Trial time.Duration

	// CueTrial is the stimulus dwell when the trial is a PM cue.
	CueTrial time.Duration

	// Fixation is the inter-trial fixation dwell.
	Fixation time.Duration

	// ResponseAdvance is the shortened remaining dwell after a response
	// arrives during the stimulus.
	ResponseAdvance time.Duration
}

// DefaultTiming returns the canonical protocol durations.
func DefaultTiming() Timing {
	return Timing{
		Cue:             2000 * time.Millisecond,
		CueFixation:     1000 * time.Millisecond,
		Trial:           1000 * time.Millisecond,
		CueTrial:        2500 * time.Millisecond,
		Fixation:        500 * time.Millisecond,
		ResponseAdvance: 200 * time.Millisecond,
	}
}

// PlanEntry is one category's share of the session.
type PlanEntry struct {
	Category trials.Category
	Blocks   int
}

// BlockSource produces the trial set for a block. Satisfied by
// *trials.Generator.
type BlockSource interface {
	Block(cat trials.Category, block int) (*trials.Set, error)
}

// Metrics receives counters from a running session. A nil Metrics is a
// no-op. Implemented by the prometheus registry.
type Metrics interface {
	TrialPresented(category string)
	ResponseRecorded(key string)
	BlockScored(category string)
}

// Snapshot is the controller's observable state, emitted to the notify
// callback after every transition.
type Snapshot struct {
	Phase  Phase
	Paused bool

	Category      trials.Category
	CategoryIndex int
	CategoryCount int
	Block         int
	BlockCount    int

	CueIndex int
	CueCount int
	CueRef   string

	TrialIndex int
	TrialCount int
	ImageRef   string
	IsCueTrial bool
	Presented  int

	Warnings []trials.Warning
	GenError string

	Summary *scoring.Summary
}

// Options configures a Controller.
type Options struct {
	SessionID string
	Plan      []PlanEntry
	Timing    Timing
	Source    BlockSource
	Scheduler Scheduler
	Logger    *zap.Logger
	Metrics   Metrics

	// Notify is called with a snapshot after every observable change, while
	// the controller lock is held. It must not call back into the
	// controller synchronously and must not block: anything the callback
	// waits on stalls every timer, keypress and Snapshot call behind the
	// lock. Hand the snapshot off and return.
	Notify func(Snapshot)

	// OnFinal receives the aggregate result exactly once, on finalization.
	// Same reentrancy and no-blocking rules as Notify.
	OnFinal func(scoring.Summary)

	// Preload, when set, is invoked on a fresh goroutine with the image
	// refs of each newly generated block.
	Preload func(refs []string)
}

// Controller owns the presentation loop. All mutation happens under one
// lock with a strict operation order: cancel timers, record the response,
// then schedule the next transition. A generation counter discards timers
// that fire after being superseded.
type Controller struct {
	mu sync.Mutex

	opts    Options
	log     *zap.Logger
	metrics Metrics

	st        machineState
	planIdx   int
	blockIdx  int
	set       *trials.Set
	presented int
	shortened bool
	paused    bool
	genErr    error

	timerGen      uint64
	pendingCancel func()

	responses    *capture.Map
	agg          *scoring.Aggregate
	blockStarted time.Time
	summary      *scoring.Summary
}

// NewController validates options and builds an idle controller.
func NewController(opts Options) (*Controller, error) {
	if len(opts.Plan) == 0 {
		return nil, errors.New("session plan is empty")
	}
	for _, p := range opts.Plan {
		if p.Blocks <= 0 {
			return nil, errors.New("plan entries need at least one block")
		}
	}
	if opts.Source == nil {
		return nil, errors.New("block source is required")
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TimerScheduler{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	return &Controller{
		opts:      opts,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		responses: capture.NewMap(),
		agg:       scoring.NewAggregate(opts.SessionID),
	}, nil
}

// Start generates the first block and enters cue display.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.phase != PhaseIdle {
		return
	}
	c.startBlock()
}

// Advance delivers the participant's advance signal. Meaningful at the cue
// gate and at block end; ignored elsewhere and while paused.
func (c *Controller) Advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	if c.st.phase == PhaseBlockEndWait {
		c.scoreAndAdvanceBlock()
		return
	}
	c.dispatch(EventAdvance)
}

// HandleResponse records a response key for the current trial. Only
// meaningful during the trial image or trial fixation, and never while
// paused. Recording is idempotent per trial and key. The first response
// during the stimulus shortens the remaining dwell to a fixed delay.
func (c *Controller) HandleResponse(key capture.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	if c.st.phase != PhaseTrialImage && c.st.phase != PhaseTrialFixation {
		return
	}

	// Strict order: cancel the pending dwell first so a timer firing in the
	// same tick cannot advance the index out from under the recording.
	shorten := c.st.phase == PhaseTrialImage && !c.shortened
	if shorten {
		c.cancelTimer()
	}

	if c.responses.Record(c.st.trialIdx, key) {
		if c.metrics != nil {
			c.metrics.ResponseRecorded(string(key))
		}
		c.log.Debug("response recorded",
			zap.Int("trial", c.st.trialIdx),
			zap.String("key", string(key)))
	}

	if shorten {
		c.shortened = true
		c.schedule(c.opts.Timing.ResponseAdvance)
	}
	c.notify()
}

// Pause freezes the loop: the pending timer is cancelled and cannot fire
// into a stale state. Input is ignored until Resume.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.st.phase == PhaseDone || c.st.phase == PhaseIdle {
		return
	}
	c.paused = true
	c.cancelTimer()
	c.log.Info("session paused", zap.String("phase", c.st.phase.String()))
	c.notify()
}

// Resume unfreezes the loop, re-arming the frozen phase's full dwell.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	if d := c.phaseDuration(); d > 0 {
		c.schedule(d)
	}
	c.log.Info("session resumed", zap.String("phase", c.st.phase.String()))
	c.notify()
}

// EndNow short-circuits the session: the current block is scored over the
// trials presented so far and the aggregate is finalized immediately.
func (c *Controller) EndNow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.phase == PhaseDone || c.st.phase == PhaseIdle {
		return
	}
	c.cancelTimer()
	if c.set != nil && c.presented > 0 {
		r := scoring.ScoreBlock(c.set, c.presented, c.responses)
		c.agg.Fold(r)
		if c.metrics != nil {
			c.metrics.BlockScored(string(c.set.Category))
		}
		c.log.Info("block scored early",
			zap.String("category", string(c.set.Category)),
			zap.Int("block", c.blockIdx),
			zap.Int("presented", c.presented))
	}
	c.finalize()
}

// Retry re-attempts block generation after a generation fault.
func (c *Controller) Retry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.phase != PhaseGenFailed {
		return
	}
	c.startBlock()
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// --- internals, all called with c.mu held ---

func (c *Controller) startBlock() {
	c.responses.Reset()
	c.presented = 0
	c.shortened = false
	c.genErr = nil

	cat := c.opts.Plan[c.planIdx].Category
	set, err := c.opts.Source.Block(cat, c.blockIdx)
	if err != nil {
		c.genErr = err
		c.st = machineState{phase: PhaseGenFailed}
		c.log.Error("trial generation failed",
			zap.String("category", string(cat)),
			zap.Int("block", c.blockIdx),
			zap.Error(err))
		c.notify()
		return
	}
	c.set = set
	for _, w := range set.Warnings {
		c.log.Warn("degraded block", zap.String("code", string(w.Code)), zap.String("detail", w.Message))
	}

	if c.opts.Preload != nil {
		refs := set.ImageRefs()
		go c.opts.Preload(refs)
	}

	c.st = startState(c.bounds())
	c.log.Info("block started",
		zap.String("category", string(cat)),
		zap.Int("block", c.blockIdx),
		zap.Int("trials", len(set.Trials)),
		zap.Int("cues", len(set.Cues)))

	if c.st.phase == PhaseCueDisplay {
		c.schedule(c.opts.Timing.Cue)
	}
	c.notify()
}

func (c *Controller) dispatch(ev Event) {
	prev := c.st
	next, ok := step(c.st, ev, c.bounds())
	if !ok {
		return
	}
	c.st = next
	c.afterTransition(prev)
	c.notify()
}

// afterTransition applies the side effects of entering the new state.
func (c *Controller) afterTransition(prev machineState) {
	switch c.st.phase {
	case PhaseCueDisplay:
		c.schedule(c.opts.Timing.Cue)

	case PhaseCueFixation:
		c.schedule(c.opts.Timing.CueFixation)

	case PhaseTrialImage:
		if prev.phase != PhaseTrialImage || prev.trialIdx != c.st.trialIdx {
			// The index becomes current: drop any stale entry before a new
			// response can land on it.
			c.responses.Drop(c.st.trialIdx)
			c.shortened = false
			c.presented++
			if c.st.trialIdx == 0 {
				c.blockStarted = time.Now()
			}
			if c.metrics != nil {
				c.metrics.TrialPresented(string(c.set.Category))
			}
		}
		c.schedule(c.trialDuration())

	case PhaseTrialFixation:
		c.schedule(c.opts.Timing.Fixation)

	case PhaseCueWait, PhaseBlockEndWait:
		// Wait states hold no timer; cancellation happened on state exit.
	}
}

func (c *Controller) scoreAndAdvanceBlock() {
	r := scoring.ScoreBlock(c.set, len(c.set.Trials), c.responses)
	c.agg.Fold(r)
	if c.metrics != nil {
		c.metrics.BlockScored(string(c.set.Category))
	}
	c.log.Info("block scored",
		zap.String("category", string(c.set.Category)),
		zap.Int("block", c.blockIdx),
		zap.Int("nback_correct", r.NBackCorrect),
		zap.Int("nback_missed", r.NBackMissed),
		zap.Int("pm_correct", r.PMCueCorrect),
		zap.Int("pm_missed", r.PMCueMissed),
		zap.Duration("elapsed", time.Since(c.blockStarted)))

	c.blockIdx++
	if c.blockIdx >= c.opts.Plan[c.planIdx].Blocks {
		c.blockIdx = 0
		c.planIdx++
	}
	if c.planIdx >= len(c.opts.Plan) {
		c.finalize()
		return
	}
	c.startBlock()
}

func (c *Controller) finalize() {
	if c.summary != nil {
		return
	}
	c.st = machineState{phase: PhaseDone}
	summary := c.agg.Summarize()
	c.summary = &summary
	c.log.Info("session finalized",
		zap.String("session", summary.SessionID),
		zap.String("nback_accuracy", summary.NBackAccuracy),
		zap.String("pm_accuracy", summary.PMCueAccuracy))
	c.notify()
	if c.opts.OnFinal != nil {
		c.opts.OnFinal(summary)
	}
}

// schedule cancels any pending timer and arms a fresh one for the current
// generation. A superseded timer that fires late sees a stale generation
// and is discarded.
func (c *Controller) schedule(d time.Duration) {
	c.cancelTimer()
	gen := c.timerGen
	c.pendingCancel = c.opts.Scheduler.After(d, func() { c.onTimer(gen) })
}

func (c *Controller) cancelTimer() {
	if c.pendingCancel != nil {
		c.pendingCancel()
		c.pendingCancel = nil
	}
	c.timerGen++
}

func (c *Controller) onTimer(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.timerGen || c.paused {
		return
	}
	c.pendingCancel = nil
	c.dispatch(EventTimer)
}

func (c *Controller) bounds() bounds {
	if c.set == nil {
		return bounds{}
	}
	return bounds{cues: len(c.set.Cues), trials: len(c.set.Trials)}
}

func (c *Controller) trialDuration() time.Duration {
	if c.currentTrial().IsCue {
		return c.opts.Timing.CueTrial
	}
	return c.opts.Timing.Trial
}

func (c *Controller) currentTrial() trials.Trial {
	if c.set == nil || c.st.trialIdx >= len(c.set.Trials) {
		return trials.Trial{}
	}
	return c.set.Trials[c.st.trialIdx]
}

func (c *Controller) phaseDuration() time.Duration {
	switch c.st.phase {
	case PhaseCueDisplay:
		return c.opts.Timing.Cue
	case PhaseCueFixation:
		return c.opts.Timing.CueFixation
	case PhaseTrialImage:
		return c.trialDuration()
	case PhaseTrialFixation:
		return c.opts.Timing.Fixation
	}
	return 0
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:         c.st.phase,
		Paused:        c.paused,
		CategoryIndex: c.planIdx,
		CategoryCount: len(c.opts.Plan),
		Block:         c.blockIdx,
		CueIndex:      c.st.cueIdx,
		TrialIndex:    c.st.trialIdx,
		Presented:     c.presented,
	}
	if c.planIdx < len(c.opts.Plan) {
		snap.Category = c.opts.Plan[c.planIdx].Category
		snap.BlockCount = c.opts.Plan[c.planIdx].Blocks
	}
	if c.set != nil {
		snap.CueCount = len(c.set.Cues)
		snap.TrialCount = len(c.set.Trials)
		snap.Warnings = c.set.Warnings
		if c.st.cueIdx < len(c.set.Cues) {
			snap.CueRef = c.set.Cues[c.st.cueIdx].ImageRef
		}
		if c.st.trialIdx < len(c.set.Trials) {
			t := c.set.Trials[c.st.trialIdx]
			snap.ImageRef = t.ImageRef
			snap.IsCueTrial = t.IsCue
		}
	}
	if c.genErr != nil {
		snap.GenError = c.genErr.Error()
	}
	snap.Summary = c.summary
	return snap
}

func (c *Controller) notify() {
	if c.opts.Notify != nil {
		c.opts.Notify(c.snapshotLocked())
	}
}
