// Package ui renders the experiment in the terminal with BubbleTea: cue
// display, stimulus presentation, fixation marks, pause overlay and the
// final results view. Keyboard input is routed to the session controller;
// the controller pushes snapshots back through a program relay.
package ui

import (
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/coglabtools/pmback/internal/capture"
	"github.com/coglabtools/pmback/internal/session"
)

// Controller is the slice of the session controller the UI drives.
// Satisfied by *session.Controller.
type Controller interface {
	Start()
	Advance()
	HandleResponse(key capture.Key)
	Pause()
	Resume()
	EndNow()
	Retry()
	Snapshot() session.Snapshot
}

// Keys maps the participant-facing keys.
type Keys struct {
	Repeat  string
	Cue     string
	Advance string
}

// SnapshotMsg carries a controller snapshot into the Update loop.
type SnapshotMsg session.Snapshot

// Relay forwards controller snapshots into a running program. The
// controller is constructed before the program exists, so the relay is
// attached afterwards; snapshots arriving earlier are dropped (the model
// pulls a fresh snapshot on Init).
//
// Notify runs under the controller lock, and Program.Send blocks until the
// event loop drains it, so the relay must never call Send from Notify: a
// keypress handled inside Update would otherwise wedge the controller
// against its own event loop. Notify only stores the latest snapshot and
// signals a forwarding goroutine; intermediate snapshots coalesce.
type Relay struct {
	mu   sync.Mutex
	p    *tea.Program
	last session.Snapshot

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRelay creates an unattached relay.
func NewRelay() *Relay {
	return &Relay{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Attach binds the relay to a program and starts the forwarder.
func (r *Relay) Attach(p *tea.Program) {
	r.mu.Lock()
	r.p = p
	r.mu.Unlock()
	go r.forward(p)
}

// Notify implements the controller's notify callback. It never blocks.
func (r *Relay) Notify(snap session.Snapshot) {
	r.mu.Lock()
	r.last = snap
	attached := r.p != nil
	r.mu.Unlock()
	if !attached {
		return
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Close stops the forwarder and waits for it to exit. Safe to call more
// than once, and before Attach.
func (r *Relay) Close() {
	r.once.Do(func() { close(r.stop) })
	r.mu.Lock()
	attached := r.p != nil
	r.mu.Unlock()
	if attached {
		<-r.done
	}
}

func (r *Relay) forward(p *tea.Program) {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case <-r.wake:
			r.mu.Lock()
			snap := r.last
			r.mu.Unlock()
			p.Send(SnapshotMsg(snap))
		}
	}
}

// Model is the BubbleTea model of the task runner.
type Model struct {
	ctrl Controller
	keys Keys

	snap     session.Snapshot
	width    int
	height   int
	quitting bool

	blockProgress progress.Model
}

// NewModel creates the UI over a controller.
func NewModel(ctrl Controller, keys Keys) Model {
	prog := progress.New(
		progress.WithGradient("#00ffff", "#ff00ff"),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)
	return Model{
		ctrl:          ctrl,
		keys:          keys,
		blockProgress: prog,
	}
}

// Init starts the session.
func (m Model) Init() tea.Cmd {
	return func() tea.Msg {
		m.ctrl.Start()
		return SnapshotMsg(m.ctrl.Snapshot())
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		m.snap = session.Snapshot(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "space" {
		key = " "
	}

	switch key {
	case "ctrl+c":
		// Teardown scores what was presented and cancels pending timers.
		if m.snap.Phase != session.PhaseDone {
			m.ctrl.EndNow()
		}
		m.quitting = true
		return m, tea.Quit

	case "ctrl+p":
		if m.snap.Paused {
			m.ctrl.Resume()
		} else {
			m.ctrl.Pause()
		}
		m.snap = m.ctrl.Snapshot()
		return m, nil

	case "ctrl+e":
		m.ctrl.EndNow()
		m.snap = m.ctrl.Snapshot()
		return m, nil
	}

	if m.snap.Phase == session.PhaseDone && (key == "q" || key == "enter") {
		m.quitting = true
		return m, tea.Quit
	}
	if m.snap.Phase == session.PhaseGenFailed && key == "r" {
		m.ctrl.Retry()
		m.snap = m.ctrl.Snapshot()
		return m, nil
	}

	switch key {
	case m.keys.Advance:
		m.ctrl.Advance()
	case m.keys.Repeat:
		m.ctrl.HandleResponse(capture.KeyRepeat)
	case m.keys.Cue:
		m.ctrl.HandleResponse(capture.KeyCue)
	default:
		// Every other key is ignored during the experiment.
	}
	m.snap = m.ctrl.Snapshot()
	return m, nil
}
