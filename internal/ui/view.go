package ui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/lipgloss"

	"github.com/coglabtools/pmback/internal/scoring"
	"github.com/coglabtools/pmback/internal/session"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	cueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("226")).
			Padding(1, 4)

	stimulusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(2, 6)

	fixationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// View renders the current phase. A panic in any renderer is caught here
// so a bad frame degrades to an error screen instead of killing the
// session; the next snapshot redraws normally.
func (m Model) View() (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = m.center(
				errorStyle.Render("render fault") + "\n\n" +
					dimStyle.Render(fmt.Sprint(r)) + "\n\n" +
					labelStyle.Render("the session is still running; the next frame will redraw"))
		}
	}()

	if m.quitting {
		return ""
	}

	var body string
	switch m.snap.Phase {
	case session.PhaseIdle:
		body = dimStyle.Render("preparing...")
	case session.PhaseCueDisplay:
		body = m.renderCue()
	case session.PhaseCueWait:
		body = m.renderCueWait()
	case session.PhaseCueFixation, session.PhaseTrialFixation:
		body = fixationStyle.Render("+")
	case session.PhaseTrialImage:
		body = m.renderTrial()
	case session.PhaseBlockEndWait:
		body = m.renderBlockEnd()
	case session.PhaseGenFailed:
		body = m.renderGenError()
	case session.PhaseDone:
		return m.renderResults()
	default:
		body = dimStyle.Render(m.snap.Phase.String())
	}

	if m.snap.Paused {
		body = pausedStyle.Render("⏸ PAUSED") + "\n\n" + body + "\n\n" +
			m.footer("ctrl+p", "resume")
	}
	return m.center(body)
}

func (m Model) renderCue() string {
	header := titleStyle.Render("Remember this image") + "  " +
		dimStyle.Render(fmt.Sprintf("(%d/%d)", m.snap.CueIndex+1, m.snap.CueCount))
	return header + "\n\n" + cueStyle.Render(m.snap.CueRef)
}

func (m Model) renderCueWait() string {
	lines := []string{
		titleStyle.Render("Block " + fmt.Sprintf("%d", m.snap.Block+1)),
		"",
		labelStyle.Render("Press ") + footerKeyStyle.Render(m.keyName(m.keys.Repeat)) +
			labelStyle.Render(" when an image repeats the previous one."),
		labelStyle.Render("Press ") + footerKeyStyle.Render(m.keyName(m.keys.Cue)) +
			labelStyle.Render(" when you see one of the remembered images."),
		"",
		m.footer(m.keyName(m.keys.Advance), "begin"),
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderTrial() string {
	// The participant must not be able to tell cue trials apart, so the
	// stimulus box is identical for every trial.
	box := stimulusStyle.Render(m.snap.ImageRef)

	pct := 0.0
	if m.snap.TrialCount > 0 {
		pct = float64(m.snap.Presented) / float64(m.snap.TrialCount)
	}
	bar := m.blockProgress.ViewAs(pct)
	counter := dimStyle.Render(fmt.Sprintf("%d/%d", m.snap.Presented, m.snap.TrialCount))

	return box + "\n\n" + bar + " " + counter
}

func (m Model) renderBlockEnd() string {
	done := m.snap.CategoryIndex*m.snap.BlockCount + m.snap.Block + 1
	total := m.snap.CategoryCount * m.snap.BlockCount
	return titleStyle.Render("Block complete") + "\n\n" +
		labelStyle.Render(fmt.Sprintf("%d of %d blocks finished", done, total)) + "\n\n" +
		m.footer(m.keyName(m.keys.Advance), "continue")
}

func (m Model) renderGenError() string {
	return errorStyle.Render("✗ could not build the next block") + "\n\n" +
		dimStyle.Render(m.snap.GenError) + "\n\n" +
		footerStyle.Render(footerKeyStyle.Render("r")+" retry   "+footerKeyStyle.Render("ctrl+c")+" abort")
}

func (m Model) renderResults() string {
	s := m.snap.Summary
	if s == nil {
		return m.center(dimStyle.Render("scoring..."))
	}

	row := func(label string, correct, missed, fa int) string {
		return labelStyle.Render(fmt.Sprintf("%-12s", label)) +
			valueStyle.Render(fmt.Sprintf("%3d hit", correct)) + "  " +
			valueStyle.Render(fmt.Sprintf("%3d missed", missed)) + "  " +
			valueStyle.Render(fmt.Sprintf("%3d false", fa))
	}

	lines := []string{
		titleStyle.Render("Session results") + "  " + dimStyle.Render(s.SessionID),
		"",
		row("1-back", s.NBackCorrect, s.NBackMissed, s.NBackFalseAlarms),
		row("cues", s.PMCueCorrect, s.PMCueMissed, s.PMCueFalseAlarms),
		"",
		labelStyle.Render("1-back accuracy  ") + valueStyle.Render(s.NBackAccuracy+"%"),
		labelStyle.Render("cue accuracy     ") + valueStyle.Render(s.PMCueAccuracy+"%"),
		labelStyle.Render("images shown     ") + valueStyle.Render(fmt.Sprintf("%d", s.TotalImages)),
		"",
		labelStyle.Render("per-block 1-back accuracy"),
		accuracySparkline(s.SessionResults),
		"",
		m.footer("q", "exit"),
	}
	return m.center(containerStyle.Render(strings.Join(lines, "\n")))
}

// accuracySparkline charts per-block 1-back accuracy across the session.
func accuracySparkline(blocks []scoring.BlockResult) string {
	if len(blocks) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight, sparkline.WithMaxValue(100))
	for _, b := range blocks {
		denom := b.NBackCorrect + b.NBackMissed
		v := 0.0
		if denom > 0 {
			v = float64(b.NBackCorrect) / float64(denom) * 100
		}
		spark.Push(v)
	}
	return sparklineStyle.Render(spark.View())
}

func (m Model) footer(key, action string) string {
	return footerStyle.Render(footerKeyStyle.Render(key) + " " + action)
}

func (m Model) keyName(k string) string {
	if k == " " {
		return "space"
	}
	return k
}

func (m Model) center(body string) string {
	if m.width <= 0 || m.height <= 0 {
		return body
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
}
