// Package tui provides the Bubble Tea capture interface.
package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/keyprint/internal/engine"
	"github.com/verte-zerg/keyprint/internal/features"
	"github.com/verte-zerg/keyprint/internal/prompt"
)

// Options configure a capture run.
type Options struct {
	// Title is shown above the prompt, e.g. "Registering alice".
	Title string
	// Paragraphs are cycled through, one per sample.
	Paragraphs []string
	// Samples is the number of accepted samples to collect.
	Samples int
	// MinSimilarity is the share of the prompt that must be typed correctly
	// for a sample to be accepted. Zero accepts anything.
	MinSimilarity float64
	// Now overrides the clock. Tests only.
	Now func() time.Time
}

type keyMap struct {
	Submit key.Binding
	Erase  key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Erase, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Submit: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "submit sample")),
		Erase:  key.NewBinding(key.WithKeys("backspace"), key.WithHelp("backspace", "erase")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "abort")),
	}
}

// Model implements the Bubble Tea capture UI. Terminals report key presses
// only, so the release of a key is taken to be the next press (or the
// submitting Esc).
type Model struct {
	engine     *engine.Engine
	paragraphs []string
	want       int
	minSim     float64
	title      string
	now        func() time.Time
	epoch      time.Time

	keys     keyMap
	help     help.Model
	progress progress.Model

	width  int
	height int

	target  []rune
	input   []rune
	held    string
	status  string
	warn    bool
	rejects int

	samples []features.FeatureVector
	aborted bool
}

// NewModel constructs a capture model that feeds eng.
func NewModel(eng *engine.Engine, opts Options) *Model {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	paragraphs := opts.Paragraphs
	if len(paragraphs) == 0 {
		paragraphs = prompt.Builtin()
	}
	m := &Model{
		engine:     eng,
		paragraphs: paragraphs,
		want:       max(opts.Samples, 1),
		minSim:     opts.MinSimilarity,
		title:      opts.Title,
		now:        now,
		epoch:      now(),
		keys:       defaultKeyMap(),
		help:       help.New(),
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
	m.startSample()
	return m
}

// Samples returns the accepted feature vectors in capture order.
func (m *Model) Samples() []features.FeatureVector {
	return append([]features.FeatureVector(nil), m.samples...)
}

// Aborted reports whether the user quit before collecting every sample.
func (m *Model) Aborted() bool {
	return m.aborted
}

// Rejected returns how many samples were thrown away for lack of data.
func (m *Model) Rejected() int {
	return m.rejects
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		ts := m.now().Sub(m.epoch).Seconds()
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.aborted = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Submit):
			return m, m.submit(ts)
		case key.Matches(msg, m.keys.Erase):
			m.press("backspace", ts)
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
			return m, nil
		}
		switch msg.Type {
		case tea.KeySpace:
			m.typeRunes([]rune{' '}, ts)
		case tea.KeyRunes:
			m.typeRunes(msg.Runes, ts)
		}
		return m, nil
	default:
		return m, nil
	}
}

func (m *Model) typeRunes(runes []rune, ts float64) {
	for _, r := range runes {
		m.press(string(r), ts)
		if len(m.input) < len(m.target) {
			m.input = append(m.input, r)
		}
	}
	if len(m.input) == len(m.target) {
		m.setStatus("Text complete, press esc to submit.", false)
	}
}

// press releases the previously held key and presses id at ts.
func (m *Model) press(id string, ts float64) {
	if m.held != "" {
		m.engine.OnKeyUp(m.held, ts)
	}
	m.engine.OnKeyDown(id, ts)
	m.held = id
}

func (m *Model) submit(ts float64) tea.Cmd {
	if m.held != "" {
		m.engine.OnKeyUp(m.held, ts)
		m.held = ""
	}
	if sim := prompt.Similarity(string(m.input), string(m.target)); sim < m.minSim {
		m.rejects++
		if _, err := m.engine.EndSession(); err != nil {
			// The sample is discarded either way.
			_ = err
		}
		m.restartSample(fmt.Sprintf("Only %.0f%% of the text matched, %.0f%% needed. Try again.", sim*100, m.minSim*100))
		return nil
	}
	fv, err := m.engine.EndSession()
	switch {
	case errors.Is(err, features.ErrInsufficientData):
		m.rejects++
		m.restartSample(fmt.Sprintf("Need at least %d keystrokes, try again.", features.MinEvents))
		return nil
	case err != nil:
		m.restartSample(fmt.Sprintf("Sample failed: %v", err))
		return nil
	}
	m.samples = append(m.samples, fv)
	if len(m.samples) >= m.want {
		return tea.Quit
	}
	m.startSample()
	m.setStatus(fmt.Sprintf("Sample %d saved.", len(m.samples)), false)
	return nil
}

func (m *Model) startSample() {
	m.target = []rune(prompt.Pick(m.paragraphs, len(m.samples)))
	m.input = nil
	m.held = ""
	m.status = ""
	m.engine.StartSession()
}

func (m *Model) restartSample(reason string) {
	m.startSample()
	m.setStatus(reason, true)
}

func (m *Model) setStatus(msg string, warn bool) {
	m.status = msg
	m.warn = warn
}

// View implements tea.Model.
func (m *Model) View() string {
	contentWidth := 60
	if m.width > 0 {
		contentWidth = max(int(float64(m.width)*0.70), 1)
	}

	header := titleStyle.Render(fmt.Sprintf("%s · sample %d of %d", m.title, min(len(m.samples)+1, m.want), m.want))
	text := lipgloss.NewStyle().Width(contentWidth).Render(wrapCells(styleCells(m.target, m.input), contentWidth))
	status := statusStyle.Render(m.status)
	if m.warn {
		status = warnStyle.Render(m.status)
	}
	bar := m.progress.ViewAs(float64(len(m.samples)) / float64(m.want))

	content := strings.Join([]string{header, "", text, "", status, bar, m.help.View(m.keys)}, "\n")
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}
