package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Nialit/ymx/internal/models"
	"github.com/Nialit/ymx/internal/tasks"
)

var _ tasks.DecisionSource = (*ResolvePicker)(nil)

// ResolvePicker implements [tasks.DecisionSource] with a per-record
// candidate list: arrow keys to move, enter to accept, s to skip, n to mark
// the track permanently unmatched, q to end the session.
type ResolvePicker struct{}

// NewResolvePicker creates an interactive candidate picker.
func NewResolvePicker() *ResolvePicker {
	return &ResolvePicker{}
}

// Decide runs one picker screen for the record and returns the operator's
// verdict.
func (p *ResolvePicker) Decide(ctx context.Context, record models.MatchRecord) (tasks.Choice, error) {
	model := newResolveModel(record)

	final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
	if err != nil {
		return tasks.Choice{Decision: tasks.DecisionQuit}, fmt.Errorf("picker failed: %w", err)
	}

	m, ok := final.(*resolveModel)
	if !ok {
		return tasks.Choice{Decision: tasks.DecisionQuit}, nil
	}
	return m.choice, nil
}

// candidateItem wraps [models.Candidate] to implement [list.Item].
type candidateItem struct {
	candidate models.Candidate
}

func (i candidateItem) FilterValue() string { return i.candidate.Title }
func (i candidateItem) Title() string       { return i.candidate.Title }
func (i candidateItem) Description() string {
	return fmt.Sprintf("%s • score %.2f", i.candidate.Artists, i.candidate.TitleScore)
}

// keyMap defines the key bindings for the picker.
type keyMap struct {
	accept  key.Binding
	skip    key.Binding
	noMatch key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		accept: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "accept"),
		),
		skip: key.NewBinding(
			key.WithKeys("s", "esc"),
			key.WithHelp("s", "skip"),
		),
		noMatch: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "no match"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// resolveModel is the bubbletea model for one record's picker screen.
type resolveModel struct {
	record models.MatchRecord
	list   list.Model
	keys   keyMap
	choice tasks.Choice
	width  int
}

func newResolveModel(record models.MatchRecord) *resolveModel {
	items := make([]list.Item, len(record.Candidates))
	for i, c := range record.Candidates {
		items[i] = candidateItem{candidate: c}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = fmt.Sprintf("%s - %s", record.SourceArtists, record.SourceTitle)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	return &resolveModel{
		record: record,
		list:   l,
		keys:   newKeyMap(),
		// Default outcome when the program exits without a verdict.
		choice: tasks.Choice{Decision: tasks.DecisionSkip},
	}
}

func (m *resolveModel) Init() tea.Cmd { return nil }

func (m *resolveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.list.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.accept):
			m.choice = tasks.Choice{Decision: tasks.DecisionSelect, Candidate: m.list.Index()}
			return m, tea.Quit
		case key.Matches(msg, m.keys.skip):
			m.choice = tasks.Choice{Decision: tasks.DecisionSkip}
			return m, tea.Quit
		case key.Matches(msg, m.keys.noMatch):
			m.choice = tasks.Choice{Decision: tasks.DecisionNoMatch}
			return m, tea.Quit
		case key.Matches(msg, m.keys.quit):
			m.choice = tasks.Choice{Decision: tasks.DecisionQuit}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *resolveModel) View() string {
	header := styles.title.Render("Resolve unmatched track")
	reason := styles.warn.Render(m.record.Reason)
	help := styles.help.Render("enter accept • s skip • n no match • q quit")
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", header, reason, m.list.View(), help)
}
