package cli

import (
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/leadscout/internal/client"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// eventMsg carries one pipeline event from the stream.
type eventMsg client.Event

// streamClosedMsg signals the event stream ended.
type streamClosedMsg struct{}

// runModel is the bubbletea model following one watch run via the event
// stream.
type runModel struct {
	events   <-chan client.Event
	watchID  string
	progress progress.Model
	theme    Theme

	started  bool
	sealed   bool
	quitting bool
	status   string
	fetched  int
	newPosts int
	analyzed int
	leads    int
}

func newRunModel(events <-chan client.Event, watchID string) runModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return runModel{
		events:   events,
		watchID:  watchID,
		progress: prog,
		theme:    defaultTheme,
		status:   "waiting",
	}
}

// waitForEvent blocks on the stream in a command goroutine.
func (m runModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(event)
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.progress.Init())
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case streamClosedMsg:
		m.sealed = true
		m.status = "disconnected"
		return m, tea.Quit

	case eventMsg:
		if msg.WatchID != m.watchID {
			return m, m.waitForEvent()
		}
		switch msg.Type {
		case "run_started":
			m.started = true
			m.status = "scanning"
		case "post_new":
			m.newPosts++
		case "post_analyzed":
			m.analyzed++
			m.status = "analyzing"
		case "lead_created":
			m.leads++
		case "run_sealed":
			m.sealed = true
			m.status = msg.Message
			m.fetched = msg.Fetched
			m.newPosts = msg.New
			m.analyzed = msg.Analyzed
			m.leads = msg.Leads
			return m, tea.Quit
		}
		return m, m.waitForEvent()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m runModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m runModel) renderContent() string {
	if m.sealed {
		return m.finalView()
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.status))

	var pct float64
	if m.newPosts > 0 {
		pct = float64(m.analyzed) / float64(m.newPosts)
	}
	bar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d new, %d analyzed, %d leads", m.newPosts, m.analyzed, m.leads)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, counts, hint)
}

func (m runModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nRun continues in background. Use 'leadscout runs' to check status.\n")
	}

	if m.status == "failed" {
		return m.theme.errorStyle().Render("\n✗ Run failed\n") +
			fmt.Sprintf("  Posts fetched: %d\n  New posts:     %d\n", m.fetched, m.newPosts)
	}

	out := m.theme.completedStyle().Render("✓ Run completed") + "\n\n"
	out += fmt.Sprintf("  Posts fetched:  %d\n", m.fetched)
	out += fmt.Sprintf("  New posts:      %d\n", m.newPosts)
	out += fmt.Sprintf("  Analyzed:       %d\n", m.analyzed)
	out += fmt.Sprintf("  Leads created:  %d\n", m.leads)
	return out
}

// followRun runs the interactive progress UI until the watch's run seals.
// Returns nil on success or Ctrl+C (background), error on run failure.
func followRun(events <-chan client.Event, watchID string) error {
	model := newRunModel(events, watchID)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(runModel); ok {
		if m.quitting {
			return nil
		}
		if m.status == "failed" {
			return fmt.Errorf("run failed")
		}
	}
	return nil
}

// waitTimeout bounds how long the non-interactive path waits for a seal.
const waitTimeout = 10 * time.Minute
