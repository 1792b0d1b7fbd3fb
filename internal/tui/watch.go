package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// JobRow is one job as shown in the watch dashboard.
type JobRow struct {
	ID      string
	Status  string
	Current int
	Total   int
	Message string
	Updated time.Time
}

// Terminal reports whether the row's job will never run again.
func (r JobRow) Terminal() bool {
	switch r.Status {
	case "completed", "cancelled", "failed":
		return true
	}
	return false
}

// WatchConfig wires the watch dashboard to its data source.
type WatchConfig struct {
	// RefreshFn fetches the current job listing.
	RefreshFn func() ([]JobRow, error)

	// ActionFn applies a control verb ("pause", "resume" or "cancel") to a
	// job.
	ActionFn func(action, jobID string) error

	// RefreshEvery is the auto-refresh interval; zero means 2s.
	RefreshEvery time.Duration
}

// RefreshMsg triggers a data refresh.
type RefreshMsg struct{}

// RowsMsg carries refreshed job rows.
type RowsMsg struct {
	Rows []JobRow
	Err  error
}

// ActionMsg carries the outcome of a control action.
type ActionMsg struct {
	Verb  string
	JobID string
	Err   error
}

// WatchModel is the BubbleTea model for the live jobs dashboard.
type WatchModel struct {
	rows        []JobRow
	selectedID  string
	selected    int
	width       int
	height      int
	spin        spinner.Model
	loading     bool
	autoRefresh bool
	err         error
	notice      string
	lastRefresh time.Time

	refreshFn    func() ([]JobRow, error)
	actionFn     func(action, jobID string) error
	refreshEvery time.Duration
}

// NewWatch creates a watch dashboard model.
func NewWatch(cfg WatchConfig) WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	every := cfg.RefreshEvery
	if every <= 0 {
		every = 2 * time.Second
	}

	return WatchModel{
		spin:         sp,
		autoRefresh:  true,
		loading:      true,
		refreshFn:    cfg.RefreshFn,
		actionFn:     cfg.ActionFn,
		refreshEvery: every,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		m.spin.Tick,
		refreshCmd(m.refreshFn),
		scheduleRefresh(m.refreshEvery),
	)
}

func refreshCmd(fn func() ([]JobRow, error)) tea.Cmd {
	return func() tea.Msg {
		if fn == nil {
			return RowsMsg{}
		}
		rows, err := fn()
		return RowsMsg{Rows: rows, Err: err}
	}
}

func scheduleRefresh(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg {
		return RefreshMsg{}
	})
}

func actionCmd(fn func(action, jobID string) error, verb, jobID string) tea.Cmd {
	return func() tea.Msg {
		if fn == nil {
			return ActionMsg{Verb: verb, JobID: jobID}
		}
		return ActionMsg{Verb: verb, JobID: jobID, Err: fn(verb, jobID)}
	}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case RefreshMsg:
		if m.autoRefresh {
			m.loading = true
			return m, tea.Batch(
				refreshCmd(m.refreshFn),
				scheduleRefresh(m.refreshEvery),
			)
		}
		return m, nil

	case RowsMsg:
		m.loading = false
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.rows = msg.Rows
		m.lastRefresh = time.Now()
		m.reselect()
		return m, nil

	case ActionMsg:
		if msg.Err != nil {
			m.notice = ErrorStyle.Render("✗ " + msg.Err.Error())
		} else {
			m.notice = SuccessStyle.Render("✓ " + pastTense(msg.Verb) + " " + shortID(msg.JobID))
		}
		m.loading = true
		return m, refreshCmd(m.refreshFn)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m WatchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case "r":
		m.loading = true
		return m, refreshCmd(m.refreshFn)

	case "a":
		m.autoRefresh = !m.autoRefresh
		if m.autoRefresh {
			return m, scheduleRefresh(m.refreshEvery)
		}
		return m, nil

	case "up", "k":
		if m.selected > 0 {
			m.selected--
			m.selectedID = m.rows[m.selected].ID
		}
		return m, nil

	case "down", "j":
		if m.selected < len(m.rows)-1 {
			m.selected++
			m.selectedID = m.rows[m.selected].ID
		}
		return m, nil

	case "enter":
		row, ok := m.selectedRow()
		if !ok {
			return m, nil
		}
		if row.Terminal() {
			m.notice = WarningStyle.Render("job " + shortID(row.ID) + " already " + row.Status)
			return m, nil
		}
		verb := "pause"
		if row.Status == "paused" {
			verb = "resume"
		}
		return m, actionCmd(m.actionFn, verb, row.ID)

	case "c":
		row, ok := m.selectedRow()
		if !ok {
			return m, nil
		}
		if row.Terminal() {
			m.notice = WarningStyle.Render("job " + shortID(row.ID) + " already " + row.Status)
			return m, nil
		}
		return m, actionCmd(m.actionFn, "cancel", row.ID)
	}

	return m, nil
}

// reselect keeps the cursor on the same job across refreshes; rows move
// around as their timestamps change.
func (m *WatchModel) reselect() {
	if len(m.rows) == 0 {
		m.selected = 0
		m.selectedID = ""
		return
	}
	for i, row := range m.rows {
		if row.ID == m.selectedID {
			m.selected = i
			return
		}
	}
	if m.selected >= len(m.rows) {
		m.selected = len(m.rows) - 1
	}
	m.selectedID = m.rows[m.selected].ID
}

func (m WatchModel) selectedRow() (JobRow, bool) {
	if m.selected < 0 || m.selected >= len(m.rows) {
		return JobRow{}, false
	}
	return m.rows[m.selected], true
}

func (m WatchModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var sections []string

	title := TitleStyle.Width(m.width).Align(lipgloss.Center).Render("VECIMPORT JOBS")
	sections = append(sections, title)

	sections = append(sections, m.renderTable())

	if row, ok := m.selectedRow(); ok {
		sections = append(sections, m.renderDetail(row))
	}

	help := helpBar([]helpItem{
		{"↑/↓", "select"},
		{"enter", "pause/resume"},
		{"c", "cancel"},
		{"r", "refresh"},
		{"a", "auto: " + onOff(m.autoRefresh)},
		{"q", "quit"},
	})
	sections = append(sections, help)

	sections = append(sections, m.renderStatusLine())

	return strings.Join(sections, "\n")
}

func (m WatchModel) renderTable() string {
	header := MutedStyle.Render(fmt.Sprintf("  %-10s %-12s %-11s %-8s %s", "JOB", "STATUS", "PROGRESS", "UPDATED", "MESSAGE"))

	if len(m.rows) == 0 {
		content := header + "\n" + MutedStyle.Render("  No jobs. Start one with 'vecimport import'.")
		return PanelStyle.Width(m.width - 2).Render(content)
	}

	lines := []string{header}
	msgWidth := max(m.width-50, 10)
	for i, row := range m.rows {
		cursor := "  "
		if i == m.selected {
			cursor = SelectedStyle.Render("▸ ")
		}
		status := StatusStyle(row.Status).Render(PadRight(row.Status, 12))
		progress := fmt.Sprintf("%d/%d", row.Current, row.Total)
		line := cursor + fmt.Sprintf("%-10s ", shortID(row.ID)) +
			status +
			fmt.Sprintf("%-11s ", progress) +
			fmt.Sprintf("%-8s ", ageString(row.Updated)) +
			MutedStyle.Render(Truncate(row.Message, msgWidth))
		lines = append(lines, line)
	}

	return PanelStyle.Width(m.width - 2).Render(strings.Join(lines, "\n"))
}

func (m WatchModel) renderDetail(row JobRow) string {
	bar := ProgressBar(row.Current, row.Total, 30)
	pct := 0.0
	if row.Total > 0 {
		pct = float64(row.Current) / float64(row.Total) * 100
	}

	lines := []string{
		LabelStyle.Render("Job:     ") + ValueStyle.Render(row.ID),
		LabelStyle.Render("Status:  ") + StatusStyle(row.Status).Render(row.Status),
		LabelStyle.Render("Progress:") + " " + bar + fmt.Sprintf(" %d/%d (%.0f%%)", row.Current, row.Total, pct),
	}
	if row.Message != "" {
		lines = append(lines, LabelStyle.Render("Last:    ")+ValueStyle.Render(row.Message))
	}

	return ActivePanelStyle.Width(m.width - 2).Render(strings.Join(lines, "\n"))
}

func (m WatchModel) renderStatusLine() string {
	var parts []string

	if m.loading {
		parts = append(parts, m.spin.View()+SpinnerStyle.Render("refreshing"))
	} else if m.err != nil {
		parts = append(parts, ErrorStyle.Render("error: "+m.err.Error()))
	} else {
		last := "never"
		if !m.lastRefresh.IsZero() {
			last = m.lastRefresh.Format("15:04:05")
		}
		parts = append(parts, MutedStyle.Render("updated "+last))
	}

	if m.notice != "" {
		parts = append(parts, m.notice)
	}

	return " " + strings.Join(parts, "  ")
}

type helpItem struct {
	key   string
	label string
}

func helpBar(items []helpItem) string {
	var parts []string
	for _, item := range items {
		key := SelectedStyle.Render("[" + item.key + "]")
		parts = append(parts, key+MutedStyle.Render(item.label))
	}
	return " " + strings.Join(parts, "  ")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func pastTense(verb string) string {
	switch verb {
	case "pause":
		return "paused"
	case "resume":
		return "resumed"
	case "cancel":
		return "cancelled"
	}
	return verb
}

// shortID trims a UUID down to its first block for display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return Truncate(id, 10)
}

// ageString formats how long ago t was, compactly.
func ageString(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return t.Format("Jan 02")
}

// RunWatch runs the watch dashboard until the user quits.
func RunWatch(cfg WatchConfig) error {
	p := tea.NewProgram(NewWatch(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
