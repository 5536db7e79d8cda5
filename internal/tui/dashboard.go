// Package tui provides the dispatcher's terminal dashboard: live worker,
// client and room tables driven purely by the dispatcher's event
// subscription and snapshot reads.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/gomoku-dispatch/internal/dispatch"
)

const maxLogLines = 200

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statsStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	focusStyle = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("62"))
	blurStyle  = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
	logStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// pane indexes the focusable tables.
type pane int

const (
	paneWorkers pane = iota
	paneClients
	paneRooms
	paneCount
)

// eventMsg wraps a dispatcher event for the Bubble Tea loop.
type eventMsg struct {
	evt dispatch.Event
}

// tickMsg drives the once-a-second duration refresh.
type tickMsg time.Time

// Model is the dashboard's Bubble Tea model.
type Model struct {
	server *dispatch.Server
	events chan dispatch.Event

	workers table.Model
	clients table.Model
	rooms   table.Model
	focus   pane

	stats    dispatch.Stats
	logLines []string
	quitting bool
}

// NewModel builds the dashboard and subscribes it to the server's events.
// Events are buffered; if the dashboard falls behind, the oldest event is
// dropped so the dispatcher is never blocked by rendering.
func NewModel(server *dispatch.Server) *Model {
	events := make(chan dispatch.Event, 256)
	server.Subscribe(func(evt dispatch.Event) {
		select {
		case events <- evt:
		default:
			select {
			case <-events:
			default:
			}
			select {
			case events <- evt:
			default:
			}
		}
	})

	m := &Model{
		server:  server,
		events:  events,
		workers: newTable([]table.Column{
			{Title: "Worker", Width: 24},
			{Title: "Endpoint", Width: 22},
			{Title: "Status", Width: 14},
			{Title: "Task", Width: 18},
			{Title: "Done", Width: 6},
		}),
		clients: newTable([]table.Column{
			{Title: "Client", Width: 18},
			{Title: "Player", Width: 20},
			{Title: "Auth", Width: 6},
		}),
		rooms: newTable([]table.Column{
			{Title: "Room", Width: 16},
			{Title: "Player 1", Width: 16},
			{Title: "Player 2", Width: 16},
			{Title: "Duration", Width: 10},
		}),
	}
	m.workers.Focus()
	m.refresh()
	return m
}

func newTable(cols []table.Column) table.Model {
	return table.New(
		table.WithColumns(cols),
		table.WithHeight(6),
	)
}

// Init starts the event listener and the refresh ticker.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.listenEvents(), tickCmd())
}

func (m *Model) listenEvents() tea.Cmd {
	return func() tea.Msg {
		return eventMsg{evt: <-m.events}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m.applyEvent(msg.evt)
		m.refresh()
		return m, m.listenEvents()

	case tickMsg:
		// Room durations are derived from start time; re-render once a
		// second so they advance.
		m.refresh()
		return m, tickCmd()
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.setFocus((m.focus + 1) % paneCount)
		return m, nil

	case "d":
		m.disconnectSelected()
		return m, nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case paneWorkers:
		m.workers, cmd = m.workers.Update(msg)
	case paneClients:
		m.clients, cmd = m.clients.Update(msg)
	case paneRooms:
		m.rooms, cmd = m.rooms.Update(msg)
	}
	return m, cmd
}

func (m *Model) setFocus(p pane) {
	m.focus = p
	m.workers.Blur()
	m.clients.Blur()
	m.rooms.Blur()
	switch p {
	case paneWorkers:
		m.workers.Focus()
	case paneClients:
		m.clients.Focus()
	case paneRooms:
		m.rooms.Focus()
	}
}

// disconnectSelected force-closes the selected worker or client.
func (m *Model) disconnectSelected() {
	switch m.focus {
	case paneWorkers:
		if row := m.workers.SelectedRow(); row != nil {
			m.server.DisconnectWorker(dispatch.WorkerID(row[0]))
		}
	case paneClients:
		if row := m.clients.SelectedRow(); row != nil {
			m.server.DisconnectClient(dispatch.ClientID(row[0]))
		}
	}
}

func (m *Model) applyEvent(evt dispatch.Event) {
	switch e := evt.(type) {
	case dispatch.StatsEvent:
		m.stats = e.Stats
	case dispatch.LogEvent:
		m.logLines = append(m.logLines, e.Message)
		if len(m.logLines) > maxLogLines {
			m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
		}
	}
}

// refresh re-reads the server snapshots into the tables.
func (m *Model) refresh() {
	m.stats = m.server.Stats()

	workers := m.server.Registry.ListWorkers()
	wrows := make([]table.Row, 0, len(workers))
	for _, w := range workers {
		task := w.CurrentTask
		if task == "" {
			task = "-"
		}
		wrows = append(wrows, table.Row{
			string(w.ID), w.Endpoint, w.Status.String(), task, fmt.Sprintf("%d", w.TasksCompleted),
		})
	}
	m.workers.SetRows(wrows)

	clients := m.server.Sessions.ListClients()
	crows := make([]table.Row, 0, len(clients))
	for _, c := range clients {
		name := c.PlayerName
		if name == "" {
			name = "-"
		}
		auth := "no"
		if c.Authenticated {
			auth = "yes"
		}
		crows = append(crows, table.Row{string(c.ID), name, auth})
	}
	m.clients.SetRows(crows)

	rooms := m.server.Rooms.ActiveRooms()
	rrows := make([]table.Row, 0, len(rooms))
	for _, r := range rooms {
		d := r.Duration()
		rrows = append(rrows, table.Row{
			string(r.ID), r.Player1Name, r.Player2Name,
			fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60),
		})
	}
	m.rooms.SetRows(rrows)
}

// View renders the dashboard.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	header := titleStyle.Render("gomokud dispatcher") + "  " +
		statsStyle.Render(fmt.Sprintf("clients: %d  workers: %d  rooms: %d",
			m.stats.Clients, m.stats.Workers, m.stats.ActiveRooms))

	panes := []string{
		m.renderPane(paneWorkers, "Workers", m.workers),
		m.renderPane(paneClients, "Clients", m.clients),
		m.renderPane(paneRooms, "Rooms", m.rooms),
	}

	logTail := ""
	if n := len(m.logLines); n > 0 {
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, line := range m.logLines[start:] {
			logTail += logStyle.Render(line) + "\n"
		}
	}

	help := helpStyle.Render("tab: switch pane • d: disconnect selected • q: quit")

	return header + "\n\n" +
		lipgloss.JoinVertical(lipgloss.Left, panes...) + "\n" +
		logTail + help + "\n"
}

func (m *Model) renderPane(p pane, title string, t table.Model) string {
	style := blurStyle
	if m.focus == p {
		style = focusStyle
	}
	return titleStyle.Render(title) + "\n" + style.Render(t.View())
}
