package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskhub/internal/keys"
	"github.com/nhle/taskhub/internal/model"
	"github.com/nhle/taskhub/internal/theme"
)

const maxBackoff = 30 * time.Second

// connectMsg asks the model to (re)open the stream.
type connectMsg struct{}

// eventMsg carries one stream event. gen ties it to the connection that
// produced it so events from a replaced connection are ignored.
type eventMsg struct {
	gen   int
	event Event
}

// endedMsg reports that a connection finished.
type endedMsg struct {
	gen int
	err error
}

// Model is the watch view: a scrolling tail of live notifications with a
// connection status line.
type Model struct {
	ctx    context.Context
	client *Client
	keys   *keys.KeyMap

	help     help.Model
	spinner  spinner.Model
	viewport viewport.Model

	gen      int
	incoming chan tea.Msg
	cancel   context.CancelFunc

	connected bool
	attempt   int
	err       error

	items         []model.Notification
	width, height int
}

// New creates the watch view. Cancelling ctx ends any open connection.
func New(ctx context.Context, client *Client, k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:      ctx,
		client:   client,
		keys:     k,
		help:     help.New(),
		spinner:  sp,
		viewport: viewport.New(width, 1),
	}
	m.setSize(width, height)
	m.refreshViewport()
	return m
}

// Init opens the first connection.
func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return connectMsg{} }
}

// Update handles messages for the watch view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		m.refreshViewport()
		return m, nil

	case connectMsg:
		return m, m.connect()

	case eventMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.handleEvent(msg.event)
		return m, waitForMsg(m.incoming)

	case endedMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m, m.handleEnded(msg.err)

	case spinner.TickMsg:
		if m.connected {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.disconnect()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Clear):
		m.items = nil
		m.refreshViewport()
		return m, nil

	case key.Matches(msg, m.keys.Reconnect):
		return m, m.connect()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.setSize(m.width, m.height)
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// connect replaces any open connection with a new one.
func (m *Model) connect() tea.Cmd {
	m.disconnect()

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.gen++
	m.connected = false

	gen := m.gen
	ch := make(chan tea.Msg, 64)
	m.incoming = ch

	client := m.client
	go func() {
		defer close(ch)
		err := client.Stream(ctx, func(ev Event) {
			select {
			case ch <- eventMsg{gen: gen, event: ev}:
			case <-ctx.Done():
			}
		})
		select {
		case ch <- endedMsg{gen: gen, err: err}:
		case <-ctx.Done():
		}
	}()

	return tea.Batch(m.spinner.Tick, waitForMsg(ch))
}

func (m *Model) disconnect() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Model) handleEvent(ev Event) {
	if ev.Notification == nil {
		if ev.Type == "connected" {
			m.connected = true
			m.attempt = 0
			m.err = nil
		}
		return
	}
	m.items = append(m.items, *ev.Notification)
	m.refreshViewport()
}

// handleEnded schedules a reconnect with exponential backoff, except when
// the token was rejected.
func (m *Model) handleEnded(err error) tea.Cmd {
	m.connected = false
	m.cancel = nil
	m.err = err
	if errors.Is(err, ErrUnauthorized) {
		return nil
	}
	m.attempt++
	return tea.Tick(backoff(m.attempt), func(time.Time) tea.Msg { return connectMsg{} })
}

func backoff(attempt int) time.Duration {
	d := time.Second
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// waitForMsg returns a command that waits for the next message from a
// connection.
func waitForMsg(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *Model) setSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width

	// Header, status line and help.
	chrome := 2 + lipgloss.Height(m.help.View(m.keys))
	m.viewport.Width = width
	m.viewport.Height = max(height-chrome, 3)
}

// refreshViewport re-renders the notification list and scrolls to bottom.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderItems())
	m.viewport.GotoBottom()
}

func (m Model) renderItems() string {
	if len(m.items) == 0 {
		return theme.HelpStyle.Render("Waiting for notifications...")
	}

	timeStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)

	lines := make([]string, 0, len(m.items))
	for _, n := range m.items {
		line := fmt.Sprintf("%s %s %s",
			timeStyle.Render(n.CreatedAt.Local().Format("15:04:05")),
			theme.NotificationStyle(n.Type).Render(n.Type),
			titleStyle.Render(n.Title),
		)
		if n.Message != "" {
			line += "  " + n.Message
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) statusLine() string {
	switch {
	case m.connected:
		return lipgloss.NewStyle().Foreground(theme.ColorGreen).Render("● live") +
			fmt.Sprintf("  %d received", len(m.items))
	case errors.Is(m.err, ErrUnauthorized):
		return theme.ErrorStyle.Render("API token rejected; run `taskhub user add` for a new one")
	case m.err != nil:
		return theme.ErrorStyle.Render("disconnected: "+m.err.Error()) +
			theme.HelpStyle.Render(fmt.Sprintf("  retrying in %s", backoff(m.attempt)))
	default:
		return m.spinner.View() + " connecting..."
	}
}

// View renders the watch view.
func (m Model) View() string {
	header := theme.HeaderStyle.Render("taskhub watch")
	status := theme.StatusBarStyle.Width(m.width).Render(m.statusLine())

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		m.viewport.View(),
		status,
		m.help.View(m.keys),
	)
}

// Err returns the last connection error.
func (m Model) Err() error {
	return m.err
}
