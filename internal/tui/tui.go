// Package tui implements the full-screen session event watcher.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/clauderon/clauderon-go/events"
	"github.com/clauderon/clauderon-go/transport"
)

// maxLines bounds the scrollback kept in memory.
const maxLines = 500

type model struct {
	viewport viewport.Model
	spin     spinner.Model

	client *events.Client
	ch     chan tea.Msg

	baseURL   string
	lines     []string
	count     int
	connected bool
	ready     bool
}

func newModel(opts events.Options, log zerolog.Logger) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	client := events.NewClient(opts, log)

	// Callbacks fire on the socket read goroutine. Drop rather than block
	// when the UI falls behind; the read loop must never stall.
	ch := make(chan tea.Msg, 64)
	push := func(msg tea.Msg) {
		select {
		case ch <- msg:
		default:
		}
	}

	client.OnConnected(func() { push(connectedMsg{}) })
	client.OnDisconnected(func() { push(disconnectedMsg{}) })
	client.OnError(func(err error) { push(errMsg(err)) })
	client.OnEvent(func(raw json.RawMessage) {
		p, err := events.ParsePayload(raw)
		if err != nil {
			push(errMsg(err))
			return
		}
		push(eventMsg{payload: p})
	})

	base := opts.BaseURL
	if base == "" {
		base = transport.DefaultBaseURL
	}

	return model{
		spin:    sp,
		client:  client,
		ch:      ch,
		baseURL: base,
		lines:   []string{},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.connect, m.waitForEvent)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 1
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.viewport.YPosition = headerHeight
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.client.Disconnect()
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if !m.connected {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, tea.Batch(cmd, vpCmd)
		}

	case connectedMsg:
		m.connected = true
		m.appendLine(okStyle.Render("connected"))
		return m, m.waitForEvent

	case disconnectedMsg:
		m.connected = false
		m.appendLine(warnStyle.Render("disconnected, retrying..."))
		return m, tea.Batch(m.waitForEvent, m.spin.Tick)

	case eventMsg:
		m.count++
		m.appendLine(renderEvent(msg.payload))
		return m, m.waitForEvent

	case errMsg:
		m.appendLine(errStyle.Render(fmt.Sprintf("error: %v", error(msg))))
		return m, m.waitForEvent
	}

	return m, vpCmd
}

func (m *model) appendLine(line string) {
	stamp := timeStyle.Render(time.Now().Format("15:04:05"))
	m.lines = append(m.lines, fmt.Sprintf("%s %s", stamp, line))
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf("%s\n%s\n%s", m.headerView(), m.viewport.View(), m.footerView())
}

func (m model) headerView() string {
	title := titleStyle.Render("Clauderon Events")
	status := okStyle.Render("connected")
	if !m.connected {
		status = warnStyle.Render(m.spin.View() + "connecting")
	}
	width := max(0, m.viewport.Width-lipgloss.Width(title)-lipgloss.Width(status)-2)
	line := timeStyle.Render(strings.Repeat("─", width))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, " "+line+" ", status)
}

func (m model) footerView() string {
	help := fmt.Sprintf("%d events · %s · up/down scroll · q quit", m.count, m.baseURL)
	return infoStyle.Width(m.viewport.Width).Render(help)
}

func renderEvent(p *events.Payload) string {
	style := typeStyle
	switch p.Type {
	case events.EventSessionCreated:
		style = okStyle
	case events.EventSessionFailed:
		style = errStyle
	case events.EventSessionDeleted:
		style = warnStyle
	}
	return fmt.Sprintf("%s %s", style.Render(p.Type), p.Summary())
}

// Messages
type connectedMsg struct{}
type disconnectedMsg struct{}
type eventMsg struct{ payload *events.Payload }
type errMsg error

// Commands
func (m model) connect() tea.Msg {
	m.client.Connect(context.Background())
	return nil
}

func (m model) waitForEvent() tea.Msg {
	return <-m.ch
}

// Run opens the full-screen event watcher and blocks until the user quits.
func Run(opts events.Options, log zerolog.Logger) error {
	p := tea.NewProgram(newModel(opts, log), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
