package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	orchestration "github.com/koscakluka/ema-assistant/core"
	"github.com/koscakluka/ema-assistant/core/events"
	"github.com/koscakluka/ema-assistant/core/recovery"
)

const micBarWidth = 24

type eventMsg struct{ event events.Event }

type actionDoneMsg struct {
	status string
	err    error
}

type styles struct {
	header   lipgloss.Style
	state    lipgloss.Style
	muted    lipgloss.Style
	screen   lipgloss.Style
	guidance lipgloss.Style
	title    lipgloss.Style
	err      lipgloss.Style
	help     lipgloss.Style
}

func newStyles() styles {
	accent := lipgloss.Color("#05d9e8")
	warn := lipgloss.Color("#ff2a6d")
	muted := lipgloss.Color("#6c7a89")

	return styles{
		header: lipgloss.NewStyle().Bold(true).Foreground(accent),
		state:  lipgloss.NewStyle().Foreground(accent),
		muted:  lipgloss.NewStyle().Foreground(muted),
		screen: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		guidance: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(warn).
			Padding(0, 1),
		title: lipgloss.NewStyle().Bold(true).Foreground(warn),
		err:   lipgloss.NewStyle().Foreground(warn),
		help:  lipgloss.NewStyle().Foreground(muted),
	}
}

type model struct {
	app *app

	input   textinput.Model
	spinner spinner.Model
	styles  styles
	width   int

	state      string
	busy       bool
	transcript string
	micLevel   float64

	screen      string
	screenIndex int
	guidance    *recovery.Guidance
	status      string
	statusErr   bool
}

func newModel(app *app) model {
	input := textinput.New()
	input.Placeholder = "Ask something, or /login, /new, /retry"
	input.CharLimit = 512
	input.Prompt = "› "
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := model{
		app:         app,
		input:       input,
		spinner:     sp,
		styles:      newStyles(),
		screenIndex: -1,
	}
	m.spinner.Style = m.styles.state

	if !app.auth.IsAuthenticated() {
		m.status = "Not logged in, type /login to start"
	}
	return m
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{event: event}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.app.events))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.applyEvent(msg.event)
		return m, waitForEvent(m.app.events)

	case actionDoneMsg:
		m.setStatus(msg.status, msg.err)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	supervisor := m.app.supervisor

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "enter":
		return m.submit()

	case "esc":
		supervisor.CancelActiveTurn()
		m.setStatus("Cancelled", nil)
		return m, nil

	case "ctrl+t":
		m.guidance = nil
		m.transcript = ""
		m.setStatus("", supervisor.StartVoiceTurn())
		return m, nil

	case "ctrl+w":
		supervisor.Wake()
		return m, nil

	case "ctrl+s":
		m.setStatus("", supervisor.StopMicrophone())
		return m, nil

	case "ctrl+r":
		m.setStatus("Retrying…", supervisor.Retry())
		return m, nil

	case "pgup":
		if !supervisor.Previous() {
			m.setStatus("Already at the oldest answer", nil)
		}
		return m, nil

	case "pgdown":
		if !supervisor.Next() {
			m.setStatus("Already at the newest answer", nil)
		}
		return m, nil

	case "up":
		if query, ok := supervisor.RecallPreviousQuery(); ok {
			m.input.SetValue(query)
			m.input.CursorEnd()
		}
		return m, nil

	case "down":
		if query, ok := supervisor.RecallNextQuery(); ok {
			m.input.SetValue(query)
			m.input.CursorEnd()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	supervisor.SetDraft(m.input.Value())
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	m.input.SetValue("")

	command, argument, _ := strings.Cut(value, " ")
	switch command {
	case "/login":
		if argument == "" {
			m.app.auth.RequestLogin()
			return m, m.showLoginURL()
		}
		return m, m.completeLogin(argument)

	case "/new":
		m.app.supervisor.ResetConversation()
		m.setStatus("Starting a new conversation", nil)
		return m, nil

	case "/retry":
		m.setStatus("Retrying…", m.app.supervisor.Retry())
		return m, nil
	}

	m.guidance = nil
	m.transcript = value
	m.setStatus("", m.app.supervisor.StartTextTurn(value))
	return m, nil
}

func (m model) showLoginURL() tea.Cmd {
	auth := m.app.auth
	return func() tea.Msg {
		url, ok := auth.LoginURL()
		if !ok {
			return actionDoneMsg{err: fmt.Errorf("no login url available")}
		}
		return actionDoneMsg{status: "Open " + url + " and paste the code with /login <code>"}
	}
}

func (m model) completeLogin(code string) tea.Cmd {
	auth := m.app.auth
	return func() tea.Msg {
		if err := auth.CompleteLogin(context.Background(), code); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Logged in"}
	}
}

func (m *model) setStatus(status string, err error) {
	if err != nil {
		m.status = err.Error()
		m.statusErr = true
		return
	}
	m.status = status
	m.statusErr = false
}

func (m *model) applyEvent(event events.Event) {
	switch event := event.(type) {
	case events.SessionStateChanged:
		m.state = event.State
		m.busy = !isTerminalState(event.State)
		if event.State == orchestration.SessionStreaming.String() {
			m.micLevel = 0
		}

	case events.TranscriptUpdated:
		m.transcript = event.Text

	case events.MicLevel:
		m.micLevel = event.Level

	case events.TurnCompleted:
		m.screenIndex = event.Index
		m.screen = event.Turn.SupplementalText

	case events.ScreenRendered:
		m.screenIndex = event.Index
		m.screen = event.Rendered

	case events.RenderFailed:
		m.screenIndex = event.Index
		m.screen = ""
		m.setStatus("", fmt.Errorf("could not show answer: %w", event.Err))

	case events.TurnFailed:
		if event.Err != nil {
			m.setStatus("", event.Err)
		}

	case events.RecoveryGuidance:
		guidance := event.Guidance
		m.guidance = &guidance

	case events.LoginRequested:
		m.setStatus("Login required, type /login to start", nil)
	}
}

func isTerminalState(state string) bool {
	switch state {
	case orchestration.SessionCompleted.String(),
		orchestration.SessionCancelled.String(),
		orchestration.SessionFailed.String():
		return true
	}
	return false
}

func (m model) View() string {
	var b strings.Builder

	header := m.styles.header.Render("ema")
	if m.state != "" {
		header += " " + m.styles.state.Render(m.state)
	}
	if m.busy {
		header += " " + m.spinner.View()
	}
	if total := m.app.supervisor.HistoryLen(); total > 0 && m.screenIndex >= 0 {
		header += m.styles.muted.Render(fmt.Sprintf("  answer %d/%d", m.screenIndex+1, total))
	}
	b.WriteString(header + "\n\n")

	if m.transcript != "" {
		b.WriteString(m.styles.muted.Render("you: ") + m.transcript + "\n")
	}
	if session := m.app.supervisor.ActiveSession(); session != nil && session.MicActive() {
		filled := int(m.micLevel * micBarWidth)
		b.WriteString(m.styles.state.Render(strings.Repeat("▮", filled)) +
			m.styles.muted.Render(strings.Repeat("▯", micBarWidth-filled)) + "\n")
	}

	if m.screen != "" {
		b.WriteString(m.styles.screen.Render(m.screen) + "\n")
	}

	if m.guidance != nil {
		body := m.styles.title.Render(m.guidance.Title) + "\n" + m.guidance.Details
		if len(m.guidance.Suggestions) > 0 {
			body += "\n" + m.styles.muted.Render("try: "+strings.Join(m.guidance.Suggestions, ", "))
		}
		b.WriteString(m.styles.guidance.Render(body) + "\n")
	}

	b.WriteString("\n" + m.input.View() + "\n")

	if m.status != "" {
		if m.statusErr {
			b.WriteString(m.styles.err.Render(m.status) + "\n")
		} else {
			b.WriteString(m.styles.muted.Render(m.status) + "\n")
		}
	}

	b.WriteString(m.styles.help.Render(
		"enter send • ctrl+t talk • ctrl+s stop mic • esc cancel • ctrl+r retry • pgup/pgdown history • ctrl+c quit"))
	return b.String()
}
