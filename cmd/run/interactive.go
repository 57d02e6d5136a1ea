package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/chat-runtime/bridge"
	"github.com/wippyai/chat-runtime/chat/chattest"
	"github.com/wippyai/chat-runtime/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	paramStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	cfg *config.Config
	err error

	host   *bridge.Host
	remote *chattest.Remote
	stop   func()
	conn   uint64
	flow   uint64

	actions  []actionInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	result   string
	state    modelState
}

// actionInfo is one callable step of the verification flow.
type actionInfo struct {
	name   string
	params []paramInfo
	run    func(ctx context.Context, env callEnv, args []string) callResultMsg
}

// callEnv is the snapshot an action runs against, taken before the
// command leaves the update loop.
type callEnv struct {
	host   *bridge.Host
	remote *chattest.Remote
	conn   uint64
	flow   uint64
}

type paramInfo struct {
	name        string
	placeholder string
}

type modelState int

const (
	stateSelectAction modelState = iota
	stateInputArgs
	stateShowResult
)

type setupMsg struct {
	err    error
	host   *bridge.Host
	remote *chattest.Remote
	stop   func()
	conn   uint64
}

type callResultMsg struct {
	err     error
	result  string
	newFlow uint64
}

func newInteractiveModel(cfg *config.Config) *interactiveModel {
	return &interactiveModel{
		cfg:     cfg,
		actions: demoActions(),
		state:   stateSelectAction,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.setup
}

// setup opens a fake server, a host, and one connection whose remote
// side answers every verification request positively.
func (m *interactiveModel) setup() tea.Msg {
	srv := chattest.NewServer()
	host, err := bridge.NewHost(bridge.Config{Transports: srv, Workers: m.cfg.Workers})
	if err != nil {
		return setupMsg{err: err}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := host.ConnectChat(ctx)
	if err != nil {
		host.Close()
		return setupMsg{err: err}
	}
	remote, err := srv.NextRemote(ctx)
	if err != nil {
		host.Close()
		return setupMsg{err: err}
	}
	stop := answerRegistration(remote)

	return setupMsg{host: host, remote: remote, stop: stop, conn: conn}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break // typing into a field
			}
			if m.stop != nil {
				m.stop()
			}
			if m.host != nil {
				m.host.Close()
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectAction && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectAction && m.selected < len(m.actions)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectAction:
				if m.host == nil {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callAction()
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callAction()

			case stateShowResult:
				m.state = stateSelectAction
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectAction
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectAction
				m.result = ""
				m.err = nil
			}
		}

	case setupMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.host = msg.host
		m.remote = msg.remote
		m.stop = msg.stop
		m.conn = msg.conn

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		if msg.newFlow != 0 {
			m.flow = msg.newFlow
		}
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	act := m.actions[m.selected]
	m.inputs = make([]textinput.Model, len(act.params))
	for i, p := range act.params {
		ti := textinput.New()
		ti.Placeholder = p.placeholder
		ti.Prompt = p.name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// callAction snapshots the model and runs the selected action off the
// update loop. Empty inputs fall back to their placeholders.
func (m *interactiveModel) callAction() tea.Cmd {
	env := callEnv{host: m.host, remote: m.remote, conn: m.conn, flow: m.flow}
	act := m.actions[m.selected]

	args := make([]string, len(m.inputs))
	for i, in := range m.inputs {
		args[i] = in.Value()
		if args[i] == "" {
			args[i] = act.params[i].placeholder
		}
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return act.run(ctx, env, args)
	}
}

func demoActions() []actionInfo {
	return []actionInfo{
		{
			name: "create session",
			params: []paramInfo{
				{name: "number", placeholder: "+18005550123"},
			},
			run: func(ctx context.Context, env callEnv, args []string) callResultMsg {
				future, err := env.host.CreateRegistrationSession(ctx, env.conn, args[0], "", "", "", "")
				if err != nil {
					return callResultMsg{err: err}
				}
				flow, err := env.host.AwaitRegistration(ctx, future)
				if err != nil {
					return callResultMsg{err: err}
				}
				doc, err := env.host.RegistrationState(flow)
				if err != nil {
					return callResultMsg{err: err}
				}
				return callResultMsg{result: string(doc), newFlow: flow}
			},
		},
		{
			name: "request code",
			params: []paramInfo{
				{name: "transport", placeholder: "sms"},
				{name: "languages", placeholder: "en-US"},
			},
			run: func(ctx context.Context, env callEnv, args []string) callResultMsg {
				if env.flow == 0 {
					return callResultMsg{err: fmt.Errorf("no session yet; create one first")}
				}
				future, err := env.host.RegistrationRequestCode(ctx, env.flow, args[0], "chat-runtime demo", args[1])
				if err != nil {
					return callResultMsg{err: err}
				}
				return awaitSessionResult(ctx, env.host, future)
			},
		},
		{
			name: "submit code",
			params: []paramInfo{
				{name: "code", placeholder: "123456"},
			},
			run: func(ctx context.Context, env callEnv, args []string) callResultMsg {
				if env.flow == 0 {
					return callResultMsg{err: fmt.Errorf("no session yet; create one first")}
				}
				future, err := env.host.RegistrationSubmitCode(ctx, env.flow, args[0])
				if err != nil {
					return callResultMsg{err: err}
				}
				return awaitSessionResult(ctx, env.host, future)
			},
		},
		{
			name: "solve captcha",
			params: []paramInfo{
				{name: "token", placeholder: "captcha-token"},
			},
			run: func(ctx context.Context, env callEnv, args []string) callResultMsg {
				if env.flow == 0 {
					return callResultMsg{err: fmt.Errorf("no session yet; create one first")}
				}
				future, err := env.host.RegistrationUpdateSession(ctx, env.flow, args[0], "", "", "")
				if err != nil {
					return callResultMsg{err: err}
				}
				return awaitSessionResult(ctx, env.host, future)
			},
		},
		{
			name: "session state",
			run: func(ctx context.Context, env callEnv, _ []string) callResultMsg {
				if env.flow == 0 {
					return callResultMsg{err: fmt.Errorf("no session yet; create one first")}
				}
				doc, err := env.host.RegistrationState(env.flow)
				if err != nil {
					return callResultMsg{err: err}
				}
				return callResultMsg{result: string(doc)}
			},
		},
		{
			name: "receive message",
			params: []paramInfo{
				{name: "text", placeholder: "hello from the server"},
			},
			run: func(ctx context.Context, env callEnv, args []string) callResultMsg {
				if _, err := env.remote.SendMessage([]byte(args[0]), uint64(time.Now().UnixMilli())); err != nil {
					return callResultMsg{err: err}
				}
				doc, err := env.host.NextEvent(ctx, env.conn)
				if err != nil {
					return callResultMsg{err: err}
				}
				var ev struct {
					Envelope []byte `json:"envelope"`
					Ack      uint64 `json:"ack"`
				}
				if err := json.Unmarshal(doc, &ev); err != nil {
					return callResultMsg{err: err}
				}
				if err := env.host.AckServerMessage(ctx, ev.Ack); err != nil {
					return callResultMsg{err: err}
				}
				return callResultMsg{result: fmt.Sprintf("%s (acked)", ev.Envelope)}
			},
		},
		{
			name: "connection info",
			run: func(ctx context.Context, env callEnv, _ []string) callResultMsg {
				doc, err := env.host.ConnectionInfo(env.conn)
				if err != nil {
					return callResultMsg{err: err}
				}
				return callResultMsg{result: string(doc)}
			},
		},
	}
}

func awaitSessionResult(ctx context.Context, host *bridge.Host, future uint64) callResultMsg {
	doc, err := host.AwaitSession(ctx, future)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: string(doc)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.host == nil {
		return "Connecting..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Chat Runtime"))
	b.WriteString(" ")
	b.WriteString(string(m.cfg.Environment))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectAction:
		b.WriteString("Select an action:\n\n")
		for i, act := range m.actions {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + m.formatAction(act)))
			} else {
				b.WriteString(cursor + m.formatAction(act))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		act := m.actions[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", actionStyle.Render(act.name)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		act := m.actions[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", actionStyle.Render(act.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatAction(act actionInfo) string {
	var params []string
	for _, p := range act.params {
		params = append(params, paramStyle.Render(p.name))
	}
	return actionStyle.Render(act.name) + "(" + strings.Join(params, ", ") + ")"
}

func runInteractive(cfg *config.Config) error {
	p := tea.NewProgram(newInteractiveModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
