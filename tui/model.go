// Package tui is a terminal client for a single verification flow.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/open-rails/phoneverify/challenge"
	"github.com/open-rails/phoneverify/core"
)

// Model renders one flow and forwards key presses to its Controller.
// Provider-bound commands run as tea.Cmds so the UI stays responsive.
type Model struct {
	ctx   context.Context
	ctrl  *core.Controller
	phone textinput.Model
	snap  core.Snapshot

	pending bool
	status  string
	inbox   *Inbox

	width, height int
}

func New(ctx context.Context, ctrl *core.Controller) *Model {
	ti := textinput.New()
	ti.Placeholder = "98765 43210"
	ti.Prompt = "+" + ctrl.Session().Config().Phone.CountryCode + " "
	ti.CharLimit = 16
	ti.Width = 20
	ti.TextStyle = lipgloss.NewStyle().Foreground(ColorWhite)
	ti.PlaceholderStyle = DimStyle
	ti.Focus()
	return &Model{ctx: ctx, ctrl: ctrl, phone: ti, snap: ctrl.Snapshot()}
}

// WithInbox shows the last code delivered to inbox on the code screen.
func (m *Model) WithInbox(inbox *Inbox) *Model {
	m.inbox = inbox
	return m
}

// NewLocalController wires a flow to a DevSDK so challenges solve locally.
func NewLocalController(cfg core.Config, provider core.Provider) *core.Controller {
	target := cfg.RenderTarget
	if target == "" {
		target = core.DefaultRenderTarget
	}
	mgr := challenge.NewManager(challenge.NewDevSDK(target), target)
	if cfg.StaleAfter > 0 {
		mgr = mgr.WithStaleAfter(cfg.StaleAfter)
	}
	return core.NewController(core.NewSession(cfg, provider, mgr))
}

// Run starts the program and blocks until the user quits. It returns the
// Principal when the flow was verified. The cooldown timer's ticks drive the
// countdown redraws.
func Run(ctx context.Context, m *Model) (*core.Principal, error) {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	timer := m.ctrl.Session().Timer()
	timer.OnTick(cooldownTicks(p.Send))
	defer timer.OnTick(nil)
	defer m.ctrl.Close()

	if _, err := p.Run(); err != nil {
		return nil, err
	}
	return m.snap.Principal, nil
}

func (m *Model) Init() tea.Cmd { return textinput.Blink }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tickMsg:
		m.refresh()
		return m, nil
	case resultMsg:
		m.pending = false
		m.status = describe(msg.Err)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	var cmd tea.Cmd
	m.phone, cmd = m.phone.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		if m.snap.State == core.StateIdle || m.snap.State == core.StateVerified {
			return m, tea.Quit
		}
		m.ctrl.Cancel(m.ctx)
		m.pending = false
		m.status = ""
		m.phone.Focus()
		m.refresh()
		return m, nil
	}
	if m.pending {
		return m, nil
	}

	switch m.snap.State {
	case core.StateIdle:
		if msg.Type == tea.KeyEnter {
			raw := m.phone.Value()
			return m.run(func(ctx context.Context) error { return m.ctrl.SubmitPhone(ctx, raw) })
		}
		var cmd tea.Cmd
		m.phone, cmd = m.phone.Update(msg)
		return m, cmd

	case core.StateCodeCollection:
		return m.handleCodeKey(msg)

	case core.StateVerified:
		if msg.Type == tea.KeyEnter || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) handleCodeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		return m.run(m.ctrl.SubmitCode)
	case tea.KeyBackspace:
		f := m.snap.Focus
		if f < len(m.snap.Cells) && m.snap.Cells[f] != "" {
			m.ctrl.SetDigit(f, "")
		} else {
			m.ctrl.Backspace(f)
		}
		m.refresh()
		return m, nil
	case tea.KeyRunes:
		if msg.Paste || len(msg.Runes) > 1 {
			m.ctrl.Session().FillCode(string(msg.Runes))
			m.refresh()
			return m, nil
		}
		s := string(msg.Runes)
		if s == "r" {
			return m.run(m.ctrl.RequestResend)
		}
		m.ctrl.SetDigit(m.snap.Focus, s)
		m.refresh()
	}
	return m, nil
}

// run executes fn off the update loop and reports back with a resultMsg.
func (m *Model) run(fn func(ctx context.Context) error) (tea.Model, tea.Cmd) {
	m.pending = true
	m.status = ""
	m.phone.Blur()
	ctx := m.ctx
	return m, func() tea.Msg { return resultMsg{Err: fn(ctx)} }
}

func (m *Model) refresh() {
	m.snap = m.ctrl.Snapshot()
	if m.snap.State == core.StateIdle && !m.pending {
		m.phone.Focus()
	}
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("PHONE VERIFICATION"))
	b.WriteString("\n\n")

	var hints [][2]string
	switch m.snap.State {
	case core.StateIdle:
		b.WriteString(DimStyle.Render("Mobile number"))
		b.WriteString("\n\n    " + m.phone.View() + "\n")
		hints = [][2]string{{"Send code", "enter"}, {"Quit", "esc"}}
	case core.StateAwaitingChallenge, core.StateDispatching:
		b.WriteString(DimStyle.Render("Sending code…") + "\n")
		hints = [][2]string{{"Cancel", "esc"}}
	case core.StateCodeCollection, core.StateVerifying:
		b.WriteString(DimStyle.Render("Code sent to " + m.snap.Phone))
		b.WriteString("\n\n")
		b.WriteString(renderCells(m.snap.Cells, m.snap.Focus, m.snap.State == core.StateCodeCollection))
		b.WriteString("\n\n")
		switch {
		case m.snap.State == core.StateVerifying:
			b.WriteString(DimStyle.Render("Verifying…"))
		case m.snap.CanResend:
			b.WriteString(DimStyle.Render("Didn't get it? Press r to resend."))
		default:
			b.WriteString(DimStyle.Render(fmt.Sprintf("Resend available in %ds", m.snap.CooldownRemaining)))
		}
		b.WriteString("\n")
		if m.inbox != nil {
			if _, code := m.inbox.Last(); code != "" {
				b.WriteString("\n" + DimStyle.Render("dev inbox: ") + KeyStyle.Render(code) + "\n")
			}
		}
		hints = [][2]string{{"Verify", "enter"}, {"Resend", "r"}, {"Cancel", "esc"}}
	case core.StateVerified:
		b.WriteString(SuccessStyle.Render("✓ Verified"))
		if p := m.snap.Principal; p != nil {
			b.WriteString("\n\n" + DimStyle.Render("subject  ") + p.Subject)
			b.WriteString("\n" + DimStyle.Render("phone    ") + p.PhoneNumber)
		}
		b.WriteString("\n")
		hints = [][2]string{{"Done", "enter"}}
	}

	if m.status != "" {
		b.WriteString("\n" + ErrorStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n" + renderBottomBar(hints))

	if m.width == 0 || m.height == 0 {
		return b.String()
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, b.String())
}

// Snapshot is the state last rendered.
func (m *Model) Snapshot() core.Snapshot { return m.snap }

var messages = map[string]string{
	"widget_unavailable": "Security check unavailable. Try again.",
	"dispatch_failed":    "Could not send the code. Try again.",
	"invalid_code":       "Incorrect code. Request a new one.",
	"handle_expired":     "The code expired. Start again.",
	"confirm_failed":     "Could not verify right now. Request a new code.",
	"cooldown_active":    "Wait for the timer before resending.",
	"resend_required":    "Request a new code first.",
	"quota_exceeded":     "Too many codes sent to this number. Try later.",
	"busy":               "Please wait.",
}

// describe turns a command error into a status line.
func describe(err error) string {
	if err == nil || errors.Is(err, core.ErrCancelled) {
		return ""
	}
	var e *core.Error
	if errors.As(err, &e) && e.Kind == core.KindInvalidInput && e.Err != nil {
		return e.Err.Error()
	}
	code := core.ErrorCode(err)
	if s, ok := messages[code]; ok {
		return s
	}
	return strings.ReplaceAll(code, "_", " ")
}
