// Package tui is the terminal operator console: login and first-run setup,
// the fleet inventory, and the rule editor with its assistant panel. It is a
// thin rendering layer; all editing semantics live in the editor and chat
// packages.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ayman-m/yaragent/internal/apiclient"
	"github.com/ayman-m/yaragent/internal/config"
	"github.com/ayman-m/yaragent/internal/domain"
)

type screen int

const (
	screenLoading screen = iota
	screenSetup
	screenLogin
	screenAgents
	screenRules
)

// Messages flowing back into the update loop from async work.
type (
	setupStatusMsg struct {
		status *domain.SetupStatus
		err    error
	}
	authDoneMsg struct{ err error }
	agentsMsg   struct {
		agents []domain.Agent
		err    error
	}
	profileMsg struct {
		profile *domain.AgentProfile
		err     error
	}
	pushDoneMsg struct {
		agentID string
		result  *domain.PushResult
		err     error
	}
	pollTickMsg     struct{}
	workflowSyncMsg struct{}
)

// confirmModal is a yes/no prompt overlaying the current screen.
type confirmModal struct {
	prompt   string
	selected int // 0 = yes, 1 = no
	onYes    func() tea.Cmd
}

// Model is the root console model.
type Model struct {
	cfg    *config.Config
	client *apiclient.Client
	styles Styles

	program *tea.Program

	width  int
	height int
	screen screen

	// auth forms
	fields      []*textField
	focusIdx    int
	authBusy    bool
	authErr     string
	needsSetup  bool
	wantsToken  bool
	statusError string

	// agents
	agents    []domain.Agent
	agentIdx  int
	agentsErr string
	profile   *domain.AgentProfile
	pushNote  string

	// rules
	rules *rulesView

	confirm *confirmModal
}

// NewModel creates the console model. The session store decides the first
// screen: a persisted token skips straight to the fleet view.
func NewModel(cfg *config.Config, client *apiclient.Client) *Model {
	m := &Model{
		cfg:    cfg,
		client: client,
		styles: newStyles(),
		screen: screenLoading,
	}
	m.rules = newRulesView(m)
	return m
}

// Run starts the program and blocks until the console exits.
func (m *Model) Run() error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.program = p
	_, err := p.Run()
	m.rules.close()
	return err
}

// send posts a message into the update loop from another goroutine.
func (m *Model) send(msg tea.Msg) {
	if m.program != nil {
		m.program.Send(msg)
	}
}

func (m *Model) Init() tea.Cmd {
	if m.client.Session().Token() != "" {
		m.screen = screenAgents
		return tea.Batch(m.loadAgentsCmd(), m.pollCmd())
	}
	return m.checkSetupCmd()
}

func (m *Model) checkSetupCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RequestTimeout)
		defer cancel()
		status, err := m.client.CheckSetupStatus(ctx)
		return setupStatusMsg{status: status, err: err}
	}
}

func (m *Model) loadAgentsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RequestTimeout)
		defer cancel()
		agents, err := m.client.ListAgents(ctx)
		return agentsMsg{agents: agents, err: err}
	}
}

func (m *Model) pollCmd() tea.Cmd {
	return tea.Tick(m.cfg.AgentPollEvery, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

func (m *Model) loadProfileCmd(agentID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RequestTimeout)
		defer cancel()
		profile, err := m.client.GetAgentProfile(ctx, agentID)
		return profileMsg{profile: profile, err: err}
	}
}

func (m *Model) pushRuleCmd(agentID, ruleText string) tea.Cmd {
	return func() tea.Msg {
		// Push waits for the agent's compile ack; give it more room than a
		// plain request.
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RequestTimeout+20*time.Second)
		defer cancel()
		result, err := m.client.PushRule(ctx, agentID, ruleText)
		return pushDoneMsg{agentID: agentID, result: result, err: err}
	}
}

// sessionLost reports whether err left us unauthenticated, and if so resets
// to the login screen. Any 401 clears the store inside the client, so an
// empty token after a failure means the session is gone everywhere.
func (m *Model) sessionLost(err error) bool {
	if err == nil || m.client.Session().Token() != "" {
		return false
	}
	m.screen = screenLogin
	m.buildLoginForm()
	m.authErr = "Session expired. Sign in again."
	return true
}

func (m *Model) buildLoginForm() {
	m.fields = []*textField{
		{label: "Username"},
		{label: "Password", masked: true},
	}
	m.focusIdx = 0
	m.authBusy = false
}

func (m *Model) buildSetupForm() {
	m.fields = []*textField{
		{label: "Admin username"},
		{label: "Admin password", masked: true},
		{label: "Organization"},
		{label: "Environment"},
		{label: "Rule namespace"},
	}
	if m.wantsToken {
		m.fields = append(m.fields, &textField{label: "Setup token", masked: true})
	}
	m.focusIdx = 0
	m.authBusy = false
}

func (m *Model) submitAuthCmd() tea.Cmd {
	if m.screen == screenSetup {
		username := m.fields[0].value
		password := m.fields[1].value
		settings := domain.SetupSettings{
			OrgName:              m.fields[2].value,
			Environment:          m.fields[3].value,
			DefaultRuleNamespace: m.fields[4].value,
		}
		setupToken := ""
		if m.wantsToken {
			setupToken = m.fields[5].value
		}
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RequestTimeout)
			defer cancel()
			return authDoneMsg{err: m.client.SetupAdmin(ctx, username, password, settings, setupToken)}
		}
	}
	username := m.fields[0].value
	password := m.fields[1].value
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RequestTimeout)
		defer cancel()
		return authDoneMsg{err: m.client.Login(ctx, username, password)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case setupStatusMsg:
		if msg.err != nil {
			m.statusError = fmt.Sprintf("Cannot reach control plane: %v", msg.err)
			m.screen = screenLogin
			m.buildLoginForm()
			return m, nil
		}
		m.wantsToken = msg.status.SetupTokenRequired
		if msg.status.Initialized {
			m.screen = screenLogin
			m.buildLoginForm()
		} else {
			m.needsSetup = true
			m.screen = screenSetup
			m.buildSetupForm()
		}
		return m, nil

	case authDoneMsg:
		m.authBusy = false
		if msg.err != nil {
			m.authErr = msg.err.Error()
			return m, nil
		}
		m.authErr = ""
		m.screen = screenAgents
		return m, tea.Batch(m.loadAgentsCmd(), m.pollCmd())

	case agentsMsg:
		if msg.err != nil {
			if m.sessionLost(msg.err) {
				return m, nil
			}
			m.agentsErr = msg.err.Error()
			return m, nil
		}
		m.agentsErr = ""
		m.agents = msg.agents
		if m.agentIdx >= len(m.agents) {
			m.agentIdx = 0
		}
		return m, nil

	case pollTickMsg:
		if m.screen == screenAgents {
			return m, tea.Batch(m.loadAgentsCmd(), m.pollCmd())
		}
		return m, m.pollCmd()

	case profileMsg:
		if msg.err != nil {
			if m.sessionLost(msg.err) {
				return m, nil
			}
			m.agentsErr = msg.err.Error()
			return m, nil
		}
		m.profile = msg.profile
		return m, nil

	case pushDoneMsg:
		if msg.err != nil {
			if m.sessionLost(msg.err) {
				return m, nil
			}
			m.pushNote = m.styles.errText.Render(fmt.Sprintf("push to %s failed: %v", msg.agentID, msg.err))
			return m, nil
		}
		if msg.result.Success {
			m.pushNote = m.styles.okText.Render(fmt.Sprintf("rule compiled on %s", msg.agentID))
		} else {
			m.pushNote = m.styles.warnText.Render(fmt.Sprintf("compile failed on %s: %s", msg.agentID, msg.result.Diagnostics))
		}
		return m, nil

	case workflowSyncMsg:
		// Workflow or chat state changed on another goroutine; repaint and
		// check whether a 401 logged us out mid-flight.
		if m.sessionLost(errSessionCheck) {
			return m, nil
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// errSessionCheck makes sessionLost run its token check without a concrete
// trigger error.
var errSessionCheck = fmt.Errorf("session check")

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm != nil {
		return m.handleConfirmKey(msg)
	}

	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	switch m.screen {
	case screenLogin, screenSetup:
		return m.handleAuthKey(msg)
	case screenAgents:
		return m.handleAgentsKey(msg)
	case screenRules:
		return m.rules.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := m.confirm
	switch msg.String() {
	case "left", "right", "tab":
		c.selected = 1 - c.selected
	case "esc", "n":
		m.confirm = nil
	case "y":
		m.confirm = nil
		return m, c.onYes()
	case "enter":
		m.confirm = nil
		if c.selected == 0 {
			return m, c.onYes()
		}
	}
	return m, nil
}

func (m *Model) handleAuthKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.authBusy {
		return m, nil
	}
	switch msg.Type {
	case tea.KeyTab, tea.KeyDown:
		m.focusIdx = (m.focusIdx + 1) % len(m.fields)
		return m, nil
	case tea.KeyShiftTab, tea.KeyUp:
		m.focusIdx = (m.focusIdx + len(m.fields) - 1) % len(m.fields)
		return m, nil
	case tea.KeyEnter:
		if m.focusIdx < len(m.fields)-1 {
			m.focusIdx++
			return m, nil
		}
		m.authBusy = true
		m.authErr = ""
		return m, m.submitAuthCmd()
	}
	m.fields[m.focusIdx].handleKey(msg)
	return m, nil
}

func (m *Model) handleAgentsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.agentIdx > 0 {
			m.agentIdx--
		}
	case "down", "j":
		if m.agentIdx < len(m.agents)-1 {
			m.agentIdx++
		}
	case "enter":
		if len(m.agents) > 0 {
			return m, m.loadProfileCmd(m.agents[m.agentIdx].ID)
		}
	case "esc":
		m.profile = nil
	case "r":
		m.screen = screenRules
		return m, m.rules.enter()
	case "p":
		if len(m.agents) > 0 {
			agent := m.agents[m.agentIdx]
			content := m.rules.workflowState().EditorValue
			m.confirm = &confirmModal{
				prompt: fmt.Sprintf("Push the current editor draft to agent %q?", agent.ID),
				onYes: func() tea.Cmd {
					return m.pushRuleCmd(agent.ID, content)
				},
			}
		}
	case "L":
		_ = m.client.Logout()
		m.screen = screenLogin
		m.buildLoginForm()
		m.authErr = ""
	}
	return m, nil
}

func (m *Model) View() string {
	var body string
	switch m.screen {
	case screenLoading:
		body = m.styles.dim.Render("Contacting control plane...")
	case screenSetup, screenLogin:
		body = m.viewAuth()
	case screenAgents:
		body = m.viewAgents()
	case screenRules:
		body = m.rules.view()
	}

	header := m.styles.header.Render("yaragent console")
	out := header + "\n" + body

	if m.confirm != nil {
		out += "\n" + m.viewConfirm()
	}
	return out
}

func (m *Model) viewConfirm() string {
	c := m.confirm
	yes := m.styles.button.Render("Yes")
	no := m.styles.buttonOn.Render("No")
	if c.selected == 0 {
		yes = m.styles.buttonOn.Render("Yes")
		no = m.styles.button.Render("No")
	}
	inner := m.styles.title.Render(c.prompt) + "\n\n" + yes + "  " + no
	return m.styles.modal.Render(inner)
}

func (m *Model) viewAuth() string {
	title := "Sign in"
	if m.screen == screenSetup {
		title = "First-run setup"
	}
	lines := []string{m.styles.title.Render(title), ""}
	for i, f := range m.fields {
		lines = append(lines, f.render(m.styles, i == m.focusIdx))
	}
	lines = append(lines, "")
	if m.authBusy {
		lines = append(lines, m.styles.dim.Render("Working..."))
	}
	if m.authErr != "" {
		lines = append(lines, m.styles.errText.Render(m.authErr))
	}
	if m.statusError != "" {
		lines = append(lines, m.styles.warnText.Render(m.statusError))
	}
	lines = append(lines, "", m.styles.footer.Render("tab: next field • enter: submit • ctrl+c: quit"))
	return m.styles.pane.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) viewAgents() string {
	lines := []string{m.styles.title.Render("Fleet agents"), ""}
	if m.agentsErr != "" {
		lines = append(lines, m.styles.errText.Render(m.agentsErr), "")
	}
	if len(m.agents) == 0 {
		lines = append(lines, m.styles.dim.Render("No agents connected."))
	}
	for i, a := range m.agents {
		status := string(a.Status)
		switch a.Status {
		case domain.AgentStatusConnected:
			status = m.styles.okText.Render(status)
		case domain.AgentStatusStale:
			status = m.styles.warnText.Render(status)
		default:
			status = m.styles.dim.Render(status)
		}
		last := "never"
		if a.LastHeartbeat != nil {
			last = a.LastHeartbeat.Local().Format("15:04:05")
		}
		row := fmt.Sprintf("%-28s %-14s last hb %-10s findings %d", a.ID, status, last, a.FindingsCount)
		if i == m.agentIdx {
			row = m.styles.selected.Render(row)
		}
		lines = append(lines, row)
	}
	if m.pushNote != "" {
		lines = append(lines, "", m.pushNote)
	}
	if m.profile != nil {
		lines = append(lines, "", m.styles.title.Render("Profile: "+m.profile.AgentID))
		lines = append(lines, m.styles.label.Render(fmt.Sprintf("tenant %s, findings %d", m.profile.TenantID, m.profile.FindingsCount)))
		if len(m.profile.SBOM) > 0 {
			lines = append(lines, m.styles.dim.Render("sbom: "+truncate(string(m.profile.SBOM), 120)))
		}
		if len(m.profile.CVEs) > 0 {
			lines = append(lines, m.styles.dim.Render("cves: "+truncate(string(m.profile.CVEs), 120)))
		}
	}
	lines = append(lines, "", m.styles.footer.Render("enter: profile • p: push draft • r: rules • L: logout • q: quit"))
	return m.styles.pane.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
