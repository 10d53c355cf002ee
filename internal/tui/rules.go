package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ayman-m/yaragent/internal/chat"
	"github.com/ayman-m/yaragent/internal/editor"
)

type rulesFocus int

const (
	focusList rulesFocus = iota
	focusName
	focusBody
	focusChat
)

// rulesView renders the rule editor screen: the rule list, the editor with
// its validation status, and the assistant panel.
type rulesView struct {
	m *Model

	wf   *editor.Workflow
	conv *chat.Conversation

	focus     rulesFocus
	listIdx   int
	chatInput textField
}

func newRulesView(m *Model) *rulesView {
	v := &rulesView{m: m}
	notify := func() { m.send(workflowSyncMsg{}) }
	v.wf = editor.NewWorkflow(m.client,
		editor.WithDebounce(m.cfg.ValidateDebounce),
		editor.WithNotify(notify),
	)
	v.conv = chat.NewConversation(m.client, notify)
	v.chatInput = textField{label: "Ask"}
	return v
}

func (v *rulesView) close() {
	v.wf.Close()
}

func (v *rulesView) workflowState() editor.State {
	return v.wf.State()
}

// enter is the command run when the rules screen becomes active.
func (v *rulesView) enter() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), v.m.cfg.RequestTimeout)
		defer cancel()
		v.wf.LoadList(ctx)
		return workflowSyncMsg{}
	}
}

func (v *rulesView) asyncf(fn func(ctx context.Context)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), v.m.cfg.RequestTimeout)
		defer cancel()
		fn(ctx)
		return workflowSyncMsg{}
	}
}

func (v *rulesView) openSelectedCmd() tea.Cmd {
	st := v.wf.State()
	if v.listIdx >= len(st.Rules) {
		return nil
	}
	name := st.Rules[v.listIdx].Name
	run := v.asyncf(func(ctx context.Context) { v.wf.Open(ctx, name) })
	if st.Dirty() {
		v.m.confirm = &confirmModal{
			prompt: "You have unsaved changes. Discard them and open another rule?",
			onYes:  func() tea.Cmd { return run },
		}
		return nil
	}
	return run
}

func (v *rulesView) newRuleCmd() tea.Cmd {
	run := func() tea.Cmd {
		v.wf.New()
		v.focus = focusName
		return nil
	}
	if v.wf.Dirty() {
		v.m.confirm = &confirmModal{
			prompt: "You have unsaved changes. Discard and create a new rule?",
			onYes:  run,
		}
		return nil
	}
	return run()
}

func (v *rulesView) deleteCmd() tea.Cmd {
	st := v.wf.State()
	if st.SelectedName == "" {
		return nil
	}
	v.m.confirm = &confirmModal{
		prompt: fmt.Sprintf("Delete rule %q? This cannot be undone.", st.SelectedName),
		onYes: func() tea.Cmd {
			return v.asyncf(func(ctx context.Context) { _ = v.wf.Delete(ctx) })
		},
	}
	return nil
}

func (v *rulesView) sendChatCmd() tea.Cmd {
	message := v.chatInput.value
	v.chatInput.value = ""
	st := v.wf.State()
	name := strings.TrimSpace(st.DraftName)
	content := st.EditorValue
	return func() tea.Msg {
		// Assistant replies take longer than plain repository calls.
		ctx, cancel := context.WithTimeout(context.Background(), v.m.cfg.RequestTimeout*2)
		defer cancel()
		v.conv.Send(ctx, name, content, message)
		return workflowSyncMsg{}
	}
}

func (v *rulesView) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global keys for this screen.
	switch msg.Type {
	case tea.KeyEsc:
		if v.focus == focusList {
			v.m.screen = screenAgents
			return v.m, nil
		}
		v.focus = focusList
		return v.m, nil
	case tea.KeyTab:
		v.focus = (v.focus + 1) % 4
		return v.m, nil
	case tea.KeyCtrlS:
		return v.m, v.asyncf(func(ctx context.Context) { _ = v.wf.Save(ctx) })
	case tea.KeyCtrlV:
		return v.m, v.asyncf(func(ctx context.Context) { v.wf.Validate(ctx) })
	}

	switch v.focus {
	case focusList:
		return v.handleListKey(msg)
	case focusName:
		if msg.Type == tea.KeyEnter {
			v.focus = focusBody
			return v.m, nil
		}
		var f textField
		f.value = v.wf.State().DraftName
		if f.handleKey(msg) {
			v.wf.SetDraftName(f.value)
		}
	case focusBody:
		v.handleBodyKey(msg)
	case focusChat:
		if msg.Type == tea.KeyEnter {
			if strings.TrimSpace(v.chatInput.value) == "" {
				return v.m, nil
			}
			if v.conv.Busy() {
				return v.m, nil
			}
			return v.m, v.sendChatCmd()
		}
		v.chatInput.handleKey(msg)
	}
	return v.m, nil
}

func (v *rulesView) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	st := v.wf.State()
	switch msg.String() {
	case "up", "k":
		if v.listIdx > 0 {
			v.listIdx--
		}
	case "down", "j":
		if v.listIdx < len(st.Rules)-1 {
			v.listIdx++
		}
	case "enter":
		return v.m, v.openSelectedCmd()
	case "n":
		return v.m, v.newRuleCmd()
	case "d":
		return v.m, v.deleteCmd()
	case "g":
		return v.m, v.enter()
	}
	return v.m, nil
}

// handleBodyKey edits the rule body. Editing is append-oriented: runes and
// newlines go to the end, backspace deletes backwards.
func (v *rulesView) handleBodyKey(msg tea.KeyMsg) {
	value := v.wf.State().EditorValue
	switch msg.Type {
	case tea.KeyRunes:
		value += string(msg.Runes)
	case tea.KeySpace:
		value += " "
	case tea.KeyEnter:
		value += "\n"
	case tea.KeyBackspace:
		if value != "" {
			runes := []rune(value)
			value = string(runes[:len(runes)-1])
		}
	case tea.KeyCtrlU:
		value = ""
	default:
		return
	}
	v.wf.SetEditorValue(value)
}

func (v *rulesView) paneStyle(f rulesFocus) lipgloss.Style {
	if v.focus == f {
		return v.m.styles.paneOn
	}
	return v.m.styles.pane
}

func (v *rulesView) view() string {
	s := v.m.styles
	st := v.wf.State()

	// Rule list pane.
	listLines := []string{s.title.Render("Rules"), ""}
	if st.LoadingList {
		listLines = append(listLines, s.dim.Render("loading..."))
	}
	for i, r := range st.Rules {
		row := fmt.Sprintf("%-24s %6d B", r.Name, r.SizeBytes)
		if i == v.listIdx && v.focus == focusList {
			row = s.selected.Render(row)
		}
		listLines = append(listLines, row)
	}
	if len(st.Rules) == 0 && !st.LoadingList {
		listLines = append(listLines, s.dim.Render("no rules yet"))
	}
	listPane := v.paneStyle(focusList).Render(lipgloss.JoinVertical(lipgloss.Left, listLines...))

	// Editor pane.
	name := st.DraftName
	if st.Dirty() {
		name += " *"
	}
	nameLine := s.label.Render("Name: ") + s.title.Render(name)
	if v.focus == focusName {
		nameLine += s.title.Render("█")
	}
	body := st.EditorValue
	if v.focus == focusBody {
		body += "█"
	}
	var valLine string
	switch {
	case st.ValidationMessage != "" && st.ValidationOK:
		valLine = s.okText.Render(st.ValidationMessage)
	case st.ValidationMessage != "":
		valLine = s.errText.Render(st.ValidationMessage)
	case st.ValidationOK:
		valLine = s.okText.Render("valid")
	}
	editorLines := []string{nameLine, "", body, ""}
	if valLine != "" {
		editorLines = append(editorLines, valLine)
	}
	for _, marker := range st.Markers {
		editorLines = append(editorLines, s.errText.Render(fmt.Sprintf("  line %d: %s", marker.Line, marker.Message)))
	}
	if st.Saving {
		editorLines = append(editorLines, s.dim.Render("saving..."))
	}
	if st.Deleting {
		editorLines = append(editorLines, s.dim.Render("deleting..."))
	}
	if st.Error != "" {
		editorLines = append(editorLines, s.errText.Render(st.Error))
	}
	if st.Notice != "" {
		editorLines = append(editorLines, s.okText.Render(st.Notice))
	}
	editorPane := v.paneStyle(focusBody).Render(lipgloss.JoinVertical(lipgloss.Left, editorLines...))

	// Assistant pane.
	chatLines := []string{s.title.Render("Assistant"), ""}
	for _, msg := range v.conv.Messages() {
		prefix := s.okText.Render("assistant> ")
		if msg.Role == "user" {
			prefix = s.title.Render("you> ")
		}
		chatLines = append(chatLines, prefix+msg.Content)
	}
	if v.conv.Busy() {
		chatLines = append(chatLines, s.dim.Render("thinking..."))
	}
	chatLines = append(chatLines, "", v.chatInput.render(s, v.focus == focusChat))
	chatPane := v.paneStyle(focusChat).Render(lipgloss.JoinVertical(lipgloss.Left, chatLines...))

	footer := s.footer.Render("tab: focus • enter: open • n: new • d: delete • ctrl+s: save • ctrl+v: validate • g: reload • esc: back")
	return lipgloss.JoinHorizontal(lipgloss.Top, listPane, editorPane, chatPane) + "\n" + footer
}
