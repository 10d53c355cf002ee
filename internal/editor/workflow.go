// Package editor implements the rule editing workflow: draft state versus the
// last server-confirmed snapshot, save/delete/validate orchestration, and a
// debounced background validation pass. The workflow is independent of any
// rendering layer; views consume State snapshots and call intent methods.
package editor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ayman-m/yaragent/internal/domain"
)

// RuleService is the slice of the control-plane client the workflow needs.
type RuleService interface {
	ListRules(ctx context.Context) ([]domain.RuleFile, error)
	GetRule(ctx context.Context, name string) (*domain.RuleContent, error)
	CreateRule(ctx context.Context, name, content string) (*domain.RuleContent, error)
	UpdateRule(ctx context.Context, name, content string) (*domain.RuleContent, error)
	DeleteRule(ctx context.Context, name string) error
	ValidateRule(ctx context.Context, name, content string) domain.ValidationResult
}

// ConfirmFunc asks the operator to confirm a destructive action.
type ConfirmFunc func(prompt string) bool

// ValidationError reports a failed pre-flight check before a save. No network
// round-trip is performed; distinct from remote validation results.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Marker is a display annotation for a validation diagnostic with a known
// line.
type Marker struct {
	Line    int
	Message string
}

// State is a snapshot of the workflow, safe to render without further
// locking.
type State struct {
	Rules []domain.RuleFile

	// SelectedName is "" in new-file mode.
	SelectedName string
	DraftName    string
	EditorValue  string
	SavedValue   string

	LoadingList bool
	LoadingRule bool
	Saving      bool
	Deleting    bool

	Error  string
	Notice string

	ValidationOK      bool
	ValidationMessage string
	Markers           []Marker
}

// Dirty reports whether the draft differs from the last server-confirmed
// state.
func (s State) Dirty() bool {
	return s.EditorValue != s.SavedValue ||
		(s.SelectedName == "" && strings.TrimSpace(s.DraftName) != "")
}

// Workflow is the rule editor state machine. Safe for concurrent use: the
// debounce timer fires on its own goroutine and views may run intents off the
// UI loop.
type Workflow struct {
	svc      RuleService
	confirm  ConfirmFunc
	delay    time.Duration
	debounce Debouncer
	notify   func()

	mu      sync.Mutex
	st      State
	version uint64
	closed  bool
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithConfirm installs the destructive-action confirmation prompt. Without
// it, destructive actions proceed unprompted.
func WithConfirm(fn ConfirmFunc) Option {
	return func(w *Workflow) { w.confirm = fn }
}

// WithDebounce overrides the background validation delay.
func WithDebounce(d time.Duration) Option {
	return func(w *Workflow) { w.delay = d }
}

// WithNotify installs a callback invoked after any asynchronous state change,
// so a view can repaint.
func WithNotify(fn func()) Option {
	return func(w *Workflow) { w.notify = fn }
}

// NewWorkflow creates a workflow in new-file mode.
func NewWorkflow(svc RuleService, opts ...Option) *Workflow {
	w := &Workflow{
		svc:     svc,
		confirm: func(string) bool { return true },
		delay:   700 * time.Millisecond,
		st: State{
			DraftName:   domain.DefaultRuleName,
			EditorValue: domain.DefaultRuleTemplate,
			SavedValue:  "",
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns a snapshot of the current workflow state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.st
	st.Rules = append([]domain.RuleFile(nil), w.st.Rules...)
	st.Markers = append([]Marker(nil), w.st.Markers...)
	return st
}

// Dirty reports whether the current draft has unsaved changes.
func (w *Workflow) Dirty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st.Dirty()
}

// Close marks the workflow dead. Pending async continuations no-op
// afterwards.
func (w *Workflow) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.debounce.Stop()
}

func (w *Workflow) changed() {
	if w.notify != nil {
		w.notify()
	}
}

// LoadList refreshes the rule metadata list. Failures degrade to an empty
// list plus an error banner; never propagated to the caller.
func (w *Workflow) LoadList(ctx context.Context) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.st.LoadingList = true
	w.st.Error = ""
	w.mu.Unlock()

	rules, err := w.svc.ListRules(ctx)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.st.LoadingList = false
	if err != nil {
		w.st.Rules = nil
		w.st.Error = err.Error()
	} else {
		w.st.Rules = rules
	}
	w.mu.Unlock()
	w.changed()
}

// Open fetches a rule and replaces the draft wholesale. When the current
// draft is dirty the operator must confirm discarding it first; Open reports
// whether it proceeded.
func (w *Workflow) Open(ctx context.Context, name string) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	if w.st.Dirty() {
		w.mu.Unlock()
		if !w.confirm("You have unsaved changes. Discard them and open another rule?") {
			return false
		}
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return false
		}
	}
	w.st.LoadingRule = true
	w.st.Error = ""
	w.st.Notice = ""
	w.mu.Unlock()

	rule, err := w.svc.GetRule(ctx, name)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.st.LoadingRule = false
	if err != nil {
		w.st.Error = err.Error()
		w.mu.Unlock()
		w.changed()
		return false
	}
	w.st.SelectedName = rule.Name
	w.st.DraftName = rule.Name
	w.st.EditorValue = rule.Content
	w.st.SavedValue = rule.Content
	w.clearValidationLocked()
	w.version++
	w.mu.Unlock()
	w.debounce.Stop()
	w.changed()
	return true
}

// New resets the draft to the new-file template. SavedValue is deliberately
// left empty so a fresh template is dirty until explicitly saved. Dirty
// drafts require confirmation; New reports whether it proceeded.
func (w *Workflow) New() bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	if w.st.Dirty() {
		w.mu.Unlock()
		if !w.confirm("You have unsaved changes. Discard and create a new rule?") {
			return false
		}
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return false
		}
	}
	w.resetDraftLocked()
	w.mu.Unlock()
	w.debounce.Stop()
	w.changed()
	return true
}

// resetDraftLocked puts the workflow in new-file mode. Caller holds w.mu.
func (w *Workflow) resetDraftLocked() {
	w.st.SelectedName = ""
	w.st.DraftName = domain.DefaultRuleName
	w.st.EditorValue = domain.DefaultRuleTemplate
	w.st.SavedValue = ""
	w.st.Error = ""
	w.st.Notice = ""
	w.clearValidationLocked()
	w.version++
}

func (w *Workflow) clearValidationLocked() {
	w.st.ValidationOK = false
	w.st.ValidationMessage = ""
	w.st.Markers = nil
}

// SetEditorValue updates the draft content and re-arms the background
// validation timer. Emptied content skips the timer and applies the local
// empty advisory immediately.
func (w *Workflow) SetEditorValue(value string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.st.EditorValue = value
	w.version++
	w.mu.Unlock()
	w.armValidation()
}

// SetDraftName updates the draft name and re-arms the background validation
// timer, since the name participates in validation.
func (w *Workflow) SetDraftName(name string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.st.DraftName = name
	w.version++
	w.mu.Unlock()
	w.armValidation()
}

func (w *Workflow) armValidation() {
	w.mu.Lock()
	empty := strings.TrimSpace(w.st.EditorValue) == ""
	version := w.version
	w.mu.Unlock()

	if empty {
		w.debounce.Stop()
		w.mu.Lock()
		w.applyValidationLocked(domain.ValidationResult{Valid: false, Message: "rule content is empty"}, false)
		w.mu.Unlock()
		w.changed()
		return
	}
	w.debounce.Arm(w.delay, func() {
		w.runValidation(context.Background(), version, false)
	})
}

// Validate runs an explicit, user-triggered validation pass that announces
// success.
func (w *Workflow) Validate(ctx context.Context) {
	w.mu.Lock()
	version := w.version
	w.mu.Unlock()
	w.runValidation(ctx, version, true)
}

// runValidation performs one validation pass for the given draft version.
// Results for a stale version are discarded, so a response from before a save
// cannot clobber the save's success message.
func (w *Workflow) runValidation(ctx context.Context, version uint64, showSuccess bool) {
	w.mu.Lock()
	if w.closed || w.version != version {
		w.mu.Unlock()
		return
	}
	name := strings.TrimSpace(w.st.DraftName)
	content := w.st.EditorValue
	w.mu.Unlock()

	if strings.TrimSpace(content) == "" {
		w.mu.Lock()
		if !w.closed && w.version == version {
			w.applyValidationLocked(domain.ValidationResult{Valid: false, Message: "rule content is empty"}, showSuccess)
		}
		w.mu.Unlock()
		w.changed()
		return
	}

	result := w.svc.ValidateRule(ctx, name, content)

	w.mu.Lock()
	if w.closed || w.version != version {
		w.mu.Unlock()
		return
	}
	w.applyValidationLocked(result, showSuccess)
	w.mu.Unlock()
	w.changed()
}

// applyValidationLocked maps a validation result onto display state. Caller
// holds w.mu.
func (w *Workflow) applyValidationLocked(result domain.ValidationResult, showSuccess bool) {
	if result.Valid {
		w.st.ValidationOK = true
		w.st.Markers = nil
		if showSuccess {
			w.st.ValidationMessage = "Rule compiled successfully"
		} else {
			w.st.ValidationMessage = ""
		}
		return
	}
	w.st.ValidationOK = false
	w.st.Markers = nil
	summary := result.Message
	for i, issue := range result.Errors {
		if i == 0 && issue.Message != "" {
			summary = issue.Message
		}
		if issue.Line != nil {
			w.st.Markers = append(w.st.Markers, Marker{Line: *issue.Line, Message: issue.Message})
		}
	}
	w.st.ValidationMessage = summary
}

// Save persists the draft, dispatching create or update depending on whether
// an existing rule is selected. Local pre-flight checks fail fast with a
// *ValidationError before any network call. On success the draft is replaced
// with the server's authoritative view and the list reloads.
func (w *Workflow) Save(ctx context.Context) error {
	w.mu.Lock()
	if w.closed || w.st.Saving || w.st.Deleting {
		w.mu.Unlock()
		return nil
	}
	name := strings.TrimSpace(w.st.DraftName)
	content := w.st.EditorValue
	selected := w.st.SelectedName

	var verr *ValidationError
	switch {
	case name == "":
		verr = &ValidationError{Message: "Rule name is required"}
	case !domain.ValidRuleName(name):
		verr = &ValidationError{Message: fmt.Sprintf("Rule name must end with %s", domain.RuleNameSuffix)}
	case strings.TrimSpace(content) == "":
		verr = &ValidationError{Message: "Rule content must not be empty"}
	}
	if verr != nil {
		w.st.Error = verr.Message
		w.mu.Unlock()
		w.changed()
		return verr
	}

	w.st.Saving = true
	w.st.Error = ""
	w.st.Notice = ""
	w.mu.Unlock()
	w.changed()

	var rule *domain.RuleContent
	var err error
	if selected != "" {
		rule, err = w.svc.UpdateRule(ctx, selected, content)
	} else {
		rule, err = w.svc.CreateRule(ctx, name, content)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return err
	}
	w.st.Saving = false
	if err != nil {
		w.st.Error = err.Error()
		w.mu.Unlock()
		w.changed()
		return err
	}

	w.st.SelectedName = rule.Name
	w.st.DraftName = rule.Name
	w.st.EditorValue = rule.Content
	w.st.SavedValue = rule.Content
	if selected != "" {
		w.st.Notice = "Rule updated successfully"
	} else {
		w.st.Notice = "Rule created successfully"
	}
	// Server acceptance implies compile success; no duplicate validate call.
	w.st.ValidationOK = true
	w.st.ValidationMessage = "Rule compiled successfully"
	w.st.Markers = nil
	w.version++
	w.mu.Unlock()
	w.changed()

	w.LoadList(ctx)
	return nil
}

// Delete removes the currently selected rule after confirmation, using the
// originally opened name regardless of unsaved edits, then resets the draft
// to the new-file template and reloads the list.
func (w *Workflow) Delete(ctx context.Context) error {
	w.mu.Lock()
	if w.closed || w.st.Saving || w.st.Deleting {
		w.mu.Unlock()
		return nil
	}
	selected := w.st.SelectedName
	if selected == "" {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if !w.confirm(fmt.Sprintf("Delete rule %q? This cannot be undone.", selected)) {
		return nil
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.st.Deleting = true
	w.st.Error = ""
	w.st.Notice = ""
	w.mu.Unlock()
	w.changed()

	err := w.svc.DeleteRule(ctx, selected)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return err
	}
	w.st.Deleting = false
	if err != nil {
		w.st.Error = err.Error()
		w.mu.Unlock()
		w.changed()
		return err
	}
	w.resetDraftLocked()
	w.st.Notice = fmt.Sprintf("Deleted %s", selected)
	w.mu.Unlock()
	w.debounce.Stop()
	w.changed()

	w.LoadList(ctx)
	return nil
}
