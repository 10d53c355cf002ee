// Package chat maintains the assistant conversation alongside the rule
// editor: an append-only transcript, an optimistic user append before the
// network call, and assistant errors rendered as transcript entries rather
// than thrown to the caller.
package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/ayman-m/yaragent/internal/domain"
)

// Assistant is the slice of the control-plane client the conversation needs.
type Assistant interface {
	Assistant(ctx context.Context, ruleName, ruleContent, message string, history []domain.ChatMessage) (string, error)
}

// Conversation is the workflow-local assistant transcript. Not persisted
// across runs.
type Conversation struct {
	svc    Assistant
	notify func()

	mu       sync.Mutex
	messages []domain.ChatMessage
	busy     bool
}

// NewConversation creates an empty conversation. notify, when non-nil, is
// invoked after every transcript change so a view can repaint.
func NewConversation(svc Assistant, notify func()) *Conversation {
	return &Conversation{svc: svc, notify: notify}
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChatMessage(nil), c.messages...)
}

// Busy reports whether a send is in flight.
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Conversation) changed() {
	if c.notify != nil {
		c.notify()
	}
}

// Send appends the user message optimistically, forwards it with the current
// draft and the prior history window, and appends the reply. While a send is
// in flight further sends are no-ops. Errors become assistant-role transcript
// entries; the provisional user message is never retracted.
func (c *Conversation) Send(ctx context.Context, ruleName, ruleContent, message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return
	}
	c.busy = true
	// History forwarded to the assistant excludes the message being sent.
	history := append([]domain.ChatMessage(nil), c.messages...)
	c.messages = append(c.messages, domain.ChatMessage{Role: domain.ChatRoleUser, Content: message})
	c.mu.Unlock()
	c.changed()

	reply, err := c.svc.Assistant(ctx, ruleName, ruleContent, message, history)

	c.mu.Lock()
	c.busy = false
	if err != nil {
		c.messages = append(c.messages, domain.ChatMessage{
			Role:    domain.ChatRoleAssistant,
			Content: "Error: " + err.Error(),
		})
	} else {
		c.messages = append(c.messages, domain.ChatMessage{
			Role:    domain.ChatRoleAssistant,
			Content: reply,
		})
	}
	c.mu.Unlock()
	c.changed()
}
