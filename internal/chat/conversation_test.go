package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayman-m/yaragent/internal/domain"
)

type fakeAssistant struct {
	mu      sync.Mutex
	calls   int
	lastMsg string
	history []domain.ChatMessage
	reply   string
	err     error
	block   chan struct{}
}

func (f *fakeAssistant) Assistant(ctx context.Context, ruleName, ruleContent, message string, history []domain.ChatMessage) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastMsg = message
	f.history = append([]domain.ChatMessage(nil), history...)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.reply, f.err
}

func (f *fakeAssistant) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSendAppendsUserThenReply(t *testing.T) {
	fake := &fakeAssistant{reply: "Looks good, consider a meta section."}
	c := NewConversation(fake, nil)

	c.Send(context.Background(), "test.yar", "rule test { condition: true }", "  review this  ")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.ChatRoleUser, msgs[0].Role)
	assert.Equal(t, "review this", msgs[0].Content, "message is trimmed before sending")
	assert.Equal(t, domain.ChatRoleAssistant, msgs[1].Role)
	assert.Equal(t, "Looks good, consider a meta section.", msgs[1].Content)
}

func TestSendEmptyMessageIsNoop(t *testing.T) {
	fake := &fakeAssistant{reply: "unused"}
	c := NewConversation(fake, nil)

	c.Send(context.Background(), "test.yar", "rule test { condition: true }", "   \n ")

	assert.Zero(t, fake.callCount())
	assert.Empty(t, c.Messages())
}

func TestSendErrorBecomesTranscriptEntry(t *testing.T) {
	fake := &fakeAssistant{err: errors.New("HTTP 502: upstream down")}
	c := NewConversation(fake, nil)

	c.Send(context.Background(), "test.yar", "rule test { condition: true }", "help")

	msgs := c.Messages()
	require.Len(t, msgs, 2, "the optimistic user entry is never retracted")
	assert.Equal(t, domain.ChatRoleUser, msgs[0].Role)
	assert.Equal(t, domain.ChatRoleAssistant, msgs[1].Role)
	assert.Equal(t, "Error: HTTP 502: upstream down", msgs[1].Content)
}

func TestHistoryExcludesCurrentMessage(t *testing.T) {
	fake := &fakeAssistant{reply: "first reply"}
	c := NewConversation(fake, nil)

	c.Send(context.Background(), "test.yar", "rule test { condition: true }", "first question")
	require.Empty(t, fake.history, "first send carries no prior history")

	fake.reply = "second reply"
	c.Send(context.Background(), "test.yar", "rule test { condition: true }", "second question")

	require.Len(t, fake.history, 2)
	assert.Equal(t, "first question", fake.history[0].Content)
	assert.Equal(t, "first reply", fake.history[1].Content)
	assert.Equal(t, "second question", fake.lastMsg)
}

func TestSendWhileBusyIsNoop(t *testing.T) {
	block := make(chan struct{})
	fake := &fakeAssistant{reply: "done", block: block}
	c := NewConversation(fake, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Send(context.Background(), "test.yar", "rule test { condition: true }", "slow question")
	}()

	require.Eventually(t, c.Busy, time.Second, 5*time.Millisecond)

	// A second send while the first is in flight must be dropped entirely.
	c.Send(context.Background(), "test.yar", "rule test { condition: true }", "impatient question")
	assert.Equal(t, 1, fake.callCount())

	close(block)
	<-done

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "slow question", msgs[0].Content)
	assert.Equal(t, "done", msgs[1].Content)
	assert.False(t, c.Busy())
}

func TestNotifyFiresOnTranscriptChange(t *testing.T) {
	fake := &fakeAssistant{reply: "ok"}
	var notified int
	c := NewConversation(fake, func() { notified++ })

	c.Send(context.Background(), "test.yar", "rule test { condition: true }", "ping")

	assert.Equal(t, 2, notified, "once for the optimistic append, once for the reply")
}
