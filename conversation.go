package mcphost

import (
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// Conversation holds the message history a Host accumulates across turns.
// The history always alternates user and assistant turns; a tool round
// appends the assistant's tool-call turn and the user turn carrying its
// results together, so the record never contains a request without a
// matching response.
type Conversation struct {
	ID        string
	Messages  []anthropic.MessageParam
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewConversation creates an empty conversation with a fresh ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        generateID(prefixConversation),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds messages to the history.
func (c *Conversation) Append(msgs ...anthropic.MessageParam) {
	c.Messages = append(c.Messages, msgs...)
	c.UpdatedAt = time.Now()
}

// Clone returns a deep-enough copy for forking: the message slice is
// copied, the params inside are shared (they are treated as immutable).
func (c *Conversation) Clone() *Conversation {
	msgs := make([]anthropic.MessageParam, len(c.Messages))
	copy(msgs, c.Messages)
	return &Conversation{
		ID:        generateID(prefixConversation),
		Messages:  msgs,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}
