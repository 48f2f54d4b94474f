package dialog

import (
	"sync"

	"github.com/frontdesk-ai/frontdesk/pkg/llm"
)

// DefaultMaxTurns caps the dialogue history sent to the model.
const DefaultMaxTurns = 20

// Turn is a single utterance in a conversation.
type Turn struct {
	Role    llm.Role
	Content string
}

// Conversation is the ordered dialogue history for one caller. It is safe
// for concurrent use: turn goroutines and the session event loop share it.
type Conversation struct {
	mu       sync.Mutex
	turns    []Turn
	maxTurns int
}

// NewConversation creates an empty conversation capped at maxTurns.
// A cap below one uses DefaultMaxTurns.
func NewConversation(maxTurns int) *Conversation {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Conversation{maxTurns: maxTurns}
}

// Append records one turn, evicting the oldest beyond the cap.
func (c *Conversation) Append(role llm.Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, Turn{Role: role, Content: content})
	if len(c.turns) > c.maxTurns {
		c.turns = c.turns[len(c.turns)-c.maxTurns:]
	}
}

// Messages returns the history as model messages, oldest first.
func (c *Conversation) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]llm.Message, len(c.turns))
	for i, t := range c.turns {
		out[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	return out
}

// Turns returns a copy of the recorded turns, oldest first.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of recorded turns.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}
