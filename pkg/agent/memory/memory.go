// Package memory keeps the conversation history of a browser agent run.
package memory

import (
	"sync"

	"github.com/entrhq/pilot/pkg/types"
)

// Memory stores the messages exchanged during a run.
type Memory interface {
	Add(msg *types.Message)
	GetAll() []*types.Message
	Len() int
	Clear()
}

// ConversationMemory is a thread-safe Memory with an optional window. When
// the window is exceeded the oldest messages are dropped, except for the
// first pinned ones, which hold the task.
type ConversationMemory struct {
	mu       sync.RWMutex
	messages []*types.Message
	window   int
	pinned   int
}

// Option configures a ConversationMemory.
type Option func(*ConversationMemory)

// WithWindow keeps at most n messages. Zero disables trimming.
func WithWindow(n int) Option {
	return func(m *ConversationMemory) {
		m.window = n
	}
}

// WithPinned never trims the first n messages.
func WithPinned(n int) Option {
	return func(m *ConversationMemory) {
		m.pinned = n
	}
}

// NewConversationMemory creates an empty memory.
func NewConversationMemory(opts ...Option) *ConversationMemory {
	m := &ConversationMemory{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add appends msg and trims to the window.
func (m *ConversationMemory) Add(msg *types.Message) {
	if msg == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, msg)
	m.trim()
}

// Pin marks the current messages as pinned.
func (m *ConversationMemory) Pin() {
	m.mu.Lock()
	m.pinned = len(m.messages)
	m.mu.Unlock()
}

func (m *ConversationMemory) trim() {
	if m.window <= 0 || len(m.messages) <= m.window {
		return
	}
	pinned := m.pinned
	if pinned >= m.window {
		pinned = m.window - 1
	}
	keep := m.window - pinned
	trimmed := make([]*types.Message, 0, m.window)
	trimmed = append(trimmed, m.messages[:pinned]...)
	trimmed = append(trimmed, m.messages[len(m.messages)-keep:]...)
	m.messages = trimmed
}

// GetAll returns a copy of the stored messages.
func (m *ConversationMemory) GetAll() []*types.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Len returns the number of stored messages.
func (m *ConversationMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// Clear removes all messages and pins.
func (m *ConversationMemory) Clear() {
	m.mu.Lock()
	m.messages = nil
	m.pinned = 0
	m.mu.Unlock()
}
