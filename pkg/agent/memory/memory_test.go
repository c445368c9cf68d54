package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/pilot/pkg/types"
)

func contents(msgs []*types.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestConversationMemoryUnbounded(t *testing.T) {
	m := NewConversationMemory()
	m.Add(types.NewUserMessage("a"))
	m.Add(nil)
	m.Add(types.NewAssistantMessage("b"))

	require.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"a", "b"}, contents(m.GetAll()))

	all := m.GetAll()
	all[0] = types.NewUserMessage("changed")
	assert.Equal(t, "a", m.GetAll()[0].Content)

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestConversationMemoryWindow(t *testing.T) {
	m := NewConversationMemory(WithWindow(4))
	m.Add(types.NewUserMessage("task"))
	m.Pin()

	for i := 1; i <= 6; i++ {
		m.Add(types.NewUserMessage(fmt.Sprint(i)))
	}

	assert.Equal(t, []string{"task", "4", "5", "6"}, contents(m.GetAll()))
}

func TestConversationMemoryPinnedExceedsWindow(t *testing.T) {
	m := NewConversationMemory(WithWindow(2), WithPinned(5))
	for i := 1; i <= 4; i++ {
		m.Add(types.NewUserMessage(fmt.Sprint(i)))
	}
	assert.Equal(t, []string{"1", "4"}, contents(m.GetAll()))
}
