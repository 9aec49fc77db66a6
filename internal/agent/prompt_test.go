package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltl/internal/domain"
)

// listOnlyStore serves ListMemories; the other methods are never called by
// the prompt builder.
type listOnlyStore struct {
	domain.MemoryStore
	entries []domain.MemoryEntry
	err     error
}

func (s listOnlyStore) ListMemories(context.Context, string) ([]domain.MemoryEntry, error) {
	return s.entries, s.err
}

func TestSystemPrompt(t *testing.T) {
	p := NewPromptBuilder("/home/sam", "Always answer in haiku.", nil, testLogger())
	p.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC) }

	sp := p.SystemPrompt(context.Background())
	assert.Contains(t, sp, "2024-03-09 14:05 (Saturday)")
	assert.Contains(t, sp, "/home/sam")
	assert.Contains(t, sp, "## Custom Instructions\nAlways answer in haiku.")
	assert.NotContains(t, sp, "What you remember")
}

func TestSystemPrompt_Memories(t *testing.T) {
	var entries []domain.MemoryEntry
	for i := range 10 {
		entries = append(entries, domain.MemoryEntry{Category: "general", Key: fmt.Sprintf("k%d", i), Value: "v"})
	}
	p := NewPromptBuilder(".", "", listOnlyStore{entries: entries}, testLogger())
	sp := p.SystemPrompt(context.Background())
	assert.Contains(t, sp, "- [general] k0: v")
	assert.Contains(t, sp, "- [general] k7: v")
	assert.NotContains(t, sp, "k8")

	p = NewPromptBuilder(".", "", listOnlyStore{err: errors.New("db locked")}, testLogger())
	assert.NotContains(t, p.SystemPrompt(context.Background()), "What you remember")
}

func TestBuildMessages(t *testing.T) {
	p := NewPromptBuilder(".", "", nil, testLogger())
	msgs := p.BuildMessages(context.Background(), []domain.Turn{
		{Role: domain.RoleUser, Text: "hi"},
		{Role: domain.RoleAssistant, Text: "hello"},
	}, "how are you")
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "how are you", msgs[3].Content)
}
