package memory

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltl/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sub", "test.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemories_SaveUpsertAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMemory(ctx, domain.MemoryEntry{Key: "name", Value: "Sam", Category: "personal"}))
	require.NoError(t, s.SaveMemory(ctx, domain.MemoryEntry{Key: "favorite color", Value: "green", Category: "preference"}))
	require.NoError(t, s.SaveMemory(ctx, domain.MemoryEntry{Key: "name", Value: "Alex", Category: "personal"}))

	found, err := s.SearchMemories(ctx, "NAME", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Alex", found[0].Value)

	found, err = s.SearchMemories(ctx, "favorite green", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "favorite color", found[0].Key)

	found, err = s.SearchMemories(ctx, "purple", 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMemories_ListAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMemory(ctx, domain.MemoryEntry{Key: "b", Value: "2"}))
	require.NoError(t, s.SaveMemory(ctx, domain.MemoryEntry{Key: "a", Value: "1", Category: "fact"}))

	all, err := s.ListMemories(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	facts, err := s.ListMemories(ctx, "fact")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "a", facts[0].Key)

	general, err := s.ListMemories(ctx, "general")
	require.NoError(t, err)
	require.Len(t, general, 1, "empty category defaults to general")

	deleted, err := s.DeleteMemory(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.DeleteMemory(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemories_EmptyKeyRejected(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.SaveMemory(context.Background(), domain.MemoryEntry{Key: "  ", Value: "x"}))
}

func TestTasks_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateTask(ctx, domain.Task{Title: "buy milk"})
	require.NoError(t, err)
	id, err := s.CreateTask(ctx, domain.Task{Title: "Call the dentist", Priority: "high"})
	require.NoError(t, err)

	pending, err := s.ListTasks(ctx, "pending")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "Call the dentist", pending[0].Title, "high priority first")
	assert.Equal(t, "normal", pending[1].Priority)

	task, err := s.FindTask(ctx, "dentist")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, id, task.ID)

	require.NoError(t, s.CompleteTask(ctx, id))
	task, err = s.FindTask(ctx, "dentist")
	require.NoError(t, err)
	assert.Nil(t, task)

	done, err := s.ListTasks(ctx, "done")
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.NotNil(t, done[0].CompletedAt)

	assert.Error(t, s.CompleteTask(ctx, 999))
}

func TestAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LogAudit(ctx, domain.AuditEntry{Action: "tool_exec", ToolName: "execute_command", Command: "ls"}))
	require.NoError(t, s.LogAudit(ctx, domain.AuditEntry{Action: "command_blocked", Command: "mkfs"}))

	entries, err := s.RecentAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "command_blocked", entries[0].Action)
}

func TestTurnLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	for i, text := range []string{"hi", "hello", "what time is it", "noon"} {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		turn := domain.Turn{Role: role, Text: text, Timestamp: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.AppendTurn(ctx, "s1", turn, "chat"))
	}
	require.NoError(t, s.AppendTurn(ctx, "s2", domain.Turn{Role: domain.RoleUser, Text: "other"}, "chat"))

	turns, err := s.RecentTurns(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "what time is it", turns[0].Text)
	assert.Equal(t, domain.RoleAssistant, turns[1].Role)
}

func TestInMemoryDatabase(t *testing.T) {
	s, err := NewSQLiteStore(":memory:", testLogger())
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SaveMemory(context.Background(), domain.MemoryEntry{Key: "k", Value: "v"}))
}
