package domain

import (
	"context"
	"time"
)

// MemoryStore persists user facts and tasks for the memory and task tools.
type MemoryStore interface {
	SaveMemory(ctx context.Context, m MemoryEntry) error
	SearchMemories(ctx context.Context, query string, limit int) ([]MemoryEntry, error)
	ListMemories(ctx context.Context, category string) ([]MemoryEntry, error)
	DeleteMemory(ctx context.Context, key string) (bool, error)

	CreateTask(ctx context.Context, t Task) (int64, error)
	ListTasks(ctx context.Context, status string) ([]Task, error)
	FindTask(ctx context.Context, title string) (*Task, error)
	CompleteTask(ctx context.Context, id int64) error
}

type MemoryEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Category  string    `json:"category"` // personal | preference | fact | general
	UpdatedAt time.Time `json:"updated_at"`
}

type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority"` // low | normal | high
	Status      string     `json:"status"`   // pending | done
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AuditEntry records a policy decision taken on a tool invocation.
type AuditEntry struct {
	Action   string // tool_exec | command_blocked
	ToolName string
	Command  string
	Result   string
	Details  string
}
