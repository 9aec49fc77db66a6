package tool

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"ltl/internal/domain"
)

var memoryCategories = []string{"personal", "preference", "fact", "general"}

// MemoryTools returns save_memory, recall_memory, list_memories and
// delete_memory backed by store.
func MemoryTools(store domain.MemoryStore) []domain.Tool {
	return []domain.Tool{
		NewFunc("save_memory",
			"Remember a fact about the user for later conversations (name, preferences, important facts).",
			[]domain.ParamSpec{
				{Name: "key", Type: domain.ParamString, Required: true, Description: "Short label, e.g. 'favorite color'"},
				{Name: "value", Type: domain.ParamString, Required: true, Description: "What to remember"},
				{Name: "category", Type: domain.ParamString, Default: "general", Description: "One of: " + strings.Join(memoryCategories, ", ")},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				category := strings.ToLower(ArgString(args, "category"))
				if !slices.Contains(memoryCategories, category) {
					category = "general"
				}
				entry := domain.MemoryEntry{
					Key:      ArgString(args, "key"),
					Value:    ArgString(args, "value"),
					Category: category,
				}
				if err := store.SaveMemory(ctx, entry); err != nil {
					return nil, fmt.Errorf("save memory: %w", err)
				}
				return fmt.Sprintf("Remembered %s: %s", entry.Key, entry.Value), nil
			}),

		NewFunc("recall_memory",
			"Search saved memories by keyword.",
			[]domain.ParamSpec{
				{Name: "query", Type: domain.ParamString, Required: true, Description: "Words to look for in keys and values"},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				found, err := store.SearchMemories(ctx, ArgString(args, "query"), 10)
				if err != nil {
					return nil, fmt.Errorf("recall memory: %w", err)
				}
				if len(found) == 0 {
					return "No matching memories.", nil
				}
				return formatMemories(found), nil
			}),

		NewFunc("list_memories",
			"List saved memories, optionally for one category.",
			[]domain.ParamSpec{
				{Name: "category", Type: domain.ParamString, Description: "Category filter; empty for all"},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				all, err := store.ListMemories(ctx, strings.ToLower(ArgString(args, "category")))
				if err != nil {
					return nil, fmt.Errorf("list memories: %w", err)
				}
				if len(all) == 0 {
					return "No memories saved yet.", nil
				}
				return formatMemories(all), nil
			}),

		NewFunc("delete_memory",
			"Forget a saved memory by its key.",
			[]domain.ParamSpec{
				{Name: "key", Type: domain.ParamString, Required: true, Description: "Key of the memory to delete"},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				key := ArgString(args, "key")
				ok, err := store.DeleteMemory(ctx, key)
				if err != nil {
					return nil, fmt.Errorf("delete memory: %w", err)
				}
				if !ok {
					return nil, fmt.Errorf("no memory with key %q", key)
				}
				return "Forgot " + key, nil
			}),
	}
}

// TaskTools returns create_task, list_tasks and complete_task backed by store.
func TaskTools(store domain.MemoryStore) []domain.Tool {
	return []domain.Tool{
		NewFunc("create_task",
			"Add a task to the user's to-do list.",
			[]domain.ParamSpec{
				{Name: "title", Type: domain.ParamString, Required: true, Description: "Short task title"},
				{Name: "description", Type: domain.ParamString, Description: "Optional details"},
				{Name: "priority", Type: domain.ParamString, Default: "normal", Description: "low, normal or high"},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				priority := strings.ToLower(ArgString(args, "priority"))
				if priority != "low" && priority != "high" {
					priority = "normal"
				}
				id, err := store.CreateTask(ctx, domain.Task{
					Title:       ArgString(args, "title"),
					Description: ArgString(args, "description"),
					Priority:    priority,
				})
				if err != nil {
					return nil, fmt.Errorf("create task: %w", err)
				}
				return fmt.Sprintf("Created task #%d: %s", id, ArgString(args, "title")), nil
			}),

		NewFunc("list_tasks",
			"List the user's tasks.",
			[]domain.ParamSpec{
				{Name: "status", Type: domain.ParamString, Default: "pending", Description: "pending, done, or all"},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				status := strings.ToLower(ArgString(args, "status"))
				if status == "all" {
					status = ""
				}
				tasks, err := store.ListTasks(ctx, status)
				if err != nil {
					return nil, fmt.Errorf("list tasks: %w", err)
				}
				if len(tasks) == 0 {
					return "No tasks.", nil
				}
				var sb strings.Builder
				for _, t := range tasks {
					mark := " "
					if t.Status == "done" {
						mark = "x"
					}
					fmt.Fprintf(&sb, "[%s] #%d %s (%s)\n", mark, t.ID, t.Title, t.Priority)
				}
				return strings.TrimRight(sb.String(), "\n"), nil
			}),

		NewFunc("complete_task",
			"Mark a pending task as done, matched by title.",
			[]domain.ParamSpec{
				{Name: "title", Type: domain.ParamString, Required: true, Description: "Title or part of it"},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				title := ArgString(args, "title")
				task, err := store.FindTask(ctx, title)
				if err != nil {
					return nil, fmt.Errorf("complete task: %w", err)
				}
				if task == nil {
					return nil, fmt.Errorf("no pending task matching %q", title)
				}
				if err := store.CompleteTask(ctx, task.ID); err != nil {
					return nil, fmt.Errorf("complete task: %w", err)
				}
				return "Completed: " + task.Title, nil
			}),
	}
}

func formatMemories(entries []domain.MemoryEntry) string {
	var sb strings.Builder
	for _, m := range entries {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", m.Category, m.Key, m.Value)
	}
	return strings.TrimRight(sb.String(), "\n")
}
