// Package memory persists user facts, tasks, the audit trail and the turn log
// in a single SQLite file.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ltl/internal/domain"
)

// SQLiteStore implements domain.MemoryStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		key         TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT 'general',
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_memories_cat ON memories(category);

	CREATE TABLE IF NOT EXISTS tasks (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		title        TEXT NOT NULL,
		description  TEXT,
		priority     TEXT NOT NULL DEFAULT 'normal',
		status       TEXT NOT NULL DEFAULT 'pending',
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

	CREATE TABLE IF NOT EXISTS audit_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		action      TEXT NOT NULL,
		tool_name   TEXT,
		command     TEXT,
		result      TEXT,
		details     TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_log(created_at);

	CREATE TABLE IF NOT EXISTS turns (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL,
		role        TEXT NOT NULL,
		text        TEXT NOT NULL,
		intent      TEXT,
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- Memories ---

func (s *SQLiteStore) SaveMemory(ctx context.Context, m domain.MemoryEntry) error {
	m.Key = strings.TrimSpace(m.Key)
	if m.Key == "" {
		return fmt.Errorf("memory key is empty")
	}
	if m.Category == "" {
		m.Category = "general"
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (key, value, category, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, category=excluded.category, updated_at=excluded.updated_at`,
		m.Key, m.Value, m.Category, m.UpdatedAt,
	)
	return err
}

// SearchMemories matches every whitespace-separated term against key or value.
func (s *SQLiteStore) SearchMemories(ctx context.Context, query string, limit int) ([]domain.MemoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return s.queryMemories(ctx, `SELECT key, value, category, updated_at FROM memories ORDER BY updated_at DESC LIMIT ?`, limit)
	}

	var where []string
	var args []any
	for _, term := range terms {
		where = append(where, "(LOWER(key) LIKE ? OR LOWER(value) LIKE ?)")
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)
	q := `SELECT key, value, category, updated_at FROM memories WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY updated_at DESC LIMIT ?`
	return s.queryMemories(ctx, q, args...)
}

func (s *SQLiteStore) ListMemories(ctx context.Context, category string) ([]domain.MemoryEntry, error) {
	if category == "" {
		return s.queryMemories(ctx, `SELECT key, value, category, updated_at FROM memories ORDER BY category, key`)
	}
	return s.queryMemories(ctx,
		`SELECT key, value, category, updated_at FROM memories WHERE category = ? ORDER BY key`, category)
}

func (s *SQLiteStore) DeleteMemory(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE key = ?`, strings.TrimSpace(key))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) queryMemories(ctx context.Context, q string, args ...any) ([]domain.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MemoryEntry
	for rows.Next() {
		var m domain.MemoryEntry
		if err := rows.Scan(&m.Key, &m.Value, &m.Category, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Tasks ---

func (s *SQLiteStore) CreateTask(ctx context.Context, t domain.Task) (int64, error) {
	if strings.TrimSpace(t.Title) == "" {
		return 0, fmt.Errorf("task title is empty")
	}
	if t.Priority == "" {
		t.Priority = "normal"
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (title, description, priority, status, created_at) VALUES (?, ?, ?, 'pending', ?)`,
		t.Title, t.Description, t.Priority, t.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListTasks returns tasks with the given status, or all tasks when status is
// empty. High priority tasks sort first.
func (s *SQLiteStore) ListTasks(ctx context.Context, status string) ([]domain.Task, error) {
	q := `SELECT id, title, description, priority, status, created_at, completed_at FROM tasks`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END, created_at`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// FindTask returns the oldest pending task whose title contains title, or nil.
func (s *SQLiteStore) FindTask(ctx context.Context, title string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, priority, status, created_at, completed_at FROM tasks
		 WHERE status = 'pending' AND LOWER(title) LIKE ? ORDER BY created_at LIMIT 1`,
		"%"+strings.ToLower(strings.TrimSpace(title))+"%",
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *SQLiteStore) CompleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'done', completed_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d not found", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*domain.Task, error) {
	var t domain.Task
	var desc sql.NullString
	var completed sql.NullTime
	if err := sc.Scan(&t.ID, &t.Title, &desc, &t.Priority, &t.Status, &t.CreatedAt, &completed); err != nil {
		return nil, err
	}
	t.Description = desc.String
	if completed.Valid {
		t.CompletedAt = &completed.Time
	}
	return &t, nil
}

// --- Audit log ---

// LogAudit implements security.AuditLogger.
func (s *SQLiteStore) LogAudit(ctx context.Context, entry domain.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (action, tool_name, command, result, details) VALUES (?, ?, ?, ?, ?)`,
		entry.Action, entry.ToolName, entry.Command, entry.Result, entry.Details,
	)
	return err
}

// RecentAudit returns the newest audit entries first.
func (s *SQLiteStore) RecentAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, COALESCE(tool_name,''), COALESCE(command,''), COALESCE(result,''), COALESCE(details,'')
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.Action, &e.ToolName, &e.Command, &e.Result, &e.Details); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Turn log ---

// AppendTurn records one conversation turn for a session.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, turn domain.Turn, intent string) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, role, text, intent, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, string(turn.Role), turn.Text, intent, turn.Timestamp,
	)
	return err
}

// RecentTurns returns the last limit turns of a session, oldest first.
func (s *SQLiteStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, created_at FROM turns WHERE session_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var role string
		if err := rows.Scan(&role, &t.Text, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Role = domain.Role(role)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
