package tool

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ltl/internal/domain"
)

const (
	maxReadBytes   = 1 << 20
	maxListEntries = 500
)

// resolvePath resolves a path relative to the workspace. When restrict is
// set, paths that leave the workspace are rejected.
func resolvePath(workspace, path string, restrict bool) (string, error) {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if !filepath.IsAbs(path) && workspace != "" {
		path = filepath.Join(workspace, path)
	}
	resolved, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if restrict && workspace != "" {
		wsAbs, err := filepath.Abs(workspace)
		if err != nil {
			return "", fmt.Errorf("resolve workspace: %w", err)
		}
		if !strings.HasPrefix(resolved, wsAbs+string(filepath.Separator)) && resolved != wsAbs {
			return "", fmt.Errorf("path %q is outside workspace %q", resolved, wsAbs)
		}
	}
	return resolved, nil
}

// FileConfig is shared by the file tools.
type FileConfig struct {
	Workspace string
	Restrict  bool
}

// --- ReadFileTool ---

type ReadFileTool struct{ cfg FileConfig }

func NewReadFileTool(cfg FileConfig) *ReadFileTool { return &ReadFileTool{cfg: cfg} }

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Read the contents of a text file. Paths are relative to the workspace unless absolute."
}
func (t *ReadFileTool) Parameters() []domain.ParamSpec {
	return []domain.ParamSpec{
		{Name: "path", Type: domain.ParamString, Required: true, Description: "File path to read"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	resolved, err := resolvePath(t.cfg.Workspace, ArgString(args, "path"), t.cfg.Restrict)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("read file: %s is a directory", resolved)
	}
	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxReadBytes))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	content := string(data)
	if info.Size() > maxReadBytes {
		content += fmt.Sprintf("\n... (truncated, %d bytes total)", info.Size())
	}
	return content, nil
}

// --- WriteFileTool ---

type WriteFileTool struct{ cfg FileConfig }

func NewWriteFileTool(cfg FileConfig) *WriteFileTool { return &WriteFileTool{cfg: cfg} }

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write content to a file, creating parent directories. Overwrites unless append is true."
}
func (t *WriteFileTool) Parameters() []domain.ParamSpec {
	return []domain.ParamSpec{
		{Name: "path", Type: domain.ParamString, Required: true, Description: "File path to write"},
		{Name: "content", Type: domain.ParamString, Required: true, Description: "Content to write"},
		{Name: "append", Type: domain.ParamBool, Default: false, Description: "Append instead of overwriting"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	resolved, err := resolvePath(t.cfg.Workspace, ArgString(args, "path"), t.cfg.Restrict)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	content := ArgString(args, "content")
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	verb := "Wrote"
	if ArgBool(args, "append") {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		verb = "Appended"
	}
	f, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return nil, fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("%s %d bytes to %s", verb, len(content), resolved), nil
}

// --- ListDirTool ---

type ListDirTool struct{ cfg FileConfig }

func NewListDirTool(cfg FileConfig) *ListDirTool { return &ListDirTool{cfg: cfg} }

func (t *ListDirTool) Name() string { return "list_dir" }
func (t *ListDirTool) Description() string {
	return "List files and directories at a path. Directories end with '/'."
}
func (t *ListDirTool) Parameters() []domain.ParamSpec {
	return []domain.ParamSpec{
		{Name: "path", Type: domain.ParamString, Default: ".", Description: "Directory to list"},
		{Name: "recursive", Type: domain.ParamBool, Default: false, Description: "Walk subdirectories"},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	path := ArgString(args, "path")
	if path == "" {
		path = "."
	}
	resolved, err := resolvePath(t.cfg.Workspace, path, t.cfg.Restrict)
	if err != nil {
		return nil, err
	}

	var lines []string
	add := func(rel string, d fs.DirEntry) {
		if d.IsDir() {
			lines = append(lines, rel+"/")
			return
		}
		size := ""
		if info, err := d.Info(); err == nil {
			size = fmt.Sprintf(" %d", info.Size())
		}
		lines = append(lines, rel+size)
	}

	if !ArgBool(args, "recursive") {
		entries, err := os.ReadDir(resolved)
		if err != nil {
			return nil, fmt.Errorf("list dir: %w", err)
		}
		for _, e := range entries {
			add(e.Name(), e)
		}
	} else {
		err = filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if p == resolved {
				return nil
			}
			if len(lines) >= maxListEntries {
				return fs.SkipAll
			}
			rel, _ := filepath.Rel(resolved, p)
			add(filepath.ToSlash(rel), d)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list dir: %w", err)
		}
	}

	if len(lines) == 0 {
		return "(empty directory)", nil
	}
	if len(lines) >= maxListEntries {
		lines = append(lines, fmt.Sprintf("... (stopped at %d entries)", maxListEntries))
	}
	return strings.Join(lines, "\n"), nil
}

var (
	_ domain.Tool = (*ReadFileTool)(nil)
	_ domain.Tool = (*WriteFileTool)(nil)
	_ domain.Tool = (*ListDirTool)(nil)
	_ domain.Tool = (*ShellTool)(nil)
)
