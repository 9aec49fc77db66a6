// Package capture provides image sources for vision turns.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"ltl/internal/domain"
)

const (
	defaultCommandTimeout = 15 * time.Second
	maxImageBytes         = 20 << 20
)

// ErrEmptyImage is returned when a source produced no bytes.
var ErrEmptyImage = errors.New("capture produced an empty image")

// File serves a still image from disk. The file is re-read on every capture
// so an external process can keep replacing it.
type File struct {
	Path string
}

func (f File) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(f.Path)
	if err != nil {
		return nil, fmt.Errorf("image file: %w", err)
	}
	if info.Size() > maxImageBytes {
		return nil, fmt.Errorf("image file %s is %d bytes, limit is %d", f.Path, info.Size(), maxImageBytes)
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("image file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}

// Command runs an external program that writes one image to stdout, for
// example a webcam grabber or a screenshot tool.
type Command struct {
	Argv    []string
	Timeout time.Duration
}

func (c Command) Capture(ctx context.Context) ([]byte, error) {
	if len(c.Argv) == 0 {
		return nil, errors.New("capture command is empty")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("capture command %s: %w", c.Argv[0], ctx.Err())
		}
		return nil, fmt.Errorf("capture command %s: %w: %s", c.Argv[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	if stdout.Len() == 0 {
		return nil, ErrEmptyImage
	}
	if stdout.Len() > maxImageBytes {
		return nil, fmt.Errorf("capture command %s wrote %d bytes, limit is %d", c.Argv[0], stdout.Len(), maxImageBytes)
	}
	return stdout.Bytes(), nil
}

// ScreenshotArgv returns a command that writes a PNG screenshot to stdout on
// the current platform, or nil when none is known.
func ScreenshotArgv() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"screencapture", "-x", "-t", "png", "/dev/stdout"}
	case "linux":
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			return []string{"grim", "-"}
		}
		return []string{"import", "-window", "root", "png:-"}
	}
	return nil
}

// New picks a source from config: an explicit command wins over a file. The
// literal command "screenshot" expands to the platform screenshot tool. It
// returns nil when nothing is configured.
func New(imagePath string, argv []string) domain.ImageSource {
	if len(argv) == 1 && argv[0] == "screenshot" {
		argv = ScreenshotArgv()
	}
	if len(argv) > 0 {
		return Command{Argv: argv}
	}
	if imagePath != "" {
		return File{Path: imagePath}
	}
	return nil
}
