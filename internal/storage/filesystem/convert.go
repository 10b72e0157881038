package filesystem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultHEICCommand = "heif-convert"
	DefaultJPEGQuality = 95
)

// Converter produces a derived file next to a saved item.
type Converter interface {
	Accepts(path string) bool
	// Convert writes the derived file and returns its path.
	Convert(ctx context.Context, path string) (string, error)
}

// Result captures the output of an external command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs an external program.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec, bounded by Timeout when it is positive.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to run %s: %w", name, err)
	}
	return res, nil
}

// HEICConverter writes a JPEG sibling for every .heic file with an external decoder.
type HEICConverter struct {
	Command string
	Quality int
	Runner  CommandRunner
}

// NewHEICConverter returns a converter invoking command (default heif-convert) at quality 95.
func NewHEICConverter(command string, runner CommandRunner) *HEICConverter {
	if command == "" {
		command = DefaultHEICCommand
	}
	if runner == nil {
		runner = ExecRunner{Timeout: 2 * time.Minute}
	}
	return &HEICConverter{Command: command, Quality: DefaultJPEGQuality, Runner: runner}
}

func (c *HEICConverter) Accepts(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".heic")
}

func (c *HEICConverter) Convert(ctx context.Context, path string) (string, error) {
	out := JPEGPath(path)
	res, err := c.Runner.Run(ctx, c.Command, "-q", strconv.Itoa(c.Quality), path, out)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s exited with status %d: %s", c.Command, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return out, nil
}

// JPEGPath swaps a .heic extension for .jpg, keeping upper case extensions upper case.
func JPEGPath(path string) string {
	ext := filepath.Ext(path)
	jpg := ".jpg"
	if ext == strings.ToUpper(ext) {
		jpg = ".JPG"
	}
	return strings.TrimSuffix(path, ext) + jpg
}
