package reactloop

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"
)

// ExecutionEnvironment abstracts where tool side effects happen. The core
// treats every operation as opaque; implementations may target the local
// machine, a container, or a remote host.
type ExecutionEnvironment interface {
	// Command execution. Returns combined output; a nonzero exit code is
	// an error whose message carries the partial output.
	RunCommand(ctx context.Context, command string) (string, error)

	// File operations.
	ShowFile(path string) (string, error)
	CreateFile(path string, content string) (string, error)
	AppendFile(path string, content string) (string, error)
	ReplaceLines(path string, fromLine, toLine int, content string) (string, error)
	ListDir(path string) (string, error)
	GrepFile(path string, pattern string) (string, error)

	// Version control. GeneratePatch stages everything and returns the
	// cached diff; HasPendingChanges reports whether that diff is
	// non-empty (used to gate finish).
	GeneratePatch(ctx context.Context) (string, error)
	HasPendingChanges(ctx context.Context) bool

	// Metadata.
	WorkingDirectory() string
	Platform() string
}

// LocalEnvironment runs tool operations on the local machine.
type LocalEnvironment struct {
	workingDir     string
	commandTimeout time.Duration
}

// NewLocalEnvironment creates a local execution environment rooted at
// workingDir. An empty workingDir defaults to the current directory.
func NewLocalEnvironment(workingDir string) *LocalEnvironment {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	return &LocalEnvironment{
		workingDir:     workingDir,
		commandTimeout: 2 * time.Minute,
	}
}

// SetCommandTimeout overrides the per-command timeout.
func (e *LocalEnvironment) SetCommandTimeout(d time.Duration) {
	e.commandTimeout = d
}

func (e *LocalEnvironment) WorkingDirectory() string {
	return e.workingDir
}

func (e *LocalEnvironment) Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

func (e *LocalEnvironment) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.workingDir, path)
}

// RunCommand runs the command in a shell and returns the framed output. A
// nonzero exit code or a timeout is an error carrying the partial output
// so the model can still see what happened.
func (e *LocalEnvironment) RunCommand(ctx context.Context, command string) (string, error) {
	if e.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.commandTimeout)
		defer cancel()
	}

	shell := "/bin/bash"
	shellArg := "-c"
	if runtime.GOOS == "windows" {
		shell = "cmd.exe"
		shellArg = "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = e.workingDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := fmt.Sprintf("--STDOUT--\n%s\n--STDERR--\n%s", stdout.String(), stderr.String())

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
			return "", fmt.Errorf("command timed out after %s.\n\nPartial output:\n%s", e.commandTimeout, output)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("command exited with code %d.\n\n%s", exitErr.ExitCode(), output)
		}
		return "", fmt.Errorf("command failed to start: %w", err)
	}

	return output, nil
}

func (e *LocalEnvironment) ShowFile(path string) (string, error) {
	resolved := e.resolvePath(path)
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("file not found: %s", path)
	}
	return string(data), nil
}

func (e *LocalEnvironment) CreateFile(path string, content string) (string, error) {
	resolved := e.resolvePath(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return "", fmt.Errorf("error creating file %s: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("error creating file %s: %w", path, err)
	}
	return fmt.Sprintf("File created: %s", path), nil
}

func (e *LocalEnvironment) AppendFile(path string, content string) (string, error) {
	resolved := e.resolvePath(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return "", fmt.Errorf("error appending to file %s: %w", path, err)
	}
	f, err := os.OpenFile(resolved, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("error appending to file %s: %w", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", fmt.Errorf("error appending to file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("error appending to file %s: %w", path, err)
	}

	// Return the updated tail of the file.
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("error reading back %s: %w", path, err)
	}
	tail := string(data)
	if len(tail) > 5000 {
		tail = tail[len(tail)-5000:]
	}
	return tail, nil
}

// ReplaceLines replaces lines fromLine..toLine (1-indexed, inclusive) with
// content and returns the updated file.
func (e *LocalEnvironment) ReplaceLines(path string, fromLine, toLine int, content string) (string, error) {
	resolved := e.resolvePath(path)
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("file not found: %s", path)
	}

	lines := strings.SplitAfter(string(data), "\n")
	// SplitAfter leaves a trailing empty element when the file ends with
	// a newline.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	fromIdx := fromLine - 1
	if fromIdx < 0 {
		fromIdx = 0
	}
	toIdx := toLine
	if toIdx > len(lines) {
		toIdx = len(lines)
	}
	if fromIdx > len(lines) {
		return "", fmt.Errorf("invalid from_line: %d for file with %d lines", fromLine, len(lines))
	}
	if toIdx < fromIdx {
		return "", fmt.Errorf("invalid range: to_line (%d) must be >= from_line (%d)", toLine, fromLine)
	}

	replacement := content
	if !strings.HasSuffix(replacement, "\n") {
		replacement += "\n"
	}

	var sb strings.Builder
	for _, l := range lines[:fromIdx] {
		sb.WriteString(l)
	}
	sb.WriteString(replacement)
	for _, l := range lines[toIdx:] {
		sb.WriteString(l)
	}

	updated := sb.String()
	if err := os.WriteFile(resolved, []byte(updated), 0644); err != nil {
		return "", fmt.Errorf("error replacing content in file %s: %w", path, err)
	}
	return updated, nil
}

func (e *LocalEnvironment) ListDir(path string) (string, error) {
	if path == "" {
		path = "."
	}
	resolved := e.resolvePath(path)
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", fmt.Errorf("error listing %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

// GrepFile returns lines in a file matching a regex pattern, prefixed with
// their line numbers.
func (e *LocalEnvironment) GrepFile(path string, pattern string) (string, error) {
	resolved := e.resolvePath(path)
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("file not found: %s", path)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var matches []string
	for i, line := range strings.Split(string(data), "\n") {
		if re.MatchString(line) {
			matches = append(matches, fmt.Sprintf("%d: %s", i+1, strings.TrimRight(line, " \t")))
		}
	}
	return strings.Join(matches, "\n"), nil
}

// GeneratePatch stages all changes and returns the cached diff.
func (e *LocalEnvironment) GeneratePatch(ctx context.Context) (string, error) {
	if _, err := e.git(ctx, "add", "-A"); err != nil {
		return "", fmt.Errorf("error staging changes: %w", err)
	}
	diff, err := e.git(ctx, "diff", "--cached")
	if err != nil {
		return "", fmt.Errorf("error generating patch: %w", err)
	}
	return diff, nil
}

// HasPendingChanges reports whether a non-empty patch would be generated.
func (e *LocalEnvironment) HasPendingChanges(ctx context.Context) bool {
	patch, err := e.GeneratePatch(ctx)
	return err == nil && strings.TrimSpace(patch) != ""
}

func (e *LocalEnvironment) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = e.workingDir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
