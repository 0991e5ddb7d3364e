// internal/services/subprocess.go
package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
	"golang.org/x/sync/errgroup"
)

const (
	maxOutputLine = 4 << 20
	stderrTailMax = 4 << 10
)

// ErrCommandNotConfigured is returned when no external command is set.
var ErrCommandNotConfigured = errors.New("external command not configured")

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// runLines runs argv, calling onLine for every stdout line. Stdout and
// stderr are drained concurrently; cancelling ctx kills the process. The
// error carries the tail of stderr when the command fails.
func runLines(ctx context.Context, argv []string, onLine func(line string)) error {
	if len(argv) == 0 {
		return ErrCommandNotConfigured
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", argv[0], err)
	}

	tail := &tailBuffer{max: stderrTailMax}
	var g errgroup.Group
	g.Go(func() error {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64<<10), maxOutputLine)
		for scanner.Scan() {
			onLine(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			_, _ = io.Copy(io.Discard, stdout)
			return fmt.Errorf("read stdout: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		_, err := io.Copy(tail, stderr)
		return err
	})

	readErr := g.Wait()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		if msg := tail.String(); msg != "" {
			return fmt.Errorf("%s failed: %w: %s", argv[0], waitErr, msg)
		}
		return fmt.Errorf("%s failed: %w", argv[0], waitErr)
	}
	return readErr
}

// splitCommand turns a configured command line into argv. Single and double
// quotes group words, so paths with spaces can be quoted. Environment
// expansion, backticks and shell operators are not supported.
func splitCommand(command string) ([]string, error) {
	parser := shellwords.NewParser()
	argv, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if parser.Position != -1 {
		return nil, fmt.Errorf("parse command %q: shell operators are not supported", command)
	}
	return argv, nil
}
