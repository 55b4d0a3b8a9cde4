package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Cmd describes one external program invocation.
type Cmd struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the current environment

	// Stdout receives the program output when set; otherwise it is captured
	// into Result.Stdout.
	Stdout io.Writer
}

func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result holds what an invocation produced. ExitCode is -1 when the program
// could not be started at all.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner abstracts external program execution
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// ExecRunner runs programs on the local host
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, c Cmd) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	} else {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   strings.TrimSpace(stderr.String()),
	}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		result.ExitCode = -1
		return result, fmt.Errorf("failed to run %s: %w", c.Name, err)
	}
	if result.Stderr != "" {
		return result, fmt.Errorf("%s exited with code %d: %s", c.Name, result.ExitCode, result.Stderr)
	}
	return result, fmt.Errorf("%s exited with code %d", c.Name, result.ExitCode)
}

// MockRunner for testing
type MockRunner struct {
	mu       sync.Mutex
	Handlers map[string]func(cmd Cmd) (Result, error)
	Calls    []Cmd
}

func NewMockRunner() *MockRunner {
	return &MockRunner{Handlers: make(map[string]func(cmd Cmd) (Result, error))}
}

// Handle registers a handler for a program name.
func (m *MockRunner) Handle(name string, fn func(cmd Cmd) (Result, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[name] = fn
}

func (m *MockRunner) Run(_ context.Context, cmd Cmd) (Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, cmd)
	handler, ok := m.Handlers[cmd.Name]
	m.mu.Unlock()

	if !ok {
		return Result{ExitCode: -1}, fmt.Errorf("failed to run %s: executable file not found", cmd.Name)
	}
	return handler(cmd)
}

// Invocations returns the recorded calls of one program.
func (m *MockRunner) Invocations(name string) []Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	var calls []Cmd
	for _, c := range m.Calls {
		if c.Name == name {
			calls = append(calls, c)
		}
	}
	return calls
}
