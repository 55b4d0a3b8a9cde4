package logging

import "sync"

// Tally forwards messages to another reporter and keeps the rendered text of
// every warning and critical it saw. Criticals count as errors.
type Tally struct {
	next Reporter

	mu       sync.Mutex
	warnings []string
	errors   []string
}

func NewTally(next Reporter) *Tally {
	return &Tally{next: next}
}

func (t *Tally) Info(id string, args ...any) {
	if t.next != nil {
		t.next.Info(id, args...)
	}
}

func (t *Tally) Warn(id string, args ...any) {
	t.mu.Lock()
	t.warnings = append(t.warnings, Render(id, args...))
	t.mu.Unlock()
	if t.next != nil {
		t.next.Warn(id, args...)
	}
}

func (t *Tally) Crit(id string, args ...any) {
	t.mu.Lock()
	t.errors = append(t.errors, Render(id, args...))
	t.mu.Unlock()
	if t.next != nil {
		t.next.Crit(id, args...)
	}
}

func (t *Tally) Warnings() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.warnings...)
}

func (t *Tally) Errors() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.errors...)
}

func (t *Tally) WarningCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.warnings)
}

func (t *Tally) ErrorCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.errors)
}
