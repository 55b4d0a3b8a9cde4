package service

import (
	"context"
	"fmt"
	"sync"
)

// MockBackend is an in-memory Backend for testing. Units start inactive.
type MockBackend struct {
	mu          sync.Mutex
	active      map[string]bool
	sticky      map[string]bool
	startErrors map[string]error
	stopErrors  map[string]error
	checkErrors map[string]error
	calls       []string
	checks      int
}

func NewMockBackend() *MockBackend {
	return &MockBackend{
		active:      make(map[string]bool),
		sticky:      make(map[string]bool),
		startErrors: make(map[string]error),
		stopErrors:  make(map[string]error),
		checkErrors: make(map[string]error),
	}
}

// SetActive sets the activity state of a unit.
func (m *MockBackend) SetActive(unit string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[unit] = active
}

// KeepActive makes a unit ignore stop requests.
func (m *MockBackend) KeepActive(unit string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[unit] = true
	m.sticky[unit] = true
}

func (m *MockBackend) FailStart(unit string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErrors[unit] = err
}

func (m *MockBackend) FailStop(unit string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopErrors[unit] = err
}

func (m *MockBackend) FailCheck(unit string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkErrors[unit] = err
}

func (m *MockBackend) StartUnit(_ context.Context, unit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "start "+unit)
	if err := m.startErrors[unit]; err != nil {
		return err
	}
	m.active[unit] = true
	return nil
}

func (m *MockBackend) StopUnit(_ context.Context, unit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "stop "+unit)
	if err := m.stopErrors[unit]; err != nil {
		return err
	}
	if !m.sticky[unit] {
		m.active[unit] = false
	}
	return nil
}

func (m *MockBackend) IsActive(_ context.Context, unit string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks++
	if err := m.checkErrors[unit]; err != nil {
		return false, fmt.Errorf("check %s: %w", unit, err)
	}
	return m.active[unit], nil
}

// Active reports the current state of a unit.
func (m *MockBackend) Active(unit string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[unit]
}

// Calls returns the start and stop requests in order, as "start unit" or
// "stop unit".
func (m *MockBackend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Checks returns the number of activity checks performed.
func (m *MockBackend) Checks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checks
}
