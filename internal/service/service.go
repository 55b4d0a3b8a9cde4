// Package service starts, stops and watches systemd units.
package service

import (
	"context"
	"strings"
)

// Kind of unit a name refers to.
type Kind string

const (
	KindService Kind = "service"
	KindTimer   Kind = "timer"
)

var unitSuffixes = []string{
	".service", ".timer", ".socket", ".target", ".mount", ".path", ".slice", ".scope",
}

// UnitName appends the kind suffix to names that carry none.
func UnitName(name string, kind Kind) string {
	name = strings.TrimSpace(name)
	for _, suffix := range unitSuffixes {
		if strings.HasSuffix(name, suffix) {
			return name
		}
	}
	return name + "." + string(kind)
}

// baseName strips a known unit suffix.
func baseName(unit string) string {
	for _, suffix := range unitSuffixes {
		if strings.HasSuffix(unit, suffix) {
			return strings.TrimSuffix(unit, suffix)
		}
	}
	return unit
}

// WaitResult is the outcome of waiting for a unit to become inactive.
type WaitResult int

const (
	Stopped WaitResult = iota
	TimedOut
	CheckFailed
)

func (r WaitResult) String() string {
	switch r {
	case Stopped:
		return "stopped"
	case TimedOut:
		return "timed out"
	case CheckFailed:
		return "check failed"
	default:
		return "unknown"
	}
}

// Handle describes a unit during one start/stop/wait cycle.
type Handle struct {
	Unit   string
	Kind   Kind
	Active bool
}

// Backend performs unit operations against the service manager.
type Backend interface {
	StartUnit(ctx context.Context, unit string) error
	StopUnit(ctx context.Context, unit string) error
	IsActive(ctx context.Context, unit string) (bool, error)
}
