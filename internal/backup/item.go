package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/TheGojiOG/hostbackup/internal/config"
	"github.com/TheGojiOG/hostbackup/internal/logging"
)

// State of a backup item. An item moves Pending -> Running -> Succeeded or
// Failed exactly once.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Statistics accumulated by one item run
type Statistics struct {
	Errors   int
	Warnings int
	Files    int64
	Bytes    int64
	Duration time.Duration
}

// Result is what an item reports after running
type Result struct {
	Name       string
	Type       config.ItemType
	State      State
	Statistics Statistics
	Errors     []string
	Warnings   []string
	Artifacts  []DumpArtifact
}

// Item is one runnable unit of backup work
type Item interface {
	Name() string
	Type() config.ItemType
	State() State
	Run(ctx context.Context, depot string) Result
}

// itemBase carries the state machine and statistics shared by all variants.
type itemBase struct {
	spec     config.ItemSpec
	itemType config.ItemType
	clock    clock.Clock
	report   *logging.Tally

	mu        sync.Mutex
	state     State
	started   time.Time
	files     int64
	bytes     int64
	artifacts []DumpArtifact
}

func newItemBase(spec config.ItemSpec, itemType config.ItemType, deps Deps) itemBase {
	return itemBase{
		spec:     spec,
		itemType: itemType,
		clock:    deps.Clock,
		report:   logging.NewTally(logging.WithItem(deps.Reporter, spec.Name)),
		state:    StatePending,
	}
}

func (b *itemBase) Name() string          { return b.spec.Name }
func (b *itemBase) Type() config.ItemType { return b.itemType }

func (b *itemBase) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *itemBase) transition(to State) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.state == StatePending && to == StateRunning:
	case b.state == StateRunning && (to == StateSucceeded || to == StateFailed):
	default:
		return fmt.Errorf("item %s: invalid state transition %s -> %s", b.spec.Name, b.state, to)
	}
	b.state = to
	return nil
}

// begin moves the item to Running. A second run of the same item is
// rejected.
func (b *itemBase) begin() error {
	if err := b.transition(StateRunning); err != nil {
		return err
	}
	b.mu.Lock()
	b.started = b.clock.Now()
	b.mu.Unlock()
	b.report.Info(logging.MsgItemStart)
	return nil
}

func (b *itemBase) rejected(err error) Result {
	return Result{
		Name:       b.spec.Name,
		Type:       b.itemType,
		State:      b.State(),
		Statistics: Statistics{Errors: 1},
		Errors:     []string{err.Error()},
	}
}

func (b *itemBase) addData(files, bytes int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files += files
	b.bytes += bytes
}

func (b *itemBase) addArtifact(artifact DumpArtifact) {
	b.mu.Lock()
	b.artifacts = append(b.artifacts, artifact)
	b.mu.Unlock()
	b.addData(1, artifact.Size())
}

func (b *itemBase) elapsedMillis(since time.Time) int64 {
	return b.clock.Now().Sub(since).Milliseconds()
}

// abort ends a run that panicked. The panic is one more critical on top of
// whatever the item reported before it.
func (b *itemBase) abort(reason any) Result {
	b.report.Crit(logging.MsgItemPanic, b.spec.Name, reason)
	b.mu.Lock()
	if b.state == StatePending {
		b.state = StateRunning
		b.started = b.clock.Now()
	}
	b.mu.Unlock()
	return b.finish()
}

// finish ends the run. Any critical reported during the run fails the item.
func (b *itemBase) finish() Result {
	errs := b.report.Errors()
	warnings := b.report.Warnings()

	b.mu.Lock()
	duration := b.clock.Now().Sub(b.started)
	stats := Statistics{
		Errors:   len(errs),
		Warnings: len(warnings),
		Files:    b.files,
		Bytes:    b.bytes,
		Duration: duration,
	}
	artifacts := append([]DumpArtifact(nil), b.artifacts...)
	b.mu.Unlock()

	final := StateSucceeded
	if stats.Errors > 0 {
		final = StateFailed
	}
	if err := b.transition(final); err != nil {
		return b.rejected(err)
	}

	b.report.Info(logging.MsgItemFinished, duration.Milliseconds(), stats.Errors, stats.Warnings)

	return Result{
		Name:       b.spec.Name,
		Type:       b.itemType,
		State:      final,
		Statistics: stats,
		Errors:     errs,
		Warnings:   warnings,
		Artifacts:  artifacts,
	}
}
