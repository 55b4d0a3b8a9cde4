package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/TheGojiOG/hostbackup/internal/backup"
	"github.com/TheGojiOG/hostbackup/internal/config"
)

func TestWriteRunStatistics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostbackup.prom")
	report := backup.RunReport{
		Statistics: backup.RunStatistics{
			ID:         uuid.New(),
			TotalItems: 2,
			Errors:     1,
			Warnings:   3,
			Files:      12,
			Bytes:      2048,
			Duration:   90 * time.Second,
		},
		FinishedAt: time.Unix(1700000000, 0),
		Items: []backup.Result{
			{Name: "shop", Type: config.TypeDatabase, State: backup.StateFailed, Statistics: backup.Statistics{Errors: 1}},
			{Name: "home", Type: config.TypeSync, State: backup.StateSucceeded, Statistics: backup.Statistics{Files: 12, Bytes: 2048}},
		},
	}

	if err := NewTextfileWriter(path).ObserveRun(context.Background(), report); err != nil {
		t.Fatalf("failed to write metrics: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read metrics: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		"hostbackup_run_items 2",
		"hostbackup_run_errors 1",
		"hostbackup_run_duration_seconds 90",
		"hostbackup_run_success 0",
		`hostbackup_item_success{item="home",type="sync"} 1`,
		`hostbackup_item_bytes{item="home",type="sync"} 2048`,
		`hostbackup_item_errors{item="shop",type="database"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, out)
		}
	}
}
