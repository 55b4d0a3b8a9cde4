// Package metrics exports run statistics for the node exporter textfile
// collector.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TheGojiOG/hostbackup/internal/backup"
)

// TextfileWriter writes the statistics of every run to a Prometheus
// textfile.
type TextfileWriter struct {
	path string
}

func NewTextfileWriter(path string) *TextfileWriter {
	return &TextfileWriter{path: path}
}

func (w *TextfileWriter) ObserveRun(_ context.Context, report backup.RunReport) error {
	return WriteRunStatistics(w.path, report)
}

// WriteRunStatistics renders the run and its items into a private registry
// and writes it atomically to path.
func WriteRunStatistics(path string, report backup.RunReport) error {
	registry := prometheus.NewRegistry()

	newRunGauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hostbackup",
			Subsystem: "run",
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(g)
		return g
	}

	stats := report.Statistics
	newRunGauge("items", "Number of items selected for the last run.").Set(float64(stats.TotalItems))
	newRunGauge("errors", "Errors of the last run.").Set(float64(stats.Errors))
	newRunGauge("warnings", "Warnings of the last run.").Set(float64(stats.Warnings))
	newRunGauge("files", "Files backed up by the last run.").Set(float64(stats.Files))
	newRunGauge("bytes", "Bytes backed up by the last run.").Set(float64(stats.Bytes))
	newRunGauge("duration_seconds", "Duration of the last run.").Set(stats.Duration.Seconds())
	newRunGauge("last_timestamp_seconds", "Time the last run finished.").Set(float64(report.FinishedAt.Unix()))
	success := 1.0
	if stats.Failed() {
		success = 0
	}
	newRunGauge("success", "Whether the last run finished without errors.").Set(success)

	newItemGauge := func(name, help string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hostbackup",
			Subsystem: "item",
			Name:      name,
			Help:      help,
		}, []string{"item", "type"})
		registry.MustRegister(g)
		return g
	}

	itemErrors := newItemGauge("errors", "Errors of the item in the last run.")
	itemWarnings := newItemGauge("warnings", "Warnings of the item in the last run.")
	itemFiles := newItemGauge("files", "Files backed up by the item in the last run.")
	itemBytes := newItemGauge("bytes", "Bytes backed up by the item in the last run.")
	itemDuration := newItemGauge("duration_seconds", "Duration of the item in the last run.")
	itemSuccess := newItemGauge("success", "Whether the item succeeded in the last run.")

	for _, item := range report.Items {
		labels := []string{item.Name, string(item.Type)}
		itemErrors.WithLabelValues(labels...).Set(float64(item.Statistics.Errors))
		itemWarnings.WithLabelValues(labels...).Set(float64(item.Statistics.Warnings))
		itemFiles.WithLabelValues(labels...).Set(float64(item.Statistics.Files))
		itemBytes.WithLabelValues(labels...).Set(float64(item.Statistics.Bytes))
		itemDuration.WithLabelValues(labels...).Set(item.Statistics.Duration.Seconds())
		ok := 0.0
		if item.State == backup.StateSucceeded {
			ok = 1
		}
		itemSuccess.WithLabelValues(labels...).Set(ok)
	}

	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
