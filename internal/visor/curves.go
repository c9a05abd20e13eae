package visor

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/mnist-tutorial/internal/trainer"
)

// ErrUnknownMetric is returned by FitCallbacks for a metric the trainer does not report.
var ErrUnknownMetric = errors.New("unknown metric")

// FitCallbacks returns a trainer callback that keeps the training curves on s up to
// date: batches.csv grows with every batch, and history.csv, loss.svg and accuracy.svg
// are rewritten after every epoch.
//
// metrics selects which epoch values are recorded (loss, acc, val_loss, val_acc).
func (v *Visor) FitCallbacks(s Surface, metrics []string) (trainer.Callback, error) {
	if len(metrics) == 0 {
		return nil, fmt.Errorf("%w: no metrics requested", ErrUnknownMetric)
	}
	for _, m := range metrics {
		if _, ok := (trainer.EpochLogs{}).Metric(m); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, m)
		}
	}
	if _, err := v.open(s); err != nil {
		return nil, err
	}
	return &fitCallback{visor: v, surface: s, metrics: metrics}, nil
}

type fitCallback struct {
	visor   *Visor
	surface Surface
	metrics []string
	epochs  []trainer.EpochLogs
	batches []trainer.BatchLogs
}

func (f *fitCallback) OnBatchEnd(_ context.Context, logs trainer.BatchLogs) error {
	f.batches = append(f.batches, logs)

	rows := make([][]string, 0, len(f.batches)+1)
	rows = append(rows, []string{"step", "epoch", "batch", "size", "loss", "acc"})
	for i, b := range f.batches {
		rows = append(rows, []string{
			strconv.Itoa(i + 1), strconv.Itoa(b.Epoch), strconv.Itoa(b.Batch), strconv.Itoa(b.Size),
			formatFloat(b.Loss), formatFloat(b.Acc),
		})
	}
	return f.writeCSV("batches.csv", rows)
}

func (f *fitCallback) OnEpochEnd(_ context.Context, logs trainer.EpochLogs) error {
	f.epochs = append(f.epochs, logs)

	rows := make([][]string, 0, len(f.epochs)+1)
	rows = append(rows, append([]string{"epoch"}, f.metrics...))
	for _, e := range f.epochs {
		row := []string{strconv.Itoa(e.Epoch)}
		for _, m := range f.metrics {
			val, _ := e.Metric(m)
			row = append(row, formatFloat(val))
		}
		rows = append(rows, row)
	}
	if err := f.writeCSV("history.csv", rows); err != nil {
		return err
	}

	for _, chart := range []struct {
		file, title string
		match       func(string) bool
	}{
		{"loss.svg", "Loss", func(m string) bool { return strings.HasSuffix(m, "loss") }},
		{"accuracy.svg", "Accuracy", func(m string) bool { return strings.HasSuffix(m, "acc") }},
	} {
		var series []lineSeries
		for _, m := range f.metrics {
			if !chart.match(m) {
				continue
			}
			ls := lineSeries{name: m}
			for _, e := range f.epochs {
				val, _ := e.Metric(m)
				ls.points = append(ls.points, point{x: float64(e.Epoch), y: val})
			}
			series = append(series, ls)
		}
		if len(series) == 0 {
			continue
		}
		if _, err := f.visor.writeFile(f.surface, chart.file, renderLineChart(chart.title, "epoch", series)); err != nil {
			return err
		}
	}
	return nil
}

func (f *fitCallback) writeCSV(name string, rows [][]string) error {
	var buf bytes.Buffer
	if err := csv.NewWriter(&buf).WriteAll(rows); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	_, err := f.visor.writeFile(f.surface, name, buf.Bytes())
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
