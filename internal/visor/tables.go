package visor

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/born-ml/mnist-tutorial/internal/evaluate"
	"github.com/born-ml/mnist-tutorial/internal/hostinfo"
	"github.com/born-ml/mnist-tutorial/internal/model"
)

// ShowModelSummary writes a layer table for the model together with the optimizer,
// loss and host description.
func (v *Visor) ShowModelSummary(s Surface, sum model.Summary, host hostinfo.Info) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Layer Name\tType\tOutput Shape\t# Of Params\tTrainable")
	fmt.Fprintf(tw, "input\tinput\t%s\t0\tfalse\n", sum.InputShape)
	for _, r := range sum.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n", r.Name, r.Type, r.OutputShape, r.Params, r.Params > 0)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("model summary: %w", err)
	}

	fmt.Fprintf(&buf, "\nTotal params: %d\n", sum.TotalParams)
	fmt.Fprintf(&buf, "Optimizer:    %s\n", sum.Optimizer)
	fmt.Fprintf(&buf, "Loss:         %s\n", sum.Loss)
	fmt.Fprintf(&buf, "Host:         %s\n", host)

	if _, err := v.writeFile(s, "summary.txt", buf.Bytes()); err != nil {
		return err
	}
	v.logger.Printf("surface=%q tab=%q total_params=%d", s.Name, s.Tab, sum.TotalParams)
	return nil
}

// ShowPerClassAccuracy writes per-class accuracy as an aligned text table and as CSV.
// classNames must have one entry per class.
func (v *Visor) ShowPerClassAccuracy(s Surface, acc []evaluate.ClassAccuracy, classNames []string) error {
	if len(classNames) != len(acc) {
		return fmt.Errorf("per-class accuracy: %d classes, %d names", len(acc), len(classNames))
	}

	var txt bytes.Buffer
	tw := tabwriter.NewWriter(&txt, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Class\tAccuracy\t# Samples\t")
	for i, a := range acc {
		fmt.Fprintf(tw, "%s\t%.4f\t%d\t\n", classNames[i], a.Accuracy, a.Count)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("per-class accuracy: %w", err)
	}

	var out bytes.Buffer
	w := csv.NewWriter(&out)
	rows := [][]string{{"class", "accuracy", "count"}}
	for i, a := range acc {
		rows = append(rows, []string{classNames[i], strconv.FormatFloat(a.Accuracy, 'f', 6, 64), strconv.Itoa(a.Count)})
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("per-class accuracy: %w", err)
	}

	if _, err := v.writeFile(s, "per_class_accuracy.txt", txt.Bytes()); err != nil {
		return err
	}
	if _, err := v.writeFile(s, "per_class_accuracy.csv", out.Bytes()); err != nil {
		return err
	}
	return nil
}

// confusionTable renders cm as text with true classes down and predicted across.
func confusionTable(cm evaluate.ConfusionMatrix, classNames []string) ([]byte, error) {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "true\\pred\t")
	for _, name := range classNames {
		fmt.Fprintf(tw, "%s\t", name)
	}
	fmt.Fprintln(tw)
	for i, row := range cm {
		fmt.Fprintf(tw, "%s\t", classNames[i])
		for _, c := range row {
			fmt.Fprintf(tw, "%d\t", c)
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
