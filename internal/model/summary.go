package model

import (
	"fmt"
	"strings"
)

// SummaryRow describes one layer in a model summary.
type SummaryRow struct {
	Name        string
	Type        string
	OutputShape string
	Params      int
}

// Summary is a layer-by-layer description of a model.
type Summary struct {
	Rows        []SummaryRow
	TotalParams int
	InputShape  string
	Optimizer   string
	Loss        string
}

// Summary describes the model in input-major (height, width, channels) layout. lr is
// the learning rate the optimizer is created with.
func (m *Model) Summary(lr float32) Summary {
	s := Summary{
		InputShape: formatShape(m.arch.InputShape[:]),
		Optimizer:  fmt.Sprintf("Adam(lr=%g, betas=(%g, %g), eps=%g)", lr, DefaultBeta1, DefaultBeta2, DefaultEpsilon),
		Loss:       "categorical cross-entropy",
	}
	for _, ls := range m.shapes {
		typ := ls.Spec.Kind.String()
		if ls.Spec.Activation != Linear {
			typ += "(" + string(ls.Spec.Activation) + ")"
		}
		s.Rows = append(s.Rows, SummaryRow{
			Name:        ls.Name,
			Type:        typ,
			OutputShape: formatShape(ls.Out),
			Params:      ls.Params,
		})
		s.TotalParams += ls.Params
	}
	return s
}

// formatShape renders dims with a leading batch placeholder: [batch,24,24,8].
func formatShape(dims []int) string {
	parts := make([]string, 0, len(dims)+1)
	parts = append(parts, "batch")
	for _, d := range dims {
		parts = append(parts, fmt.Sprint(d))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
