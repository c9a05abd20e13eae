// Package tutorial wires the pipeline together: load the data, show examples, build
// the model, train it with live curves, then evaluate it twice on fresh held-out
// batches (per-class accuracy and confusion matrix).
package tutorial

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"

	"github.com/born-ml/mnist-tutorial/internal/config"
	"github.com/born-ml/mnist-tutorial/internal/dataset"
	"github.com/born-ml/mnist-tutorial/internal/evaluate"
	"github.com/born-ml/mnist-tutorial/internal/hostinfo"
	"github.com/born-ml/mnist-tutorial/internal/model"
	"github.com/born-ml/mnist-tutorial/internal/trainer"
	"github.com/born-ml/mnist-tutorial/internal/visor"
)

// ClassNames label the ten digit classes on every surface.
var ClassNames = []string{"Zero", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine"}

// Surfaces the pipeline draws on.
var (
	SurfaceExamples  = visor.Surface{Name: "Input Data Examples", Tab: "Input Data"}
	SurfaceSummary   = visor.Surface{Name: "Model Architecture", Tab: "Model"}
	SurfaceTraining  = visor.Surface{Name: "Model Training", Tab: "Model"}
	SurfaceAccuracy  = visor.Surface{Name: "Accuracy", Tab: "Evaluation"}
	SurfaceConfusion = visor.Surface{Name: "Confusion Matrix", Tab: "Evaluation"}
)

// Report is what a completed run produced.
type Report struct {
	Summary   model.Summary
	History   *trainer.History
	Accuracy  float64 // overall accuracy of the per-class evaluation batch
	PerClass  []evaluate.ClassAccuracy
	Confusion evaluate.ConfusionMatrix
	IndexPath string
}

// Run executes the whole pipeline. Stages run strictly in order and the first failure
// ends the run with a *StageError.
func Run(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Report, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if err := cfg.Validate(); err != nil {
		return nil, &StageError{Stage: "config", Kind: ErrConfig, Err: err}
	}

	p := &pipeline{cfg: cfg, logger: logger, report: &Report{}}
	steps := []struct {
		name      string
		fallback  error
		panicKind error
		fn        func(context.Context) error
	}{
		{"load", ErrDataLoad, ErrDataLoad, p.load},
		{"show-examples", nil, ErrDataLoad, p.showExamples},
		{"build", ErrConfig, ErrConfig, p.build},
		{"train", nil, ErrNumeric, p.train},
		{"show-accuracy", nil, ErrNumeric, p.showAccuracy},
		{"show-confusion", nil, ErrNumeric, p.showConfusion},
		{"index", nil, ErrConfig, p.index},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: s.name, Err: err}
		}
		if err := stage(s.name, s.fallback, s.panicKind, func() error { return s.fn(ctx) }); err != nil {
			return nil, err
		}
	}
	return p.report, nil
}

type pipeline struct {
	cfg    *config.Config
	logger *log.Logger
	report *Report

	data  *dataset.Data
	visor *visor.Visor
	model *model.Model
}

func (p *pipeline) source() dataset.Source {
	if p.cfg.DataMode == config.DataSynthetic {
		return &dataset.SyntheticSource{
			TrainSize: p.cfg.TrainSize,
			TestSize:  p.cfg.ValidationSize + 2*p.cfg.EvalSize + p.cfg.Examples,
			Seed:      p.cfg.Seed,
		}
	}
	return &dataset.IDXSource{
		Dir:      p.cfg.DataDir,
		BaseURL:  p.cfg.BaseURL,
		Download: p.cfg.Download,
		Logger:   p.logger,
	}
}

func (p *pipeline) load(ctx context.Context) error {
	v, err := visor.New(p.cfg.OutDir, p.logger)
	if err != nil {
		return err
	}
	p.visor = v

	p.data = dataset.New(p.source(), p.cfg.Seed)
	if err := p.data.Load(ctx); err != nil {
		return err
	}
	p.logger.Printf("data=%s train=%d test=%d", p.cfg.DataMode, p.data.TrainLen(), p.data.TestLen())
	return nil
}

func (p *pipeline) showExamples(context.Context) error {
	if p.cfg.Examples == 0 {
		return nil
	}
	batch, err := p.data.NextTestBatch(p.cfg.Examples)
	if err != nil {
		return err
	}
	_, err = p.visor.ShowExamples(SurfaceExamples, batch)
	return err
}

func (p *pipeline) build(context.Context) error {
	rng := rand.New(rand.NewSource(p.cfg.Seed)) //nolint:gosec // weight init, not security
	m, err := model.Build(model.DefaultArchitecture(), model.NewBackend(), rng)
	if err != nil {
		return err
	}
	if m.NumClasses() != len(ClassNames) {
		return fmt.Errorf("%w: model has %d outputs, want %d", model.ErrShape, m.NumClasses(), len(ClassNames))
	}
	p.model = m

	p.report.Summary = m.Summary(float32(p.cfg.LearningRate))
	host := hostinfo.Detect()
	p.logger.Printf("params=%d host=%q", p.report.Summary.TotalParams, host.String())
	return p.visor.ShowModelSummary(SurfaceSummary, p.report.Summary, host)
}

func (p *pipeline) train(ctx context.Context) error {
	trainBatch, err := p.data.NextTrainBatch(p.cfg.TrainSize)
	if err != nil {
		return err
	}
	valBatch, err := p.data.NextTestBatch(p.cfg.ValidationSize)
	if err != nil {
		return err
	}

	curves, err := p.visor.FitCallbacks(SurfaceTraining, []string{
		trainer.MetricLoss, trainer.MetricValLoss, trainer.MetricAcc, trainer.MetricValAcc,
	})
	if err != nil {
		return err
	}

	opts := trainer.DefaultOptions()
	opts.BatchSize = p.cfg.BatchSize
	opts.Epochs = p.cfg.Epochs
	opts.LearningRate = float32(p.cfg.LearningRate)
	opts.Seed = p.cfg.Seed
	opts.Logger = p.logger

	history, err := trainer.Fit(ctx, p.model, trainBatch, valBatch, opts, curves)
	p.report.History = history
	return err
}

func (p *pipeline) showAccuracy(context.Context) error {
	pred, err := evaluate.DoPrediction(p.model, p.data, p.cfg.EvalSize)
	if err != nil {
		return err
	}
	acc, err := evaluate.Accuracy(pred)
	if err != nil {
		return err
	}
	perClass, err := evaluate.PerClassAccuracy(pred, len(ClassNames))
	if err != nil {
		return err
	}
	p.report.Accuracy = acc
	p.report.PerClass = perClass
	p.logger.Printf("eval_size=%d accuracy=%.4f", pred.Len(), acc)
	return p.visor.ShowPerClassAccuracy(SurfaceAccuracy, perClass, ClassNames)
}

func (p *pipeline) showConfusion(context.Context) error {
	pred, err := evaluate.DoPrediction(p.model, p.data, p.cfg.EvalSize)
	if err != nil {
		return err
	}
	cm, err := evaluate.NewConfusionMatrix(pred, len(ClassNames))
	if err != nil {
		return err
	}
	p.report.Confusion = cm
	return p.visor.RenderConfusionMatrix(SurfaceConfusion, cm, ClassNames)
}

func (p *pipeline) index(context.Context) error {
	path, err := p.visor.WriteIndex("MNIST digit recognizer")
	if err != nil {
		return err
	}
	p.report.IndexPath = path
	return nil
}
