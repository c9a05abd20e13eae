// Package main trains the MNIST convolutional network and renders the results.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/born-ml/mnist-tutorial/internal/config"
	"github.com/born-ml/mnist-tutorial/internal/tutorial"
)

const version = "v0.1.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("mnist-tutorial %s\n", version)
		return
	}

	cfgPath := flag.String("config", "", "Path to YAML config (optional)")
	dataDir := flag.String("data", "", "Directory holding the MNIST IDX files")
	download := flag.Bool("download", false, "Download missing MNIST files")
	synthetic := flag.Bool("synthetic", false, "Use generated digits instead of MNIST")
	outDir := flag.String("out", "", "Output directory for rendered results")
	epochs := flag.Int("epochs", 0, "Number of training epochs")
	batchSize := flag.Int("batch", 0, "Mini-batch size")
	trainSize := flag.Int("train-size", 0, "Training examples")
	valSize := flag.Int("val-size", 0, "Validation examples")
	evalSize := flag.Int("eval-size", 0, "Examples per evaluation")
	examples := flag.Int("examples", 0, "Example thumbnails to render")
	lr := flag.Float64("lr", 0, "Adam learning rate")
	seed := flag.Int64("seed", 0, "PRNG seed")
	quiet := flag.Bool("quiet", false, "Suppress progress output")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	cfg.ApplyOverrides(config.Overrides{
		DataDir:        *dataDir,
		Download:       *download,
		Synthetic:      *synthetic,
		OutDir:         *outDir,
		Epochs:         *epochs,
		BatchSize:      *batchSize,
		TrainSize:      *trainSize,
		ValidationSize: *valSize,
		EvalSize:       *evalSize,
		Examples:       *examples,
		LearningRate:   *lr,
		Seed:           *seed,
		Quiet:          *quiet,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	var out io.Writer = os.Stderr
	if cfg.Quiet {
		out = io.Discard
	}
	logger := log.New(out, "", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := tutorial.Run(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("tutorial failed: %v", err)
	}

	logger.Printf("accuracy=%.4f results=%s", report.Accuracy, report.IndexPath)
}
