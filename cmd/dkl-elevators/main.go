// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Command dkl-elevators trains a deep kernel learning Gaussian-process
// regression on the UCI elevators dataset and reports the test mean
// absolute error.
//
// The pipeline is strictly linear: download (once) → parse → normalize →
// 80/20 split → joint training of the feature extractor and the GP
// hyperparameters → posterior evaluation. Errors abort; there is no retry
// anywhere.
package main

import (
	"flag"
	"fmt"

	"github.com/gomlx/dkl"
	"github.com/gomlx/dkl/elevators"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/janpfeifer/must"
)

var (
	flagDataDir      = flag.String("data", "~/tmp/elevators", "Directory to save and load the downloaded dataset file.")
	flagSteps        = flag.Int("steps", dkl.DefaultSteps, "Number of optimizer steps.")
	flagLearningRate = flag.Float64("learning_rate", dkl.DefaultLearningRate, "Adam learning rate.")
	flagGridSize     = flag.Int("grid_size", dkl.DefaultGridSize, "Grid points per projected dimension of the interpolation kernel.")
	flagSeed         = flag.Int64("seed", 0, "Seed for the parameter initialization.")
	flagProgress     = flag.Bool("progress", false, "Show a progress bar during training.")
)

func main() {
	flag.Parse()
	backend := backends.MustNew()

	filePath := must.M1(elevators.Download(*flagDataDir))
	raw := must.M1(elevators.Load(filePath))
	normalized := must.M1(elevators.Normalize(raw))
	train, test := elevators.Split(normalized)
	fmt.Printf("elevators: %d training rows, %d test rows\n", train.Rows(), test.Rows())

	_, inputDim := train.X.Dims()
	model := dkl.New(backend, inputDim, dkl.Config{
		GridSize:     *flagGridSize,
		Steps:        *flagSteps,
		LearningRate: *flagLearningRate,
		Seed:         *flagSeed,
		Progress:     *flagProgress,
	})
	must.M1(dkl.NewTrainer(model).Fit(train))
	mae := must.M1(model.Evaluate(train, test))
	fmt.Printf("Test MAE: %.4f\n", mae)
}
