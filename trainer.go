// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dkl

import (
	"fmt"

	"github.com/gomlx/dkl/elevators"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// Trainer runs the fixed-step joint optimization of the extractor weights
// and the GP hyperparameters. There is no early stopping, no validation
// check and no checkpointing: exactly Config.Steps updates.
type Trainer struct {
	model *Model
}

// NewTrainer returns a Trainer for model.
func NewTrainer(model *Model) *Trainer { return &Trainer{model: model} }

// Fit trains on the full table at every step: forward pass, host-side
// negative log marginal likelihood plus closed-form gradients, then one
// joint Adam update through the surrogate-loss graph. The pre-update loss
// of each iteration is printed and the full sequence returned. Numerical
// failures (a covariance that stops being positive definite) abort the
// run with the partial sequence.
func (t *Trainer) Fit(train elevators.Table) ([]float64, error) {
	m := t.model
	cfg := m.cfg
	xT := tensorFromDense(train.X)

	var bar *progressbar.ProgressBar
	if cfg.Progress {
		bar = progressbar.Default(int64(cfg.Steps), "training")
	}

	lossSeq := make([]float64, 0, cfg.Steps)
	for step := 1; step <= cfg.Steps; step++ {
		m.syncParams()
		features, scales, err := m.Features(train.X)
		if err != nil {
			return lossSeq, err
		}
		loss, grads, err := m.gp.NegativeLogLikelihood(features, train.Y)
		if err != nil {
			return lossSeq, errors.WithMessagef(err, "training step %d", step)
		}

		// Chain the feature gradient through the batch rescale.
		n, _ := features.Dims()
		dFeatures := make([]float64, 0, n*FeatureDim)
		for i := 0; i < n; i++ {
			for j := 0; j < FeatureDim; j++ {
				dFeatures = append(dFeatures, grads.Inputs.At(i, j)*scales[j])
			}
		}

		err = exceptions.TryCatch[error](func() {
			_ = m.stepExec.Call(xT,
				tensorFromDenseFlat(dFeatures, n, FeatureDim),
				grads.Mean, grads.RawKernel[0], grads.RawKernel[1], grads.RawNoise)
		})
		if err != nil {
			return lossSeq, errors.WithMessagef(err, "optimizer update failed at step %d", step)
		}

		fmt.Fprintf(cfg.LogWriter, "Iter %d/%d - Loss: %.3f\n", step, cfg.Steps, loss)
		if bar != nil {
			_ = bar.Add(1)
		}
		lossSeq = append(lossSeq, loss)
	}
	return lossSeq, nil
}
