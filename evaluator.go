// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dkl

import (
	"github.com/YuminosukeSato/scigo/metrics"
	"github.com/gomlx/dkl/elevators"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Predict runs the frozen model: extractor forward on both tables, then
// the GP posterior mean at the test projection conditioned on the training
// table. The factored kernel evaluation is switched off for inference,
// mirroring the original's asymmetry; both paths compute the same
// covariance (see gp.Grid).
func (m *Model) Predict(train, test elevators.Table) (*mat.VecDense, error) {
	m.syncParams()
	trainFeatures, _, err := m.Features(train.X)
	if err != nil {
		return nil, err
	}
	testFeatures, _, err := m.Features(test.X)
	if err != nil {
		return nil, err
	}
	m.warnBatchRescale()

	m.grid.SetFastEval(false)
	defer m.grid.SetFastEval(true)
	posterior, err := m.gp.Posterior(trainFeatures, train.Y, testFeatures)
	if err != nil {
		return nil, errors.WithMessage(err, "posterior prediction failed")
	}
	mu := posterior.Mean(nil)
	return mat.NewVecDense(len(mu), mu), nil
}

// Evaluate reports the mean absolute error of the posterior predictive
// mean against the test targets.
func (m *Model) Evaluate(train, test elevators.Table) (float64, error) {
	predicted, err := m.Predict(train, test)
	if err != nil {
		return 0, err
	}
	mae, err := metrics.MAE(test.Y, predicted)
	if err != nil {
		return 0, errors.Wrap(err, "failed to compute MAE")
	}
	return mae, nil
}
