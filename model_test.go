// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dkl_test

import (
	"io"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/gomlx/dkl"
	"github.com/gomlx/dkl/elevators"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var (
	backendOnce sync.Once
	testBackend backends.Backend
)

func getBackend(t *testing.T) backends.Backend {
	t.Helper()
	backendOnce.Do(func() { testBackend = backends.MustNew() })
	return testBackend
}

// testConfig keeps the graphs small and stdout quiet.
func testConfig(seed int64, steps int) dkl.Config {
	return dkl.Config{
		GridSize:  8,
		Steps:     steps,
		Seed:      seed,
		LogWriter: io.Discard,
	}
}

// toyTable builds a small, well-conditioned regression problem: a smooth
// function of three inputs plus light noise.
func toyTable(n int, seed int64) elevators.Table {
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		a, b, c := 2*rng.Float64()-1, 2*rng.Float64()-1, 2*rng.Float64()-1
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		x.Set(i, 2, c)
		y.SetVec(i, math.Sin(2*a)+0.5*b*c+0.05*rng.NormFloat64())
	}
	return elevators.Table{X: x, Y: y}
}

func TestFeaturesShapeAndBounds(t *testing.T) {
	model := dkl.New(getBackend(t), 7, testConfig(1, 1))
	x := mat.NewDense(5, 7, nil)
	for i := 0; i < 5; i++ {
		for j := 0; j < 7; j++ {
			x.Set(i, j, float64(i*7+j)/10)
		}
	}
	features, scales, err := model.Features(x)
	require.NoError(t, err)
	rows, cols := features.Dims()
	assert.Equal(t, 5, rows)
	assert.Equal(t, dkl.FeatureDim, cols)
	require.Len(t, scales, dkl.FeatureDim)
	// Each rescaled column spans exactly [-1, 1], with a positive slope.
	for j := 0; j < cols; j++ {
		lo, hi := features.At(0, j), features.At(0, j)
		for i := 1; i < rows; i++ {
			lo = math.Min(lo, features.At(i, j))
			hi = math.Max(hi, features.At(i, j))
		}
		assert.InDelta(t, -1.0, lo, 1e-9, "column %d min", j)
		assert.InDelta(t, 1.0, hi, 1e-9, "column %d max", j)
		assert.Greater(t, scales[j], 0.0, "column %d slope", j)
	}
}

func TestFeaturesSingleRow(t *testing.T) {
	model := dkl.New(getBackend(t), 7, testConfig(1, 1))
	x := mat.NewDense(1, 7, nil)
	for j := 0; j < 7; j++ {
		x.Set(0, j, float64(j)/10)
	}
	features, scales, err := model.Features(x)
	require.NoError(t, err)
	// A one-row batch has no spread: the scaler maps every column to the
	// range minimum with its unit-range fallback slope.
	for j := 0; j < dkl.FeatureDim; j++ {
		assert.InDelta(t, -1.0, features.At(0, j), 1e-12)
		assert.InDelta(t, 2.0, scales[j], 1e-12)
	}
}

func TestFeaturesRejectsWrongWidth(t *testing.T) {
	model := dkl.New(getBackend(t), 7, testConfig(1, 1))
	_, _, err := model.Features(mat.NewDense(2, 3, nil))
	assert.Error(t, err)
}

// The forward graph and the training-step graph both declare the extractor
// weights and the GP hyperparameter variables; building one after the other
// must reuse them, not fail on re-declaration.
func TestFitAfterForwardGraphBuilt(t *testing.T) {
	train := toyTable(12, 5)
	model := dkl.New(getBackend(t), 3, testConfig(1, 2))
	_, _, err := model.Features(train.X)
	require.NoError(t, err)
	lossSeq, err := dkl.NewTrainer(model).Fit(train)
	require.NoError(t, err)
	require.Len(t, lossSeq, 2)
}

func TestFitLossDecreases(t *testing.T) {
	train := toyTable(24, 2)
	model := dkl.New(getBackend(t), 3, testConfig(42, 25))
	lossSeq, err := dkl.NewTrainer(model).Fit(train)
	require.NoError(t, err)
	require.Len(t, lossSeq, 25)
	assert.Less(t, lossSeq[len(lossSeq)-1], lossSeq[0],
		"loss after training (%.4f) should be below the initial loss (%.4f)", lossSeq[len(lossSeq)-1], lossSeq[0])
}

func TestFitIsDeterministic(t *testing.T) {
	train := toyTable(16, 3)
	first, err := dkl.NewTrainer(dkl.New(getBackend(t), 3, testConfig(7, 5))).Fit(train)
	require.NoError(t, err)
	second, err := dkl.NewTrainer(dkl.New(getBackend(t), 3, testConfig(7, 5))).Fit(train)
	require.NoError(t, err)
	assert.Equal(t, first, second, "same seed and data must reproduce the loss sequence")
}

func TestEvaluateMAE(t *testing.T) {
	table := toyTable(30, 4)
	full := mat.NewDense(30, 4, nil)
	for i := 0; i < 30; i++ {
		for j := 0; j < 3; j++ {
			full.Set(i, j, table.X.At(i, j))
		}
		full.Set(i, 3, table.Y.AtVec(i))
	}
	train, test := elevators.Split(full)

	model := dkl.New(getBackend(t), 3, testConfig(9, 10))
	_, err := dkl.NewTrainer(model).Fit(train)
	require.NoError(t, err)

	predicted, err := model.Predict(train, test)
	require.NoError(t, err)
	assert.Equal(t, test.Rows(), predicted.Len())

	mae, err := model.Evaluate(train, test)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, mae, 0.0)
	assert.False(t, math.IsNaN(mae))
}
