// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gp_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/gomlx/dkl/gp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// weightedSum evaluates sum_ij g_ij K_ij(x), the quantity whose gradients
// Kernel.Gradients reports.
func weightedSum(k gp.Kernel, g, x *mat.Dense) float64 {
	n, _ := x.Dims()
	km := mat.NewSymDense(n, nil)
	k.Matrix(km, x)
	var s float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s += g.At(i, j) * km.At(i, j)
		}
	}
	return s
}

// symmetricRandom returns a symmetric n×n matrix of small random entries.
func symmetricRandom(n int, rng *rand.Rand) *mat.Dense {
	g := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := rng.NormFloat64()
			g.Set(i, j, v)
			g.Set(j, i, v)
		}
	}
	return g
}

func randomPoints(n, dims int, rng *rand.Rand) *mat.Dense {
	x := mat.NewDense(n, dims, nil)
	for i := 0; i < n; i++ {
		for d := 0; d < dims; d++ {
			x.Set(i, d, 2*rng.Float64()-1)
		}
	}
	return x
}

// checkKernelGradients compares Kernel.Gradients against central finite
// differences over the raw parameters and the input entries.
func checkKernelGradients(t *testing.T, k gp.Kernel, n, dims int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	x := randomPoints(n, dims, rng)
	g := symmetricRandom(n, rng)

	dRaw := make([]float64, k.NumParams())
	dx := mat.NewDense(n, dims, nil)
	k.Gradients(g, x, dRaw, dx)

	const h = 1e-6
	params := make([]float64, k.NumParams())
	k.RawParams(params)
	for p := 0; p < k.NumParams(); p++ {
		orig := params[p]
		params[p] = orig + h
		k.SetRawParams(params)
		fp := weightedSum(k, g, x)
		params[p] = orig - h
		k.SetRawParams(params)
		fm := weightedSum(k, g, x)
		params[p] = orig
		k.SetRawParams(params)
		assert.InDelta(t, (fp-fm)/(2*h), dRaw[p], 1e-4, "raw parameter %d", p)
	}

	for i := 0; i < n; i++ {
		for d := 0; d < dims; d++ {
			orig := x.At(i, d)
			x.Set(i, d, orig+h)
			fp := weightedSum(k, g, x)
			x.Set(i, d, orig-h)
			fm := weightedSum(k, g, x)
			x.Set(i, d, orig)
			assert.InDelta(t, (fp-fm)/(2*h), dx.At(i, d), 1e-4, "input (%d,%d)", i, d)
		}
	}
}

func TestRBFValues(t *testing.T) {
	k := gp.NewRBF(1.0)
	require.InDelta(t, 1.0, k.Lengthscale(), 1e-12)
	x := mat.NewDense(2, 1, []float64{0, 1})
	km := mat.NewSymDense(2, nil)
	k.Matrix(km, x)
	assert.InDelta(t, 1.0, km.At(0, 0), 1e-12)
	assert.InDelta(t, math.Exp(-0.5), km.At(0, 1), 1e-12)

	cross := mat.NewDense(2, 2, nil)
	k.Cross(cross, x, x)
	assert.InDelta(t, km.At(0, 1), cross.At(0, 1), 1e-12)
	assert.InDelta(t, km.At(0, 1), cross.At(1, 0), 1e-12)
}

func TestScaleValues(t *testing.T) {
	k := gp.NewScale(gp.NewRBF(1.0), 3.0)
	require.InDelta(t, 3.0, k.Outputscale(), 1e-12)
	x := mat.NewDense(2, 1, []float64{0, 2})
	km := mat.NewSymDense(2, nil)
	k.Matrix(km, x)
	assert.InDelta(t, 3.0, km.At(0, 0), 1e-12)
	assert.InDelta(t, 3.0*math.Exp(-2), km.At(0, 1), 1e-12)
}

func TestRBFGradients(t *testing.T) {
	checkKernelGradients(t, gp.NewRBF(0.8), 5, 2, 1)
}

func TestScaleRBFGradients(t *testing.T) {
	checkKernelGradients(t, gp.NewScale(gp.NewRBF(0.9), 1.7), 5, 2, 2)
}

func TestRawParamsRoundTrip(t *testing.T) {
	k := gp.NewScale(gp.NewRBF(0.5), 2.0)
	require.Equal(t, 2, k.NumParams())
	params := make([]float64, 2)
	k.RawParams(params)
	k.SetRawParams([]float64{0.1, -0.3})
	changed := make([]float64, 2)
	k.RawParams(changed)
	assert.Equal(t, []float64{0.1, -0.3}, changed)
	k.SetRawParams(params)
	restored := make([]float64, 2)
	k.RawParams(restored)
	assert.Equal(t, params, restored)
}

func TestSoftplusInverse(t *testing.T) {
	for _, v := range []float64{0.01, 0.5, math.Ln2, 3, 40} {
		assert.InDelta(t, v, gp.Softplus(gp.SoftplusInverse(v)), 1e-9)
	}
}
