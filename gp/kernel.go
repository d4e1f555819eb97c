// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Kernel is a positive-definite covariance function over the rows of a
// matrix. Hyperparameters are exposed in raw (unconstrained) form so an
// external optimizer can treat them as a flat vector.
type Kernel interface {
	// Matrix fills dst, n×n symmetric, with the kernel evaluated between
	// every pair of rows of x.
	Matrix(dst *mat.SymDense, x *mat.Dense)

	// Cross fills dst, n1×n2, with the kernel between rows of x1 and x2.
	Cross(dst *mat.Dense, x1, x2 *mat.Dense)

	// NumParams returns the number of raw parameters.
	NumParams() int

	// RawParams copies the raw parameters into dst, which must have length
	// NumParams.
	RawParams(dst []float64)

	// SetRawParams replaces the raw parameters from src.
	SetRawParams(src []float64)

	// Gradients accumulates into dRaw (length NumParams) the gradient of
	// sum_ij g_ij·K_ij(x) with respect to the raw parameters and, when dx
	// is non-nil, into dx the gradient with respect to the entries of x.
	// g must be symmetric.
	Gradients(g mat.Matrix, x *mat.Dense, dRaw []float64, dx *mat.Dense)
}

// sqDist is the squared euclidean distance between row i of x1 and row j
// of x2.
func sqDist(x1 *mat.Dense, i int, x2 *mat.Dense, j int) float64 {
	_, dims := x1.Dims()
	var s float64
	for d := 0; d < dims; d++ {
		diff := x1.At(i, d) - x2.At(j, d)
		s += diff * diff
	}
	return s
}

// RBF is the squared-exponential kernel with a scalar lengthscale shared
// across input dimensions: k(a,b) = exp(-|a-b|² / (2ℓ²)).
type RBF struct {
	rawLengthscale float64
}

// NewRBF returns an RBF kernel with the given lengthscale.
func NewRBF(lengthscale float64) *RBF {
	return &RBF{rawLengthscale: SoftplusInverse(lengthscale)}
}

// Lengthscale returns ℓ.
func (k *RBF) Lengthscale() float64 { return Softplus(k.rawLengthscale) }

func (k *RBF) Matrix(dst *mat.SymDense, x *mat.Dense) {
	n, _ := x.Dims()
	ell2 := k.Lengthscale()
	ell2 *= ell2
	for i := 0; i < n; i++ {
		dst.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			dst.SetSym(i, j, math.Exp(-0.5*sqDist(x, i, x, j)/ell2))
		}
	}
}

func (k *RBF) Cross(dst *mat.Dense, x1, x2 *mat.Dense) {
	n1, _ := x1.Dims()
	n2, _ := x2.Dims()
	ell2 := k.Lengthscale()
	ell2 *= ell2
	for i := 0; i < n1; i++ {
		for j := 0; j < n2; j++ {
			dst.Set(i, j, math.Exp(-0.5*sqDist(x1, i, x2, j)/ell2))
		}
	}
}

func (k *RBF) NumParams() int              { return 1 }
func (k *RBF) RawParams(dst []float64)     { dst[0] = k.rawLengthscale }
func (k *RBF) SetRawParams(src []float64)  { k.rawLengthscale = src[0] }

func (k *RBF) Gradients(g mat.Matrix, x *mat.Dense, dRaw []float64, dx *mat.Dense) {
	n, dims := x.Dims()
	ell := k.Lengthscale()
	ell2 := ell * ell
	var dEll float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			d2 := sqDist(x, i, x, j)
			kij := math.Exp(-0.5 * d2 / ell2)
			gij := g.At(i, j)
			dEll += gij * kij * d2 / (ell2 * ell)
			if dx != nil {
				// K_ij depends on x_i through both argument slots of the
				// symmetric sum, hence the factor 2.
				c := 2 * gij * kij / ell2
				for d := 0; d < dims; d++ {
					dx.Set(i, d, dx.At(i, d)+c*(x.At(j, d)-x.At(i, d)))
				}
			}
		}
	}
	dRaw[0] += dEll * softplusGrad(k.rawLengthscale)
}

// Scale wraps another kernel with a learned positive outputscale:
// k(a,b) = s·base(a,b).
type Scale struct {
	Base Kernel

	rawOutputscale float64
}

// NewScale wraps base with the given initial outputscale.
func NewScale(base Kernel, outputscale float64) *Scale {
	return &Scale{Base: base, rawOutputscale: SoftplusInverse(outputscale)}
}

// Outputscale returns s.
func (k *Scale) Outputscale() float64 { return Softplus(k.rawOutputscale) }

func (k *Scale) Matrix(dst *mat.SymDense, x *mat.Dense) {
	k.Base.Matrix(dst, x)
	n := dst.SymmetricDim()
	s := k.Outputscale()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, s*dst.At(i, j))
		}
	}
}

func (k *Scale) Cross(dst *mat.Dense, x1, x2 *mat.Dense) {
	k.Base.Cross(dst, x1, x2)
	dst.Scale(k.Outputscale(), dst)
}

func (k *Scale) NumParams() int { return 1 + k.Base.NumParams() }

func (k *Scale) RawParams(dst []float64) {
	dst[0] = k.rawOutputscale
	k.Base.RawParams(dst[1:])
}

func (k *Scale) SetRawParams(src []float64) {
	k.rawOutputscale = src[0]
	k.Base.SetRawParams(src[1:])
}

func (k *Scale) Gradients(g mat.Matrix, x *mat.Dense, dRaw []float64, dx *mat.Dense) {
	n, _ := x.Dims()
	s := k.Outputscale()

	base := mat.NewSymDense(n, nil)
	k.Base.Matrix(base, x)
	var dScale float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dScale += g.At(i, j) * base.At(i, j)
		}
	}
	dRaw[0] += dScale * softplusGrad(k.rawOutputscale)

	// Chain into the base kernel with the outputscale folded into g.
	gs := mat.NewDense(n, n, nil)
	gs.Scale(s, g)
	k.Base.Gradients(gs, x, dRaw[1:], dx)
}
