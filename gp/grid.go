// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gp

import (
	"math"

	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// Grid approximates a base RBF kernel with structured kernel interpolation
// (SKI): the kernel is evaluated on a fixed uniform grid and extended to
// arbitrary points by cubic interpolation,
//
//	K(x1, x2) ≈ W(x1) · K_grid · W(x2)ᵀ
//
// where W holds the interpolation weights. Because the RBF kernel
// factorizes over input dimensions, the grid covariance is a Kronecker
// product of per-dimension matrices and the induced covariance factorizes
// into an elementwise product of per-dimension terms:
//
//	K(x1, x2) = ∏_d W_d(x1) K_d W_d(x2)ᵀ
//
// The fast path evaluates that factored form with dense n×gridSize
// intermediates; the slow path evaluates every covariance entry directly
// from the 4-point stencils. Both paths compute the same kernel up to
// rounding, the toggle only trades speed (it mirrors how the acceleration
// structure is switched off for inference).
type Grid struct {
	// Base provides the lengthscale; its raw parameter is the only one this
	// kernel exposes.
	Base *RBF

	// NumDims is the input dimension, GridSize the number of grid points
	// per dimension.
	NumDims, GridSize int

	// Lo and Hi bound the uniform grid in every dimension. They default to
	// slightly outside [-1, 1] so the cubic stencil of rescaled inputs
	// never leaves the grid.
	Lo, Hi float64

	fast bool
}

// NewGrid returns a grid-interpolation kernel around base with gridSize
// points per dimension. It panics if gridSize cannot hold a 4-point
// stencil.
func NewGrid(base *RBF, numDims, gridSize int) *Grid {
	if gridSize < 4 {
		exceptions.Panicf("gp.NewGrid: gridSize must be at least 4 to fit a cubic stencil, got %d", gridSize)
	}
	if numDims < 1 {
		exceptions.Panicf("gp.NewGrid: numDims must be positive, got %d", numDims)
	}
	return &Grid{Base: base, NumDims: numDims, GridSize: gridSize, Lo: -1.2, Hi: 1.2, fast: true}
}

// SetFastEval toggles the factored (Kronecker) evaluation path.
func (k *Grid) SetFastEval(fast bool) { k.fast = fast }

// FastEval reports whether the factored path is active.
func (k *Grid) FastEval() bool { return k.fast }

func (k *Grid) step() float64 { return (k.Hi - k.Lo) / float64(k.GridSize-1) }

// gridMatrices returns the 1-D grid kernel matrix and, when withGrad is
// set, its elementwise derivative with respect to the lengthscale.
func (k *Grid) gridMatrices(withGrad bool) (kd, dkd *mat.Dense) {
	m := k.GridSize
	h := k.step()
	ell := k.Base.Lengthscale()
	ell2 := ell * ell
	kd = mat.NewDense(m, m, nil)
	if withGrad {
		dkd = mat.NewDense(m, m, nil)
	}
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			diff := float64(i-j) * h
			d2 := diff * diff
			v := math.Exp(-0.5 * d2 / ell2)
			kd.Set(i, j, v)
			if withGrad {
				dkd.Set(i, j, v*d2/(ell2*ell))
			}
		}
	}
	return
}

// stencil is the 4-point cubic-convolution interpolation of one coordinate:
// grid indices, weights, and weight derivatives with respect to the
// coordinate.
type stencil struct {
	idx [4]int
	w   [4]float64
	dw  [4]float64
}

// stencil1D builds the stencil for coordinate u. Out-of-grid queries clamp
// to the boundary cells.
func (k *Grid) stencil1D(u float64) (s stencil) {
	h := k.step()
	t := (u - k.Lo) / h
	j := int(math.Floor(t))
	if j < 1 {
		j = 1
	}
	if j > k.GridSize-3 {
		j = k.GridSize - 3
	}
	f := t - float64(j)
	f2 := f * f
	f3 := f2 * f
	// Keys cubic-convolution kernel, a = -1/2. C¹ across cell boundaries.
	s.w = [4]float64{
		-0.5*f3 + f2 - 0.5*f,
		1.5*f3 - 2.5*f2 + 1,
		-1.5*f3 + 2*f2 + 0.5*f,
		0.5*f3 - 0.5*f2,
	}
	s.dw = [4]float64{
		(-1.5*f2 + 2*f - 0.5) / h,
		(4.5*f2 - 5*f) / h,
		(-4.5*f2 + 4*f + 0.5) / h,
		(1.5*f2 - f) / h,
	}
	s.idx = [4]int{j - 1, j, j + 1, j + 2}
	return
}

// stencils builds per-row, per-dimension stencils for x.
func (k *Grid) stencils(x *mat.Dense) [][]stencil {
	n, dims := x.Dims()
	out := make([][]stencil, n)
	for i := 0; i < n; i++ {
		out[i] = make([]stencil, dims)
		for d := 0; d < dims; d++ {
			out[i][d] = k.stencil1D(x.At(i, d))
		}
	}
	return out
}

// weightsTimesGrid computes A = W_d · kd, an n×gridSize matrix, where W_d
// holds the (sparse) stencil weights of dimension d. With useDeriv it uses
// the weight derivatives instead.
func (k *Grid) weightsTimesGrid(st [][]stencil, d int, kd *mat.Dense, useDeriv bool) *mat.Dense {
	n := len(st)
	m := k.GridSize
	a := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		s := st[i][d]
		w := s.w
		if useDeriv {
			w = s.dw
		}
		ai := a.RawRowView(i)
		for q := 0; q < 4; q++ {
			row := kd.RawRowView(s.idx[q])
			wq := w[q]
			for c := 0; c < m; c++ {
				ai[c] += wq * row[c]
			}
		}
	}
	return a
}

// factorTimesWeights computes F[i][j] = A[i] · w_j for the dimension-d
// stencils of the column points, yielding one per-dimension covariance
// factor.
func factorTimesWeights(a *mat.Dense, colSt [][]stencil, d int) *mat.Dense {
	n1, _ := a.Dims()
	n2 := len(colSt)
	f := mat.NewDense(n1, n2, nil)
	for i := 0; i < n1; i++ {
		ai := a.RawRowView(i)
		fi := f.RawRowView(i)
		for j := 0; j < n2; j++ {
			s := colSt[j][d]
			var v float64
			for q := 0; q < 4; q++ {
				v += s.w[q] * ai[s.idx[q]]
			}
			fi[j] = v
		}
	}
	return f
}

// factors returns the per-dimension covariance factors W_d K_d W_dᵀ between
// the row points and column points.
func (k *Grid) factors(rowSt, colSt [][]stencil, kd *mat.Dense) []*mat.Dense {
	fs := make([]*mat.Dense, k.NumDims)
	for d := 0; d < k.NumDims; d++ {
		a := k.weightsTimesGrid(rowSt, d, kd, false)
		fs[d] = factorTimesWeights(a, colSt, d)
	}
	return fs
}

func (k *Grid) crossFactored(x1, x2 *mat.Dense) *mat.Dense {
	kd, _ := k.gridMatrices(false)
	fs := k.factors(k.stencils(x1), k.stencils(x2), kd)
	out := fs[0]
	for d := 1; d < k.NumDims; d++ {
		out.MulElem(out, fs[d])
	}
	return out
}

func (k *Grid) crossDirect(x1, x2 *mat.Dense) *mat.Dense {
	kd, _ := k.gridMatrices(false)
	st1 := k.stencils(x1)
	st2 := k.stencils(x2)
	n1 := len(st1)
	n2 := len(st2)
	out := mat.NewDense(n1, n2, nil)
	for i := 0; i < n1; i++ {
		for j := 0; j < n2; j++ {
			v := 1.0
			for d := 0; d < k.NumDims; d++ {
				si, sj := st1[i][d], st2[j][d]
				var f float64
				for q := 0; q < 4; q++ {
					for r := 0; r < 4; r++ {
						f += si.w[q] * sj.w[r] * kd.At(si.idx[q], sj.idx[r])
					}
				}
				v *= f
			}
			out.Set(i, j, v)
		}
	}
	return out
}

func (k *Grid) cross(x1, x2 *mat.Dense) *mat.Dense {
	if k.fast {
		return k.crossFactored(x1, x2)
	}
	return k.crossDirect(x1, x2)
}

func (k *Grid) Matrix(dst *mat.SymDense, x *mat.Dense) {
	full := k.cross(x, x)
	n, _ := full.Dims()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, full.At(i, j))
		}
	}
}

func (k *Grid) Cross(dst *mat.Dense, x1, x2 *mat.Dense) {
	dst.Copy(k.cross(x1, x2))
}

func (k *Grid) NumParams() int             { return k.Base.NumParams() }
func (k *Grid) RawParams(dst []float64)    { k.Base.RawParams(dst) }
func (k *Grid) SetRawParams(src []float64) { k.Base.SetRawParams(src) }

func (k *Grid) Gradients(g mat.Matrix, x *mat.Dense, dRaw []float64, dx *mat.Dense) {
	n, dims := x.Dims()
	st := k.stencils(x)
	kd, dkd := k.gridMatrices(true)
	fs := k.factors(st, st, kd)

	// others[d] = elementwise product of every factor except d.
	others := make([]*mat.Dense, dims)
	for d := 0; d < dims; d++ {
		prod := mat.NewDense(n, n, nil)
		first := true
		for e := 0; e < dims; e++ {
			if e == d {
				continue
			}
			if first {
				prod.Copy(fs[e])
				first = false
			} else {
				prod.MulElem(prod, fs[e])
			}
		}
		if first { // single dimension: the "other" product is all ones
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					prod.Set(i, j, 1)
				}
			}
		}
		others[d] = prod
	}

	// Lengthscale: dK_ij/dℓ = Σ_d (W_d dK_d W_dᵀ)_ij · ∏_{e≠d} F_e,ij.
	var dEll float64
	for d := 0; d < dims; d++ {
		a := k.weightsTimesGrid(st, d, dkd, false)
		h := factorTimesWeights(a, st, d)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				dEll += g.At(i, j) * others[d].At(i, j) * h.At(i, j)
			}
		}
	}
	dRaw[0] += dEll * softplusGrad(k.Base.rawLengthscale)

	if dx == nil {
		return
	}
	// Input gradients: only the stencil weights depend on x. For row i and
	// dimension d,
	//	dK_ij/dx_id = (dw_i K_d w_jᵀ) · ∏_{e≠d} F_e,ij
	// and the symmetric sum doubles it.
	for d := 0; d < dims; d++ {
		db := k.weightsTimesGrid(st, d, kd, true) // rows: dw_i · K_d
		// c[i][m] = Σ_j (g⊙others_d)_ij · W_d[j][m]
		c := mat.NewDense(n, k.GridSize, nil)
		for i := 0; i < n; i++ {
			ci := c.RawRowView(i)
			for j := 0; j < n; j++ {
				gij := g.At(i, j) * others[d].At(i, j)
				if gij == 0 {
					continue
				}
				s := st[j][d]
				for q := 0; q < 4; q++ {
					ci[s.idx[q]] += gij * s.w[q]
				}
			}
		}
		for i := 0; i < n; i++ {
			dbi := db.RawRowView(i)
			ci := c.RawRowView(i)
			var v float64
			for m := 0; m < k.GridSize; m++ {
				v += dbi[m] * ci[m]
			}
			dx.Set(i, d, dx.At(i, d)+2*v)
		}
	}
}
