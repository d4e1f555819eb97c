// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gp

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gradients of the normalized negative log marginal likelihood, with
// respect to the raw (unconstrained) parameters and the inputs.
type Gradients struct {
	Mean      float64
	RawNoise  float64
	RawKernel []float64

	// Inputs is dLoss/dx, same shape as x.
	Inputs *mat.Dense
}

// Regression is an exact Gaussian-process regression model: a constant
// mean, a kernel and Gaussian observation noise.
type Regression struct {
	Kernel     Kernel
	Mean       *ConstantMean
	Likelihood *GaussianLikelihood
}

// NegativeLogLikelihood returns the negative log marginal likelihood of
// (x, y), normalized by the number of rows, together with its gradients.
// A covariance that fails to factorize surfaces as an error; callers are
// expected to treat it as fatal.
func (r *Regression) NegativeLogLikelihood(x *mat.Dense, y *mat.VecDense) (float64, *Gradients, error) {
	n, dims := x.Dims()
	if y.Len() != n {
		return 0, nil, errors.Errorf("inputs have %d rows but targets have %d", n, y.Len())
	}

	ky := mat.NewSymDense(n, nil)
	r.Kernel.Matrix(ky, x)
	noise := r.Likelihood.Noise()
	for i := 0; i < n; i++ {
		ky.SetSym(i, i, ky.At(i, i)+noise)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(ky); !ok {
		return 0, nil, errors.Errorf("covariance matrix of %d training points is not positive definite (noise=%g)", n, noise)
	}

	meanC := r.Mean.Value()
	resid := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		resid.SetVec(i, y.AtVec(i)-meanC)
	}
	alpha := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(alpha, resid); err != nil {
		return 0, nil, errors.Wrap(err, "failed to solve K α = y - μ")
	}

	invN := 1 / float64(n)
	nll := invN * (0.5*mat.Dot(resid, alpha) + 0.5*chol.LogDet() + 0.5*float64(n)*math.Log(2*math.Pi))

	// dNLL/dK = (K⁻¹ - ααᵀ) / (2n), per Rasmussen & Williams eq. 5.9.
	kinv := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(kinv); err != nil {
		return 0, nil, errors.Wrap(err, "failed to invert the covariance")
	}
	gk := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		ai := alpha.AtVec(i)
		for j := 0; j < n; j++ {
			gk.Set(i, j, 0.5*invN*(kinv.At(i, j)-ai*alpha.AtVec(j)))
		}
	}

	grads := &Gradients{
		RawKernel: make([]float64, r.Kernel.NumParams()),
		Inputs:    mat.NewDense(n, dims, nil),
	}
	var alphaSum, trace float64
	for i := 0; i < n; i++ {
		alphaSum += alpha.AtVec(i)
		trace += gk.At(i, i)
	}
	grads.Mean = -invN * alphaSum
	grads.RawNoise = trace * softplusGrad(r.Likelihood.RawNoise())
	r.Kernel.Gradients(gk, x, grads.RawKernel, grads.Inputs)
	return nll, grads, nil
}

// Posterior conditions the model on (xTrain, yTrain) and returns the
// predictive distribution of the latent function at xTest, built fresh on
// every call.
func (r *Regression) Posterior(xTrain *mat.Dense, yTrain *mat.VecDense, xTest *mat.Dense) (*distmv.Normal, error) {
	n, _ := xTrain.Dims()
	nTest, _ := xTest.Dims()
	if yTrain.Len() != n {
		return nil, errors.Errorf("training inputs have %d rows but targets have %d", n, yTrain.Len())
	}

	ky := mat.NewSymDense(n, nil)
	r.Kernel.Matrix(ky, xTrain)
	noise := r.Likelihood.Noise()
	for i := 0; i < n; i++ {
		ky.SetSym(i, i, ky.At(i, i)+noise)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(ky); !ok {
		return nil, errors.Errorf("training covariance is not positive definite (noise=%g)", noise)
	}

	meanC := r.Mean.Value()
	resid := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		resid.SetVec(i, yTrain.AtVec(i)-meanC)
	}
	alpha := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(alpha, resid); err != nil {
		return nil, errors.Wrap(err, "failed to solve K α = y - μ")
	}

	ks := mat.NewDense(nTest, n, nil)
	r.Kernel.Cross(ks, xTest, xTrain)
	var mean mat.VecDense
	mean.MulVec(ks, alpha)
	mu := make([]float64, nTest)
	for i := 0; i < nTest; i++ {
		mu[i] = meanC + mean.AtVec(i)
	}

	kss := mat.NewSymDense(nTest, nil)
	r.Kernel.Matrix(kss, xTest)
	var sol mat.Dense
	if err := chol.SolveTo(&sol, ks.T()); err != nil {
		return nil, errors.Wrap(err, "failed to solve for the posterior covariance")
	}
	var reduction mat.Dense
	reduction.Mul(ks, &sol)

	sigma := mat.NewSymDense(nTest, nil)
	var maxDiag float64
	for i := 0; i < nTest; i++ {
		for j := i; j < nTest; j++ {
			v := kss.At(i, j) - 0.5*(reduction.At(i, j)+reduction.At(j, i))
			sigma.SetSym(i, j, v)
			if i == j && v > maxDiag {
				maxDiag = v
			}
		}
	}
	// Small jitter so the predictive normal stays factorizable when the
	// posterior collapses near the training points.
	jitter := 1e-9 * math.Max(1, maxDiag)
	for i := 0; i < nTest; i++ {
		sigma.SetSym(i, i, sigma.At(i, i)+jitter)
	}

	normal, ok := distmv.NewNormal(mu, sigma, nil)
	if !ok {
		return nil, errors.Errorf("posterior covariance of %d test points is not positive definite", nTest)
	}
	return normal, nil
}
