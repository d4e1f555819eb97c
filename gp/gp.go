// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gp implements exact Gaussian-process regression on gonum, with
// the closed-form marginal-likelihood gradients needed to train a deep
// kernel jointly with an upstream feature extractor.
//
// The heavy numerical work (Cholesky factorization, solves, the predictive
// multivariate normal) is delegated to gonum. This package contributes the
// kernel definitions and the textbook gradient formulas (Rasmussen &
// Williams, "Gaussian Processes for Machine Learning", eq. 5.9), extended
// with gradients with respect to the kernel inputs so an optimizer can
// backpropagate into whatever produced them.
//
// Positive hyperparameters (lengthscale, outputscale, noise) are stored in
// raw unconstrained form and mapped through a softplus, and all gradients
// are reported with respect to the raw values.
package gp

import "math"

// Softplus maps an unconstrained raw parameter to a positive value.
func Softplus(x float64) float64 {
	if x > 35 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

// SoftplusInverse is the inverse transform, raw = SoftplusInverse(value).
func SoftplusInverse(y float64) float64 {
	if y > 35 {
		return y
	}
	return math.Log(math.Expm1(y))
}

// softplusGrad is dSoftplus/dx, the logistic function.
func softplusGrad(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// ConstantMean is a mean function returning the same learned constant for
// every input.
type ConstantMean struct {
	c float64
}

// NewConstantMean returns a constant mean initialized at c.
func NewConstantMean(c float64) *ConstantMean { return &ConstantMean{c: c} }

// Value returns the current constant.
func (m *ConstantMean) Value() float64 { return m.c }

// SetValue replaces the constant.
func (m *ConstantMean) SetValue(c float64) { m.c = c }

// GaussianLikelihood models homoskedastic observation noise added to the
// diagonal of the covariance.
type GaussianLikelihood struct {
	rawNoise float64
}

// NewGaussianLikelihood returns a likelihood with the given noise variance.
func NewGaussianLikelihood(noise float64) *GaussianLikelihood {
	return &GaussianLikelihood{rawNoise: SoftplusInverse(noise)}
}

// Noise returns the noise variance.
func (l *GaussianLikelihood) Noise() float64 { return Softplus(l.rawNoise) }

// RawNoise returns the unconstrained noise parameter.
func (l *GaussianLikelihood) RawNoise() float64 { return l.rawNoise }

// SetRawNoise replaces the unconstrained noise parameter.
func (l *GaussianLikelihood) SetRawNoise(raw float64) { l.rawNoise = raw }
