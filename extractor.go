// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dkl composes a GoMLX feed-forward feature extractor with the
// exact Gaussian-process regression head of package gp, and trains the two
// jointly on the GP marginal log-likelihood (deep kernel learning).
//
// The split of responsibilities follows what each library is good at: GoMLX
// owns the network, its autodiff and the Adam update; gonum (via package
// gp) owns the Cholesky-based GP algebra. The two meet through a surrogate
// loss whose gradient with respect to every trainable variable equals the
// closed-form marginal-likelihood gradient computed host-side.
package dkl

import (
	"fmt"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
)

// FeatureDim is the dimension of the learned projection the GP kernel
// operates on.
const FeatureDim = 2

// hiddenLayerSizes of the feature extractor, input to output.
var hiddenLayerSizes = []int{1000, 500, 50}

// ExtractorGraph builds the feature extractor: a stack of dense layers
// d→1000→500→50→2 with ReLU between them, no activation on the final
// projection. Weights are initialized by the context's default initializer.
func ExtractorGraph(ctx *context.Context, x *Node) *Node {
	ctx = ctx.In("extractor")
	layer := x
	for i, size := range hiddenLayerSizes {
		layer = layers.DenseWithBias(ctx.In(fmt.Sprintf("dense_%d", i)), layer, size)
		layer = activations.Relu(layer)
	}
	return layers.DenseWithBias(ctx.In("projection"), layer, FeatureDim)
}
