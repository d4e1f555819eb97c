// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dkl

import (
	"io"
	"math"
	"os"

	"github.com/YuminosukeSato/scigo/preprocessing"
	"github.com/gomlx/dkl/gp"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Defaults mirror the elevators demo hyperparameters.
const (
	DefaultGridSize     = 100
	DefaultSteps        = 60
	DefaultLearningRate = 0.01
)

// Config for a Model. The zero value picks the defaults above.
type Config struct {
	// GridSize is the number of grid points per projected dimension of the
	// interpolation kernel.
	GridSize int

	// Steps is the fixed number of optimizer steps Fit runs.
	Steps int

	// LearningRate for the joint Adam update.
	LearningRate float64

	// Seed for the context RNG; two models with equal seed, data and
	// backend produce identical loss sequences.
	Seed int64

	// Progress attaches a progress bar to Fit. Off by default so stdout
	// carries only the loss lines.
	Progress bool

	// LogWriter receives the per-iteration loss lines; defaults to
	// os.Stdout.
	LogWriter io.Writer
}

func (c Config) withDefaults() Config {
	if c.GridSize == 0 {
		c.GridSize = DefaultGridSize
	}
	if c.Steps == 0 {
		c.Steps = DefaultSteps
	}
	if c.LearningRate == 0 {
		c.LearningRate = DefaultLearningRate
	}
	if c.LogWriter == nil {
		c.LogWriter = os.Stdout
	}
	return c
}

// Names of the GP hyperparameter variables, in the order their gradients
// are fed to the step graph. The kernel raw parameters (outputscale, then
// lengthscale) follow the packing of gp.Scale around gp.Grid.
var gpVariableNames = []string{"mean_constant", "raw_outputscale", "raw_lengthscale", "raw_noise"}

// Model is the deep kernel learning model: the GoMLX feature extractor,
// the GP regression head, and the context variables holding both the
// network weights and the GP hyperparameters so a single optimizer updates
// them jointly.
type Model struct {
	backend backends.Backend
	ctx     *context.Context
	cfg     Config

	gp   *gp.Regression
	grid *gp.Grid

	gpVars       []*context.Variable
	featuresExec *context.Exec
	stepExec     *context.Exec
	optimizer    optimizers.Interface

	inputDim          int
	evalRescaleWarned bool
}

// New builds a Model for inputs of dimension inputDim.
func New(backend backends.Backend, inputDim int, cfg Config) *Model {
	cfg = cfg.withDefaults()
	// The forward and the training-step graphs declare the same variables
	// (extractor weights and GP hyperparameters), so variable declaration
	// must reuse across graph builds.
	ctx := context.New().Checked(false)
	ctx.RngStateFromSeed(cfg.Seed)

	// Initial hyperparameters: raw zeros, so every softplus-constrained
	// value starts at ln 2, and a zero mean constant.
	rbf := gp.NewRBF(math.Ln2)
	grid := gp.NewGrid(rbf, FeatureDim, cfg.GridSize)
	m := &Model{
		backend:  backend,
		ctx:      ctx,
		cfg:      cfg,
		grid:     grid,
		inputDim: inputDim,
		gp: &gp.Regression{
			Kernel:     gp.NewScale(grid, math.Ln2),
			Mean:       gp.NewConstantMean(0),
			Likelihood: gp.NewGaussianLikelihood(math.Ln2),
		},
	}
	gpCtx := ctx.In("gp")
	m.gpVars = make([]*context.Variable, len(gpVariableNames))
	for i, name := range gpVariableNames {
		m.gpVars[i] = gpCtx.VariableWithValue(name, 0.0)
	}

	m.featuresExec = context.NewExec(backend, ctx, func(ctx *context.Context, x *Node) *Node {
		return ExtractorGraph(ctx, x)
	})
	m.optimizer = optimizers.Adam().LearningRate(cfg.LearningRate).Done()
	m.stepExec = context.NewExec(backend, ctx, m.stepGraph)
	return m
}

// Config returns the configuration the model was built with (with defaults
// applied).
func (m *Model) Config() Config { return m.cfg }

// stepGraph applies one joint optimizer update. The surrogate loss is
// linear in the extractor output and in the GP hyperparameter variables,
// with the host-computed marginal-likelihood gradients as coefficients, so
// its gradient with respect to every trainable variable equals the true
// loss gradient.
func (m *Model) stepGraph(ctx *context.Context, x, dFeatures, dMean, dOutputscale, dLengthscale, dNoise *Node) *Node {
	g := x.Graph()
	features := ExtractorGraph(ctx, x)
	loss := ReduceAllSum(Mul(features, dFeatures))
	gpCtx := ctx.In("gp")
	for i, grad := range []*Node{dMean, dOutputscale, dLengthscale, dNoise} {
		// Reuses the hyperparameter variables created in New.
		v := gpCtx.VariableWithValue(gpVariableNames[i], 0.0)
		loss = Add(loss, Mul(v.ValueGraph(g), grad))
	}
	m.optimizer.UpdateGraph(ctx, g, loss)
	return loss
}

// syncParams copies the context variables into the gp structs, which hold
// plain float64 hyperparameters.
func (m *Model) syncParams() {
	m.gp.Mean.SetValue(tensors.ToScalar[float64](m.gpVars[0].Value()))
	m.gp.Kernel.SetRawParams([]float64{
		tensors.ToScalar[float64](m.gpVars[1].Value()),
		tensors.ToScalar[float64](m.gpVars[2].Value()),
	})
	m.gp.Likelihood.SetRawNoise(tensors.ToScalar[float64](m.gpVars[3].Value()))
}

// Features runs the extractor on x and rescales each projected dimension
// to [-1, 1] with the batch's own min/max -- recomputed on every call, the
// way the original model formulation does. It returns the rescaled
// projection and the per-dimension slope of the rescale (needed to chain
// gradients through it).
func (m *Model) Features(x *mat.Dense) (*mat.Dense, []float64, error) {
	n, c := x.Dims()
	if c != m.inputDim {
		return nil, nil, errors.Errorf("input has %d columns, model was built for %d", c, m.inputDim)
	}
	var outputs []*tensors.Tensor
	err := exceptions.TryCatch[error](func() {
		outputs = m.featuresExec.Call(tensorFromDense(x))
	})
	if err != nil {
		return nil, nil, errors.WithMessage(err, "feature extractor failed")
	}
	flat := tensors.CopyFlatData[float64](outputs[0])
	features := mat.NewDense(n, FeatureDim, flat)
	scales, err := rescaleToBounds(features)
	if err != nil {
		return nil, nil, err
	}
	return features, scales, nil
}

// rescaleToBounds maps each column of m onto [-1, 1] in place with a
// MinMaxScaler fitted to the batch, and returns the slope the scaler
// applied per column (2/(max-min); the scaler substitutes a unit data
// range for columns without spread, which then collapse to -1).
func rescaleToBounds(m *mat.Dense) ([]float64, error) {
	_, cols := m.Dims()
	scaler := preprocessing.NewMinMaxScaler([2]float64{-1, 1})
	scaled, err := scaler.FitTransform(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to rescale the projected features")
	}
	m.Copy(scaled)
	scales := make([]float64, cols)
	span := scaler.FeatureRange[1] - scaler.FeatureRange[0]
	for j := 0; j < cols; j++ {
		scales[j] = span / scaler.Scale[j]
	}
	return scales, nil
}

func (m *Model) warnBatchRescale() {
	if m.evalRescaleWarned {
		return
	}
	m.evalRescaleWarned = true
	klog.Warning("rescaling the inference batch with its own min/max statistics; " +
		"these differ from the training batch statistics, inherited from the original model formulation")
}

// tensorFromDenseFlat wraps row-major data as a rank-2 float64 tensor.
func tensorFromDenseFlat(flat []float64, rows, cols int) *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(flat, rows, cols)
}

// tensorFromDense copies a gonum matrix into a rank-2 float64 tensor.
func tensorFromDense(m *mat.Dense) *tensors.Tensor {
	rows, cols := m.Dims()
	flat := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			flat = append(flat, m.At(i, j))
		}
	}
	return tensors.FromFlatDataAndDimensions(flat, rows, cols)
}
