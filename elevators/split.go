// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package elevators

import (
	"math"

	"github.com/YuminosukeSato/scigo/preprocessing"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Table is an aligned pair of features and scalar targets.
type Table struct {
	X *mat.Dense
	Y *mat.VecDense
}

// Rows returns the number of examples in the table.
func (t Table) Rows() int {
	r, _ := t.X.Dims()
	return r
}

// Normalize rescales every feature column of m (all but the last) to [-1, 1]
// using min/max statistics over all rows. The statistics deliberately cover
// the full matrix, before any train/test split; the downstream numbers
// depend on that ordering. The target column is passed through untouched.
func Normalize(m *mat.Dense) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if cols < 2 {
		return nil, errors.Errorf("dataset matrix needs at least one feature and one target column, got %d columns", cols)
	}
	scaler := preprocessing.NewMinMaxScaler([2]float64{-1, 1})
	scaled, err := scaler.FitTransform(m.Slice(0, rows, 0, cols-1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to rescale feature columns")
	}
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols-1; j++ {
			out.Set(i, j, scaled.At(i, j))
		}
		out.Set(i, cols-1, m.At(i, cols-1))
	}
	return out, nil
}

// Split partitions m into ordered train and test tables: the first
// floor(0.8*rows) rows train, the remainder test. No shuffling.
func Split(m *mat.Dense) (train, test Table) {
	rows, _ := m.Dims()
	trainN := int(math.Floor(0.8 * float64(rows)))
	return tableFromRows(m, 0, trainN), tableFromRows(m, trainN, rows)
}

func tableFromRows(m *mat.Dense, from, to int) Table {
	_, cols := m.Dims()
	n := to - from
	x := mat.NewDense(n, cols-1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < cols-1; j++ {
			x.Set(i, j, m.At(from+i, j))
		}
		y.SetVec(i, m.At(from+i, cols-1))
	}
	return Table{X: x, Y: y}
}
