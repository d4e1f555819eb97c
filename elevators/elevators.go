// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package elevators downloads and prepares the UCI "elevators" regression
// dataset: 16599 recordings of an F16 flight-control task, 18 continuous
// features plus a scalar target in the last column.
//
// The data ships as a MATLAB level-5 file holding a single "data" variable
// of shape (rows, 19). Use Download to fetch it (skipped when a local copy
// exists), Load to parse it into a gonum matrix, Normalize to rescale the
// feature columns to [-1, 1] and Split for the ordered 80/20 train/test
// partition.
package elevators

import (
	"os"
	"path"

	"github.com/daniellowtw/matlab"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

const (
	// DownloadURL points at the canonical elevators.mat copy.
	DownloadURL = "https://www.dropbox.com/s/pmaojhc9a6b4tdb/elevators.mat?dl=1"

	// FileName is the local file name the dataset is stored under.
	FileName = "elevators.mat"

	matVariable = "data"
	numColumns  = 19
)

// Download fetches the dataset file into baseDir if it is not already there,
// and returns its path. The fetch is a single-attempt HTTP GET: no retry and
// no timeout beyond the defaults of the transport.
func Download(baseDir string) (filePath string, err error) {
	baseDir = data.ReplaceTildeInDir(baseDir)
	if err = os.MkdirAll(baseDir, 0777); err != nil && !os.IsExist(err) {
		return "", errors.Wrapf(err, "failed to create directory %q for the elevators dataset", baseDir)
	}
	filePath = path.Join(baseDir, FileName)
	if err = data.DownloadIfMissing(DownloadURL, filePath, ""); err != nil {
		return "", errors.Wrapf(err, "failed to download %q from %q", FileName, DownloadURL)
	}
	if fi, statErr := os.Stat(filePath); statErr == nil {
		klog.V(1).Infof("elevators dataset in %s (%s)", filePath, humanize.Bytes(uint64(fi.Size())))
	}
	return
}

// Load parses the MAT-file at filePath and returns its "data" variable as a
// (rows, 19) matrix. MATLAB stores matrices column-major, so the flat values
// are transposed on the way in.
func Load(filePath string) (*mat.Dense, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	matFile, err := matlab.NewFileFromReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse MAT-file %q", filePath)
	}
	matVar, found := matFile.GetVar(matVariable)
	if !found {
		return nil, errors.Errorf("variable %q not found in MAT-file %q", matVariable, filePath)
	}
	values := matVar.Value()
	if len(values) == 0 || len(values)%numColumns != 0 {
		return nil, errors.Errorf("variable %q in %q has %d values, not a non-zero multiple of %d columns",
			matVariable, filePath, len(values), numColumns)
	}
	rows := len(values) / numColumns
	m := mat.NewDense(rows, numColumns, nil)
	for idx, value := range values {
		var v float64
		switch value := value.(type) {
		case float64:
			v = value
		case float32:
			v = float64(value)
		default:
			return nil, errors.Errorf("variable %q in %q holds %T elements, expected floats",
				matVariable, filePath, value)
		}
		m.Set(idx%rows, idx/rows, v)
	}
	return m, nil
}
