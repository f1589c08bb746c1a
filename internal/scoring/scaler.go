package scoring

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers features to zero mean and unit variance.
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes per-column mean and standard deviation of x.
// Constant columns get a unit standard deviation.
func FitScaler(x [][]float64) (*StandardScaler, error) {
	if len(x) == 0 {
		return nil, errors.New("scaler: empty dataset")
	}
	width := len(x[0])
	s := &StandardScaler{
		Mean: make([]float64, width),
		Std:  make([]float64, width),
	}
	col := make([]float64, len(x))
	for j := 0; j < width; j++ {
		for i, row := range x {
			if len(row) != width {
				return nil, errors.New("scaler: ragged dataset")
			}
			col[i] = row[j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Std[j] = std
	}
	return s, nil
}

// Transform returns a scaled copy of row.
func (s *StandardScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

// TransformAll scales every row of x.
func (s *StandardScaler) TransformAll(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = s.Transform(row)
	}
	return out
}
