/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package ml

import "math"

// StandardScaler centers and scales each feature column to zero mean and unit
// variance. It is fit once on training data; inference reuses the stored
// parameters and never refits.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit computes per-column mean and population standard deviation. A constant
// column gets scale 1 so transforming it yields 0 instead of NaN.
func (s *StandardScaler) Fit(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	cols := len(rows[0])
	s.Mean = make([]float64, cols)
	s.Scale = make([]float64, cols)

	for j := 0; j < cols; j++ {
		sum := 0.0
		for _, row := range rows {
			sum += row[j]
		}
		s.Mean[j] = sum / float64(len(rows))

		variance := 0.0
		for _, row := range rows {
			d := row[j] - s.Mean[j]
			variance += d * d
		}
		s.Scale[j] = math.Sqrt(variance / float64(len(rows)))
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}
}

// Transform returns new rows, leaving the input untouched.
func (s *StandardScaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out
}

func (s *StandardScaler) FitTransform(rows [][]float64) [][]float64 {
	s.Fit(rows)
	return s.Transform(rows)
}
