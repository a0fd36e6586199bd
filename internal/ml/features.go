/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package ml

import (
	"math"

	"aquawatch/common/dto"
)

// rollingWindow is the number of trailing readings (inclusive of the current
// one) feeding the rolling statistics. Windows never cross sensor boundaries.
const rollingWindow = 10

// FeatureMatrix is a dense fixed-width feature table, one row per reading.
// Column order is significant: the order present at training time becomes the
// model's contract and inference input is re-aligned to it.
type FeatureMatrix struct {
	Columns []string
	Rows    [][]float64
}

var baseFeatureColumns = []string{
	"value",
	"rolling_mean",
	"rolling_std",
	"rolling_min",
	"rolling_max",
	"deviation_from_mean",
	"rate_of_change",
	"rate_of_change_abs",
	"day_of_week",
	"hour_sin",
	"hour_cos",
}

var thresholdFeatureColumns = []string{
	"below_min",
	"above_max",
	"threshold_range",
	"normalized_value",
}

// ExtractFeatures computes one feature row per reading, in input order.
// Threshold and quality columns are only emitted when at least one reading in
// the batch carries them; rows without the source fields get zeros so the
// matrix stays dense.
func ExtractFeatures(readings []dto.Reading) FeatureMatrix {
	hasThresholds := false
	hasQuality := false
	for _, r := range readings {
		if r.MinThreshold != nil && r.MaxThreshold != nil {
			hasThresholds = true
		}
		if r.Quality != nil {
			hasQuality = true
		}
	}

	columns := make([]string, 0, len(baseFeatureColumns)+len(thresholdFeatureColumns)+1)
	columns = append(columns, baseFeatureColumns...)
	if hasThresholds {
		columns = append(columns, thresholdFeatureColumns...)
	}
	if hasQuality {
		columns = append(columns, "quality_score")
	}

	windows := make(map[string][]float64)
	rows := make([][]float64, len(readings))

	for i, r := range readings {
		window := append(windows[r.SensorId], r.Value)
		if len(window) > rollingWindow {
			window = window[len(window)-rollingWindow:]
		}
		windows[r.SensorId] = window

		mean := windowMean(window)
		row := make([]float64, 0, len(columns))
		row = append(row,
			r.Value,
			mean,
			windowStd(window, mean),
			windowMin(window),
			windowMax(window),
			math.Abs(r.Value-mean),
		)

		rateOfChange := 0.0
		if len(window) > 1 {
			rateOfChange = r.Value - window[len(window)-2]
		}
		row = append(row, rateOfChange, math.Abs(rateOfChange))

		ts := r.Timestamp.UTC()
		hour := float64(ts.Hour())
		// Monday=0 like the analytics stack upstream expects
		dayOfWeek := float64((int(ts.Weekday()) + 6) % 7)
		row = append(row,
			dayOfWeek,
			math.Sin(2*math.Pi*hour/24),
			math.Cos(2*math.Pi*hour/24),
		)

		if hasThresholds {
			row = append(row, thresholdFeatures(r)...)
		}
		if hasQuality {
			quality := 0.0
			if r.Quality != nil {
				quality = *r.Quality
			}
			row = append(row, quality)
		}

		rows[i] = row
	}

	return FeatureMatrix{Columns: columns, Rows: rows}
}

func thresholdFeatures(r dto.Reading) []float64 {
	if r.MinThreshold == nil || r.MaxThreshold == nil {
		return []float64{0, 0, 0, 0}
	}
	minT, maxT := *r.MinThreshold, *r.MaxThreshold

	belowMin := 0.0
	if r.Value < minT {
		belowMin = 1
	}
	aboveMax := 0.0
	if r.Value > maxT {
		aboveMax = 1
	}
	thresholdRange := maxT - minT
	normalized := 0.0
	if thresholdRange != 0 {
		normalized = (r.Value - minT) / thresholdRange
	}
	return []float64{belowMin, aboveMax, thresholdRange, normalized}
}

// Reindex re-aligns the matrix to the given column order, synthesizing any
// column absent from the input as 0 and dropping extras. Training column
// order always wins over input order.
func (m FeatureMatrix) Reindex(columns []string) FeatureMatrix {
	index := make(map[string]int, len(m.Columns))
	for i, col := range m.Columns {
		index[col] = i
	}

	rows := make([][]float64, len(m.Rows))
	for i, src := range m.Rows {
		row := make([]float64, len(columns))
		for j, col := range columns {
			if k, ok := index[col]; ok {
				row[j] = src[k]
			}
		}
		rows[i] = row
	}
	return FeatureMatrix{Columns: columns, Rows: rows}
}

func windowMean(window []float64) float64 {
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

// windowStd is the sample standard deviation, 0 for windows of fewer than two
// points (boundary policy, not a gap).
func windowStd(window []float64, mean float64) float64 {
	if len(window) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range window {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(window)-1))
}

func windowMin(window []float64) float64 {
	min := window[0]
	for _, v := range window[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func windowMax(window []float64) float64 {
	max := window[0]
	for _, v := range window[1:] {
		if v > max {
			max = v
		}
	}
	return max
}
