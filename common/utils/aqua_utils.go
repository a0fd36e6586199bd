/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package utils

import (
	"fmt"
	"math"
	"sort"
)

func ToFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unsupported type: %T", value)
	}
}

func Contains(s []string, e string) bool {
	for _, a := range s {
		if a == e {
			return true
		}
	}
	return false
}

// ClassificationMetrics computes precision, recall, f1 and accuracy for
// binary predictions against ground truth. Undefined ratios (no predicted
// positives, no actual positives) report 0 rather than NaN.
func ClassificationMetrics(actual []bool, predicted []bool) (precision, recall, f1, accuracy float64) {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0, 0, 0, 0
	}
	var tp, fp, fn, correct float64
	for i := range actual {
		switch {
		case predicted[i] && actual[i]:
			tp++
		case predicted[i] && !actual[i]:
			fp++
		case !predicted[i] && actual[i]:
			fn++
		}
		if predicted[i] == actual[i] {
			correct++
		}
	}
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	accuracy = correct / float64(len(actual))
	return precision, recall, f1, accuracy
}

// Quantile returns the q-th linear-interpolated quantile of values.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}
