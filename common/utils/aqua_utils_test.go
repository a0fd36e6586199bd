/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToFloat64(t *testing.T) {
	v, err := ToFloat64(int32(7))
	assert.NoError(t, err)
	assert.Equal(t, 7.0, v)

	v, err = ToFloat64(3.5)
	assert.NoError(t, err)
	assert.Equal(t, 3.5, v)

	_, err = ToFloat64("not a number")
	assert.Error(t, err)
}

func TestClassificationMetrics(t *testing.T) {
	actual := []bool{true, true, false, false, true}
	predicted := []bool{true, false, false, true, true}

	precision, recall, f1, accuracy := ClassificationMetrics(actual, predicted)
	assert.InDelta(t, 2.0/3.0, precision, 1e-9)
	assert.InDelta(t, 2.0/3.0, recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, f1, 1e-9)
	assert.InDelta(t, 3.0/5.0, accuracy, 1e-9)
}

func TestClassificationMetrics_NoPositives(t *testing.T) {
	actual := []bool{false, false}
	predicted := []bool{false, false}

	precision, recall, f1, accuracy := ClassificationMetrics(actual, predicted)
	assert.Zero(t, precision)
	assert.Zero(t, recall)
	assert.Zero(t, f1)
	assert.Equal(t, 1.0, accuracy)
}

func TestQuantile(t *testing.T) {
	values := []float64{4, 1, 3, 2}
	assert.Equal(t, 1.0, Quantile(values, 0))
	assert.Equal(t, 4.0, Quantile(values, 1))
	assert.InDelta(t, 2.5, Quantile(values, 0.5), 1e-9)
	// input must not be reordered
	assert.Equal(t, []float64{4, 1, 3, 2}, values)
}
