/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package ml

import (
	"fmt"
	"math/rand"
	"time"

	"aquawatch/common/dto"
)

const (
	syntheticAnomalyFraction = 0.05
	syntheticNormalMean      = 50.0
	syntheticNormalStd       = 10.0
	syntheticMinThreshold    = 30.0
	syntheticMaxThreshold    = 70.0
	syntheticSensorCount     = 5
)

// GenerateSyntheticTrainingData produces n labeled readings for bootstrap
// training when no historical data exists yet. Normal values cluster around a
// gaussian inside the thresholds; anomalies land in the far tails on either
// side. Timestamps step backwards one minute per sample so rolling features
// see a plausible series.
func GenerateSyntheticTrainingData(n int, seed int64) ([]dto.Reading, []bool) {
	rng := rand.New(rand.NewSource(seed))
	start := time.Now().UTC().Add(-time.Duration(n) * time.Minute)

	readings := make([]dto.Reading, n)
	labels := make([]bool, n)
	minT, maxT := syntheticMinThreshold, syntheticMaxThreshold

	for i := 0; i < n; i++ {
		anomalous := rng.Float64() < syntheticAnomalyFraction

		var value float64
		if anomalous {
			if rng.Float64() < 0.5 {
				value = rng.Float64() * 20 // far below range
			} else {
				value = 80 + rng.Float64()*20 // far above range
			}
		} else {
			value = syntheticNormalMean + rng.NormFloat64()*syntheticNormalStd
		}

		quality := 0.85 + rng.Float64()*0.15
		if anomalous {
			quality = 0.5 + rng.Float64()*0.4
		}

		minThreshold, maxThreshold := minT, maxT
		readings[i] = dto.Reading{
			SensorId:     fmt.Sprintf("SYN-%03d", i%syntheticSensorCount),
			Type:         "synthetic",
			Value:        value,
			Timestamp:    start.Add(time.Duration(i) * time.Minute),
			Quality:      &quality,
			MinThreshold: &minThreshold,
			MaxThreshold: &maxThreshold,
		}
		labels[i] = anomalous
	}

	return readings, labels
}
