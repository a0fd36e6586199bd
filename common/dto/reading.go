/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package dto

import "time"

// Reading is one raw sensor sample as received from the message transport.
// Threshold and quality fields are optional; a nil pointer means the sensor
// did not report them.
type Reading struct {
	SensorId     string    `json:"sensor_id"               validate:"required"`
	Type         string    `json:"type,omitempty"`
	Value        float64   `json:"value"`
	Unit         string    `json:"unit,omitempty"`
	Timestamp    time.Time `json:"timestamp"               validate:"required"`
	Quality      *float64  `json:"quality,omitempty"       validate:"omitempty,gte=0,lte=1"`
	MinThreshold *float64  `json:"min_threshold,omitempty"`
	MaxThreshold *float64  `json:"max_threshold,omitempty"`
}

// LabeledReading is a Reading carrying a ground-truth anomaly label, used for
// model training and metric computation.
type LabeledReading struct {
	Reading
	IsAnomaly bool `json:"is_anomaly"`
}

// ScoredReading is the per-reading prediction output.
// AnomalyScore is min-max normalized over the batch that produced it, so it is
// only comparable within one Predict call; Confidence is the absolute
// magnitude of the raw model score and IsAnomaly is the authoritative flag.
type ScoredReading struct {
	SensorId     string    `json:"sensor_id"`
	Timestamp    time.Time `json:"timestamp"`
	Value        float64   `json:"value"`
	IsAnomaly    bool      `json:"is_anomaly"`
	AnomalyScore float64   `json:"anomaly_score"`
	Confidence   float64   `json:"confidence"`
}
