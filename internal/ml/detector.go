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
	"sync/atomic"
	"time"

	"github.com/edgexfoundry/go-mod-core-contracts/v3/clients/logger"

	"aquawatch/common/config"
	"aquawatch/common/dto"
	aquaErrors "aquawatch/common/errors"
	"aquawatch/common/utils"
)

const minMaxEpsilon = 1e-10

// Metrics summarizes one training run. Classification figures are only
// present when the training data carried labels.
type Metrics struct {
	TrainPrecision *float64  `json:"train_precision,omitempty"`
	TrainRecall    *float64  `json:"train_recall,omitempty"`
	TrainF1        *float64  `json:"train_f1,omitempty"`
	TrainAccuracy  *float64  `json:"train_accuracy,omitempty"`
	ValPrecision   *float64  `json:"val_precision,omitempty"`
	ValRecall      *float64  `json:"val_recall,omitempty"`
	ValF1          *float64  `json:"val_f1,omitempty"`
	ValAccuracy    *float64  `json:"val_accuracy,omitempty"`
	TrainedAt      time.Time `json:"trained_at"`
	NumSamples     int       `json:"n_samples"`
	NumFeatures    int       `json:"n_features"`
}

// artifact is one immutable trained model generation: forest, scaler, the
// feature column contract and the metrics of the run that produced it.
// Generations are swapped atomically so readers always see a consistent set.
type artifact struct {
	Model          *IsolationForest
	Scaler         *StandardScaler
	FeatureColumns []string
	Metrics        Metrics
	Version        string
}

// AnomalyDetector is the scoring oracle. It starts untrained; Train or a
// successful Restore moves it to ready. A failed Restore or Train leaves any
// previously active model serving.
type AnomalyDetector struct {
	lc  logger.LoggingClient
	cfg config.MLConfig

	active atomic.Pointer[artifact]
}

func NewAnomalyDetector(cfg config.MLConfig, lc logger.LoggingClient) *AnomalyDetector {
	return &AnomalyDetector{lc: lc, cfg: cfg}
}

// IsTrained reports whether a model generation is active and serving.
func (d *AnomalyDetector) IsTrained() bool {
	return d.active.Load() != nil
}

// TrainingMetrics returns the metrics of the active generation.
func (d *AnomalyDetector) TrainingMetrics() (Metrics, aquaErrors.AquaError) {
	art := d.active.Load()
	if art == nil {
		return Metrics{}, aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeNotTrained,
			"no trained model available")
	}
	return art.Metrics, nil
}

// Train fits a new model generation on readings and swaps it in on success.
// labels may be nil; classification metrics are then omitted but training is
// still valid. validationSplit is the held-out fraction used for the val_*
// metrics.
func (d *AnomalyDetector) Train(readings []dto.Reading, labels []bool, validationSplit float64) (Metrics, aquaErrors.AquaError) {
	if len(readings) == 0 {
		return Metrics{}, aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeInsufficientData,
			"cannot train on an empty data set")
	}
	if labels != nil && len(labels) != len(readings) {
		return Metrics{}, aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeBadRequest,
			fmt.Sprintf("got %d labels for %d readings", len(labels), len(readings)))
	}

	features := ExtractFeatures(readings)
	d.lc.Infof("Training anomaly model on %d samples, %d features", len(features.Rows), len(features.Columns))

	trainIdx, valIdx := splitIndices(len(features.Rows), validationSplit)
	trainRows := selectRows(features.Rows, trainIdx)
	valRows := selectRows(features.Rows, valIdx)

	scaler := &StandardScaler{}
	scaledTrain := scaler.FitTransform(trainRows)
	scaledVal := scaler.Transform(valRows)

	model := NewIsolationForest(d.cfg.Estimators, d.cfg.Contamination)
	model.Fit(scaledTrain)

	metrics := Metrics{
		TrainedAt:   time.Now().UTC(),
		NumSamples:  len(features.Rows),
		NumFeatures: len(features.Columns),
	}
	if labels != nil {
		evaluate(model, scaledTrain, selectLabels(labels, trainIdx),
			&metrics.TrainPrecision, &metrics.TrainRecall, &metrics.TrainF1, &metrics.TrainAccuracy)
		evaluate(model, scaledVal, selectLabels(labels, valIdx),
			&metrics.ValPrecision, &metrics.ValRecall, &metrics.ValF1, &metrics.ValAccuracy)
	}

	d.active.Store(&artifact{
		Model:          model,
		Scaler:         scaler,
		FeatureColumns: features.Columns,
		Metrics:        metrics,
		Version:        d.cfg.ModelVersionLabel,
	})
	d.lc.Info("Anomaly model trained and activated")
	return metrics, nil
}

// Predict scores a batch of readings with the active model. AnomalyScore is
// min-max normalized within this batch only; IsAnomaly comes from the model's
// learned threshold and is batch-independent.
func (d *AnomalyDetector) Predict(readings []dto.Reading) ([]dto.ScoredReading, aquaErrors.AquaError) {
	art := d.active.Load()
	if art == nil {
		return nil, aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeNotTrained,
			"model is not trained; call train or restore a saved model first")
	}
	if len(readings) == 0 {
		return []dto.ScoredReading{}, nil
	}

	features := ExtractFeatures(readings).Reindex(art.FeatureColumns)
	scaled := art.Scaler.Transform(features.Rows)
	rawScores := art.Model.ScoreSamples(scaled)

	minScore, maxScore := rawScores[0], rawScores[0]
	for _, s := range rawScores[1:] {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	out := make([]dto.ScoredReading, len(readings))
	for i, r := range readings {
		// lower raw score is more anomalous, so the normalized probability
		// is inverted; a uniform batch collapses to 0 for every reading
		prob := (maxScore - rawScores[i]) / (maxScore - minScore + minMaxEpsilon)
		out[i] = dto.ScoredReading{
			SensorId:     r.SensorId,
			Timestamp:    r.Timestamp,
			Value:        r.Value,
			IsAnomaly:    rawScores[i] < art.Model.Offset,
			AnomalyScore: prob,
			Confidence:   -rawScores[i],
		}
	}
	return out, nil
}

func evaluate(model *IsolationForest, rows [][]float64, actual []bool, precision, recall, f1, accuracy **float64) {
	if len(rows) == 0 {
		return
	}
	predicted := model.Predict(rows)
	p, r, f, a := utils.ClassificationMetrics(actual, predicted)
	*precision, *recall, *f1, *accuracy = &p, &r, &f, &a
}

// splitIndices shuffles deterministically and holds out the trailing split
// fraction for validation. Fewer than two samples means no holdout.
func splitIndices(n int, split float64) (train, val []int) {
	perm := rand.New(rand.NewSource(forestSeed)).Perm(n)
	valN := int(float64(n) * split)
	if valN >= n {
		valN = n - 1
	}
	if n < 2 || valN < 1 {
		return perm, nil
	}
	return perm[:n-valN], perm[n-valN:]
}

func selectRows(rows [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func selectLabels(labels []bool, idx []int) []bool {
	out := make([]bool, len(idx))
	for i, j := range idx {
		out[i] = labels[j]
	}
	return out
}
