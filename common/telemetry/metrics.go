/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package telemetry

import (
	"sync"

	"github.com/caio/go-tdigest/v4"
	gometrics "github.com/rcrowley/go-metrics"
)

const (
	MessagesReceivedName   = "MqttMessagesReceived"
	DecodeErrorsName       = "MqttDecodeErrors"
	PublishErrorsName      = "MqttPublishErrors"
	HandlerFaultsName      = "HandlerFaults"
	AnomaliesDetectedName  = "AnomaliesDetected"
	SubscribersDroppedName = "SubscribersDropped"
	PayloadSizeName        = "MqttPayloadSize"

	// reservoir size for the payload size histogram
	MetricsReservoirSize = 1028
)

// MetricsService owns the in-process counters for the ingestion pipeline plus
// a t-digest of anomaly scores for quantile reporting.
type MetricsService struct {
	registry gometrics.Registry

	MessagesReceived   gometrics.Counter
	DecodeErrors       gometrics.Counter
	PublishErrors      gometrics.Counter
	HandlerFaults      gometrics.Counter
	AnomaliesDetected  gometrics.Counter
	SubscribersDropped gometrics.Counter
	PayloadSize        gometrics.Histogram

	digestMu    sync.Mutex
	scoreDigest *tdigest.TDigest
	scoreCount  int64
}

func NewMetricsService() *MetricsService {
	registry := gometrics.NewRegistry()
	digest, _ := tdigest.New()

	m := &MetricsService{
		registry:           registry,
		MessagesReceived:   gometrics.NewCounter(),
		DecodeErrors:       gometrics.NewCounter(),
		PublishErrors:      gometrics.NewCounter(),
		HandlerFaults:      gometrics.NewCounter(),
		AnomaliesDetected:  gometrics.NewCounter(),
		SubscribersDropped: gometrics.NewCounter(),
		PayloadSize:        gometrics.NewHistogram(gometrics.NewUniformSample(MetricsReservoirSize)),
		scoreDigest:        digest,
	}

	registry.Register(MessagesReceivedName, m.MessagesReceived)
	registry.Register(DecodeErrorsName, m.DecodeErrors)
	registry.Register(PublishErrorsName, m.PublishErrors)
	registry.Register(HandlerFaultsName, m.HandlerFaults)
	registry.Register(AnomaliesDetectedName, m.AnomaliesDetected)
	registry.Register(SubscribersDroppedName, m.SubscribersDropped)
	registry.Register(PayloadSizeName, m.PayloadSize)

	return m
}

// RecordAnomalyScore feeds one batch-normalized anomaly score into the digest.
func (m *MetricsService) RecordAnomalyScore(score float64) {
	m.digestMu.Lock()
	defer m.digestMu.Unlock()
	_ = m.scoreDigest.Add(score)
	m.scoreCount++
}

// ScoreQuantiles reports p50/p95/p99 of all anomaly scores seen so far.
func (m *MetricsService) ScoreQuantiles() map[string]float64 {
	m.digestMu.Lock()
	defer m.digestMu.Unlock()
	if m.scoreCount == 0 {
		return map[string]float64{}
	}
	return map[string]float64{
		"p50": m.scoreDigest.Quantile(0.5),
		"p95": m.scoreDigest.Quantile(0.95),
		"p99": m.scoreDigest.Quantile(0.99),
	}
}

// Snapshot returns current counter values for the status endpoints.
func (m *MetricsService) Snapshot() map[string]int64 {
	return map[string]int64{
		MessagesReceivedName:   m.MessagesReceived.Count(),
		DecodeErrorsName:       m.DecodeErrors.Count(),
		PublishErrorsName:      m.PublishErrors.Count(),
		HandlerFaultsName:      m.HandlerFaults.Count(),
		AnomaliesDetectedName:  m.AnomaliesDetected.Count(),
		SubscribersDroppedName: m.SubscribersDropped.Count(),
	}
}
