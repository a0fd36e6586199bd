/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package pipeline

import (
	"time"

	"github.com/edgexfoundry/go-mod-core-contracts/v3/clients/logger"
	"github.com/jellydator/ttlcache/v3"

	"aquawatch/common/config"
	"aquawatch/common/dto"
	"aquawatch/common/telemetry"
	"aquawatch/internal/hub"
	"aquawatch/internal/ml"
)

// scoringWindow is the trailing per-sensor context fed to the model so the
// rolling features of the newest reading are meaningful.
const scoringWindow = 10

// Coordinator wires a decoded reading through scoring and out to the live
// subscribers. Scoring trouble degrades to pass-through: the sensor_data
// broadcast always happens.
type Coordinator struct {
	lc       logger.LoggingClient
	metrics  *telemetry.MetricsService
	detector *ml.AnomalyDetector
	hub      *hub.Hub

	windows *ttlcache.Cache[string, []dto.Reading]
}

func NewCoordinator(cfg config.MLConfig, detector *ml.AnomalyDetector, h *hub.Hub,
	metrics *telemetry.MetricsService, lc logger.LoggingClient) *Coordinator {

	ttl := time.Duration(cfg.WindowTTLMinutes) * time.Minute
	return &Coordinator{
		lc:       lc,
		metrics:  metrics,
		detector: detector,
		hub:      h,
		windows: ttlcache.New[string, []dto.Reading](
			ttlcache.WithTTL[string, []dto.Reading](ttl),
		),
	}
}

// Start launches the expiry loop that drops idle sensor windows.
func (p *Coordinator) Start() {
	go p.windows.Start()
}

func (p *Coordinator) Stop() {
	p.windows.Stop()
}

// HandleReading is the broker handler for sensor data topics. It scores the
// reading against its sensor's trailing window, broadcasts an anomaly alert
// when the model flags it, and always broadcasts the reading itself.
func (p *Coordinator) HandleReading(topic string, reading dto.Reading) error {
	window := p.appendToWindow(reading)
	now := time.Now().UTC().UnixMilli()

	if scored, ok := p.score(window); ok {
		p.metrics.RecordAnomalyScore(scored.AnomalyScore)
		if scored.IsAnomaly {
			p.metrics.AnomaliesDetected.Inc(1)
			p.lc.Warnf("Anomaly detected on sensor %s: value=%.2f score=%.3f",
				scored.SensorId, scored.Value, scored.AnomalyScore)
			p.hub.BroadcastAll(dto.NewAnomalyAlertMessage(scored, now))
		}
	}

	p.hub.BroadcastAll(dto.NewSensorDataMessage(topic, reading, now))
	return nil
}

func (p *Coordinator) appendToWindow(reading dto.Reading) []dto.Reading {
	var window []dto.Reading
	if item := p.windows.Get(reading.SensorId); item != nil {
		window = item.Value()
	}
	window = append(window, reading)
	if len(window) > scoringWindow {
		window = window[len(window)-scoringWindow:]
	}
	p.windows.Set(reading.SensorId, window, ttlcache.DefaultTTL)
	return window
}

// score runs the model over the sensor's window and returns the score of the
// newest reading. An untrained model or a prediction failure yields ok=false
// and never propagates.
func (p *Coordinator) score(window []dto.Reading) (dto.ScoredReading, bool) {
	if !p.detector.IsTrained() {
		return dto.ScoredReading{}, false
	}
	scored, err := p.detector.Predict(window)
	if err != nil {
		p.lc.Errorf("Scoring failed for sensor %s: %s", window[len(window)-1].SensorId, err.Message())
		return dto.ScoredReading{}, false
	}
	if len(scored) == 0 {
		return dto.ScoredReading{}, false
	}
	return scored[len(scored)-1], true
}
