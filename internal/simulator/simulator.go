/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/edgexfoundry/go-mod-core-contracts/v3/clients/logger"

	"aquawatch/common/config"
	"aquawatch/common/dto"
	"aquawatch/internal/broker"
)

const anomalyChance = 0.05

type sensorProfile struct {
	min, max float64
	unit     string
}

var sensorTypes = map[string]sensorProfile{
	"flow":      {0, 500, "L/min"},
	"pressure":  {0, 10, "bar"},
	"pH":        {6.0, 8.5, "pH"},
	"turbidity": {0, 5, "NTU"},
	"chlorine":  {0.2, 5.0, "mg/L"},
	"level":     {0, 100, "%"},
}

// Simulator publishes synthetic sensor readings over the broker for local
// testing; it has no place in a production deployment.
type Simulator struct {
	lc     logger.LoggingClient
	broker *broker.Client

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulator(b *broker.Client, lc logger.LoggingClient) *Simulator {
	return &Simulator{
		lc:     lc,
		broker: b,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// EmitReading publishes one synthetic reading for the given sensor. Roughly
// 5% of readings land outside the sensor's normal band.
func (s *Simulator) EmitReading(sensorId string, sensorType string) (dto.Reading, bool) {
	profile, known := sensorTypes[sensorType]
	if !known {
		s.lc.Warnf("Unknown simulated sensor type: %s", sensorType)
		return dto.Reading{}, false
	}

	s.mu.Lock()
	anomalous := s.rng.Float64() < anomalyChance
	span := profile.max - profile.min
	var value float64
	if anomalous {
		if s.rng.Float64() < 0.5 {
			value = profile.min + s.rng.Float64()*span*0.1
		} else {
			value = profile.max*0.9 + s.rng.Float64()*profile.max*0.1
		}
	} else {
		lo := profile.min + span*0.2
		value = lo + s.rng.Float64()*(profile.max*0.8-lo)
	}
	quality := 0.95 + s.rng.Float64()*0.05
	if anomalous {
		quality = 0.5 + s.rng.Float64()*0.3
	}
	s.mu.Unlock()

	return s.publish(sensorId, sensorType, profile, value, quality)
}

// EmitExactReading publishes a reading carrying the caller's exact value, so
// the scoring path can be driven deterministically from the test endpoint.
func (s *Simulator) EmitExactReading(sensorId string, sensorType string, value float64) (dto.Reading, bool) {
	profile, known := sensorTypes[sensorType]
	if !known {
		s.lc.Warnf("Unknown simulated sensor type: %s", sensorType)
		return dto.Reading{}, false
	}
	return s.publish(sensorId, sensorType, profile, value, 1.0)
}

func (s *Simulator) publish(sensorId string, sensorType string, profile sensorProfile,
	value float64, quality float64) (dto.Reading, bool) {

	minT, maxT := profile.min, profile.max
	reading := dto.Reading{
		SensorId:     sensorId,
		Type:         sensorType,
		Value:        math.Round(value*100) / 100,
		Unit:         profile.unit,
		Timestamp:    time.Now().UTC(),
		Quality:      &quality,
		MinThreshold: &minT,
		MaxThreshold: &maxT,
	}

	topic := config.BuildTopicNameFromBaseTopicPrefix(fmt.Sprintf("sensors/%s/data", sensorId), "/")
	ok := s.broker.Publish(topic, reading, 1, false)
	return reading, ok
}

// Run emits readings for numSensors simulated sensors every interval until
// ctx is cancelled.
func (s *Simulator) Run(ctx context.Context, numSensors int, interval time.Duration) {
	s.lc.Infof("Starting sensor simulation with %d sensors", numSensors)

	types := make([]string, 0, len(sensorTypes))
	for name := range sensorTypes {
		types = append(types, name)
	}

	s.mu.Lock()
	sensors := make(map[string]string, numSensors)
	for i := 1; i <= numSensors; i++ {
		sensors[fmt.Sprintf("S%04d", i)] = types[s.rng.Intn(len(types))]
	}
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.lc.Info("Sensor simulation stopped")
			return
		case <-ticker.C:
			for id, sensorType := range sensors {
				s.EmitReading(id, sensorType)
			}
		}
	}
}
