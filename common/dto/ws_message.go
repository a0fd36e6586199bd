/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package dto

import "encoding/json"

const (
	WSTypeConnection   = "connection"
	WSTypeSensorData   = "sensor_data"
	WSTypeAnomalyAlert = "anomaly_alert"
	WSTypeSubscribe    = "subscribe"
	WSTypePing         = "ping"
	WSTypePong         = "pong"
)

// WSMessage is the frame exchanged with live subscribers in both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Topics    []string        `json:"topics,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

func NewSensorDataMessage(topic string, reading Reading, ts int64) WSMessage {
	data, _ := json.Marshal(reading)
	return WSMessage{Type: WSTypeSensorData, Topic: topic, Data: data, Timestamp: ts}
}

func NewAnomalyAlertMessage(scored ScoredReading, ts int64) WSMessage {
	data, _ := json.Marshal(scored)
	return WSMessage{Type: WSTypeAnomalyAlert, Data: data, Timestamp: ts}
}
