/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/spf13/cast"

	"aquawatch/common/utils"
)

var validLogLevels = []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}

// AppConfig is the full service configuration, loaded from a TOML file with
// environment variable overrides. Connection credentials are supplied by the
// environment, never committed in the file.
type AppConfig struct {
	Service   ServiceConfig   `toml:"Service"`
	Mqtt      MqttConfig      `toml:"Mqtt"`
	Websocket WebsocketConfig `toml:"Websocket"`
	ML        MLConfig        `toml:"ML"`
	Telemetry TelemetryConfig `toml:"Telemetry"`
}

type ServiceConfig struct {
	Host     string `toml:"Host"`
	Port     int    `toml:"Port"`
	LogLevel string `toml:"LogLevel"`
}

type MqttConfig struct {
	Scheme           string   `toml:"Scheme"`
	BrokerHost       string   `toml:"BrokerHost"`
	BrokerPort       int      `toml:"BrokerPort"`
	Username         string   `toml:"Username"`
	Password         string   `toml:"Password"`
	ClientId         string   `toml:"ClientId"`
	QoS              byte     `toml:"QoS"`
	KeepAliveSeconds int      `toml:"KeepAliveSeconds"`
	Topics           []string `toml:"Topics"`
}

type WebsocketConfig struct {
	ReadBufferSize  int `toml:"ReadBufferSize"`
	WriteBufferSize int `toml:"WriteBufferSize"`
	MaxConnections  int `toml:"MaxConnections"`
}

type MLConfig struct {
	ModelDir          string  `toml:"ModelDir"`
	Contamination     float64 `toml:"Contamination"`
	Estimators        int     `toml:"Estimators"`
	WindowTTLMinutes  int     `toml:"WindowTTLMinutes"`
	TrainOnStartup    bool    `toml:"TrainOnStartup"`
	ValidationSplit   float64 `toml:"ValidationSplit"`
	SyntheticSamples  int     `toml:"SyntheticSamples"`
	ModelVersionLabel string  `toml:"ModelVersionLabel"`
}

type TelemetryConfig struct {
	ReportIntervalSeconds int `toml:"ReportIntervalSeconds"`
}

// Load reads the TOML configuration at path and applies environment overrides.
func Load(path string) (*AppConfig, error) {
	cfg := defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	// an unrecognized level would silence the logger entirely
	cfg.Service.LogLevel = strings.ToUpper(cfg.Service.LogLevel)
	if !utils.Contains(validLogLevels, cfg.Service.LogLevel) {
		cfg.Service.LogLevel = "INFO"
	}
	return cfg, nil
}

func defaults() *AppConfig {
	return &AppConfig{
		Service: ServiceConfig{Host: "0.0.0.0", Port: 8000, LogLevel: "INFO"},
		Mqtt: MqttConfig{
			Scheme:           "tcp",
			BrokerHost:       "localhost",
			BrokerPort:       1883,
			ClientId:         "aquawatch-server",
			QoS:              1,
			KeepAliveSeconds: 60,
			Topics: []string{
				"aqua/sensors/+/data",
				"aqua/sensors/+/status",
				"aqua/alerts/#",
			},
		},
		Websocket: WebsocketConfig{ReadBufferSize: 4096, WriteBufferSize: 4096, MaxConnections: 1000},
		ML: MLConfig{
			ModelDir:          "ml/models",
			Contamination:     0.05,
			Estimators:        100,
			WindowTTLMinutes:  30,
			ValidationSplit:   0.2,
			SyntheticSamples:  10000,
			ModelVersionLabel: "v1.0",
		},
		Telemetry: TelemetryConfig{ReportIntervalSeconds: 30},
	}
}

func (cfg *AppConfig) applyEnvOverrides() {
	if v := os.Getenv("MQTT_BROKER_HOST"); v != "" {
		cfg.Mqtt.BrokerHost = v
	}
	if v := os.Getenv("MQTT_BROKER_PORT"); v != "" {
		cfg.Mqtt.BrokerPort = cast.ToInt(v)
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.Mqtt.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.Mqtt.Password = v
	}
	if v := os.Getenv("MQTT_QOS"); v != "" {
		cfg.Mqtt.QoS = byte(cast.ToInt(v))
	}
	if v := os.Getenv("SERVICE_PORT"); v != "" {
		cfg.Service.Port = cast.ToInt(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Service.LogLevel = v
	}
	if v := os.Getenv("ML_MODEL_DIR"); v != "" {
		cfg.ML.ModelDir = v
	}
}

// BrokerAddress renders the paho broker URL, eg tcp://localhost:1883.
func (m MqttConfig) BrokerAddress() string {
	return fmt.Sprintf("%s://%s:%d", m.Scheme, m.BrokerHost, m.BrokerPort)
}
