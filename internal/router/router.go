/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/edgexfoundry/go-mod-core-contracts/v3/clients/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"aquawatch/common/config"
	"aquawatch/common/dto"
	"aquawatch/common/telemetry"
	"aquawatch/common/utils"
	"aquawatch/internal/broker"
	"aquawatch/internal/hub"
	"aquawatch/internal/ml"
	"aquawatch/internal/simulator"
)

const serviceName = "aquawatch"

// Router owns the HTTP surface: the live-subscriber websocket endpoint, the
// health and status endpoints, and the test-only training and simulation
// endpoints.
type Router struct {
	lc      logger.LoggingClient
	cfg     *config.AppConfig
	metrics *telemetry.MetricsService

	echo      *echo.Echo
	hub       *hub.Hub
	detector  *ml.AnomalyDetector
	broker    *broker.Client
	simulator *simulator.Simulator
}

func NewRouter(cfg *config.AppConfig, h *hub.Hub, detector *ml.AnomalyDetector,
	b *broker.Client, sim *simulator.Simulator, metrics *telemetry.MetricsService,
	lc logger.LoggingClient) *Router {

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	r := &Router{
		lc:        lc,
		cfg:       cfg,
		metrics:   metrics,
		echo:      e,
		hub:       h,
		detector:  detector,
		broker:    b,
		simulator: sim,
	}
	r.registerRoutes()
	return r
}

func (r *Router) registerRoutes() {
	r.echo.GET("/", r.root)
	r.echo.GET("/health", r.health)
	r.echo.GET("/ws", r.serveWebsocket)
	r.echo.GET("/api/ml/metrics", r.mlMetrics)
	r.echo.GET("/api/telemetry", r.telemetrySnapshot)
	r.echo.POST("/api/test/train-ml-model", r.trainModel)
	r.echo.POST("/api/test/simulate-sensor", r.simulateSensor)
}

// Serve runs the HTTP listener until ctx is cancelled, then shuts down
// gracefully.
func (r *Router) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", r.cfg.Service.Host, r.cfg.Service.Port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.echo.Shutdown(shutdownCtx); err != nil {
			r.lc.Errorf("HTTP server shutdown failed: %v", err)
		}
	}()

	r.lc.Infof("HTTP server listening on %s", addr)
	if err := r.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (r *Router) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"service": serviceName,
		"version": r.cfg.ML.ModelVersionLabel,
		"status":  "running",
	})
}

func (r *Router) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"mqtt_connected": r.broker.IsConnected(),
		"ws_connections": r.hub.ConnectionCount(),
		"model_trained":  r.detector.IsTrained(),
	})
}

func (r *Router) mlMetrics(c echo.Context) error {
	metrics, err := r.detector.TrainingMetrics()
	if err != nil {
		return err.ConvertToHTTPError()
	}
	return c.JSON(http.StatusOK, metrics)
}

func (r *Router) telemetrySnapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"counters":        r.metrics.Snapshot(),
		"score_quantiles": r.metrics.ScoreQuantiles(),
	})
}

type trainRequest struct {
	NumSamples int `json:"num_samples"`
}

// trainModel trains a fresh model on synthetic data and persists the bundle.
// Test-only convenience for environments without labeled history.
func (r *Router) trainModel(c echo.Context) error {
	req := trainRequest{NumSamples: r.cfg.ML.SyntheticSamples}
	if err := c.Bind(&req); err != nil || req.NumSamples <= 0 {
		req.NumSamples = r.cfg.ML.SyntheticSamples
	}

	readings, labels := ml.GenerateSyntheticTrainingData(req.NumSamples, time.Now().UnixNano())
	metrics, trainErr := r.detector.Train(readings, labels, r.cfg.ML.ValidationSplit)
	if trainErr != nil {
		return trainErr.ConvertToHTTPError()
	}

	path, saveErr := r.detector.Save(r.cfg.ML.ModelVersionLabel)
	if saveErr != nil {
		return saveErr.ConvertToHTTPError()
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":       "model trained successfully",
		"metrics":       metrics,
		"artifact_path": path,
	})
}

type simulateRequest struct {
	SensorId   string      `json:"sensor_id"`
	SensorType string      `json:"sensor_type"`
	Value      interface{} `json:"value"`
}

func (r *Router) simulateSensor(c echo.Context) error {
	var req simulateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SensorId == "" {
		req.SensorId = "S0001"
	}
	if req.SensorType == "" {
		req.SensorType = "flow"
	}

	var reading dto.Reading
	var published bool
	if req.Value != nil {
		value, err := utils.ToFloat64(req.Value)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("value is not numeric: %v", err))
		}
		reading, published = r.simulator.EmitExactReading(req.SensorId, req.SensorType, value)
	} else {
		reading, published = r.simulator.EmitReading(req.SensorId, req.SensorType)
	}
	if reading.SensorId == "" {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("unknown sensor type: %s", req.SensorType))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"published": published,
		"reading":   reading,
	})
}
