/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgexfoundry/go-mod-core-contracts/v3/clients/logger"

	"aquawatch/common/config"
	"aquawatch/common/errors"
	"aquawatch/common/telemetry"
	"aquawatch/internal/broker"
	"aquawatch/internal/hub"
	"aquawatch/internal/ml"
	"aquawatch/internal/pipeline"
	"aquawatch/internal/router"
	"aquawatch/internal/simulator"
)

const serviceName = "aquawatch-server"

func main() {
	configPath := flag.String("config", "res/configuration.toml", "path to the configuration file")
	flag.Parse()

	bootstrapLc := logger.NewClient(serviceName, "INFO")
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootstrapLc.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	lc := logger.NewClient(serviceName, cfg.Service.LogLevel)
	metrics := telemetry.NewMetricsService()

	detector := ml.NewAnomalyDetector(cfg.ML, lc)
	prepareModel(cfg, detector, lc)

	h := hub.NewHub(metrics, lc)
	coordinator := pipeline.NewCoordinator(cfg.ML, detector, h, metrics, lc)
	coordinator.Start()
	defer coordinator.Stop()

	client := broker.NewClient(cfg.Mqtt, metrics, lc)
	client.RegisterHandler("aqua/sensors/+/data", coordinator.HandleReading)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// the HTTP surface must come up even while the broker is unreachable
	go func() {
		if err := client.ConnectWithRetry(ctx); err != nil {
			lc.Errorf("MQTT connection abandoned: %s", err.Message())
			return
		}
		client.Listen(ctx)
	}()

	sim := simulator.NewSimulator(client, lc)
	if os.Getenv("ENABLE_SIMULATOR") == "true" {
		go sim.Run(ctx, 10, 5*time.Second)
	}

	r := router.NewRouter(cfg, h, detector, client, sim, metrics, lc)
	if err := r.Serve(ctx); err != nil {
		lc.Errorf("HTTP server failed: %v", err)
		os.Exit(1)
	}

	lc.Info("Shutdown complete")
}

// prepareModel restores the newest saved bundle, optionally falling back to
// training on synthetic data. The service still starts untrained when both
// are unavailable; scoring then resumes after the first successful train.
func prepareModel(cfg *config.AppConfig, detector *ml.AnomalyDetector, lc logger.LoggingClient) {
	restoreErr := detector.RestoreLatest()
	if restoreErr == nil {
		return
	}
	if !restoreErr.IsErrorType(errors.ErrorTypeArtifactNotFound) {
		lc.Errorf("Failed to restore saved model: %s", restoreErr.Message())
	}

	if !cfg.ML.TrainOnStartup {
		lc.Info("No saved model found, starting untrained")
		return
	}

	lc.Infof("No saved model found, training on %d synthetic samples", cfg.ML.SyntheticSamples)
	readings, labels := ml.GenerateSyntheticTrainingData(cfg.ML.SyntheticSamples, time.Now().UnixNano())
	if _, trainErr := detector.Train(readings, labels, cfg.ML.ValidationSplit); trainErr != nil {
		lc.Errorf("Startup training failed: %s", trainErr.Message())
		return
	}
	if _, saveErr := detector.Save(cfg.ML.ModelVersionLabel); saveErr != nil {
		lc.Errorf("Failed to persist startup model: %s", saveErr.Message())
	}
}
