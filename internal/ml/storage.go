/*******************************************************************************
* Contributors: BMC Helix, Inc.
*
* (c) Copyright 2020-2025 BMC Helix, Inc.

* SPDX-License-Identifier: Apache-2.0
*******************************************************************************/

package ml

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	aquaErrors "aquawatch/common/errors"
)

const artifactTimeFormat = "20060102_150405"

// artifactMetadata is the JSON companion persisted next to the gob encoded
// model and scaler. It carries everything needed to rebuild the serving
// contract that the binary blobs do not.
type artifactMetadata struct {
	Version        string   `json:"version"`
	FeatureColumns []string `json:"feature_columns"`
	Metrics        Metrics  `json:"metrics"`
	Estimators     int      `json:"n_estimators"`
	Contamination  float64  `json:"contamination"`
	SavedAt        string   `json:"saved_at"`
}

// Save persists the active model generation as a three-file bundle under the
// configured model directory and returns the model file path. The bundle
// shares one timestamp so Restore can derive the companions from any of them.
func (d *AnomalyDetector) Save(version string) (string, aquaErrors.AquaError) {
	art := d.active.Load()
	if art == nil {
		return "", aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeNotTrained,
			"nothing to save: model is not trained")
	}
	if version == "" {
		version = art.Version
	}

	if err := os.MkdirAll(d.cfg.ModelDir, 0o755); err != nil {
		return "", aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeServerError,
			fmt.Sprintf("failed to create model directory %s: %v", d.cfg.ModelDir, err))
	}

	ts := time.Now().UTC().Format(artifactTimeFormat)
	modelPath := filepath.Join(d.cfg.ModelDir, fmt.Sprintf("anomaly_detector_%s_%s.gob", version, ts))
	scalerPath := filepath.Join(d.cfg.ModelDir, fmt.Sprintf("scaler_%s_%s.gob", version, ts))
	metaPath := filepath.Join(d.cfg.ModelDir, fmt.Sprintf("metadata_%s_%s.json", version, ts))

	if err := writeGob(modelPath, art.Model); err != nil {
		return "", aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeServerError, err.Error())
	}
	if err := writeGob(scalerPath, art.Scaler); err != nil {
		return "", aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeServerError, err.Error())
	}
	meta := artifactMetadata{
		Version:        version,
		FeatureColumns: art.FeatureColumns,
		Metrics:        art.Metrics,
		Estimators:     art.Model.Estimators,
		Contamination:  art.Model.Contamination,
		SavedAt:        ts,
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeServerError,
			errors.Wrap(err, "failed to encode model metadata").Error())
	}
	if err := os.WriteFile(metaPath, raw, 0o644); err != nil {
		return "", aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeServerError,
			errors.Wrapf(err, "failed to write %s", metaPath).Error())
	}

	d.lc.Infof("Saved model bundle: %s", modelPath)
	return modelPath, nil
}

// Restore loads a previously saved bundle given the model file path, deriving
// the scaler and metadata paths from it. The active model is only swapped
// after the whole bundle loads cleanly; any failure leaves the current state
// untouched.
func (d *AnomalyDetector) Restore(modelPath string) aquaErrors.AquaError {
	scalerPath := strings.Replace(modelPath, "anomaly_detector_", "scaler_", 1)
	metaPath := strings.TrimSuffix(strings.Replace(modelPath, "anomaly_detector_", "metadata_", 1), ".gob") + ".json"

	model := &IsolationForest{}
	if aerr := readGob(modelPath, model); aerr != nil {
		return aerr
	}
	scaler := &StandardScaler{}
	if aerr := readGob(scalerPath, scaler); aerr != nil {
		return aerr
	}

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeArtifactNotFound,
				fmt.Sprintf("model metadata not found: %s", metaPath))
		}
		return aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeServerError,
			errors.Wrapf(err, "failed to read %s", metaPath).Error())
	}
	var meta artifactMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeArtifactCorrupt,
			fmt.Sprintf("model metadata %s is corrupt: %v", metaPath, err))
	}

	d.active.Store(&artifact{
		Model:          model,
		Scaler:         scaler,
		FeatureColumns: meta.FeatureColumns,
		Metrics:        meta.Metrics,
		Version:        meta.Version,
	})
	d.lc.Infof("Restored model bundle %s (version %s, trained %s)",
		modelPath, meta.Version, meta.Metrics.TrainedAt.Format(time.RFC3339))
	return nil
}

// RestoreLatest restores the newest saved bundle in the model directory.
// Bundle timestamps sort lexicographically, so the glob order is the save
// order.
func (d *AnomalyDetector) RestoreLatest() aquaErrors.AquaError {
	matches, err := filepath.Glob(filepath.Join(d.cfg.ModelDir, "anomaly_detector_*.gob"))
	if err != nil || len(matches) == 0 {
		return aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeArtifactNotFound,
			fmt.Sprintf("no saved model bundles under %s", d.cfg.ModelDir))
	}
	sort.Strings(matches)
	return d.Restore(matches[len(matches)-1])
}

func writeGob(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return nil
}

func readGob(path string, v interface{}) aquaErrors.AquaError {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeArtifactNotFound,
				fmt.Sprintf("model artifact not found: %s", path))
		}
		return aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeServerError,
			errors.Wrapf(err, "failed to open %s", path).Error())
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return aquaErrors.NewCommonAquaError(aquaErrors.ErrorTypeArtifactCorrupt,
			fmt.Sprintf("model artifact %s is corrupt: %v", path, err))
	}
	return nil
}
