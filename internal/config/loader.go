// Package config loads per-camera YAML configuration and watches the config
// directory so an edited file can trigger a restart of just that camera's
// worker. Config itself is read-once-at-start: the worker treats its
// CameraConfig as an immutable snapshot; this package only detects that a
// file changed, it does not hot-swap fields into a running worker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/technosupport/cashvision/internal/model"
)

// LoadCamera reads and validates one camera config file, applying
// conservative defaults for any unset temporal-gate tunable.
func LoadCamera(path string) (model.CameraConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.CameraConfig{}, fmt.Errorf("reading camera config %s: %w", path, err)
	}

	var cfg model.CameraConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return model.CameraConfig{}, fmt.Errorf("parsing camera config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return model.CameraConfig{}, fmt.Errorf("invalid camera config %s: %w", path, err)
	}

	return cfg.DefaultsApplied(), nil
}

func validate(cfg model.CameraConfig) error {
	if cfg.CameraID == "" {
		return fmt.Errorf("camera_id is required")
	}
	if cfg.RTSPURL == "" {
		return fmt.Errorf("rtsp_url is required")
	}
	if cfg.Models.PosePath == "" {
		return fmt.Errorf("models.pose_model_path is required")
	}
	if cfg.Models.FirePath == "" {
		return fmt.Errorf("models.fire_model_path is required")
	}
	if cfg.CashierZone.Rectangle == nil && len(cfg.CashierZone.Polygon) == 0 {
		return fmt.Errorf("cashier_zone must set either rectangle or polygon")
	}
	return nil
}

// LoadDirectory loads every *.yaml / *.yml file directly under dir, keyed by
// CameraID. A malformed file is reported but does not prevent loading the
// rest of the directory; the caller decides whether that is fatal.
func LoadDirectory(dir string) (map[string]model.CameraConfig, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("reading config directory %s: %w", dir, err)}
	}

	cameras := make(map[string]model.CameraConfig)
	var errs []error

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		cfg, err := LoadCamera(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cameras[cfg.CameraID] = cfg
	}

	return cameras, errs
}
