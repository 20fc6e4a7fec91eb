package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
camera_id: register-1
name: Front Register
rtsp_url: rtsp://10.0.0.5:554/stream1
enable_cash: true
enable_violence: true
enable_fire: true
cashier_zone:
  rectangle:
    x1: 500
    y1: 300
    x2: 900
    y2: 700
models:
  pose_model_path: /opt/cashvision/models/pose.onnx
  fire_model_path: /opt/cashvision/models/fire.onnx
`

func TestLoadCamera(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "register-1.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadCamera(path)
	if err != nil {
		t.Fatalf("LoadCamera failed: %v", err)
	}
	if cfg.CameraID != "register-1" {
		t.Errorf("CameraID = %q, want register-1", cfg.CameraID)
	}
	// Defaults should be filled in.
	if cfg.MinTransactionFrames != 1 {
		t.Errorf("MinTransactionFrames = %d, want default 1", cfg.MinTransactionFrames)
	}
	if cfg.CashCooldownFrames != 45 {
		t.Errorf("CashCooldownFrames = %d, want default 45", cfg.CashCooldownFrames)
	}
}

func TestLoadCamera_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing_camera_id", `rtsp_url: rtsp://x
models: {pose_model_path: a, fire_model_path: b}
cashier_zone: {rectangle: {x1: 0, y1: 0, x2: 1, y2: 1}}`},
		{"missing_rtsp_url", `camera_id: c1
models: {pose_model_path: a, fire_model_path: b}
cashier_zone: {rectangle: {x1: 0, y1: 0, x2: 1, y2: 1}}`},
		{"missing_pose_model", `camera_id: c1
rtsp_url: rtsp://x
models: {fire_model_path: b}
cashier_zone: {rectangle: {x1: 0, y1: 0, x2: 1, y2: 1}}`},
		{"missing_zone", `camera_id: c1
rtsp_url: rtsp://x
models: {pose_model_path: a, fire_model_path: b}`},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			os.WriteFile(path, []byte(tt.yaml), 0644)
			if _, err := LoadCamera(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "register-1.yaml"), []byte(validYAML), 0644)
	os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("camera_id: only-this"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644)

	cameras, errs := LoadDirectory(dir)
	if len(cameras) != 1 {
		t.Errorf("expected 1 valid camera, got %d", len(cameras))
	}
	if len(errs) != 1 {
		t.Errorf("expected 1 error for the broken file, got %d", len(errs))
	}
	if _, ok := cameras["register-1"]; !ok {
		t.Error("expected register-1 to be loaded")
	}
}
