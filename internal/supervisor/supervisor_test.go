package supervisor

import (
	"testing"
	"time"

	"github.com/technosupport/cashvision/internal/model"
)

func waitForState(t *testing.T, s *Supervisor, cameraID string, want model.WorkerState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, st := range s.Status() {
			if st.CameraID == cameraID && st.State == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("camera %s did not reach state %s within %s", cameraID, want, timeout)
}

// A camera with no real model files configured fails fast in loadModels,
// landing in WorkerError — this is what lets these tests run without a
// real ONNX model or RTSP source.
func cfgWithNoModels(id string) model.CameraConfig {
	return model.CameraConfig{CameraID: id, Name: id}.DefaultsApplied()
}

func TestStart_IsIdempotent(t *testing.T) {
	s := New(nil, nil)
	cfg := cfgWithNoModels("cam-1")

	if err := s.Start(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Start(cfg); err != nil {
		t.Fatalf("second start should be a no-op, got error: %v", err)
	}

	if len(s.Status()) != 1 {
		t.Fatalf("expected exactly one worker tracked, got %d", len(s.Status()))
	}
}

func TestStart_WorkerReachesErrorWithoutModels(t *testing.T) {
	s := New(nil, nil)
	cfg := cfgWithNoModels("cam-2")
	_ = s.Start(cfg)

	waitForState(t, s, "cam-2", model.WorkerError, 2*time.Second)
}

func TestStop_RemovesWorkerAndIsIdempotent(t *testing.T) {
	s := New(nil, nil)
	cfg := cfgWithNoModels("cam-3")
	_ = s.Start(cfg)
	waitForState(t, s, "cam-3", model.WorkerError, 2*time.Second)

	if err := s.Stop("cam-3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Status()) != 0 {
		t.Fatalf("expected no workers after stop, got %d", len(s.Status()))
	}
	if err := s.Stop("cam-3"); err != nil {
		t.Fatalf("second stop should be a no-op, got error: %v", err)
	}
}

func TestRestart_UnknownCameraFails(t *testing.T) {
	s := New(nil, nil)
	if err := s.Restart("does-not-exist"); err == nil {
		t.Fatal("expected error restarting a camera with no running worker")
	}
}

func TestFrame_UnknownCameraReturnsNil(t *testing.T) {
	s := New(nil, nil)
	if got := s.Frame("does-not-exist"); got != nil {
		t.Fatalf("expected nil frame for unknown camera, got %v", got)
	}
}

func TestReapOnce_RestartsErroredWorkers(t *testing.T) {
	s := New(nil, nil)
	cfg := cfgWithNoModels("cam-4")
	_ = s.Start(cfg)
	waitForState(t, s, "cam-4", model.WorkerError, 2*time.Second)

	s.reapOnce()

	// Restart replaces the worker; it should still be tracked (and will
	// land in error again shortly, since there is still no model).
	if len(s.Status()) != 1 {
		t.Fatalf("expected camera still tracked after reap, got %d workers", len(s.Status()))
	}
}
