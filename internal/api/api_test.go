package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/technosupport/cashvision/internal/supervisor"
)

func TestHealthz_ReturnsOK(t *testing.T) {
	s := New(supervisor.New(nil, nil))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListCameras_EmptySupervisorReturnsEmptyArray(t *testing.T) {
	s := New(supervisor.New(nil, nil))
	req := httptest.NewRequest(http.MethodGet, "/cameras", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "[]\n" {
		t.Fatalf("expected empty json array body, got %q", rec.Body.String())
	}
}

func TestRestart_UnknownCameraReturns404(t *testing.T) {
	s := New(supervisor.New(nil, nil))
	req := httptest.NewRequest(http.MethodPost, "/cameras/does-not-exist/restart", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFrame_UnknownCameraReturns404(t *testing.T) {
	s := New(supervisor.New(nil, nil))
	req := httptest.NewRequest(http.MethodGet, "/cameras/does-not-exist/frame.jpg", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
