// Package supervisor implements the camera supervisor (C10): it owns every
// camera worker's lifecycle and runs a periodic reaper that restarts workers
// that have fallen into the error state. The map-of-workers-plus-ticker
// shape is adapted from the teacher's internal/nvr.NVRMonitor, collapsed
// from a two-tier NVR/channel health poller into a single-tier camera
// worker pool.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/technosupport/cashvision/internal/metrics"
	"github.com/technosupport/cashvision/internal/model"
	"github.com/technosupport/cashvision/internal/security"
	"github.com/technosupport/cashvision/internal/sink"
	"github.com/technosupport/cashvision/internal/worker"
)

// ReapInterval is how often the supervisor checks for dead workers and
// restarts them. Jittered at start so a fleet of identical supervisor
// processes restarted together doesn't all reap in lockstep.
const ReapInterval = 30 * time.Second

// handle pairs a running worker with the plumbing needed to relaunch it.
type handle struct {
	w      *worker.Worker
	cfg    model.CameraConfig
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns every camera worker in the process. One Supervisor per
// agent instance.
type Supervisor struct {
	sink  *sink.Sink
	vault *security.Vault

	mu      sync.Mutex
	workers map[string]*handle
	nextCPU int
}

// New builds a Supervisor. vault may be nil if no camera uses an
// encrypted-at-rest password.
func New(eventSink *sink.Sink, vault *security.Vault) *Supervisor {
	return &Supervisor{sink: eventSink, vault: vault, workers: make(map[string]*handle)}
}

// Start launches a worker for cfg.CameraID if one isn't already running.
// Idempotent: calling Start on an already-running camera is a no-op.
func (s *Supervisor) Start(cfg model.CameraConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(cfg)
}

func (s *Supervisor) startLocked(cfg model.CameraConfig) error {
	if _, exists := s.workers[cfg.CameraID]; exists {
		return nil
	}

	cpuIndex := s.nextCPU % runtime.NumCPU()
	s.nextCPU++

	w := worker.New(cfg.DefaultsApplied(), cpuIndex, s.sink, s.vault)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	s.workers[cfg.CameraID] = &handle{w: w, cfg: cfg, cancel: cancel, done: done}
	metrics.WorkersRunning.Inc()
	return nil
}

// StartAll launches a worker for every camera in cfgs that isn't already
// running.
func (s *Supervisor) StartAll(cfgs []model.CameraConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cfg := range cfgs {
		if err := s.startLocked(cfg); err != nil {
			log.Printf("supervisor: start %s: %v", cfg.CameraID, err)
		}
	}
}

// Stop shuts down the worker for cameraID, if running. Idempotent.
func (s *Supervisor) Stop(cameraID string) error {
	s.mu.Lock()
	h, exists := s.workers[cameraID]
	if exists {
		delete(s.workers, cameraID)
	}
	s.mu.Unlock()

	if !exists {
		return nil
	}
	h.w.Stop()
	h.cancel()
	<-h.done
	metrics.WorkersRunning.Dec()
	return nil
}

// Restart stops and relaunches the worker for cameraID using its
// last-known CameraConfig.
func (s *Supervisor) Restart(cameraID string) error {
	s.mu.Lock()
	h, exists := s.workers[cameraID]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("supervisor: no worker running for camera %s", cameraID)
	}

	cfg := h.cfg
	if err := s.Stop(cameraID); err != nil {
		return err
	}
	return s.Start(cfg)
}

// Status returns a snapshot of every running worker's status.
func (s *Supervisor) Status() []model.WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.WorkerStatus, 0, len(s.workers))
	for _, h := range s.workers {
		out = append(out, h.w.Status())
	}
	return out
}

// Frame returns the latest JPEG-encoded annotated frame for cameraID, or nil
// if the camera isn't running or hasn't produced a frame yet.
func (s *Supervisor) Frame(cameraID string) []byte {
	s.mu.Lock()
	h, exists := s.workers[cameraID]
	s.mu.Unlock()
	if !exists {
		return nil
	}
	return h.w.LatestFrame().Get()
}

// RunReaper starts the background reap loop: every ReapInterval, any worker
// in the error state is restarted. Blocks until ctx is cancelled.
func (s *Supervisor) RunReaper(ctx context.Context) {
	time.Sleep(time.Duration(rand.Intn(5000)) * time.Millisecond)

	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapOnce()
		}
	}
}

func (s *Supervisor) reapOnce() {
	s.mu.Lock()
	var toRestart []string
	for id, h := range s.workers {
		if h.w.Status().State == model.WorkerError {
			toRestart = append(toRestart, id)
		}
	}
	s.mu.Unlock()

	for _, id := range toRestart {
		log.Printf("supervisor: reaping worker for camera %s (state=error)", id)
		if err := s.Restart(id); err != nil {
			log.Printf("supervisor: reap restart for camera %s failed: %v", id, err)
		}
	}
}
