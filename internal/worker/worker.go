// Package worker implements the camera worker (C9): one goroutine owning
// one camera's C1-C8 pipeline, isolated so a panic or fatal error in one
// camera never takes down another. State-machine shape and reaper-friendly
// status surface are grounded on the teacher's internal/nvr.NVRMonitor
// worker/scheduler pattern, generalized from a health-check poller into a
// continuous per-frame pipeline.
package worker

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/sys/unix"

	"github.com/technosupport/cashvision/internal/capture"
	"github.com/technosupport/cashvision/internal/detect"
	"github.com/technosupport/cashvision/internal/metrics"
	"github.com/technosupport/cashvision/internal/model"
	"github.com/technosupport/cashvision/internal/ringbuf"
	"github.com/technosupport/cashvision/internal/security"
	"github.com/technosupport/cashvision/internal/sink"
	"github.com/technosupport/cashvision/internal/vision"
)

// StopTimeout bounds graceful shutdown before the worker is force-terminated,
// per spec.md §4.9.
const StopTimeout = 10 * time.Second

// FrameHandle is the single-slot handle external viewers read the most
// recent annotated frame through: writer overwrites, reader copies. It is
// guarded by an RWMutex, not lock-free.
type FrameHandle struct {
	mu    sync.RWMutex
	frame []byte // pre-encoded JPEG, nil until the first frame lands
}

func (h *FrameHandle) set(jpeg []byte) {
	h.mu.Lock()
	h.frame = jpeg
	h.mu.Unlock()
}

// Get returns a copy of the most recently published JPEG-encoded frame, or
// nil if none has landed yet.
func (h *FrameHandle) Get() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.frame == nil {
		return nil
	}
	out := make([]byte, len(h.frame))
	copy(out, h.frame)
	return out
}

// Worker owns one camera's entire pipeline.
type Worker struct {
	cfg       model.CameraConfig
	cpuIndex  int
	sink      *sink.Sink
	vault     *security.Vault
	poseModel *vision.PoseBackend
	fireModel *vision.FireObjectBackend

	state     atomic.Value // model.WorkerState
	lastError atomic.Value // string
	startedAt time.Time

	framesProcessed atomic.Uint64
	eventsDetected  atomic.Uint64

	frame FrameHandle

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a worker for one camera. Model loading happens in Run, not
// here, so construction itself cannot fail. vault may be nil if no camera in
// the fleet uses an encrypted-at-rest password.
func New(cfg model.CameraConfig, cpuIndex int, sinkHandle *sink.Sink, vault *security.Vault) *Worker {
	w := &Worker{cfg: cfg, cpuIndex: cpuIndex, sink: sinkHandle, vault: vault, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	w.state.Store(model.WorkerStarting)
	w.lastError.Store("")
	return w
}

// Status returns a point-in-time snapshot of the worker's externally visible
// state (spec.md §3's WorkerStatus).
func (w *Worker) Status() model.WorkerStatus {
	return model.WorkerStatus{
		CameraID:        w.cfg.CameraID,
		State:           w.state.Load().(model.WorkerState),
		LastError:       w.lastError.Load().(string),
		FramesProcessed: w.framesProcessed.Load(),
		EventsDetected:  w.eventsDetected.Load(),
		StartedAt:       w.startedAt,
	}
}

// LatestFrame exposes the single-slot annotated-frame handle for external
// viewers.
func (w *Worker) LatestFrame() *FrameHandle { return &w.frame }

// Stop signals the worker to shut down and waits up to StopTimeout before
// returning; the worker's own run loop is responsible for actually exiting
// within that bound.
func (w *Worker) Stop() {
	w.setState(model.WorkerStopping)
	close(w.stopCh)
	select {
	case <-w.doneCh:
	case <-time.After(StopTimeout):
		log.Printf("worker[%s]: force-terminating after stop timeout", w.cfg.CameraID)
	}
}

func (w *Worker) setState(s model.WorkerState) {
	w.state.Store(s)
	metrics.RecordWorkerState(w.cfg.CameraID, string(s), model.AllWorkerStates)
}

// Run executes the worker's full lifecycle. It recovers from panics in the
// per-frame loop so that one camera's crash cannot take the process down;
// a recovered panic is reported as a fatal worker error (state=error).
func (w *Worker) Run(ctx context.Context) {
	defer close(w.doneCh)
	w.startedAt = time.Now()
	pinToCPU(w.cpuIndex)

	defer func() {
		if r := recover(); r != nil {
			w.lastError.Store(fmt.Sprintf("panic: %v", r))
			w.setState(model.WorkerError)
			log.Printf("worker[%s]: recovered panic: %v", w.cfg.CameraID, r)
		}
	}()

	if err := w.loadModels(); err != nil {
		w.lastError.Store(err.Error())
		w.setState(model.WorkerError)
		return
	}
	defer w.closeModels()

	password, err := w.resolvePassword()
	if err != nil {
		w.lastError.Store(err.Error())
		w.setState(model.WorkerError)
		return
	}
	rtspURL := security.InjectCredentials(w.cfg.RTSPURL, w.cfg.Credential.Username, password)
	source := capture.NewSource(rtspURL)
	defer source.Close()

	bufferCapacity := w.cfg.BufferSeconds * w.cfg.FPS
	if bufferCapacity <= 0 {
		bufferCapacity = 30 * 15
	}
	buffer := ringbuf.New(bufferCapacity)
	defer buffer.Close()

	// Pass a true nil interface (not a nil-valued *vision.FireObjectBackend
	// boxed into a non-nil interface) when no fire model is configured, so
	// FireDetector's "backend != nil" check behaves correctly.
	var fireBackend detect.FireObjectDetector
	if w.fireModel != nil {
		fireBackend = w.fireModel
	}
	unified := detect.NewUnified(w.cfg, fireBackend)
	defer unified.Close()

	if err := source.Open(ctx); err != nil {
		w.lastError.Store(err.Error())
		w.setState(model.WorkerError)
		metrics.ReconnectsTotal.WithLabelValues(w.cfg.CameraID, "fail").Inc()
		return
	}
	w.setState(model.WorkerRunning)

	var prevFrame = gocv.NewMat()
	defer prevFrame.Close()
	var lastPoses []model.PoseResult

	for {
		select {
		case <-w.stopCh:
			w.setState(model.WorkerStopped)
			return
		case <-ctx.Done():
			w.setState(model.WorkerStopped)
			return
		default:
		}

		if source.State() == capture.StateReconnecting {
			w.setState(model.WorkerReconnecting)
		}

		frame, err := source.Read(ctx)
		if err != nil {
			metrics.FramesDroppedTotal.WithLabelValues(w.cfg.CameraID).Inc()
			if source.State() == capture.StateError {
				w.lastError.Store(err.Error())
				w.setState(model.WorkerError)
				return
			}
			continue
		}
		if source.State() == capture.StateRunning {
			w.setState(model.WorkerRunning)
		}

		frameIndex := frame.Index
		w.framesProcessed.Add(1)
		metrics.FramesProcessedTotal.WithLabelValues(w.cfg.CameraID).Inc()

		annotated := frame.Mat.Clone()

		var detections []model.Detection
		if frameIndex%uint64(detectEveryN(w.cfg)) == 0 {
			lastPoses, detections = w.runDetection(frameIndex, frame.Mat, prevFrame, unified)
		}
		detect.DrawOverlay(&annotated, w.cfg.CashierZone, lastPoses, detections)
		w.publishFrame(annotated)

		buffer.Append(frame.Mat, annotated, frameIndex, frame.CapturedAt)
		prevFrame.Close()
		prevFrame = frame.Mat.Clone()

		for _, det := range detections {
			w.eventsDetected.Add(1)
			metrics.DetectionsTotal.WithLabelValues(w.cfg.CameraID, string(det.Type)).Inc()
			w.sink.Enqueue(sink.Job{
				CameraID:     w.cfg.CameraID,
				CameraName:   w.cfg.Name,
				Detection:    det,
				Snapshot:     buffer.Snapshot(),
				EffectiveFPS: float64(w.cfg.FPS),
			})
		}
	}
}

func detectEveryN(cfg model.CameraConfig) int {
	if cfg.DetectEveryN <= 0 {
		return 1
	}
	return cfg.DetectEveryN
}

// runDetection runs pose inference, derives the inter-frame motion proxy
// over the union of all detected people, and dispatches the three
// capability detectors in fixed order via unified.Process.
func (w *Worker) runDetection(frameIndex uint64, frame, prevFrame gocv.Mat, unified *detect.Unified) ([]model.PoseResult, []model.Detection) {
	poseStart := time.Now()
	poses, err := w.poseModel.Detect(frame, w.cfg.PoseConfidenceFloor)
	metrics.InferenceLatency.WithLabelValues("pose").Observe(float64(time.Since(poseStart).Milliseconds()))
	if err != nil {
		metrics.InferenceErrorsTotal.WithLabelValues(w.cfg.CameraID, "pose").Inc()
		log.Printf("worker[%s]: pose inference failed: %v", w.cfg.CameraID, err)
		return nil, nil
	}

	motion := 0.0
	if union, ok := unionBBox(poses); ok {
		motion = detect.MotionMagnitude(prevFrame, frame, union)
	}

	detections := unified.Process(frameIndex, frame, poses, motion, w.cfg)
	return poses, detections
}

// unionBBox returns the bounding box covering every detected person, used to
// scope the motion-magnitude computation to where people actually are.
func unionBBox(poses []model.PoseResult) (model.BBox, bool) {
	if len(poses) == 0 {
		return model.BBox{}, false
	}
	u := poses[0].BBox
	for _, p := range poses[1:] {
		if p.BBox.X1 < u.X1 {
			u.X1 = p.BBox.X1
		}
		if p.BBox.Y1 < u.Y1 {
			u.Y1 = p.BBox.Y1
		}
		if p.BBox.X2 > u.X2 {
			u.X2 = p.BBox.X2
		}
		if p.BBox.Y2 > u.Y2 {
			u.Y2 = p.BBox.Y2
		}
	}
	return u, true
}

// publishFrame JPEG-encodes the annotated frame and stores it in the
// worker's single-slot handle for external viewers.
func (w *Worker) publishFrame(annotated gocv.Mat) {
	buf, err := gocv.IMEncode(".jpg", annotated)
	if err != nil {
		return
	}
	defer buf.Close()
	w.frame.set(buf.GetBytes())
}

// resolvePassword returns the plaintext RTSP password for this camera,
// decrypting via the vault when the config carries PasswordEncrypted rather
// than a plaintext Password.
func (w *Worker) resolvePassword() (string, error) {
	enc := w.cfg.Credential.PasswordEncrypted
	if enc == nil {
		return w.cfg.Credential.Password, nil
	}
	if w.vault == nil {
		return "", fmt.Errorf("worker: camera %s has an encrypted password but no vault is configured", w.cfg.CameraID)
	}
	return w.vault.Decrypt(w.cfg.CameraID, security.EncryptedCredential{
		KeyID:      enc.KeyID,
		Nonce:      enc.Nonce,
		Ciphertext: enc.Ciphertext,
		Tag:        enc.Tag,
	})
}

func (w *Worker) loadModels() error {
	pose, err := vision.NewPoseBackend(w.cfg.Models.PosePath)
	if err != nil {
		return fmt.Errorf("loading pose model: %w", err)
	}
	w.poseModel = pose

	if w.cfg.Models.FirePath != "" {
		fireModel, err := vision.NewFireObjectBackend(w.cfg.Models.FirePath)
		if err != nil {
			pose.Close()
			return fmt.Errorf("loading fire model: %w", err)
		}
		w.fireModel = fireModel
	}
	return nil
}

func (w *Worker) closeModels() {
	if w.poseModel != nil {
		w.poseModel.Close()
	}
	if w.fireModel != nil {
		w.fireModel.Close()
	}
}

// pinToCPU best-effort-pins the calling OS thread to one CPU core, chosen
// by the supervisor as its worker-start count mod cpu count. Linux-only; a failure
// here is logged, never fatal, since affinity is a contention-reduction
// hint, not a correctness requirement.
func pinToCPU(cpuIndex int) {
	if cpuIndex < 0 {
		return
	}
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(cpuIndex % runtime.NumCPU())

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		log.Printf("worker: CPU affinity pin to core %d failed (continuing unpinned): %v", cpuIndex, err)
	}
}
