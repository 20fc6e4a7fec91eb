// Package sink implements the event sink (C8): it turns a fired Detection
// plus a rolling-buffer snapshot into a durable Event, per spec.md §4.8.
// The worker-pool shape (bounded jobs channel, per-camera dedup-pending map,
// a dedicated result processor) is adapted from the teacher's
// internal/media/validator.go.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/technosupport/cashvision/internal/model"
	"github.com/technosupport/cashvision/internal/platform/paths"
	"github.com/technosupport/cashvision/internal/ringbuf"
	"github.com/technosupport/cashvision/internal/security"
	"github.com/technosupport/cashvision/internal/store"
)

// Persist stages, used to label PersistenceFailuresTotal by where in the
// five-step persist operation (spec.md §4.8) a failure occurred.
const (
	StageSnapshot  = "snapshot"
	StageClip      = "clip"
	StageThumbnail = "thumbnail"
	StageSidecar   = "sidecar"
	StageStore     = "store"
)

// stageError tags a persist failure with the step that produced it, so
// callers (the metrics hook wired in cmd/agent) can label a counter without
// parsing error text.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// StageOf reports which persist step produced err, or "unknown" if err
// wasn't produced by persist (or carries no stage).
func StageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "unknown"
}

const (
	WorkerPoolSize  = 5
	QueueSize       = 100
	TranscodeTimeout = 20 * time.Second
)

// Job is one persist request: a fired detection plus the buffer snapshot
// taken at the instant it fired.
type Job struct {
	CameraID   string
	CameraName string
	Detection  model.Detection
	Snapshot   []ringbuf.Entry
	EffectiveFPS float64
}

type jobResult struct {
	job   Job
	event model.Event
	err   error
}

// Sink runs persist() as a bounded worker pool. One Sink is shared by all
// camera workers in a process.
type Sink struct {
	mediaRoot string
	store     store.EventStore

	jobs    chan Job
	results chan jobResult

	mu      sync.Mutex
	pending map[string]bool // camera_id:event_type, dedup in-flight persists

	// OnPersisted is an optional hook invoked after a successful persist,
	// used by internal/notify to publish a best-effort event notification.
	OnPersisted func(model.Event)
	// OnFailed is invoked when a persist attempt fails at any step; the error
	// is a stageError (see StageOf) identifying which step failed, used for
	// metrics in cmd/agent.
	OnFailed func(Job, error)
}

// New starts the worker pool and result processor.
func New(mediaRoot string, eventStore store.EventStore) *Sink {
	s := &Sink{
		mediaRoot: mediaRoot,
		store:     eventStore,
		jobs:      make(chan Job, QueueSize),
		results:   make(chan jobResult, QueueSize),
		pending:   make(map[string]bool),
	}
	for i := 0; i < WorkerPoolSize; i++ {
		go s.worker()
	}
	go s.resultProcessor()
	return s
}

// Enqueue submits a persist job; returns false if an identical
// camera/event-type persist is already in flight (so a burst of detections
// of the same type doesn't pile up redundant work).
func (s *Sink) Enqueue(job Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey(job.CameraID, job.Detection.Type)
	if s.pending[key] {
		return false
	}

	select {
	case s.jobs <- job:
		s.pending[key] = true
		return true
	default:
		return false
	}
}

func dedupKey(cameraID string, t model.DetectionType) string {
	return fmt.Sprintf("%s:%s", cameraID, t)
}

func (s *Sink) worker() {
	for job := range s.jobs {
		event, err := s.persist(context.Background(), job)
		closeSnapshot(job.Snapshot)
		s.results <- jobResult{job: job, event: event, err: err}
	}
}

// closeSnapshot releases every Mat in a buffer snapshot. The snapshot is a
// clone taken by ringbuf.Buffer.Snapshot specifically for this job; once
// persist has read from it (successfully or not), nothing else will.
func closeSnapshot(snapshot []ringbuf.Entry) {
	for _, e := range snapshot {
		if !e.Raw.Empty() {
			e.Raw.Close()
		}
		if !e.Annotated.Empty() {
			e.Annotated.Close()
		}
	}
}

func (s *Sink) resultProcessor() {
	for r := range s.results {
		s.mu.Lock()
		delete(s.pending, dedupKey(r.job.CameraID, r.job.Detection.Type))
		s.mu.Unlock()

		if r.err != nil {
			if s.OnFailed != nil {
				s.OnFailed(r.job, r.err)
			}
			continue
		}
		if s.OnPersisted != nil {
			s.OnPersisted(r.event)
		}
	}
}

// persist implements spec.md §4.8's five-step operation. All five steps are
// best-effort-atomic: the Event record is only inserted after the clip file
// exists on disk.
func (s *Sink) persist(ctx context.Context, job Job) (model.Event, error) {
	if len(job.Snapshot) == 0 {
		return model.Event{}, &stageError{StageSnapshot, fmt.Errorf("sink: empty buffer snapshot")}
	}

	capturedAt := job.Snapshot[len(job.Snapshot)-1].CapturedAt
	clipPath, thumbnailPath, sidecarPath := paths.ArtifactPaths(s.mediaRoot, string(job.Detection.Type), job.CameraID, capturedAt)

	fellBackToIntermediate, err := writeClip(job.Snapshot, job.EffectiveFPS, clipPath)
	if err != nil {
		return model.Event{}, &stageError{StageClip, fmt.Errorf("sink: write clip: %w", err)}
	}

	if err := writeThumbnail(job.Snapshot[len(job.Snapshot)-1], thumbnailPath); err != nil {
		return model.Event{}, &stageError{StageThumbnail, fmt.Errorf("sink: write thumbnail: %w", err)}
	}

	event := model.Event{
		ID:              uuid.New().String(),
		CameraID:        job.CameraID,
		CameraName:      job.CameraName,
		Type:            job.Detection.Type,
		Confidence:      job.Detection.Confidence,
		CapturedAt:      capturedAt,
		ClipPath:        clipPath,
		ThumbnailPath:   thumbnailPath,
		JSONSidecarPath: sidecarPath,
		Status:          model.EventStatusPending,
		FrameIndex:      job.Detection.FrameIndex,
	}
	if job.Detection.BBox != (model.BBox{}) {
		b := job.Detection.BBox
		event.BBox = &b
	}

	if err := writeSidecar(sidecarPath, job, event, fellBackToIntermediate); err != nil {
		return model.Event{}, &stageError{StageSidecar, fmt.Errorf("sink: write sidecar: %w", err)}
	}

	if err := s.store.RecordEvent(ctx, event); err != nil {
		return model.Event{}, &stageError{StageStore, fmt.Errorf("sink: record event: %w", err)}
	}

	return event, nil
}

// writeClip writes the annotated frames to an intermediate MJPEG/AVI
// container, then transcodes to H.264 MP4 with faststart via an ffmpeg
// subprocess. If transcoding is unavailable or times out, the intermediate
// MJPEG/AVI file is renamed to clipPath (keeping the .mp4 name) and
// fellBackToIntermediate is true.
func writeClip(snapshot []ringbuf.Entry, fps float64, clipPath string) (fellBackToIntermediate bool, err error) {
	if fps <= 0 {
		fps = 15
	}

	intermediatePath := clipPath + ".intermediate.avi"
	first := snapshot[0].Annotated
	writer, err := gocv.VideoWriterFile(intermediatePath, "MJPG", fps, first.Cols(), first.Rows(), true)
	if err != nil {
		return false, fmt.Errorf("open intermediate writer: %w", err)
	}
	for _, entry := range snapshot {
		if err := writer.Write(entry.Annotated); err != nil {
			writer.Close()
			return false, fmt.Errorf("write frame: %w", err)
		}
	}
	writer.Close()

	tctx, cancel := context.WithTimeout(context.Background(), TranscodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(tctx, "ffmpeg",
		"-y", "-i", intermediatePath,
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-r", fmt.Sprintf("%.2f", fps),
		clipPath,
	)
	if err := cmd.Run(); err != nil {
		// Transcoding unavailable or timed out: keep the intermediate
		// container and let the sidecar record the fallback.
		if renameErr := os.Rename(intermediatePath, clipPath); renameErr != nil {
			return false, fmt.Errorf("transcode failed (%v) and fallback rename failed: %w", err, renameErr)
		}
		return true, nil
	}

	os.Remove(intermediatePath)
	return false, nil
}

func writeThumbnail(last ringbuf.Entry, thumbnailPath string) error {
	ok := gocv.IMWrite(thumbnailPath, last.Annotated)
	if !ok {
		return fmt.Errorf("gocv.IMWrite failed for %s", thumbnailPath)
	}
	return nil
}

// sidecarDoc is the JSON sidecar contract from spec.md §4.8 step 4:
// all detector metadata plus the fixed field set.
type sidecarDoc struct {
	Timestamp          time.Time              `json:"timestamp"`
	FrameNumber        uint64                 `json:"frame_number"`
	Confidence         float64                `json:"confidence"`
	BBox               *model.BBox            `json:"bbox,omitempty"`
	CameraID           string                 `json:"camera_id"`
	CameraName         string                 `json:"camera_name"`
	EventType          model.DetectionType    `json:"event_type"`
	ClipPath           string                 `json:"clip_path"`
	ThumbnailPath      string                 `json:"thumbnail_path"`
	TriggerTime        time.Time              `json:"trigger_time"`
	FramesSaved        int                    `json:"frames_saved"`
	DurationSec        float64                `json:"duration_sec"`
	TranscodeFellBack  bool                   `json:"transcode_fell_back_to_intermediate"`
	DetectorMetadata   map[string]interface{} `json:"detector_metadata"`
}

func writeSidecar(sidecarPath string, job Job, event model.Event, fellBack bool) error {
	durationSec := 0.0
	if job.EffectiveFPS > 0 {
		durationSec = float64(len(job.Snapshot)) / job.EffectiveFPS
	}

	doc := sidecarDoc{
		Timestamp:         time.Now(),
		FrameNumber:       job.Detection.FrameIndex,
		Confidence:        job.Detection.Confidence,
		BBox:              event.BBox,
		CameraID:          job.CameraID,
		CameraName:        job.CameraName,
		EventType:         job.Detection.Type,
		ClipPath:          event.ClipPath,
		ThumbnailPath:     event.ThumbnailPath,
		TriggerTime:       event.CapturedAt,
		FramesSaved:       len(job.Snapshot),
		DurationSec:       durationSec,
		TranscodeFellBack: fellBack,
		DetectorMetadata:  security.RedactMap(job.Detection.Metadata),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sidecarPath, data, 0640)
}
