package model

import "time"

// DetectionType is the detector that produced a Detection/Event.
type DetectionType string

const (
	DetectionCash      DetectionType = "cash"
	DetectionViolence  DetectionType = "violence"
	DetectionFire      DetectionType = "fire"
)

// Detection is ephemeral, pre-persistence output of one detector for one
// frame. Metadata carries the type-specific field contract from spec.md
// §4.4-§4.6, serialized verbatim into the JSON sidecar.
type Detection struct {
	Type       DetectionType
	Confidence float64
	BBox       BBox
	FrameIndex uint64
	Metadata   map[string]interface{}
}

// EventStatus is the review-workflow tag attached to a persisted Event.
type EventStatus string

const (
	EventStatusPending EventStatus = "pending"
)

// Event is the durable record written by the event sink. Every persisted
// Event has non-empty ClipPath and ThumbnailPath pointing to files that
// existed on disk at write time.
type Event struct {
	ID              string
	CameraID        string
	CameraName      string
	Type            DetectionType
	Confidence      float64
	CapturedAt      time.Time
	ClipPath        string
	ThumbnailPath   string
	JSONSidecarPath string
	Status          EventStatus
	BBox            *BBox
	FrameIndex      uint64
}

// WorkerState is one state in the camera worker's state machine.
type WorkerState string

const (
	WorkerStarting     WorkerState = "starting"
	WorkerRunning      WorkerState = "running"
	WorkerReconnecting WorkerState = "reconnecting"
	WorkerError        WorkerState = "error"
	WorkerStopping     WorkerState = "stopping"
	WorkerStopped      WorkerState = "stopped"
)

// AllWorkerStates enumerates every state, for metrics gauge resets.
var AllWorkerStates = []string{
	string(WorkerStarting), string(WorkerRunning), string(WorkerReconnecting),
	string(WorkerError), string(WorkerStopping), string(WorkerStopped),
}

// WorkerStatus is the externally-visible snapshot of a camera worker.
// FramesProcessed and EventsDetected are monotonically non-decreasing while
// the worker is alive.
type WorkerStatus struct {
	CameraID        string
	State           WorkerState
	LastError       string
	FramesProcessed uint64
	EventsDetected  uint64
	StartedAt       time.Time
}
