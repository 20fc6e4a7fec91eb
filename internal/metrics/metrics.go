package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All metrics are low-cardinality (camera_id is a small bounded config-driven
// set, never a free-form user value).

var (
	FramesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashvision_frames_processed_total",
			Help: "Total frames read from the camera stream per camera",
		},
		[]string{"camera_id"},
	)

	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashvision_frames_dropped_total",
			Help: "Total failed frame reads per camera",
		},
		[]string{"camera_id"},
	)

	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashvision_reconnects_total",
			Help: "Total RTSP reconnect attempts per camera",
		},
		[]string{"camera_id", "result"},
	)

	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashvision_detections_total",
			Help: "Total detections fired by type",
		},
		[]string{"camera_id", "event_type"},
	)

	InferenceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cashvision_inference_latency_ms",
			Help:    "Model inference latency in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 500, 1000},
		},
		[]string{"backend"},
	)

	InferenceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashvision_inference_errors_total",
			Help: "Total single-frame inference failures",
		},
		[]string{"camera_id", "backend"},
	)

	PersistenceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cashvision_persistence_failures_total",
			Help: "Total event-sink persistence failures by stage",
		},
		[]string{"camera_id", "stage"},
	)

	WorkerStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cashvision_worker_state",
			Help: "Current worker state as a 1 for the active state, 0 otherwise",
		},
		[]string{"camera_id", "state"},
	)

	WorkersRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cashvision_workers_running",
			Help: "Number of camera workers currently tracked by the supervisor, whatever their state",
		},
	)
)

// RecordWorkerState flips the gauge for the new state to 1 and every other
// known state for this camera to 0, so a Prometheus query for the current
// state is a simple `== 1` filter.
func RecordWorkerState(cameraID, state string, allStates []string) {
	for _, s := range allStates {
		if s == state {
			WorkerStateGauge.WithLabelValues(cameraID, s).Set(1)
		} else {
			WorkerStateGauge.WithLabelValues(cameraID, s).Set(0)
		}
	}
}
