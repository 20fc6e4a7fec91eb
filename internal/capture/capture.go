// Package capture wraps an RTSP stream as a continuous Frame source (C1),
// generalizing the teacher's one-shot RTSP OPTIONS prober
// (internal/nvr/adapters/rtsp_prober.go) and TCP-dial-then-probe validator
// (internal/media/validator.go) into a long-lived reader with its own
// reconnect policy.
package capture

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// State mirrors the frame source's half of WorkerStatus.State.
type State string

const (
	StateRunning      State = "running"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

const (
	openAttempts      = 5
	openAttemptSpace  = 3 * time.Second
	steadyFailureMax  = 20
	steadyStallMax    = 30 * time.Second
	reconnectStormCap = 5
)

// Frame is one decoded image plus its capture metadata.
type Frame struct {
	Mat        gocv.Mat
	Index      uint64
	CapturedAt time.Time
}

// Source owns one RTSP connection for one camera. Not safe for concurrent
// use by more than one goroutine (the camera worker owns it exclusively).
type Source struct {
	url   string
	cap   *gocv.VideoCapture
	state State

	frameIndex       uint64
	consecutiveFails int
	lastGoodFrame    time.Time
	reconnectStorms  int
}

// NewSource does not open the stream; call Open first.
func NewSource(rtspURL string) *Source {
	return &Source{url: rtspURL, state: StateReconnecting}
}

// Open performs up to 5 attempts spaced by at least 3s; each attempt only
// counts as successful if a probe frame actually decodes, per spec.md §4.1.
func (s *Source) Open(ctx context.Context) error {
	if s.cap != nil {
		s.cap.Close()
		s.cap = nil
	}

	var lastErr error
	for attempt := 0; attempt < openAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(openAttemptSpace):
			}
		}

		cap, err := openCapture(s.url)
		if err != nil {
			lastErr = err
			continue
		}

		probe := gocv.NewMat()
		ok := cap.Read(&probe)
		decoded := ok && !probe.Empty()
		probe.Close()
		if !decoded {
			cap.Close()
			lastErr = fmt.Errorf("probe frame failed to decode")
			continue
		}

		s.cap = cap
		s.state = StateRunning
		s.consecutiveFails = 0
		s.lastGoodFrame = time.Now()
		return nil
	}

	s.state = StateError
	return fmt.Errorf("capture: failed to open %s after %d attempts: %w", SanitizeForLog(s.url), openAttempts, lastErr)
}

// Read returns the next decoded frame, reconnecting transparently on
// steady-state failure per the counter/wall-clock policy in spec.md §4.1.
func (s *Source) Read(ctx context.Context) (Frame, error) {
	if s.cap == nil {
		return Frame{}, fmt.Errorf("capture: source not open")
	}

	mat := gocv.NewMat()
	ok := s.cap.Read(&mat)
	if !ok || mat.Empty() {
		mat.Close()
		s.consecutiveFails++
		stalled := !s.lastGoodFrame.IsZero() && time.Since(s.lastGoodFrame) > steadyStallMax
		if s.consecutiveFails >= steadyFailureMax || stalled {
			return Frame{}, s.reconnect(ctx)
		}
		return Frame{}, fmt.Errorf("capture: read failed (%d consecutive)", s.consecutiveFails)
	}

	s.consecutiveFails = 0
	s.lastGoodFrame = time.Now()
	s.frameIndex++
	return Frame{Mat: mat, Index: s.frameIndex, CapturedAt: time.Now()}, nil
}

func (s *Source) reconnect(ctx context.Context) error {
	s.state = StateReconnecting
	if err := s.Open(ctx); err != nil {
		s.reconnectStorms++
		if s.reconnectStorms >= reconnectStormCap {
			s.state = StateError
		}
		return err
	}
	s.reconnectStorms = 0
	return nil
}

// State reports the source's current connection state.
func (s *Source) State() State { return s.state }

// Close releases the underlying capture handle.
func (s *Source) Close() error {
	if s.cap == nil {
		return nil
	}
	err := s.cap.Close()
	s.cap = nil
	return err
}

// openCapture opens the stream via FFmpeg, forcing TCP transport and
// bounding the socket/read timeouts through the FFmpeg capture-options
// environment variable, since gocv exposes no per-capture setter for them.
func openCapture(rtspURL string) (*gocv.VideoCapture, error) {
	prior := os.Getenv(ffmpegCaptureOptionsEnv)
	os.Setenv(ffmpegCaptureOptionsEnv, "rtsp_transport;tcp|stimeout;60000000|max_delay;15000000|buffer_size;5242880")
	defer os.Setenv(ffmpegCaptureOptionsEnv, prior)

	return gocv.OpenVideoCaptureWithAPI(rtspURL, gocv.VideoCaptureFFmpeg)
}

const ffmpegCaptureOptionsEnv = "OPENCV_FFMPEG_CAPTURE_OPTIONS"

// SanitizeForLog strips credentials from an RTSP URL for use in error
// messages and logs, mirroring the teacher's SanitizeRTSPURL.
func SanitizeForLog(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	return u.String()
}

// ProbeReachable performs a lightweight TCP dial, mirroring the teacher's
// two-stage validator check, for use by health/status endpoints that want a
// cheap reachability signal without opening a full decode pipeline.
func ProbeReachable(ctx context.Context, rtspURL string, timeout time.Duration) error {
	u, err := url.Parse(rtspURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":554"
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return err
	}
	return conn.Close()
}
