// Package notify publishes a best-effort NATS notification for every
// persisted event, adapted from the teacher's internal/nvr.NATSPublisher.
package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/technosupport/cashvision/internal/model"
)

// Subject is the fixed NATS subject every persisted event is published to.
// camera_id and event_type are fields of the JSON message, not subject
// tokens, so a subject wildcard cannot select a subset of them.
const Subject = "cashvision.events"

// eventMessage is the wire shape published to NATS: a subset of the Event's
// fields, with no RTSP URL and never raw credentials.
type eventMessage struct {
	ID         string              `json:"id"`
	CameraID   string              `json:"camera_id"`
	CameraName string              `json:"camera_name"`
	Type       model.DetectionType `json:"event_type"`
	Confidence float64             `json:"confidence"`
	CapturedAt time.Time           `json:"captured_at"`
	ClipPath   string              `json:"clip_path"`
}

// Publisher publishes persisted events to NATS with bounded retry/backoff,
// mirroring NATSPublisher.Publish. A publish failure is logged and dropped:
// notification is a convenience channel, never the system of record (the
// Event row in Postgres already exists by the time Publish is called).
type Publisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

// New wires a Publisher against an already-connected NATS connection.
func New(conn *nats.Conn, maxRetries int) *Publisher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Publisher{conn: conn, subject: Subject, maxRetries: maxRetries}
}

// Publish marshals and publishes event, retrying with linear backoff up to
// maxRetries times before giving up.
func (p *Publisher) Publish(event model.Event) error {
	msg := eventMessage{
		ID:         event.ID,
		CameraID:   event.CameraID,
		CameraName: event.CameraName,
		Type:       event.Type,
		Confidence: event.Confidence,
		CapturedAt: event.CapturedAt,
		ClipPath:   event.ClipPath,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	var lastErr error
	for i := 0; i <= p.maxRetries; i++ {
		if lastErr = p.conn.Publish(p.subject, data); lastErr == nil {
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	return fmt.Errorf("notify: publish failed after %d retries: %w", p.maxRetries, lastErr)
}

// PublishBestEffort is the sink.Sink.OnPersisted-compatible hook: it logs
// and swallows the error rather than propagating it, since a dropped
// notification must never block or fail the persist path that already
// succeeded.
func (p *Publisher) PublishBestEffort(event model.Event) {
	if err := p.Publish(event); err != nil {
		log.Printf("notify: %v", err)
	}
}
