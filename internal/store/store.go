// Package store persists Events to PostgreSQL via lib/pq, grounded on the
// teacher's internal/audit append-only service: plain database/sql,
// explicit parameterized SQL, no ORM.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/technosupport/cashvision/internal/model"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("store: event not found")

// EventStore is the injected sink interface C8 persists events through
// (spec.md §4.8 step 5).
type EventStore interface {
	RecordEvent(ctx context.Context, event model.Event) error
	GetEvent(ctx context.Context, id string) (model.Event, error)
	ListEvents(ctx context.Context, cameraID string, limit int) ([]model.Event, error)
}

// PostgresStore is the production EventStore backed by *sql.DB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB (lib/pq driver).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open opens a new PostgreSQL connection using the lib/pq driver name.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	return db, nil
}

// RecordEvent inserts a durable Event row. Called only after the clip file
// already exists on disk, per spec.md §4.8's best-effort-atomic contract.
func (s *PostgresStore) RecordEvent(ctx context.Context, event model.Event) error {
	var bboxJSON []byte
	if event.BBox != nil {
		var err error
		bboxJSON, err = json.Marshal(event.BBox)
		if err != nil {
			return fmt.Errorf("store: marshal bbox: %w", err)
		}
	}

	const query = `
		INSERT INTO events (
			id, camera_id, camera_name, event_type, confidence, captured_at,
			clip_path, thumbnail_path, json_sidecar_path, status, bbox, frame_index
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.CameraID, event.CameraName, string(event.Type), event.Confidence, event.CapturedAt,
		event.ClipPath, event.ThumbnailPath, event.JSONSidecarPath, string(event.Status), bboxJSON, event.FrameIndex,
	)
	if err != nil {
		return fmt.Errorf("store: record event: %w", err)
	}
	return nil
}

// GetEvent fetches a single event by id.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (model.Event, error) {
	const query = `
		SELECT id, camera_id, camera_name, event_type, confidence, captured_at,
		       clip_path, thumbnail_path, json_sidecar_path, status, bbox, frame_index
		FROM events WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, id)
	event, bboxJSON, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("store: get event: %w", err)
	}
	if len(bboxJSON) > 0 {
		var b model.BBox
		if err := json.Unmarshal(bboxJSON, &b); err == nil {
			event.BBox = &b
		}
	}
	return event, nil
}

// ListEvents returns the most recent events for a camera, newest first.
func (s *PostgresStore) ListEvents(ctx context.Context, cameraID string, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT id, camera_id, camera_name, event_type, confidence, captured_at,
		       clip_path, thumbnail_path, json_sidecar_path, status, bbox, frame_index
		FROM events WHERE camera_id = $1
		ORDER BY captured_at DESC LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		event, bboxJSON, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		if len(bboxJSON) > 0 {
			var b model.BBox
			if err := json.Unmarshal(bboxJSON, &b); err == nil {
				event.BBox = &b
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(r rowScanner) (model.Event, []byte, error) {
	var (
		event      model.Event
		eventType  string
		status     string
		bboxJSON   []byte
		capturedAt time.Time
	)
	err := r.Scan(
		&event.ID, &event.CameraID, &event.CameraName, &eventType, &event.Confidence, &capturedAt,
		&event.ClipPath, &event.ThumbnailPath, &event.JSONSidecarPath, &status, &bboxJSON, &event.FrameIndex,
	)
	event.Type = model.DetectionType(eventType)
	event.Status = model.EventStatus(status)
	event.CapturedAt = capturedAt
	return event, bboxJSON, err
}
