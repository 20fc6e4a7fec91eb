package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/technosupport/cashvision/internal/model"
	"github.com/technosupport/cashvision/internal/store"
)

func TestRecordEvent_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := store.NewPostgresStore(db)
	event := model.Event{
		ID: uuid.New().String(), CameraID: "cam-1", CameraName: "Front Register",
		Type: model.DetectionCash, Confidence: 0.8, CapturedAt: time.Now(),
		ClipPath: "/var/lib/cashvision/media/clips/cash_cam-1.mp4",
		ThumbnailPath: "/var/lib/cashvision/media/thumbnails/cash_cam-1.jpg",
		JSONSidecarPath: "/var/lib/cashvision/media/json/cash_cam-1.json",
		Status: model.EventStatusPending,
	}

	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.RecordEvent(context.Background(), event); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordEvent_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := store.NewPostgresStore(db)
	event := model.Event{ID: uuid.New().String(), CameraID: "cam-1", Type: model.DetectionFire, CapturedAt: time.Now()}

	mock.ExpectExec("INSERT INTO events").WillReturnError(sql.ErrConnDone)

	if err := s.RecordEvent(context.Background(), event); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := store.NewPostgresStore(db)
	mock.ExpectQuery("SELECT id, camera_id").WillReturnError(sql.ErrNoRows)

	_, err = s.GetEvent(context.Background(), "missing-id")
	if err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := store.NewPostgresStore(db)
	rows := sqlmock.NewRows([]string{
		"id", "camera_id", "camera_name", "event_type", "confidence", "captured_at",
		"clip_path", "thumbnail_path", "json_sidecar_path", "status", "bbox", "frame_index",
	}).AddRow(uuid.New().String(), "cam-1", "Front Register", "cash", 0.8, time.Now(),
		"/clips/a.mp4", "/thumbnails/a.jpg", "/json/a.json", "pending", nil, 42)

	mock.ExpectQuery("SELECT id, camera_id").WillReturnRows(rows)

	events, err := s.ListEvents(context.Background(), "cam-1", 10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != model.DetectionCash {
		t.Fatalf("unexpected events: %v", events)
	}
}
