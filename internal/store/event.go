package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nmorozov/packlens/internal/event"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// EventRepository provides the event sink operations.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Upsert writes an event, idempotent on (camera_name, video_file, ts, te).
// On conflict the stored row wins, except that an empty tracking_codes list
// is replaced by a non-empty incoming one, and the recovery flags merge.
// Returns the sink-assigned event ID and records it on e.
func (r *EventRepository) Upsert(e *event.Event) (string, error) {
	codes := e.TrackingCodes
	if codes == nil {
		codes = []string{}
	}
	codesJSON, err := json.Marshal(codes)
	if err != nil {
		return "", fmt.Errorf("encode tracking codes: %w", err)
	}

	now := time.Now()
	_, err = r.db.Exec(
		`INSERT INTO events (id, camera_name, video_file, ts, te, duration,
		                     tracking_codes, is_recovered, recovery_attempted,
		                     created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(camera_name, video_file, ts, te) DO UPDATE SET
		     tracking_codes = CASE
		         WHEN json_array_length(events.tracking_codes) = 0
		          AND json_array_length(excluded.tracking_codes) > 0
		         THEN excluded.tracking_codes
		         ELSE events.tracking_codes
		     END,
		     is_recovered = MAX(events.is_recovered, excluded.is_recovered),
		     recovery_attempted = MAX(events.recovery_attempted, excluded.recovery_attempted),
		     updated_at = excluded.updated_at`,
		uuid.New().String(), e.CameraName, e.VideoFile, e.TS, e.TE, e.Duration(),
		string(codesJSON), e.IsRecovered, e.RecoveryAttempted, now, now,
	)
	if err != nil {
		return "", err
	}

	var id string
	err = r.db.QueryRow(
		`SELECT id FROM events
		 WHERE camera_name = ? AND video_file = ? AND ts = ? AND te = ?`,
		e.CameraName, e.VideoFile, e.TS, e.TE,
	).Scan(&id)
	if err != nil {
		return "", err
	}

	e.EventID = id
	return id, nil
}

// GetByID retrieves an event by its ID.
func (r *EventRepository) GetByID(id string) (*event.Event, error) {
	row := r.db.QueryRow(
		`SELECT id, camera_name, video_file, ts, te, tracking_codes,
		        is_recovered, recovery_attempted
		 FROM events WHERE id = ?`,
		id,
	)
	return scanEvent(row)
}

// ListByVideo retrieves all events of one video in start order.
func (r *EventRepository) ListByVideo(videoFile string) ([]*event.Event, error) {
	rows, err := r.db.Query(
		`SELECT id, camera_name, video_file, ts, te, tracking_codes,
		        is_recovered, recovery_attempted
		 FROM events WHERE video_file = ? ORDER BY ts`,
		videoFile,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// CountByVideo returns how many events are stored for one video.
func (r *EventRepository) CountByVideo(videoFile string) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE video_file = ?`, videoFile,
	).Scan(&n)
	return n, err
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*event.Event, error) {
	e := &event.Event{}
	var codesJSON string

	err := row.Scan(&e.EventID, &e.CameraName, &e.VideoFile, &e.TS, &e.TE,
		&codesJSON, &e.IsRecovered, &e.RecoveryAttempted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var codes []string
	if err := json.Unmarshal([]byte(codesJSON), &codes); err != nil {
		return nil, fmt.Errorf("decode tracking codes: %w", err)
	}
	if len(codes) > 0 {
		e.TrackingCodes = codes
	}
	return e, nil
}
