package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/model"
)

type SnapshotStore struct {
	q DBTX
}

func NewSnapshotStore(q DBTX) *SnapshotStore {
	return &SnapshotStore{q: q}
}

const snapshotCols = `id, label, location, size_bytes, status, error_message, created_at, completed_at`

func scanSnapshot(scanner interface{ Scan(...any) error }) (*model.Snapshot, error) {
	s := &model.Snapshot{}
	var errMsg sql.NullString
	var completedAt sql.NullTime
	if err := scanner.Scan(&s.ID, &s.Label, &s.Location, &s.SizeBytes, &s.Status, &errMsg, &s.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	s.ErrorMessage = errMsg.String
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	return s, nil
}

// Create records a pending snapshot that will be written to location.
func (s *SnapshotStore) Create(ctx context.Context, label, location string) (*model.Snapshot, error) {
	now := time.Now().UTC()
	result, err := s.q.ExecContext(ctx,
		`INSERT INTO snapshots (label, location, status, created_at) VALUES (?, ?, ?, ?)`,
		label, location, model.SnapshotStatusPending, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	id, _ := result.LastInsertId()
	return &model.Snapshot{
		ID:        id,
		Label:     label,
		Location:  location,
		Status:    model.SnapshotStatusPending,
		CreatedAt: now,
	}, nil
}

func (s *SnapshotStore) Get(ctx context.Context, id int64) (*model.Snapshot, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+snapshotCols+` FROM snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %d: %w", id, err)
	}
	return snap, nil
}

// List returns the newest snapshots first.
func (s *SnapshotStore) List(ctx context.Context, limit int) ([]model.Snapshot, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

func (s *SnapshotStore) MarkCompleted(ctx context.Context, id, sizeBytes int64) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE snapshots SET status = ?, size_bytes = ?, completed_at = ? WHERE id = ?`,
		model.SnapshotStatusCompleted, sizeBytes, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark snapshot completed: %w", err)
	}
	return nil
}

func (s *SnapshotStore) MarkFailed(ctx context.Context, id int64, msg string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE snapshots SET status = ?, error_message = ? WHERE id = ?`,
		model.SnapshotStatusFailed, msg, id,
	)
	if err != nil {
		return fmt.Errorf("mark snapshot failed: %w", err)
	}
	return nil
}

func (s *SnapshotStore) LatestCompleted(ctx context.Context) (*model.Snapshot, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots WHERE status = ? ORDER BY completed_at DESC, id DESC LIMIT 1`,
		model.SnapshotStatusCompleted,
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed snapshot: %w", err)
	}
	return snap, nil
}

// DeleteOlderThan drops snapshot records created before the cutoff and
// returns their locations so the caller can remove the objects.
func (s *SnapshotStore) DeleteOlderThan(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT location FROM snapshots WHERE created_at < ?`, before)
	if err != nil {
		return nil, fmt.Errorf("select old snapshots: %w", err)
	}
	defer rows.Close()

	var locations []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if _, err := s.q.ExecContext(ctx, `DELETE FROM snapshots WHERE created_at < ?`, before); err != nil {
		return nil, fmt.Errorf("delete old snapshots: %w", err)
	}
	return locations, nil
}
