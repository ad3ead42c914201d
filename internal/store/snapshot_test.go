package store

import (
	"context"
	"testing"
	"time"

	"github.com/dupipcom/morpheus-sub002/internal/model"
)

func TestSnapshotCreate(t *testing.T) {
	ss := setupTestDB(t).Snapshots
	ctx := context.Background()

	snap, err := ss.Create(ctx, "pre-migrate", "snapshots/2025-01-01.db.enc")
	if err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	if snap.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if snap.Status != model.SnapshotStatusPending {
		t.Errorf("status = %q, want %q", snap.Status, model.SnapshotStatusPending)
	}

	got, err := ss.Get(ctx, snap.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Label != "pre-migrate" {
		t.Errorf("label = %q, want %q", got.Label, "pre-migrate")
	}
}

func TestSnapshotMarkCompletedAndFailed(t *testing.T) {
	ss := setupTestDB(t).Snapshots
	ctx := context.Background()

	ok, _ := ss.Create(ctx, "a", "a.db.enc")
	if err := ss.MarkCompleted(ctx, ok.ID, 1024*1024); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	got, _ := ss.Get(ctx, ok.ID)
	if got.Status != model.SnapshotStatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, model.SnapshotStatusCompleted)
	}
	if got.SizeBytes != 1024*1024 {
		t.Errorf("size_bytes = %d, want %d", got.SizeBytes, 1024*1024)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	bad, _ := ss.Create(ctx, "b", "b.db.enc")
	if err := ss.MarkFailed(ctx, bad.ID, "upload failed"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ = ss.Get(ctx, bad.ID)
	if got.Status != model.SnapshotStatusFailed {
		t.Errorf("status = %q, want %q", got.Status, model.SnapshotStatusFailed)
	}
	if got.ErrorMessage != "upload failed" {
		t.Errorf("error_message = %q, want %q", got.ErrorMessage, "upload failed")
	}
}

func TestSnapshotListOrderAndLimit(t *testing.T) {
	ss := setupTestDB(t).Snapshots
	ctx := context.Background()

	ss.Create(ctx, "first", "first.db.enc")
	time.Sleep(10 * time.Millisecond)
	ss.Create(ctx, "second", "second.db.enc")
	time.Sleep(10 * time.Millisecond)
	ss.Create(ctx, "third", "third.db.enc")

	all, err := ss.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Label != "third" {
		t.Errorf("first entry = %q, want %q", all[0].Label, "third")
	}

	limited, _ := ss.List(ctx, 2)
	if len(limited) != 2 {
		t.Errorf("len = %d, want 2", len(limited))
	}
}

func TestSnapshotLatestCompleted(t *testing.T) {
	ss := setupTestDB(t).Snapshots
	ctx := context.Background()

	if latest, err := ss.LatestCompleted(ctx); err != nil || latest != nil {
		t.Fatalf("empty table: latest = %+v, err = %v", latest, err)
	}

	s1, _ := ss.Create(ctx, "first", "first.db.enc")
	ss.MarkCompleted(ctx, s1.ID, 100)
	time.Sleep(10 * time.Millisecond)
	s2, _ := ss.Create(ctx, "second", "second.db.enc")
	ss.MarkCompleted(ctx, s2.ID, 200)
	s3, _ := ss.Create(ctx, "failed", "failed.db.enc")
	ss.MarkFailed(ctx, s3.ID, "error")

	latest, err := ss.LatestCompleted(ctx)
	if err != nil {
		t.Fatalf("latest completed: %v", err)
	}
	if latest == nil || latest.Label != "second" {
		t.Errorf("latest = %+v, want second", latest)
	}
}

func TestSnapshotDeleteOlderThan(t *testing.T) {
	ss := setupTestDB(t).Snapshots
	ctx := context.Background()

	ss.Create(ctx, "old", "old.db.enc")
	time.Sleep(50 * time.Millisecond)
	cutoff := time.Now().UTC()
	time.Sleep(50 * time.Millisecond)
	ss.Create(ctx, "new", "new.db.enc")

	locations, err := ss.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if len(locations) != 1 || locations[0] != "old.db.enc" {
		t.Fatalf("deleted = %v, want [old.db.enc]", locations)
	}

	remaining, _ := ss.List(ctx, 10)
	if len(remaining) != 1 || remaining[0].Label != "new" {
		t.Errorf("remaining = %+v, want [new]", remaining)
	}
}
