package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hondana/hondana/internal/shelf"
)

// TestRecovery_RequeuesStuckJobs tests that a processing job left by a
// crash goes back to queued with a clean slate
func TestRecovery_RequeuesStuckJobs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.Enqueue(ctx, "file-1", "book.pdf", 0)
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if err := db.MarkProcessing(ctx, id); err != nil {
		t.Fatalf("MarkProcessing() failed: %v", err)
	}
	if _, err := db.UpsertCloudItem(ctx, "file-1", "folder-1", "book.pdf", nil, nil); err != nil {
		t.Fatalf("UpsertCloudItem() failed: %v", err)
	}
	if err := db.SetCloudDownloadState(ctx, "file-1", shelf.DownloadActive, 37, nil); err != nil {
		t.Fatalf("SetCloudDownloadState() failed: %v", err)
	}

	stats, err := NewRecovery(db, testLogger(t)).Run(ctx)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if stats.RequeuedJobs != 1 {
		t.Errorf("RequeuedJobs = %d, want 1", stats.RequeuedJobs)
	}
	if stats.DemotedDownloads != 1 {
		t.Errorf("DemotedDownloads = %d, want 1", stats.DemotedDownloads)
	}

	job, err := db.QueueItemByRemoteID(ctx, "file-1")
	if err != nil {
		t.Fatalf("QueueItemByRemoteID() failed: %v", err)
	}
	if job.Status != shelf.QueueQueued {
		t.Errorf("job Status = %q, want queued", job.Status)
	}

	item, err := db.CloudItemByRemoteID(ctx, "file-1")
	if err != nil {
		t.Fatalf("CloudItemByRemoteID() failed: %v", err)
	}
	if item.DownloadStatus != shelf.DownloadPending {
		t.Errorf("DownloadStatus = %q, want pending", item.DownloadStatus)
	}
}

// TestRecovery_ResetsCloudItemWithMissingFile tests disk verification
// of completed downloads
func TestRecovery_ResetsCloudItemWithMissingFile(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tmpDir := t.TempDir()

	presentPath := filepath.Join(tmpDir, "present.pdf")
	if err := os.WriteFile(presentPath, []byte("pdf"), 0644); err != nil {
		t.Fatalf("writing fixture failed: %v", err)
	}
	missingPath := filepath.Join(tmpDir, "missing.pdf")

	for id, path := range map[string]string{"file-present": presentPath, "file-missing": missingPath} {
		if _, err := db.UpsertCloudItem(ctx, id, "folder-1", filepath.Base(path), nil, nil); err != nil {
			t.Fatalf("UpsertCloudItem(%s) failed: %v", id, err)
		}
		p := path
		if err := db.SetCloudDownloadState(ctx, id, shelf.DownloadCompleted, 100, &p); err != nil {
			t.Fatalf("SetCloudDownloadState(%s) failed: %v", id, err)
		}
	}

	stats, err := NewRecovery(db, testLogger(t)).Run(ctx)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if stats.ResetCloudItems != 1 {
		t.Errorf("ResetCloudItems = %d, want 1", stats.ResetCloudItems)
	}

	missing, err := db.CloudItemByRemoteID(ctx, "file-missing")
	if err != nil {
		t.Fatalf("CloudItemByRemoteID() failed: %v", err)
	}
	if missing.DownloadStatus != shelf.DownloadPending {
		t.Errorf("missing item DownloadStatus = %q, want pending", missing.DownloadStatus)
	}
	if missing.LocalPath != nil {
		t.Errorf("missing item LocalPath = %v, want nil", missing.LocalPath)
	}

	present, err := db.CloudItemByRemoteID(ctx, "file-present")
	if err != nil {
		t.Fatalf("CloudItemByRemoteID() failed: %v", err)
	}
	if present.DownloadStatus != shelf.DownloadCompleted {
		t.Errorf("present item DownloadStatus = %q, want completed", present.DownloadStatus)
	}
}

// TestRecovery_RemovesLocalItemWithMissingFile tests that imported
// items with no file behind them are dropped
func TestRecovery_RemovesLocalItemWithMissingFile(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	tmpDir := t.TempDir()

	presentPath := filepath.Join(tmpDir, "present.pdf")
	if err := os.WriteFile(presentPath, []byte("pdf"), 0644); err != nil {
		t.Fatalf("writing fixture failed: %v", err)
	}

	kept := &shelf.LocalItem{
		FilePath:     presentPath,
		OriginalPath: "/home/user/present.pdf",
		FileName:     "present.pdf",
	}
	gone := &shelf.LocalItem{
		FilePath:     filepath.Join(tmpDir, "gone.pdf"),
		OriginalPath: "/home/user/gone.pdf",
		FileName:     "gone.pdf",
	}
	for _, item := range []*shelf.LocalItem{kept, gone} {
		if err := db.InsertLocalItem(ctx, item); err != nil {
			t.Fatalf("InsertLocalItem(%s) failed: %v", item.FileName, err)
		}
	}

	stats, err := NewRecovery(db, testLogger(t)).Run(ctx)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if stats.RemovedLocalItems != 1 {
		t.Errorf("RemovedLocalItems = %d, want 1", stats.RemovedLocalItems)
	}

	items, err := db.LocalItems(ctx)
	if err != nil {
		t.Fatalf("LocalItems() failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != kept.ID {
		t.Errorf("remaining local items = %v, want only %q", items, kept.FileName)
	}
}

// TestRecovery_CleanStateIsNoOp tests that recovery on a healthy
// database changes nothing
func TestRecovery_CleanStateIsNoOp(t *testing.T) {
	db := setupTestDB(t)

	stats, err := NewRecovery(db, testLogger(t)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if *stats != (RecoveryStats{}) {
		t.Errorf("stats = %+v, want all zero", stats)
	}
}
