package watcher

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hondana/hondana/internal/shelf"
	"github.com/hondana/hondana/internal/store"
	shelfsync "github.com/hondana/hondana/internal/sync"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(testWriter{t}, "", 0)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", bytes.TrimSpace(p))
	return len(p), nil
}

// TestWatcher_ResetsItemOnFileDeletion tests that deleting a
// downloaded file flips its catalog item back to pending
func TestWatcher_ResetsItemOnFileDeletion(t *testing.T) {
	tmpDir := t.TempDir()
	libDir := filepath.Join(tmpDir, "library")
	if err := os.MkdirAll(libDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	db, err := store.Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	path := filepath.Join(libDir, "book.pdf")
	if err := os.WriteFile(path, []byte("pdf"), 0644); err != nil {
		t.Fatalf("writing fixture failed: %v", err)
	}
	if _, err := db.UpsertCloudItem(ctx, "file-1", "folder-1", "book.pdf", nil, nil); err != nil {
		t.Fatalf("UpsertCloudItem() failed: %v", err)
	}
	if err := db.SetCloudDownloadState(ctx, "file-1", shelf.DownloadCompleted, 100, &path); err != nil {
		t.Fatalf("SetCloudDownloadState() failed: %v", err)
	}

	w, err := New(shelfsync.NewRecovery(db, testLogger(t)), libDir, &Config{
		VerifyInterval:   time.Hour, // only the event path should fire
		DebounceInterval: 20 * time.Millisecond,
		Logger:           testLogger(t),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	verified := make(chan struct{}, 1)
	w.OnVerify = func(resetCloud, removedLocal int) {
		if resetCloud > 0 {
			select {
			case verified <- struct{}{}:
			default:
			}
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(runCtx) }()

	// Give the watcher a moment to install its watch
	time.Sleep(100 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatalf("removing file failed: %v", err)
	}

	select {
	case <-verified:
	case <-time.After(5 * time.Second):
		t.Fatal("verification did not run after file deletion")
	}

	item, err := db.CloudItemByRemoteID(ctx, "file-1")
	if err != nil {
		t.Fatalf("CloudItemByRemoteID() failed: %v", err)
	}
	if item.DownloadStatus != shelf.DownloadPending {
		t.Errorf("DownloadStatus = %q, want pending", item.DownloadStatus)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not shut down")
	}
}

// TestNew_Validation tests constructor argument checks
func TestNew_Validation(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	rec := shelfsync.NewRecovery(db, testLogger(t))

	if _, err := New(nil, "/tmp/lib", nil); err == nil {
		t.Error("New() with nil recovery should fail")
	}
	if _, err := New(rec, "", nil); err == nil {
		t.Error("New() with empty libraryDir should fail")
	}
}
