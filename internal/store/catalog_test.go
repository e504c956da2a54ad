package store

import (
	"context"
	"testing"

	"github.com/hondana/hondana/internal/shelf"
)

func int64Ptr(v int64) *int64 { return &v }
func strPtr(s string) *string { return &s }

// TestUpsertCloudItem_InsertAndRefresh tests that a second upsert
// refreshes listing fields without duplicating the row
func TestUpsertCloudItem_InsertAndRefresh(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	inserted, err := db.UpsertCloudItem(ctx, "file-1", "folder-1", "book.pdf", int64Ptr(1000), strPtr("2026-01-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("UpsertCloudItem() failed: %v", err)
	}
	if !inserted {
		t.Error("first upsert should report inserted")
	}

	inserted, err = db.UpsertCloudItem(ctx, "file-1", "folder-1", "renamed.pdf", int64Ptr(2000), strPtr("2026-02-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("second UpsertCloudItem() failed: %v", err)
	}
	if inserted {
		t.Error("second upsert should not report inserted")
	}

	items, err := db.CloudItems(ctx)
	if err != nil {
		t.Fatalf("CloudItems() failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].FileName != "renamed.pdf" {
		t.Errorf("FileName = %q, want %q", items[0].FileName, "renamed.pdf")
	}
	if items[0].FileSize == nil || *items[0].FileSize != 2000 {
		t.Errorf("FileSize = %v, want 2000", items[0].FileSize)
	}
}

// TestUpsertCloudItem_PreservesDownloadState tests that a listing
// refresh never touches download status or local path
func TestUpsertCloudItem_PreservesDownloadState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertCloudItem(ctx, "file-1", "folder-1", "book.pdf", nil, nil); err != nil {
		t.Fatalf("UpsertCloudItem() failed: %v", err)
	}

	path := "/library/book.pdf"
	if err := db.SetCloudDownloadState(ctx, "file-1", shelf.DownloadCompleted, 100, &path); err != nil {
		t.Fatalf("SetCloudDownloadState() failed: %v", err)
	}

	if _, err := db.UpsertCloudItem(ctx, "file-1", "folder-1", "book.pdf", int64Ptr(500), nil); err != nil {
		t.Fatalf("second UpsertCloudItem() failed: %v", err)
	}

	item, err := db.CloudItemByRemoteID(ctx, "file-1")
	if err != nil {
		t.Fatalf("CloudItemByRemoteID() failed: %v", err)
	}
	if item.DownloadStatus != shelf.DownloadCompleted {
		t.Errorf("DownloadStatus = %q, want completed", item.DownloadStatus)
	}
	if item.LocalPath == nil || *item.LocalPath != path {
		t.Errorf("LocalPath = %v, want %q", item.LocalPath, path)
	}
}

// TestCloudItemByRemoteID_NotFound tests the (nil, nil) contract
func TestCloudItemByRemoteID_NotFound(t *testing.T) {
	db := setupTestDB(t)

	item, err := db.CloudItemByRemoteID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("CloudItemByRemoteID() failed: %v", err)
	}
	if item != nil {
		t.Errorf("got %+v, want nil", item)
	}
}

// TestSetCloudDownloadState_NilPathPreserved tests COALESCE behavior:
// reverting a cancelled download with a nil path keeps the old path
func TestSetCloudDownloadState_NilPathPreserved(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertCloudItem(ctx, "file-1", "folder-1", "book.pdf", nil, nil); err != nil {
		t.Fatalf("UpsertCloudItem() failed: %v", err)
	}

	path := "/library/book.pdf"
	if err := db.SetCloudDownloadState(ctx, "file-1", shelf.DownloadCompleted, 100, &path); err != nil {
		t.Fatalf("SetCloudDownloadState() failed: %v", err)
	}
	if err := db.SetCloudDownloadState(ctx, "file-1", shelf.DownloadPending, 0, nil); err != nil {
		t.Fatalf("second SetCloudDownloadState() failed: %v", err)
	}

	item, err := db.CloudItemByRemoteID(ctx, "file-1")
	if err != nil {
		t.Fatalf("CloudItemByRemoteID() failed: %v", err)
	}
	if item.DownloadStatus != shelf.DownloadPending {
		t.Errorf("DownloadStatus = %q, want pending", item.DownloadStatus)
	}
	if item.LocalPath == nil || *item.LocalPath != path {
		t.Errorf("LocalPath = %v, want preserved %q", item.LocalPath, path)
	}
}

// TestUpdateCloudProgress_Monotonic tests that progress never moves backwards
func TestUpdateCloudProgress_Monotonic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertCloudItem(ctx, "file-1", "folder-1", "book.pdf", nil, nil); err != nil {
		t.Fatalf("UpsertCloudItem() failed: %v", err)
	}
	if err := db.SetCloudDownloadState(ctx, "file-1", shelf.DownloadActive, 0, nil); err != nil {
		t.Fatalf("SetCloudDownloadState() failed: %v", err)
	}

	if err := db.UpdateCloudProgress(ctx, "file-1", 60); err != nil {
		t.Fatalf("UpdateCloudProgress() failed: %v", err)
	}
	// Stale update arriving out of order
	if err := db.UpdateCloudProgress(ctx, "file-1", 40); err != nil {
		t.Fatalf("stale UpdateCloudProgress() failed: %v", err)
	}

	item, err := db.CloudItemByRemoteID(ctx, "file-1")
	if err != nil {
		t.Fatalf("CloudItemByRemoteID() failed: %v", err)
	}
	if item.DownloadProgress != 60 {
		t.Errorf("DownloadProgress = %v, want 60", item.DownloadProgress)
	}
}

// TestUpdateCloudProgress_IgnoredWhenNotDownloading tests that progress
// writes are dropped once the item left the downloading state
func TestUpdateCloudProgress_IgnoredWhenNotDownloading(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertCloudItem(ctx, "file-1", "folder-1", "book.pdf", nil, nil); err != nil {
		t.Fatalf("UpsertCloudItem() failed: %v", err)
	}

	if err := db.UpdateCloudProgress(ctx, "file-1", 50); err != nil {
		t.Fatalf("UpdateCloudProgress() failed: %v", err)
	}

	item, err := db.CloudItemByRemoteID(ctx, "file-1")
	if err != nil {
		t.Fatalf("CloudItemByRemoteID() failed: %v", err)
	}
	if item.DownloadProgress != 0 {
		t.Errorf("DownloadProgress = %v, want 0 for pending item", item.DownloadProgress)
	}
}

// TestResetCloudDownload tests the revert-to-pending path
func TestResetCloudDownload(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertCloudItem(ctx, "file-1", "folder-1", "book.pdf", nil, nil); err != nil {
		t.Fatalf("UpsertCloudItem() failed: %v", err)
	}
	path := "/library/book.pdf"
	if err := db.SetCloudDownloadState(ctx, "file-1", shelf.DownloadCompleted, 100, &path); err != nil {
		t.Fatalf("SetCloudDownloadState() failed: %v", err)
	}
	if err := db.UpdateCloudThumbnail(ctx, "file-1", "thumb-data"); err != nil {
		t.Fatalf("UpdateCloudThumbnail() failed: %v", err)
	}

	if err := db.ResetCloudDownload(ctx, "file-1"); err != nil {
		t.Fatalf("ResetCloudDownload() failed: %v", err)
	}

	item, err := db.CloudItemByRemoteID(ctx, "file-1")
	if err != nil {
		t.Fatalf("CloudItemByRemoteID() failed: %v", err)
	}
	if item.DownloadStatus != shelf.DownloadPending {
		t.Errorf("DownloadStatus = %q, want pending", item.DownloadStatus)
	}
	if item.LocalPath != nil {
		t.Errorf("LocalPath = %v, want nil", item.LocalPath)
	}
	if item.Thumbnail != nil {
		t.Errorf("Thumbnail = %v, want nil", item.Thumbnail)
	}
	if item.DownloadProgress != 0 {
		t.Errorf("DownloadProgress = %v, want 0", item.DownloadProgress)
	}
}

// TestDemoteStaleDownloading tests crash recovery of the catalog side
func TestDemoteStaleDownloading(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"file-1", "file-2"} {
		if _, err := db.UpsertCloudItem(ctx, id, "folder-1", id+".pdf", nil, nil); err != nil {
			t.Fatalf("UpsertCloudItem(%s) failed: %v", id, err)
		}
	}
	if err := db.SetCloudDownloadState(ctx, "file-1", shelf.DownloadActive, 42, nil); err != nil {
		t.Fatalf("SetCloudDownloadState() failed: %v", err)
	}

	n, err := db.DemoteStaleDownloading(ctx)
	if err != nil {
		t.Fatalf("DemoteStaleDownloading() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("demoted %d items, want 1", n)
	}

	item, err := db.CloudItemByRemoteID(ctx, "file-1")
	if err != nil {
		t.Fatalf("CloudItemByRemoteID() failed: %v", err)
	}
	if item.DownloadStatus != shelf.DownloadPending {
		t.Errorf("DownloadStatus = %q, want pending", item.DownloadStatus)
	}
	if item.DownloadProgress != 0 {
		t.Errorf("DownloadProgress = %v, want 0", item.DownloadProgress)
	}
}

// TestPruneCloudItems tests folder-scoped pruning of undownloaded items
func TestPruneCloudItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seed := []struct {
		id, folder string
		completed  bool
	}{
		{"file-1", "active-folder", false},
		{"file-2", "stale-folder", false},
		{"file-3", "stale-folder", true},
	}
	for _, s := range seed {
		if _, err := db.UpsertCloudItem(ctx, s.id, s.folder, s.id+".pdf", nil, nil); err != nil {
			t.Fatalf("UpsertCloudItem(%s) failed: %v", s.id, err)
		}
		if s.completed {
			path := "/library/" + s.id + ".pdf"
			if err := db.SetCloudDownloadState(ctx, s.id, shelf.DownloadCompleted, 100, &path); err != nil {
				t.Fatalf("SetCloudDownloadState(%s) failed: %v", s.id, err)
			}
		}
	}

	n, err := db.PruneCloudItems(ctx, []string{"active-folder"})
	if err != nil {
		t.Fatalf("PruneCloudItems() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d items, want 1", n)
	}

	// file-2 gone, file-1 (active folder) and file-3 (completed) remain
	for _, want := range []struct {
		id     string
		exists bool
	}{
		{"file-1", true},
		{"file-2", false},
		{"file-3", true},
	} {
		item, err := db.CloudItemByRemoteID(ctx, want.id)
		if err != nil {
			t.Fatalf("CloudItemByRemoteID(%s) failed: %v", want.id, err)
		}
		if (item != nil) != want.exists {
			t.Errorf("%s exists = %v, want %v", want.id, item != nil, want.exists)
		}
	}
}

// TestPruneCloudItems_EmptyActiveSetRemovesNothing tests that an empty
// active set is not treated as a mass delete
func TestPruneCloudItems_EmptyActiveSetRemovesNothing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertCloudItem(ctx, "file-1", "folder-1", "book.pdf", nil, nil); err != nil {
		t.Fatalf("UpsertCloudItem() failed: %v", err)
	}

	n, err := db.PruneCloudItems(ctx, nil)
	if err != nil {
		t.Fatalf("PruneCloudItems() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("pruned %d items, want 0", n)
	}
}

// TestDeleteAllPendingCloudItems tests the explicit mass delete
func TestDeleteAllPendingCloudItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertCloudItem(ctx, "file-1", "folder-1", "a.pdf", nil, nil); err != nil {
		t.Fatalf("UpsertCloudItem() failed: %v", err)
	}
	if _, err := db.UpsertCloudItem(ctx, "file-2", "folder-1", "b.pdf", nil, nil); err != nil {
		t.Fatalf("UpsertCloudItem() failed: %v", err)
	}
	path := "/library/b.pdf"
	if err := db.SetCloudDownloadState(ctx, "file-2", shelf.DownloadCompleted, 100, &path); err != nil {
		t.Fatalf("SetCloudDownloadState() failed: %v", err)
	}

	n, err := db.DeleteAllPendingCloudItems(ctx)
	if err != nil {
		t.Fatalf("DeleteAllPendingCloudItems() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d items, want 1", n)
	}

	items, err := db.CloudItems(ctx)
	if err != nil {
		t.Fatalf("CloudItems() failed: %v", err)
	}
	if len(items) != 1 || items[0].RemoteFileID != "file-2" {
		t.Errorf("remaining items = %v, want only file-2", items)
	}
}

// TestToggleCloudFavorite tests the favorite round trip
func TestToggleCloudFavorite(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.UpsertCloudItem(ctx, "file-1", "folder-1", "book.pdf", nil, nil); err != nil {
		t.Fatalf("UpsertCloudItem() failed: %v", err)
	}
	item, err := db.CloudItemByRemoteID(ctx, "file-1")
	if err != nil {
		t.Fatalf("CloudItemByRemoteID() failed: %v", err)
	}

	on, err := db.ToggleCloudFavorite(ctx, item.ID)
	if err != nil {
		t.Fatalf("ToggleCloudFavorite() failed: %v", err)
	}
	if !on {
		t.Error("first toggle should turn favorite on")
	}

	off, err := db.ToggleCloudFavorite(ctx, item.ID)
	if err != nil {
		t.Fatalf("second ToggleCloudFavorite() failed: %v", err)
	}
	if off {
		t.Error("second toggle should turn favorite off")
	}
}

// TestAddSyncFolder_Reactivates tests that re-adding a removed folder
// flips it back to active
func TestAddSyncFolder_Reactivates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.AddSyncFolder(ctx, "folder-1", "Books"); err != nil {
		t.Fatalf("AddSyncFolder() failed: %v", err)
	}
	if err := db.DeactivateSyncFolder(ctx, "folder-1"); err != nil {
		t.Fatalf("DeactivateSyncFolder() failed: %v", err)
	}

	folders, err := db.ActiveSyncFolders(ctx)
	if err != nil {
		t.Fatalf("ActiveSyncFolders() failed: %v", err)
	}
	if len(folders) != 0 {
		t.Fatalf("got %d active folders after deactivate, want 0", len(folders))
	}

	if err := db.AddSyncFolder(ctx, "folder-1", "Books (renamed)"); err != nil {
		t.Fatalf("second AddSyncFolder() failed: %v", err)
	}

	folders, err = db.ActiveSyncFolders(ctx)
	if err != nil {
		t.Fatalf("ActiveSyncFolders() failed: %v", err)
	}
	if len(folders) != 1 {
		t.Fatalf("got %d active folders, want 1", len(folders))
	}
	if folders[0].FolderName != "Books (renamed)" {
		t.Errorf("FolderName = %q, want %q", folders[0].FolderName, "Books (renamed)")
	}
}

// TestLocalItems_InsertAndLookup tests the local item round trip
func TestLocalItems_InsertAndLookup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	item := &shelf.LocalItem{
		FilePath:     "/library/local/paper.pdf",
		OriginalPath: "/home/user/paper.pdf",
		FileName:     "paper.pdf",
		FileSize:     int64Ptr(4096),
	}
	if err := db.InsertLocalItem(ctx, item); err != nil {
		t.Fatalf("InsertLocalItem() failed: %v", err)
	}
	if item.ID == 0 {
		t.Error("InsertLocalItem() did not set ID")
	}

	byPath, err := db.LocalItemByOriginalPath(ctx, "/home/user/paper.pdf")
	if err != nil {
		t.Fatalf("LocalItemByOriginalPath() failed: %v", err)
	}
	if byPath == nil || byPath.ID != item.ID {
		t.Errorf("LocalItemByOriginalPath() = %v, want item %d", byPath, item.ID)
	}

	missing, err := db.LocalItemByOriginalPath(ctx, "/home/user/other.pdf")
	if err != nil {
		t.Fatalf("LocalItemByOriginalPath(miss) failed: %v", err)
	}
	if missing != nil {
		t.Errorf("got %+v for unknown original path, want nil", missing)
	}
}

// TestDeleteLocalItem tests removal and idempotence
func TestDeleteLocalItem(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	item := &shelf.LocalItem{
		FilePath:     "/library/local/paper.pdf",
		OriginalPath: "/home/user/paper.pdf",
		FileName:     "paper.pdf",
	}
	if err := db.InsertLocalItem(ctx, item); err != nil {
		t.Fatalf("InsertLocalItem() failed: %v", err)
	}

	if err := db.DeleteLocalItem(ctx, item.ID); err != nil {
		t.Fatalf("DeleteLocalItem() failed: %v", err)
	}
	if err := db.DeleteLocalItem(ctx, item.ID); err != nil {
		t.Errorf("second DeleteLocalItem() failed: %v", err)
	}

	got, err := db.LocalItemByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("LocalItemByID() failed: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v after delete, want nil", got)
	}
}
