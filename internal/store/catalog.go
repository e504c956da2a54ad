package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hondana/hondana/internal/shelf"
)

// UpsertCloudItem inserts or refreshes a cloud item from a remote listing.
//
// On conflict only the listing fields (file_name, file_size,
// remote_modified_time, updated_at) are refreshed; download_status and
// local_path belong to the download pipeline and are never touched.
// Returns true if a new row was inserted.
func (db *DB) UpsertCloudItem(ctx context.Context, remoteFileID, folderID, fileName string, fileSize *int64, modifiedTime *string) (bool, error) {
	var exists int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cloud_items WHERE remote_file_id = ?`, remoteFileID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to probe cloud item %s: %w", remoteFileID, err)
	}

	ts := now()
	query := `
	INSERT INTO cloud_items (
		remote_file_id, remote_folder_id, file_name, file_size,
		remote_modified_time, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(remote_file_id) DO UPDATE SET
		file_name = excluded.file_name,
		file_size = excluded.file_size,
		remote_modified_time = excluded.remote_modified_time,
		updated_at = excluded.updated_at
	`
	_, err = db.conn.ExecContext(ctx, query,
		remoteFileID, folderID, fileName, fileSize, modifiedTime, ts, ts)
	if err != nil {
		return false, fmt.Errorf("failed to upsert cloud item %s: %w", remoteFileID, err)
	}

	return exists == 0, nil
}

// CloudItems returns all cloud items, most recently opened first,
// items never opened last ordered by file name.
func (db *DB) CloudItems(ctx context.Context) ([]*shelf.CloudItem, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cloudItemColumns+`
		FROM cloud_items
		ORDER BY last_opened IS NULL, last_opened DESC, file_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cloud items: %w", err)
	}
	defer rows.Close()

	return scanCloudItems(rows)
}

// CloudItemByRemoteID retrieves a single cloud item.
// Returns (nil, nil) if no such item exists.
func (db *DB) CloudItemByRemoteID(ctx context.Context, remoteFileID string) (*shelf.CloudItem, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cloudItemColumns+`
		FROM cloud_items WHERE remote_file_id = ?
	`, remoteFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cloud item %s: %w", remoteFileID, err)
	}
	defer rows.Close()

	items, err := scanCloudItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// SetCloudDownloadState updates status, progress and (when non-nil)
// local_path for a cloud item. A nil localPath preserves any existing
// path, so completing a transfer and reverting a cancelled one use the
// same statement.
func (db *DB) SetCloudDownloadState(ctx context.Context, remoteFileID string, status shelf.DownloadStatus, progress float64, localPath *string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE cloud_items SET
			download_status = ?,
			download_progress = ?,
			local_path = COALESCE(?, local_path),
			updated_at = ?
		WHERE remote_file_id = ?
	`, status.String(), progress, localPath, now(), remoteFileID)
	if err != nil {
		return fmt.Errorf("failed to update download state for %s: %w", remoteFileID, err)
	}
	return nil
}

// UpdateCloudProgress records transfer progress for an item that is
// currently downloading. Progress is monotonic non-decreasing: a stale
// update arriving out of order can never move the value backwards.
func (db *DB) UpdateCloudProgress(ctx context.Context, remoteFileID string, progress float64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE cloud_items SET
			download_progress = MAX(download_progress, ?),
			updated_at = ?
		WHERE remote_file_id = ? AND download_status = 'downloading'
	`, progress, now(), remoteFileID)
	if err != nil {
		return fmt.Errorf("failed to update progress for %s: %w", remoteFileID, err)
	}
	return nil
}

// UpdateCloudMetadata stores extracted PDF title and author.
func (db *DB) UpdateCloudMetadata(ctx context.Context, remoteFileID string, title, author *string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE cloud_items SET title = ?, author = ?, updated_at = ? WHERE remote_file_id = ?
	`, title, author, now(), remoteFileID)
	if err != nil {
		return fmt.Errorf("failed to update metadata for %s: %w", remoteFileID, err)
	}
	return nil
}

// UpdateCloudThumbnail stores rendered thumbnail data for a cloud item.
func (db *DB) UpdateCloudThumbnail(ctx context.Context, remoteFileID, thumbnail string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE cloud_items SET thumbnail = ?, updated_at = ? WHERE remote_file_id = ?
	`, thumbnail, now(), remoteFileID)
	if err != nil {
		return fmt.Errorf("failed to update thumbnail for %s: %w", remoteFileID, err)
	}
	return nil
}

// ResetCloudDownload reverts a cloud item to pending: local_path and
// thumbnail cleared, progress zeroed. Used when the local copy is
// deleted or found missing.
func (db *DB) ResetCloudDownload(ctx context.Context, remoteFileID string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE cloud_items SET
			download_status = 'pending',
			download_progress = 0,
			local_path = NULL,
			thumbnail = NULL,
			updated_at = ?
		WHERE remote_file_id = ?
	`, now(), remoteFileID)
	if err != nil {
		return fmt.Errorf("failed to reset download state for %s: %w", remoteFileID, err)
	}
	return nil
}

// DemoteStaleDownloading resets every cloud item stuck in 'downloading'
// back to pending. A downloading row with no live worker is a crash
// leftover. Returns the number of rows reset.
func (db *DB) DemoteStaleDownloading(ctx context.Context) (int, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cloud_items SET
			download_status = 'pending',
			download_progress = 0,
			updated_at = ?
		WHERE download_status = 'downloading'
	`, now())
	if err != nil {
		return 0, fmt.Errorf("failed to demote stale downloads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count demoted downloads: %w", err)
	}
	return int(n), nil
}

// CompletedCloudPaths returns (remote_file_id, local_path) pairs for
// every completed cloud item, for disk verification.
func (db *DB) CompletedCloudPaths(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT remote_file_id, local_path FROM cloud_items
		WHERE download_status = 'completed' AND local_path IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed cloud items: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]string)
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("failed to scan completed cloud item: %w", err)
		}
		paths[id] = path
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completed cloud items: %w", err)
	}
	return paths, nil
}

// PruneCloudItems deletes cloud items whose folder is not in the given
// active set and which were never downloaded. Completed items are kept
// regardless of folder state. Returns the number of rows removed.
//
// An empty active set removes nothing here; mass deletion is the
// explicit DeleteAllPendingCloudItems operation.
func (db *DB) PruneCloudItems(ctx context.Context, activeFolderIDs []string) (int, error) {
	if len(activeFolderIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(activeFolderIDs)), ", ")
	args := make([]interface{}, 0, len(activeFolderIDs))
	for _, id := range activeFolderIDs {
		args = append(args, id)
	}

	query := `DELETE FROM cloud_items
		WHERE remote_folder_id NOT IN (` + placeholders + `)
		AND download_status != 'completed'`

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune cloud items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned cloud items: %w", err)
	}
	return int(n), nil
}

// DeleteAllPendingCloudItems removes every cloud item that was never
// downloaded, regardless of folder. Callers must treat this as a
// user-confirmed mass deletion.
func (db *DB) DeleteAllPendingCloudItems(ctx context.Context) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM cloud_items WHERE download_status != 'completed'`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending cloud items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted cloud items: %w", err)
	}
	return int(n), nil
}

// ToggleCloudFavorite flips the favorite flag and returns the new value.
func (db *DB) ToggleCloudFavorite(ctx context.Context, itemID int64) (bool, error) {
	var current int
	err := db.conn.QueryRowContext(ctx,
		`SELECT favorite FROM cloud_items WHERE id = ?`, itemID).Scan(&current)
	if err != nil {
		return false, fmt.Errorf("failed to read favorite for cloud item %d: %w", itemID, err)
	}

	next := 1 - current
	_, err = db.conn.ExecContext(ctx,
		`UPDATE cloud_items SET favorite = ?, updated_at = ? WHERE id = ?`,
		next, now(), itemID)
	if err != nil {
		return false, fmt.Errorf("failed to toggle favorite for cloud item %d: %w", itemID, err)
	}
	return next == 1, nil
}

// TouchCloudLastOpened stamps last_opened for the cloud item whose
// local copy lives at the given path. Returns false if no row matched.
func (db *DB) TouchCloudLastOpened(ctx context.Context, localPath string) (bool, error) {
	ts := now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE cloud_items SET last_opened = ?, updated_at = ? WHERE local_path = ?`,
		ts, ts, localPath)
	if err != nil {
		return false, fmt.Errorf("failed to touch cloud item at %s: %w", localPath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count touched cloud items: %w", err)
	}
	return n > 0, nil
}

// --- Sync folders ---

// AddSyncFolder adds a folder to the sync set, re-activating it if it
// was previously removed.
func (db *DB) AddSyncFolder(ctx context.Context, folderID, folderName string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_folders (folder_id, folder_name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(folder_id) DO UPDATE SET
			folder_name = excluded.folder_name,
			active = 1
	`, folderID, folderName, now())
	if err != nil {
		return fmt.Errorf("failed to add sync folder %s: %w", folderID, err)
	}
	return nil
}

// DeactivateSyncFolder stops syncing a folder without touching any
// already-downloaded files.
func (db *DB) DeactivateSyncFolder(ctx context.Context, folderID string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE sync_folders SET active = 0 WHERE folder_id = ?`, folderID)
	if err != nil {
		return fmt.Errorf("failed to deactivate sync folder %s: %w", folderID, err)
	}
	return nil
}

// ActiveSyncFolders returns all folders currently being mirrored.
func (db *DB) ActiveSyncFolders(ctx context.Context) ([]*shelf.SyncFolder, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT folder_id, folder_name, active, last_synced_at
		FROM sync_folders
		WHERE active = 1
		ORDER BY folder_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync folders: %w", err)
	}
	defer rows.Close()

	var folders []*shelf.SyncFolder
	for rows.Next() {
		var f shelf.SyncFolder
		var active int
		var lastSynced sql.NullString
		if err := rows.Scan(&f.FolderID, &f.FolderName, &active, &lastSynced); err != nil {
			return nil, fmt.Errorf("failed to scan sync folder: %w", err)
		}
		f.Active = active != 0
		f.LastSyncedAt = nullStringToTime(lastSynced)
		folders = append(folders, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync folders: %w", err)
	}
	return folders, nil
}

// TouchFolderSynced stamps last_synced_at for a folder.
func (db *DB) TouchFolderSynced(ctx context.Context, folderID string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE sync_folders SET last_synced_at = ? WHERE folder_id = ?`,
		now(), folderID)
	if err != nil {
		return fmt.Errorf("failed to stamp sync time for folder %s: %w", folderID, err)
	}
	return nil
}

// --- Local items ---

// InsertLocalItem stores a newly imported local item and sets its ID.
func (db *DB) InsertLocalItem(ctx context.Context, item *shelf.LocalItem) error {
	ts := now()
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO local_items (
			file_path, original_path, file_name, file_size, imported_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`, item.FilePath, item.OriginalPath, item.FileName, item.FileSize, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert local item %s: %w", item.FileName, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get local item id: %w", err)
	}
	item.ID = id
	return nil
}

// LocalItems returns all local items, most recently opened first,
// items never opened last ordered by file name.
func (db *DB) LocalItems(ctx context.Context) ([]*shelf.LocalItem, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+localItemColumns+`
		FROM local_items
		ORDER BY last_opened IS NULL, last_opened DESC, file_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list local items: %w", err)
	}
	defer rows.Close()

	return scanLocalItems(rows)
}

// LocalItemByOriginalPath finds a local item by the user's original
// file location, for de-duplication on re-import.
// Returns (nil, nil) if no such item exists.
func (db *DB) LocalItemByOriginalPath(ctx context.Context, originalPath string) (*shelf.LocalItem, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+localItemColumns+`
		FROM local_items WHERE original_path = ?
	`, originalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get local item by original path: %w", err)
	}
	defer rows.Close()

	items, err := scanLocalItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// LocalItemByID retrieves a single local item.
// Returns (nil, nil) if no such item exists.
func (db *DB) LocalItemByID(ctx context.Context, id int64) (*shelf.LocalItem, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+localItemColumns+`
		FROM local_items WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get local item %d: %w", id, err)
	}
	defer rows.Close()

	items, err := scanLocalItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// UpdateLocalMetadata stores extracted PDF title and author.
func (db *DB) UpdateLocalMetadata(ctx context.Context, itemID int64, title, author *string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE local_items SET title = ?, author = ?, updated_at = ? WHERE id = ?
	`, title, author, now(), itemID)
	if err != nil {
		return fmt.Errorf("failed to update metadata for local item %d: %w", itemID, err)
	}
	return nil
}

// UpdateLocalThumbnail stores rendered thumbnail data for a local item.
func (db *DB) UpdateLocalThumbnail(ctx context.Context, itemID int64, thumbnail string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE local_items SET thumbnail = ?, updated_at = ? WHERE id = ?
	`, thumbnail, now(), itemID)
	if err != nil {
		return fmt.Errorf("failed to update thumbnail for local item %d: %w", itemID, err)
	}
	return nil
}

// ToggleLocalFavorite flips the favorite flag and returns the new value.
func (db *DB) ToggleLocalFavorite(ctx context.Context, itemID int64) (bool, error) {
	var current int
	err := db.conn.QueryRowContext(ctx,
		`SELECT favorite FROM local_items WHERE id = ?`, itemID).Scan(&current)
	if err != nil {
		return false, fmt.Errorf("failed to read favorite for local item %d: %w", itemID, err)
	}

	next := 1 - current
	_, err = db.conn.ExecContext(ctx,
		`UPDATE local_items SET favorite = ?, updated_at = ? WHERE id = ?`,
		next, now(), itemID)
	if err != nil {
		return false, fmt.Errorf("failed to toggle favorite for local item %d: %w", itemID, err)
	}
	return next == 1, nil
}

// TouchLocalLastOpened stamps last_opened for the local item at the
// given managed path. Returns false if no row matched.
func (db *DB) TouchLocalLastOpened(ctx context.Context, filePath string) (bool, error) {
	ts := now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE local_items SET last_opened = ?, updated_at = ? WHERE file_path = ?`,
		ts, ts, filePath)
	if err != nil {
		return false, fmt.Errorf("failed to touch local item at %s: %w", filePath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count touched local items: %w", err)
	}
	return n > 0, nil
}

// DeleteLocalItem removes a local item row. Idempotent.
func (db *DB) DeleteLocalItem(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM local_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete local item %d: %w", id, err)
	}
	return nil
}

// --- Scan helpers ---

const cloudItemColumns = `id, remote_file_id, remote_folder_id, file_name, file_size,
	remote_modified_time, thumbnail, local_path, download_status, download_progress,
	title, author, favorite, last_opened, created_at, updated_at`

const localItemColumns = `id, file_path, original_path, file_name, file_size,
	thumbnail, title, author, favorite, last_opened, imported_at`

func scanCloudItems(rows *sql.Rows) ([]*shelf.CloudItem, error) {
	var items []*shelf.CloudItem

	for rows.Next() {
		var item shelf.CloudItem
		var fileSize sql.NullInt64
		var modifiedTime, thumbnail, localPath, title, author sql.NullString
		var status string
		var favorite int
		var lastOpened sql.NullString
		var createdAt, updatedAt string

		err := rows.Scan(
			&item.ID,
			&item.RemoteFileID,
			&item.RemoteFolderID,
			&item.FileName,
			&fileSize,
			&modifiedTime,
			&thumbnail,
			&localPath,
			&status,
			&item.DownloadProgress,
			&title,
			&author,
			&favorite,
			&lastOpened,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cloud item: %w", err)
		}

		parsed, err := shelf.ParseDownloadStatus(status)
		if err != nil {
			return nil, fmt.Errorf("cloud item %s: %w", item.RemoteFileID, err)
		}
		item.DownloadStatus = parsed

		item.FileSize = nullInt64(fileSize)
		item.RemoteModifiedTime = nullString(modifiedTime)
		item.Thumbnail = nullString(thumbnail)
		item.LocalPath = nullString(localPath)
		item.Title = nullString(title)
		item.Author = nullString(author)
		item.Favorite = favorite != 0
		item.LastOpened = nullStringToTime(lastOpened)
		if t, err := parseStoredTime(createdAt); err == nil {
			item.CreatedAt = t
		}
		if t, err := parseStoredTime(updatedAt); err == nil {
			item.UpdatedAt = t
		}

		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cloud items: %w", err)
	}
	return items, nil
}

func scanLocalItems(rows *sql.Rows) ([]*shelf.LocalItem, error) {
	var items []*shelf.LocalItem

	for rows.Next() {
		var item shelf.LocalItem
		var fileSize sql.NullInt64
		var thumbnail, title, author sql.NullString
		var favorite int
		var lastOpened sql.NullString
		var importedAt string

		err := rows.Scan(
			&item.ID,
			&item.FilePath,
			&item.OriginalPath,
			&item.FileName,
			&fileSize,
			&thumbnail,
			&title,
			&author,
			&favorite,
			&lastOpened,
			&importedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan local item: %w", err)
		}

		item.FileSize = nullInt64(fileSize)
		item.Thumbnail = nullString(thumbnail)
		item.Title = nullString(title)
		item.Author = nullString(author)
		item.Favorite = favorite != 0
		item.LastOpened = nullStringToTime(lastOpened)
		if t, err := parseStoredTime(importedAt); err == nil {
			item.ImportedAt = t
		}

		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating local items: %w", err)
	}
	return items, nil
}
