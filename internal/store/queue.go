package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hondana/hondana/internal/shelf"
)

// Enqueue adds a download job for a remote file, or merges with the
// existing job for the same file.
//
// Merge rules: priority takes the maximum of old and new; a job in a
// terminal state (completed, error, cancelled) is revived to queued
// with progress and error cleared; a queued or processing job keeps its
// status and progress. The row id is stable across merges.
func (db *DB) Enqueue(ctx context.Context, remoteFileID, fileName string, priority int) (int64, error) {
	query := `
	INSERT INTO download_queue (remote_file_id, file_name, priority, status, queued_at)
	VALUES (?, ?, ?, 'queued', ?)
	ON CONFLICT(remote_file_id) DO UPDATE SET
		priority = MAX(excluded.priority, download_queue.priority),
		status = CASE
			WHEN download_queue.status IN ('completed', 'error', 'cancelled') THEN 'queued'
			ELSE download_queue.status
		END,
		download_progress = CASE
			WHEN download_queue.status IN ('completed', 'error', 'cancelled') THEN 0
			ELSE download_queue.download_progress
		END,
		error_message = CASE
			WHEN download_queue.status IN ('completed', 'error', 'cancelled') THEN NULL
			ELSE download_queue.error_message
		END,
		queued_at = CASE
			WHEN download_queue.status IN ('completed', 'error', 'cancelled') THEN excluded.queued_at
			ELSE download_queue.queued_at
		END
	`
	_, err := db.conn.ExecContext(ctx, query, remoteFileID, fileName, priority, now())
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s: %w", remoteFileID, err)
	}

	// LastInsertId is unreliable on the upsert path, read the row back.
	var id int64
	err = db.conn.QueryRowContext(ctx,
		`SELECT id FROM download_queue WHERE remote_file_id = ?`, remoteFileID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read back queue id for %s: %w", remoteFileID, err)
	}
	return id, nil
}

// EnqueueAllPending queues every cloud item with no local copy that
// has no live queue job. Items whose last attempt failed are picked up
// again. Returns the number of jobs created or revived.
func (db *DB) EnqueueAllPending(ctx context.Context) (int, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO download_queue (remote_file_id, file_name, priority, status, queued_at)
		SELECT c.remote_file_id, c.file_name, 0, 'queued', ?
		FROM cloud_items c
		WHERE c.local_path IS NULL
		AND c.remote_file_id NOT IN (
			SELECT remote_file_id FROM download_queue
			WHERE status IN ('queued', 'processing')
		)
		ON CONFLICT(remote_file_id) DO UPDATE SET
			status = 'queued',
			download_progress = 0,
			error_message = NULL,
			queued_at = excluded.queued_at
	`, now())
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue pending items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count enqueued items: %w", err)
	}
	return int(n), nil
}

// NextQueued returns the next job to run: highest priority first, then
// oldest queued_at. Returns (nil, nil) when the queue is drained.
func (db *DB) NextQueued(ctx context.Context) (*shelf.QueuedDownload, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM download_queue
		WHERE status = 'queued'
		ORDER BY priority DESC, queued_at ASC
		LIMIT 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get next queued item: %w", err)
	}
	defer rows.Close()

	jobs, err := scanQueuedDownloads(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

// ProcessingItem returns the job currently marked processing, or
// (nil, nil) when no download is in flight.
func (db *DB) ProcessingItem(ctx context.Context) (*shelf.QueuedDownload, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM download_queue
		WHERE status = 'processing'
		LIMIT 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get processing item: %w", err)
	}
	defer rows.Close()

	jobs, err := scanQueuedDownloads(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

// QueueItems returns all jobs, dispatch order first within live
// statuses, then terminal rows newest first.
func (db *DB) QueueItems(ctx context.Context) ([]*shelf.QueuedDownload, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM download_queue
		ORDER BY
			CASE status
				WHEN 'processing' THEN 0
				WHEN 'queued' THEN 1
				ELSE 2
			END,
			priority DESC, queued_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	return scanQueuedDownloads(rows)
}

// QueueItemByRemoteID retrieves the job for a remote file.
// Returns (nil, nil) if no such job exists.
func (db *DB) QueueItemByRemoteID(ctx context.Context, remoteFileID string) (*shelf.QueuedDownload, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM download_queue WHERE remote_file_id = ?
	`, remoteFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item %s: %w", remoteFileID, err)
	}
	defer rows.Close()

	jobs, err := scanQueuedDownloads(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

// MarkProcessing transitions a job to processing and stamps started_at.
func (db *DB) MarkProcessing(ctx context.Context, jobID int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE download_queue SET status = 'processing', started_at = ? WHERE id = ?
	`, now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job %d processing: %w", jobID, err)
	}
	return nil
}

// MarkTerminal transitions a job to a terminal status and stamps
// completed_at. errMessage is stored only for error results.
func (db *DB) MarkTerminal(ctx context.Context, jobID int64, status shelf.QueueStatus, errMessage *string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	if status != shelf.QueueError {
		errMessage = nil
	}

	_, err := db.conn.ExecContext(ctx, `
		UPDATE download_queue SET status = ?, error_message = ?, completed_at = ? WHERE id = ?
	`, status.String(), errMessage, now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job %d %s: %w", jobID, status, err)
	}
	return nil
}

// UpdateQueueProgress records transfer progress for a job. Monotonic
// non-decreasing, same as the catalog side.
func (db *DB) UpdateQueueProgress(ctx context.Context, jobID int64, progress float64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE download_queue SET download_progress = MAX(download_progress, ?) WHERE id = ?
	`, progress, jobID)
	if err != nil {
		return fmt.Errorf("failed to update progress for job %d: %w", jobID, err)
	}
	return nil
}

// RemoveQueueItem deletes the job for a file. Returns false when the
// file had no job.
func (db *DB) RemoveQueueItem(ctx context.Context, remoteFileID string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM download_queue WHERE remote_file_id = ?`, remoteFileID)
	if err != nil {
		return false, fmt.Errorf("failed to remove queue item %s: %w", remoteFileID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count removed queue items: %w", err)
	}
	return n > 0, nil
}

// ClearQueued removes every job still waiting. The in-flight job, if
// any, is untouched; cancel it through the pipeline instead. Returns
// the number of rows removed.
func (db *DB) ClearQueued(ctx context.Context) (int, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM download_queue WHERE status = 'queued'`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear queued items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared items: %w", err)
	}
	return int(n), nil
}

// PendingCount returns the number of jobs still in flight or waiting.
func (db *DB) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM download_queue WHERE status IN ('queued', 'processing')
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending items: %w", err)
	}
	return n, nil
}

// ResetStuckProcessing reverts processing jobs back to queued with
// started_at cleared. A processing row found at startup belonged to a
// crashed run; its work restarts from scratch. Returns the number of
// rows requeued.
func (db *DB) ResetStuckProcessing(ctx context.Context) (int, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE download_queue SET
			status = 'queued',
			started_at = NULL,
			download_progress = 0
		WHERE status = 'processing'
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck processing items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset items: %w", err)
	}
	return int(n), nil
}

const queueColumns = `id, remote_file_id, file_name, priority, status,
	error_message, download_progress, queued_at, started_at, completed_at`

func scanQueuedDownloads(rows *sql.Rows) ([]*shelf.QueuedDownload, error) {
	var jobs []*shelf.QueuedDownload

	for rows.Next() {
		var job shelf.QueuedDownload
		var status string
		var errMessage sql.NullString
		var queuedAt string
		var startedAt, completedAt sql.NullString

		err := rows.Scan(
			&job.ID,
			&job.RemoteFileID,
			&job.FileName,
			&job.Priority,
			&status,
			&errMessage,
			&job.DownloadProgress,
			&queuedAt,
			&startedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}

		parsed, err := shelf.ParseQueueStatus(status)
		if err != nil {
			return nil, fmt.Errorf("queue item %s: %w", job.RemoteFileID, err)
		}
		job.Status = parsed

		job.ErrorMessage = nullString(errMessage)
		if t, err := parseStoredTime(queuedAt); err == nil {
			job.QueuedAt = t
		}
		job.StartedAt = nullStringToTime(startedAt)
		job.CompletedAt = nullStringToTime(completedAt)

		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue items: %w", err)
	}
	return jobs, nil
}
