package shelf

import "time"

// CloudItem is a file known to exist on the remote drive.
//
// LocalPath is non-nil iff DownloadStatus is DownloadCompleted; startup
// recovery restores the invariant when the file vanished from disk.
type CloudItem struct {
	ID                 int64           `json:"id"`
	RemoteFileID       string          `json:"remote_file_id"`
	RemoteFolderID     string          `json:"remote_folder_id"`
	FileName           string          `json:"file_name"`
	FileSize           *int64          `json:"file_size,omitempty"`
	RemoteModifiedTime *string         `json:"remote_modified_time,omitempty"`
	Thumbnail          *string         `json:"thumbnail,omitempty"`
	LocalPath          *string         `json:"local_path,omitempty"`
	DownloadStatus     DownloadStatus  `json:"download_status"`
	DownloadProgress   float64         `json:"download_progress"`
	Title              *string         `json:"title,omitempty"`
	Author             *string         `json:"author,omitempty"`
	Favorite           bool            `json:"favorite"`
	LastOpened         *time.Time      `json:"last_opened,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// LocalItem is a file imported directly from the local filesystem.
//
// FilePath always refers to the copy owned by this system inside the
// managed library directory, never the user's original file.
type LocalItem struct {
	ID           int64      `json:"id"`
	FilePath     string     `json:"file_path"`
	OriginalPath string     `json:"original_path"`
	FileName     string     `json:"file_name"`
	FileSize     *int64     `json:"file_size,omitempty"`
	Thumbnail    *string    `json:"thumbnail,omitempty"`
	Title        *string    `json:"title,omitempty"`
	Author       *string    `json:"author,omitempty"`
	Favorite     bool       `json:"favorite"`
	LastOpened   *time.Time `json:"last_opened,omitempty"`
	ImportedAt   time.Time  `json:"imported_at"`
}

// SyncFolder is a remote folder the user keeps mirrored.
// An inactive folder stops syncing but already-downloaded files are kept.
type SyncFolder struct {
	FolderID     string     `json:"folder_id"`
	FolderName   string     `json:"folder_name"`
	Active       bool       `json:"active"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// QueuedDownload is one durable job in the download pipeline.
// At most one row exists per RemoteFileID; terminal rows are reused,
// not duplicated, when the same file is re-queued.
type QueuedDownload struct {
	ID               int64       `json:"id"`
	RemoteFileID     string      `json:"remote_file_id"`
	FileName         string      `json:"file_name"`
	Priority         int         `json:"priority"`
	Status           QueueStatus `json:"status"`
	ErrorMessage     *string     `json:"error_message,omitempty"`
	DownloadProgress float64     `json:"download_progress"`
	QueuedAt         time.Time   `json:"queued_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

// RemoteFile is one entry of a remote folder listing.
type RemoteFile struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Size         *int64  `json:"size,omitempty"`
	ModifiedTime *string `json:"modified_time,omitempty"`
}

// QueueState is the pipeline snapshot consumed by the UI layer.
type QueueState struct {
	IsRunning    bool            `json:"is_running"`
	CurrentItem  *QueuedDownload `json:"current_item,omitempty"`
	PendingCount int             `json:"pending_count"`
}

// Progress is a throttled download progress report.
type Progress struct {
	RemoteFileID    string  `json:"remote_file_id"`
	Percent         float64 `json:"percent"`
	DownloadedBytes uint64  `json:"downloaded_bytes"`
	TotalBytes      uint64  `json:"total_bytes"` // 0 when the remote size is unknown
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	NewFiles     int `json:"new_files"`
	UpdatedFiles int `json:"updated_files"`
	RemovedFiles int `json:"removed_files"`
}

// ImportResult summarizes a directory import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}
