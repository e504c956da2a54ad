package shelf

import "fmt"

// DownloadStatus is the download state of a cloud catalog item.
type DownloadStatus string

const (
	// DownloadPending means the item has no local copy and no transfer in flight.
	DownloadPending DownloadStatus = "pending"
	// DownloadActive means a transfer is currently writing the local copy.
	DownloadActive DownloadStatus = "downloading"
	// DownloadCompleted means the local copy exists and LocalPath is set.
	DownloadCompleted DownloadStatus = "completed"
	// DownloadError means the last transfer failed and no local copy exists.
	DownloadError DownloadStatus = "error"
)

// ParseDownloadStatus converts a stored string into a DownloadStatus.
// Unknown values are rejected at the persistence boundary.
func ParseDownloadStatus(s string) (DownloadStatus, error) {
	switch DownloadStatus(s) {
	case DownloadPending, DownloadActive, DownloadCompleted, DownloadError:
		return DownloadStatus(s), nil
	default:
		return "", fmt.Errorf("unknown download status %q", s)
	}
}

// String returns the stored representation.
func (s DownloadStatus) String() string { return string(s) }

// QueueStatus is the lifecycle state of a durable download job.
type QueueStatus string

const (
	// QueueQueued means the job is waiting to be picked up.
	QueueQueued QueueStatus = "queued"
	// QueueProcessing means a worker has started the job's transfer.
	QueueProcessing QueueStatus = "processing"
	// QueueCompleted means the transfer finished and the file is on disk.
	QueueCompleted QueueStatus = "completed"
	// QueueError means the transfer failed; ErrorMessage holds the cause.
	QueueError QueueStatus = "error"
	// QueueCancelled means the user cancelled the job; not an error.
	QueueCancelled QueueStatus = "cancelled"
)

// ParseQueueStatus converts a stored string into a QueueStatus.
// Unknown values are rejected at the persistence boundary.
func ParseQueueStatus(s string) (QueueStatus, error) {
	switch QueueStatus(s) {
	case QueueQueued, QueueProcessing, QueueCompleted, QueueError, QueueCancelled:
		return QueueStatus(s), nil
	default:
		return "", fmt.Errorf("unknown queue status %q", s)
	}
}

// String returns the stored representation.
func (s QueueStatus) String() string { return string(s) }

// Terminal reports whether no further progress occurs without a re-enqueue.
func (s QueueStatus) Terminal() bool {
	switch s {
	case QueueCompleted, QueueError, QueueCancelled:
		return true
	default:
		return false
	}
}
