// Event formatting for the dashboard: bridges pipeline and sync
// callbacks to WebSocket broadcast messages.
package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/hondana/hondana/internal/shelf"
)

// ProgressData is the payload of a progress message.
type ProgressData struct {
	RemoteFileID    string  `json:"remote_file_id"`
	Percent         float64 `json:"percent"`
	DownloadedBytes uint64  `json:"downloaded_bytes"`
	TotalBytes      uint64  `json:"total_bytes"`
}

// SyncCompleteData is the payload of a sync_complete message.
type SyncCompleteData struct {
	NewFiles     int           `json:"new_files"`
	UpdatedFiles int           `json:"updated_files"`
	RemovedFiles int           `json:"removed_files"`
	Duration     time.Duration `json:"duration"`
}

// RecoveryData is the payload of a recovery message.
type RecoveryData struct {
	RequeuedJobs      int `json:"requeued_jobs"`
	DemotedDownloads  int `json:"demoted_downloads"`
	ResetCloudItems   int `json:"reset_cloud_items"`
	RemovedLocalItems int `json:"removed_local_items"`
}

// Handler formats service events as dashboard messages. Wire its
// methods into the pipeline and reconciler hooks.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates an event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// OnProgress broadcasts a download progress report.
func (h *Handler) OnProgress(p shelf.Progress) {
	h.send(MessageTypeProgress, ProgressData{
		RemoteFileID:    p.RemoteFileID,
		Percent:         p.Percent,
		DownloadedBytes: p.DownloadedBytes,
		TotalBytes:      p.TotalBytes,
	})
}

// OnQueueChange broadcasts a fresh queue state snapshot.
func (h *Handler) OnQueueChange(state *shelf.QueueState) {
	h.send(MessageTypeQueueUpdate, state)
}

// OnSyncComplete broadcasts the result of a sync pass.
func (h *Handler) OnSyncComplete(res *shelf.SyncResult, duration time.Duration) {
	h.logger.Printf("Sync complete: %d new, %d updated, %d removed in %s",
		res.NewFiles, res.UpdatedFiles, res.RemovedFiles, duration)
	h.send(MessageTypeSyncComplete, SyncCompleteData{
		NewFiles:     res.NewFiles,
		UpdatedFiles: res.UpdatedFiles,
		RemovedFiles: res.RemovedFiles,
		Duration:     duration,
	})
}

// OnRecovery broadcasts recovery or verification results.
func (h *Handler) OnRecovery(data RecoveryData) {
	h.send(MessageTypeRecovery, data)
}

func (h *Handler) send(msgType MessageType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", msgType, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	})
}
