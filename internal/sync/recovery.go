package sync

import (
	"context"
	"log"
	"os"

	"github.com/hondana/hondana/internal/store"
)

// RecoveryStats summarizes one startup recovery pass.
type RecoveryStats struct {
	RequeuedJobs      int `json:"requeued_jobs"`
	DemotedDownloads  int `json:"demoted_downloads"`
	ResetCloudItems   int `json:"reset_cloud_items"`
	RemovedLocalItems int `json:"removed_local_items"`
}

// Recovery restores catalog and queue invariants after an unclean
// shutdown. Run it before the first download is dispatched.
type Recovery struct {
	db     *store.DB
	logger *log.Logger
}

// NewRecovery creates a Recovery.
// If logger is nil a default stderr logger is used.
func NewRecovery(db *store.DB, logger *log.Logger) *Recovery {
	if logger == nil {
		logger = log.New(os.Stderr, "[recovery] ", log.LstdFlags)
	}
	return &Recovery{db: db, logger: logger}
}

// Run executes the full recovery pass: jobs stuck processing are
// requeued, catalog rows stuck downloading are demoted to pending, and
// both item tables are verified against the disk.
func (r *Recovery) Run(ctx context.Context) (*RecoveryStats, error) {
	stats := &RecoveryStats{}

	requeued, err := r.db.ResetStuckProcessing(ctx)
	if err != nil {
		return nil, err
	}
	stats.RequeuedJobs = requeued

	demoted, err := r.db.DemoteStaleDownloading(ctx)
	if err != nil {
		return nil, err
	}
	stats.DemotedDownloads = demoted

	reset, err := r.VerifyCloudFiles(ctx)
	if err != nil {
		return nil, err
	}
	stats.ResetCloudItems = reset

	removed, err := r.VerifyLocalFiles(ctx)
	if err != nil {
		return nil, err
	}
	stats.RemovedLocalItems = removed

	if stats.RequeuedJobs > 0 || stats.DemotedDownloads > 0 || stats.ResetCloudItems > 0 || stats.RemovedLocalItems > 0 {
		r.logger.Printf("recovery: %d jobs requeued, %d downloads demoted, %d cloud items reset, %d local items removed",
			stats.RequeuedJobs, stats.DemotedDownloads, stats.ResetCloudItems, stats.RemovedLocalItems)
	}
	return stats, nil
}

// VerifyCloudFiles checks each completed item's local copy on disk.
// Items whose file vanished go back to pending so they can be
// re-downloaded. Returns the number of items reset.
func (r *Recovery) VerifyCloudFiles(ctx context.Context) (int, error) {
	paths, err := r.db.CompletedCloudPaths(ctx)
	if err != nil {
		return 0, err
	}

	reset := 0
	for remoteFileID, path := range paths {
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := r.db.ResetCloudDownload(ctx, remoteFileID); err != nil {
			return reset, err
		}
		r.logger.Printf("local copy of %s missing, reset to pending", remoteFileID)
		reset++
	}
	return reset, nil
}

// VerifyLocalFiles drops catalog rows for imported files that vanished
// from the managed library. Unlike cloud items there is no remote to
// re-fetch from, so the row goes away entirely. Returns the number of
// rows removed.
func (r *Recovery) VerifyLocalFiles(ctx context.Context) (int, error) {
	items, err := r.db.LocalItems(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, item := range items {
		if _, err := os.Stat(item.FilePath); err == nil {
			continue
		}
		if err := r.db.DeleteLocalItem(ctx, item.ID); err != nil {
			return removed, err
		}
		r.logger.Printf("imported file %s missing, removed from catalog", item.FileName)
		removed++
	}
	return removed, nil
}
