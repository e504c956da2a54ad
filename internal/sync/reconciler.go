// Package sync reconciles the local catalog with remote folder
// listings, recovers state after a crash, and imports local files into
// the managed library.
package sync

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hondana/hondana/internal/shelf"
	"github.com/hondana/hondana/internal/store"
)

// Lister is the remote drive surface the reconciler needs: a folder
// listing.
type Lister interface {
	ListFolder(ctx context.Context, folderID string) ([]shelf.RemoteFile, error)
}

// Reconciler mirrors active remote folders into the catalog.
//
// A sync pass only refreshes listing fields. Download state belongs to
// the pipeline and survives any number of sync passes untouched.
type Reconciler struct {
	db     *store.DB
	lister Lister
	logger *log.Logger
}

// NewReconciler creates a Reconciler.
// If logger is nil a default stderr logger is used.
func NewReconciler(db *store.DB, lister Lister, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Reconciler{
		db:     db,
		lister: lister,
		logger: logger,
	}
}

// SyncFolder reconciles one folder against its remote listing and
// stamps the folder's sync time.
func (r *Reconciler) SyncFolder(ctx context.Context, folderID string) (*shelf.SyncResult, error) {
	files, err := r.lister.ListFolder(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("listing folder %s: %w", folderID, err)
	}

	result := &shelf.SyncResult{}
	for _, f := range files {
		inserted, err := r.db.UpsertCloudItem(ctx, f.ID, folderID, f.Name, f.Size, f.ModifiedTime)
		if err != nil {
			return nil, err
		}
		if inserted {
			result.NewFiles++
		} else {
			result.UpdatedFiles++
		}
	}

	if err := r.db.TouchFolderSynced(ctx, folderID); err != nil {
		return nil, err
	}

	r.logger.Printf("synced folder %s: %d new, %d updated", folderID, result.NewFiles, result.UpdatedFiles)
	return result, nil
}

// SyncAll reconciles every active folder, then prunes undownloaded
// items belonging to folders no longer in the active set.
//
// A folder whose listing fails is skipped, not fatal: one unreachable
// folder must not block the rest, and skipping it also keeps its items
// out of the prune.
func (r *Reconciler) SyncAll(ctx context.Context) (*shelf.SyncResult, error) {
	folders, err := r.db.ActiveSyncFolders(ctx)
	if err != nil {
		return nil, err
	}

	total := &shelf.SyncResult{}
	for _, folder := range folders {
		res, err := r.SyncFolder(ctx, folder.FolderID)
		if err != nil {
			r.logger.Printf("skipping folder %s: %v", folder.FolderID, err)
			continue
		}
		total.NewFiles += res.NewFiles
		total.UpdatedFiles += res.UpdatedFiles
	}

	removed, err := r.PruneInactiveFolders(ctx)
	if err != nil {
		return nil, err
	}
	total.RemovedFiles = removed
	return total, nil
}

// PruneInactiveFolders removes undownloaded items whose folder left
// the active set. Completed items always survive.
//
// With no active folders at all this removes nothing; clearing the
// whole catalog is the explicit PruneAllPending operation.
func (r *Reconciler) PruneInactiveFolders(ctx context.Context) (int, error) {
	folders, err := r.db.ActiveSyncFolders(ctx)
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(folders))
	for _, f := range folders {
		ids = append(ids, f.FolderID)
	}

	removed, err := r.db.PruneCloudItems(ctx, ids)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		r.logger.Printf("pruned %d items from inactive folders", removed)
	}
	return removed, nil
}

// PruneAllPending removes every undownloaded item regardless of
// folder. Exposed only behind an explicit user confirmation.
func (r *Reconciler) PruneAllPending(ctx context.Context) (int, error) {
	removed, err := r.db.DeleteAllPendingCloudItems(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		r.logger.Printf("removed all %d pending items", removed)
	}
	return removed, nil
}
