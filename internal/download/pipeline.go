package download

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hondana/hondana/internal/shelf"
	"github.com/hondana/hondana/internal/store"
)

// MetadataFunc extracts display metadata from a finished download.
// Any of the returns may be nil when extraction finds nothing.
type MetadataFunc func(path string) (title, author, thumbnail *string, err error)

// Pipeline drains the durable download queue one job at a time and
// keeps the catalog and queue tables consistent through every
// transition.
type Pipeline struct {
	db         *store.DB
	coord      *Coordinator
	exec       *Executor
	libraryDir string
	logger     *log.Logger

	// OnProgress, if set, receives every throttled progress report in
	// addition to the database updates.
	OnProgress func(shelf.Progress)

	// OnStateChange, if set, is called after any queue transition so a
	// UI layer can refresh.
	OnStateChange func()

	// Metadata, if set, runs best effort on each completed file.
	Metadata MetadataFunc
}

// NewPipeline creates a Pipeline storing downloads under libraryDir.
// If logger is nil a default stderr logger is used.
func NewPipeline(db *store.DB, coord *Coordinator, source RemoteSource, libraryDir string, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(os.Stderr, "[download] ", log.LstdFlags)
	}
	return &Pipeline{
		db:         db,
		coord:      coord,
		exec:       NewExecutor(source, logger),
		libraryDir: libraryDir,
		logger:     logger,
	}
}

// Enqueue adds a catalog item to the download queue. The item must
// already exist in the catalog; queue rows are never created for
// unknown files.
func (p *Pipeline) Enqueue(ctx context.Context, remoteFileID string, priority int) (int64, error) {
	item, err := p.db.CloudItemByRemoteID(ctx, remoteFileID)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, fmt.Errorf("cannot queue unknown file %s", remoteFileID)
	}

	id, err := p.db.Enqueue(ctx, remoteFileID, item.FileName, priority)
	if err != nil {
		return 0, err
	}
	p.notifyState()
	return id, nil
}

// EnqueueAllPending queues every undownloaded catalog item that has no live
// job. Returns the number of jobs created.
func (p *Pipeline) EnqueueAllPending(ctx context.Context) (int, error) {
	n, err := p.db.EnqueueAllPending(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.notifyState()
	}
	return n, nil
}

// Cancel requests cancellation of the in-flight transfer for a file.
// Returns false when the file has no active transfer.
func (p *Pipeline) Cancel(remoteFileID string) bool {
	return p.coord.Cancel(remoteFileID)
}

// State returns a snapshot of the pipeline for the UI layer.
func (p *Pipeline) State(ctx context.Context) (*shelf.QueueState, error) {
	current, err := p.db.ProcessingItem(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := p.db.PendingCount(ctx)
	if err != nil {
		return nil, err
	}
	return &shelf.QueueState{
		IsRunning:    p.coord.Running(),
		CurrentItem:  current,
		PendingCount: pending,
	}, nil
}

// ProcessNext runs the highest-priority queued job to completion.
//
// Returns (false, ErrWorkerBusy) when another download holds the
// worker slot, and (false, nil) when the queue is drained. The job's
// own outcome is recorded in the queue row, not returned: a failed or
// cancelled job still counts as processed.
func (p *Pipeline) ProcessNext(ctx context.Context) (bool, error) {
	if !p.coord.TryAcquire() {
		return false, ErrWorkerBusy
	}
	defer p.coord.Release()

	job, err := p.db.NextQueued(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	p.runJob(ctx, job)
	return true, nil
}

// Drain processes queued jobs until the queue is empty, the context is
// done, or the worker slot is taken by someone else. Returns the
// number of jobs processed.
func (p *Pipeline) Drain(ctx context.Context) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		ok, err := p.ProcessNext(ctx)
		if err != nil {
			if errors.Is(err, ErrWorkerBusy) {
				return processed, nil
			}
			return processed, err
		}
		if !ok {
			return processed, nil
		}
		processed++
	}
}

// DownloadOne downloads a single file immediately, queueing it first
// so the job is durable across a crash mid-transfer.
func (p *Pipeline) DownloadOne(ctx context.Context, remoteFileID string) error {
	if !p.coord.TryAcquire() {
		return ErrWorkerBusy
	}
	defer p.coord.Release()

	item, err := p.db.CloudItemByRemoteID(ctx, remoteFileID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("cannot download unknown file %s", remoteFileID)
	}

	jobID, err := p.db.Enqueue(ctx, remoteFileID, item.FileName, 0)
	if err != nil {
		return err
	}
	job, err := p.db.QueueItemByRemoteID(ctx, remoteFileID)
	if err != nil {
		return err
	}
	if job == nil || job.ID != jobID {
		return fmt.Errorf("queue row for %s vanished", remoteFileID)
	}

	p.runJob(ctx, job)

	job, err = p.db.QueueItemByRemoteID(ctx, remoteFileID)
	if err != nil {
		return err
	}
	if job != nil && job.Status == shelf.QueueError && job.ErrorMessage != nil {
		return fmt.Errorf("download of %s failed: %s", remoteFileID, *job.ErrorMessage)
	}
	return nil
}

// RemoveDownload deletes the local copy of a completed item and
// reverts it to pending. An in-flight transfer for the file must be
// cancelled first.
func (p *Pipeline) RemoveDownload(ctx context.Context, remoteFileID string) error {
	if p.coord.Lookup(remoteFileID) != nil {
		return fmt.Errorf("file %s has a transfer in flight, cancel it first", remoteFileID)
	}

	item, err := p.db.CloudItemByRemoteID(ctx, remoteFileID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("unknown file %s", remoteFileID)
	}

	if item.LocalPath != nil {
		if err := os.Remove(*item.LocalPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", *item.LocalPath, err)
		}
	}
	if err := p.db.ResetCloudDownload(ctx, remoteFileID); err != nil {
		return err
	}
	p.notifyState()
	return nil
}

// runJob executes one queue job and records its outcome. The cancel
// flag is registered before any network or status write so a cancel
// request arriving at any point can land.
func (p *Pipeline) runJob(ctx context.Context, job *shelf.QueuedDownload) {
	flag := p.coord.Register(job.RemoteFileID)
	defer p.coord.Unregister(job.RemoteFileID)

	if err := os.MkdirAll(p.libraryDir, 0755); err != nil {
		p.recordError(ctx, job, fmt.Errorf("creating library directory: %w", err))
		return
	}
	destPath := filepath.Join(p.libraryDir, sanitizeFileName(job.FileName))

	if err := p.db.MarkProcessing(ctx, job.ID); err != nil {
		p.logger.Printf("failed to mark job %d processing: %v", job.ID, err)
		return
	}
	if err := p.db.SetCloudDownloadState(ctx, job.RemoteFileID, shelf.DownloadActive, 0, nil); err != nil {
		p.logger.Printf("failed to mark %s downloading: %v", job.RemoteFileID, err)
	}
	p.notifyState()

	err := p.exec.Execute(ctx, job.RemoteFileID, destPath, flag, func(prog shelf.Progress) {
		if err := p.db.UpdateCloudProgress(ctx, job.RemoteFileID, prog.Percent); err != nil {
			p.logger.Printf("progress write for %s failed: %v", job.RemoteFileID, err)
		}
		if err := p.db.UpdateQueueProgress(ctx, job.ID, prog.Percent); err != nil {
			p.logger.Printf("progress write for job %d failed: %v", job.ID, err)
		}
		if p.OnProgress != nil {
			p.OnProgress(prog)
		}
	})

	switch {
	case err == nil:
		p.recordCompleted(ctx, job, destPath)
	case errors.Is(err, ErrCancelled):
		p.recordCancelled(ctx, job, destPath)
	default:
		p.removeStaging(destPath)
		p.recordError(ctx, job, err)
	}
	p.notifyState()
}

func (p *Pipeline) recordCompleted(ctx context.Context, job *shelf.QueuedDownload, destPath string) {
	if err := p.db.SetCloudDownloadState(ctx, job.RemoteFileID, shelf.DownloadCompleted, 100, &destPath); err != nil {
		p.logger.Printf("failed to mark %s completed: %v", job.RemoteFileID, err)
	}
	if err := p.db.MarkTerminal(ctx, job.ID, shelf.QueueCompleted, nil); err != nil {
		p.logger.Printf("failed to finish job %d: %v", job.ID, err)
	}
	p.applyMetadata(ctx, job.RemoteFileID, destPath)
}

func (p *Pipeline) recordCancelled(ctx context.Context, job *shelf.QueuedDownload, destPath string) {
	p.removeStaging(destPath)
	// A cancelled download is pending again, not an error.
	if err := p.db.SetCloudDownloadState(ctx, job.RemoteFileID, shelf.DownloadPending, 0, nil); err != nil {
		p.logger.Printf("failed to revert %s to pending: %v", job.RemoteFileID, err)
	}
	if err := p.db.MarkTerminal(ctx, job.ID, shelf.QueueCancelled, nil); err != nil {
		p.logger.Printf("failed to cancel job %d: %v", job.ID, err)
	}
	p.logger.Printf("cancelled download of %s", job.RemoteFileID)
}

func (p *Pipeline) recordError(ctx context.Context, job *shelf.QueuedDownload, jobErr error) {
	if err := p.db.SetCloudDownloadState(ctx, job.RemoteFileID, shelf.DownloadError, 0, nil); err != nil {
		p.logger.Printf("failed to mark %s errored: %v", job.RemoteFileID, err)
	}
	msg := jobErr.Error()
	if err := p.db.MarkTerminal(ctx, job.ID, shelf.QueueError, &msg); err != nil {
		p.logger.Printf("failed to fail job %d: %v", job.ID, err)
	}
	p.logger.Printf("download of %s failed: %v", job.RemoteFileID, jobErr)
}

func (p *Pipeline) applyMetadata(ctx context.Context, remoteFileID, path string) {
	if p.Metadata == nil {
		return
	}
	title, author, thumbnail, err := p.Metadata(path)
	if err != nil {
		p.logger.Printf("metadata extraction for %s failed: %v", remoteFileID, err)
		return
	}
	if title != nil || author != nil {
		if err := p.db.UpdateCloudMetadata(ctx, remoteFileID, title, author); err != nil {
			p.logger.Printf("metadata write for %s failed: %v", remoteFileID, err)
		}
	}
	if thumbnail != nil {
		if err := p.db.UpdateCloudThumbnail(ctx, remoteFileID, *thumbnail); err != nil {
			p.logger.Printf("thumbnail write for %s failed: %v", remoteFileID, err)
		}
	}
}

func (p *Pipeline) removeStaging(destPath string) {
	staging := StagingPath(destPath)
	if err := os.Remove(staging); err != nil && !os.IsNotExist(err) {
		p.logger.Printf("failed to remove staging file %s: %v", staging, err)
	}
}

func (p *Pipeline) notifyState() {
	if p.OnStateChange != nil {
		p.OnStateChange()
	}
}

// sanitizeFileName strips path separators so a hostile remote name can
// never escape the library directory.
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "unnamed.pdf"
	}
	return name
}
