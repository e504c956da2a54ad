package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/hondana/hondana/internal/shelf"
)

var (
	// ErrCancelled is returned when a transfer stops at a cancel check
	// point. It is a user action, not a failure.
	ErrCancelled = errors.New("download cancelled")

	// ErrRemoteNotFound is returned when the remote reports the file
	// does not exist. Retrying cannot help.
	ErrRemoteNotFound = errors.New("remote file not found")

	// ErrWorkerBusy is returned when a download is requested while
	// another transfer holds the worker slot.
	ErrWorkerBusy = errors.New("another download is already running")
)

// RemoteSource is the remote drive surface the executor needs: a size
// probe and a content stream.
type RemoteSource interface {
	// FileSize returns the size in bytes of a remote file.
	// Implementations return an error wrapping ErrRemoteNotFound when
	// the file does not exist.
	FileSize(ctx context.Context, remoteFileID string) (int64, error)

	// Open returns the content stream of a remote file. The caller
	// closes it.
	Open(ctx context.Context, remoteFileID string) (io.ReadCloser, error)
}

// StagingPath returns the temporary location a transfer writes to
// before the atomic rename to its final destination.
func StagingPath(destPath string) string {
	return destPath + ".partial"
}

const (
	copyChunkSize    = 64 * 1024
	progressInterval = 100 * time.Millisecond
)

// Executor performs a single streaming transfer to disk.
//
// It never retries; retry policy is a re-enqueue decision made above
// it. On any non-nil error the staging file may remain on disk and the
// caller removes it.
type Executor struct {
	source RemoteSource
	logger *log.Logger
}

// NewExecutor creates an Executor reading from the given source.
// If logger is nil a default stderr logger is used.
func NewExecutor(source RemoteSource, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.New(os.Stderr, "[download] ", log.LstdFlags)
	}
	return &Executor{
		source: source,
		logger: logger,
	}
}

// Execute streams a remote file to destPath.
//
// The transfer writes to StagingPath(destPath) and renames into place
// only after the stream is fully drained, so destPath either does not
// exist or holds a complete file. Cancellation is checked before the
// size probe, before opening the stream, and after every chunk.
//
// onProgress, if non-nil, receives throttled progress reports plus one
// final report after the last byte. When the remote size is unknown,
// reports carry Percent 0 until the final 100.
func (e *Executor) Execute(ctx context.Context, remoteFileID, destPath string, flag *CancelFlag, onProgress func(shelf.Progress)) error {
	if flag != nil && flag.Cancelled() {
		return ErrCancelled
	}

	// Size probe is best effort: a missing file aborts, any other
	// failure downgrades to an unknown total.
	var total uint64
	size, err := e.source.FileSize(ctx, remoteFileID)
	switch {
	case errors.Is(err, ErrRemoteNotFound):
		return fmt.Errorf("probing %s: %w", remoteFileID, err)
	case err != nil:
		e.logger.Printf("size probe for %s failed, continuing without total: %v", remoteFileID, err)
	case size > 0:
		total = uint64(size)
	}

	if flag != nil && flag.Cancelled() {
		return ErrCancelled
	}

	stream, err := e.source.Open(ctx, remoteFileID)
	if err != nil {
		return fmt.Errorf("opening stream for %s: %w", remoteFileID, err)
	}
	defer stream.Close()

	staging := StagingPath(destPath)
	out, err := os.Create(staging)
	if err != nil {
		return fmt.Errorf("creating staging file: %w", err)
	}

	written, copyErr := e.copyChunks(remoteFileID, out, stream, flag, total, onProgress)

	if err := out.Close(); err != nil && copyErr == nil {
		copyErr = fmt.Errorf("closing staging file: %w", err)
	}
	if copyErr != nil {
		return copyErr
	}

	if err := os.Rename(staging, destPath); err != nil {
		return fmt.Errorf("finalizing %s: %w", destPath, err)
	}

	if onProgress != nil {
		onProgress(shelf.Progress{
			RemoteFileID:    remoteFileID,
			Percent:         100,
			DownloadedBytes: written,
			TotalBytes:      total,
		})
	}

	e.logger.Printf("downloaded %s (%d bytes) to %s", remoteFileID, written, destPath)
	return nil
}

func (e *Executor) copyChunks(remoteFileID string, out io.Writer, in io.Reader, flag *CancelFlag, total uint64, onProgress func(shelf.Progress)) (uint64, error) {
	buf := make([]byte, copyChunkSize)
	var written uint64
	lastReport := time.Now()

	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("writing chunk: %w", err)
			}
			written += uint64(n)

			if onProgress != nil && time.Since(lastReport) >= progressInterval {
				lastReport = time.Now()
				onProgress(shelf.Progress{
					RemoteFileID:    remoteFileID,
					Percent:         percentOf(written, total),
					DownloadedBytes: written,
					TotalBytes:      total,
				})
			}
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("reading stream for %s: %w", remoteFileID, readErr)
		}

		if flag != nil && flag.Cancelled() {
			return written, ErrCancelled
		}
	}
}

func percentOf(written, total uint64) float64 {
	if total == 0 {
		return 0
	}
	p := float64(written) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}
