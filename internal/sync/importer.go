package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hondana/hondana/internal/shelf"
	"github.com/hondana/hondana/internal/store"
)

var (
	// ErrAlreadyImported is returned when the source file was imported
	// before, keyed by its original path.
	ErrAlreadyImported = errors.New("file already imported")

	// ErrNotPDF is returned for files without a .pdf extension.
	ErrNotPDF = errors.New("not a PDF file")
)

// MetadataFunc extracts display metadata from an imported file.
type MetadataFunc func(path string) (title, author, thumbnail *string, err error)

// Importer copies user files into the managed library directory and
// registers them in the catalog. The original file is never touched.
type Importer struct {
	db         *store.DB
	libraryDir string
	logger     *log.Logger

	// Metadata, if set, runs best effort on each imported file.
	Metadata MetadataFunc
}

// NewImporter creates an Importer copying files into libraryDir.
// If logger is nil a default stderr logger is used.
func NewImporter(db *store.DB, libraryDir string, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New(os.Stderr, "[import] ", log.LstdFlags)
	}
	return &Importer{
		db:         db,
		libraryDir: libraryDir,
		logger:     logger,
	}
}

// ImportFile copies one PDF into the library and registers it.
//
// Re-importing the same original path returns ErrAlreadyImported. A
// name collision inside the library gets a counter suffix, the source
// file is never overwritten or modified.
func (im *Importer) ImportFile(ctx context.Context, srcPath string) (*shelf.LocalItem, error) {
	if !strings.EqualFold(filepath.Ext(srcPath), ".pdf") {
		return nil, fmt.Errorf("%s: %w", srcPath, ErrNotPDF)
	}

	existing, err := im.db.LocalItemByOriginalPath(ctx, srcPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%s: %w", srcPath, ErrAlreadyImported)
	}

	if err := os.MkdirAll(im.libraryDir, 0755); err != nil {
		return nil, fmt.Errorf("creating library directory: %w", err)
	}

	destPath, fileName, err := im.pickDestination(filepath.Base(srcPath))
	if err != nil {
		return nil, err
	}

	size, err := copyFile(srcPath, destPath)
	if err != nil {
		return nil, fmt.Errorf("copying %s: %w", srcPath, err)
	}

	item := &shelf.LocalItem{
		FilePath:     destPath,
		OriginalPath: srcPath,
		FileName:     fileName,
		FileSize:     &size,
	}
	if err := im.db.InsertLocalItem(ctx, item); err != nil {
		// Keep the library consistent with the catalog
		_ = os.Remove(destPath)
		return nil, err
	}

	im.applyMetadata(ctx, item)
	im.logger.Printf("imported %s as %s", srcPath, fileName)
	return item, nil
}

// ImportDir imports every PDF directly inside dir. Files already
// imported and non-PDF files count as skipped, individual copy
// failures count as errors and do not stop the pass.
func (im *Importer) ImportDir(ctx context.Context, dir string) (*shelf.ImportResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	result := &shelf.ImportResult{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		_, err := im.ImportFile(ctx, filepath.Join(dir, entry.Name()))
		switch {
		case err == nil:
			result.Imported++
		case errors.Is(err, ErrAlreadyImported), errors.Is(err, ErrNotPDF):
			result.Skipped++
		default:
			im.logger.Printf("import of %s failed: %v", entry.Name(), err)
			result.Errors++
		}
	}
	return result, nil
}

// DeleteItem removes an imported file from the library and its catalog
// row. Deleting an unknown id is a no-op.
func (im *Importer) DeleteItem(ctx context.Context, id int64) error {
	item, err := im.db.LocalItemByID(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return nil
	}

	if err := os.Remove(item.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", item.FilePath, err)
	}
	return im.db.DeleteLocalItem(ctx, id)
}

// pickDestination finds a free file name in the library, adding a
// counter suffix on collision.
func (im *Importer) pickDestination(baseName string) (string, string, error) {
	ext := filepath.Ext(baseName)
	stem := strings.TrimSuffix(baseName, ext)

	name := baseName
	for i := 1; ; i++ {
		dest := filepath.Join(im.libraryDir, name)
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			return dest, name, nil
		} else if err != nil {
			return "", "", fmt.Errorf("probing %s: %w", dest, err)
		}
		if i > 1000 {
			return "", "", fmt.Errorf("no free name for %s in library", baseName)
		}
		name = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
}

func (im *Importer) applyMetadata(ctx context.Context, item *shelf.LocalItem) {
	if im.Metadata == nil {
		return
	}
	title, author, thumbnail, err := im.Metadata(item.FilePath)
	if err != nil {
		im.logger.Printf("metadata extraction for %s failed: %v", item.FileName, err)
		return
	}
	if title != nil || author != nil {
		if err := im.db.UpdateLocalMetadata(ctx, item.ID, title, author); err != nil {
			im.logger.Printf("metadata write for %s failed: %v", item.FileName, err)
		}
	}
	if thumbnail != nil {
		if err := im.db.UpdateLocalThumbnail(ctx, item.ID, *thumbnail); err != nil {
			im.logger.Printf("thumbnail write for %s failed: %v", item.FileName, err)
		}
	}
}

func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return 0, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return 0, err
	}
	return n, nil
}
