// Package watcher keeps the catalog honest while the service runs: it
// watches the library directory for deletions and re-verifies the
// catalog against the disk, so an item whose file vanishes goes back
// to pending without waiting for a restart.
package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	shelfsync "github.com/hondana/hondana/internal/sync"
)

// Config holds configuration for the watcher.
type Config struct {
	// VerifyInterval is how often to run a full disk verification even
	// without file events. Deletions on network mounts can be missed
	// by fsnotify.
	VerifyInterval time.Duration

	// DebounceInterval is how long to wait after a burst of file
	// events before verifying, so a bulk delete triggers one pass.
	DebounceInterval time.Duration

	// Logger for watcher activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		VerifyInterval:   5 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[watcher] ", log.LstdFlags),
	}
}

// Watcher monitors the library directory and re-runs disk verification
// when files disappear.
type Watcher struct {
	recovery   *shelfsync.Recovery
	libraryDir string
	config     *Config

	watcher *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// OnVerify, if set, is called after each verification pass that
	// changed anything.
	OnVerify func(resetCloud, removedLocal int)
}

// New creates a Watcher over the given library directory.
func New(recovery *shelfsync.Recovery, libraryDir string, config *Config) (*Watcher, error) {
	if recovery == nil {
		return nil, fmt.Errorf("recovery cannot be nil")
	}
	if libraryDir == "" {
		return nil, fmt.Errorf("libraryDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		recovery:   recovery,
		libraryDir: libraryDir,
		config:     config,
		watcher:    fsw,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins watching. Blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.libraryDir, 0755); err != nil {
		return fmt.Errorf("creating library directory: %w", err)
	}
	if err := w.watcher.Add(w.libraryDir); err != nil {
		return fmt.Errorf("failed to watch library directory: %w", err)
	}

	w.config.Logger.Printf("Watching: %s", w.libraryDir)

	w.wg.Add(2)
	go w.watchFileEvents()
	go w.verifyLoop()

	select {
	case <-ctx.Done():
		return w.Stop()
	case <-w.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop() error {
	w.cancel()

	if err := w.watcher.Close(); err != nil {
		w.config.Logger.Printf("Error closing watcher: %v", err)
	}

	w.wg.Wait()
	return nil
}

// watchFileEvents monitors filesystem events and flags a pending verify.
func (w *Watcher) watchFileEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only deletions invalidate catalog state
			if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".pdf") {
				continue
			}

			w.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			w.markPending()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) markPending() {
	w.pendingMu.Lock()
	w.pending = true
	w.pendingMu.Unlock()
}

func (w *Watcher) takePending() bool {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	p := w.pending
	w.pending = false
	return p
}

// verifyLoop runs debounced event-driven verifications plus a periodic
// full pass.
func (w *Watcher) verifyLoop() {
	defer w.wg.Done()

	debounce := time.NewTicker(w.config.DebounceInterval)
	defer debounce.Stop()
	periodic := time.NewTicker(w.config.VerifyInterval)
	defer periodic.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-debounce.C:
			if w.takePending() {
				w.verify()
			}

		case <-periodic.C:
			w.verify()
		}
	}
}

// verify re-checks the catalog against the disk.
func (w *Watcher) verify() {
	reset, err := w.recovery.VerifyCloudFiles(w.ctx)
	if err != nil {
		w.config.Logger.Printf("Cloud verification failed: %v", err)
		return
	}
	removed, err := w.recovery.VerifyLocalFiles(w.ctx)
	if err != nil {
		w.config.Logger.Printf("Local verification failed: %v", err)
		return
	}

	if reset == 0 && removed == 0 {
		return
	}
	w.config.Logger.Printf("Verification: %d cloud items reset, %d local items removed", reset, removed)
	if w.OnVerify != nil {
		w.OnVerify(reset, removed)
	}
}
