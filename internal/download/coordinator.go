// Package download runs the persistent download pipeline: a durable
// queue in the store drained one job at a time, with cooperative
// per-file cancellation.
package download

import (
	"sync"
	"sync/atomic"
)

// CancelFlag is a cooperative cancellation signal for one transfer.
// The executor polls it between chunks; setting it never interrupts a
// write in progress.
type CancelFlag struct {
	cancelled atomic.Bool
}

// Cancel requests that the transfer stop at the next check point.
func (f *CancelFlag) Cancel() {
	f.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested.
func (f *CancelFlag) Cancelled() bool {
	return f.cancelled.Load()
}

// Coordinator serializes downloads and tracks in-flight transfers.
//
// The worker gate admits at most one download at a time. The registry
// maps a remote file id to its CancelFlag from just before the first
// network call until the transfer's bookkeeping is done, so a cancel
// request can always find its target.
type Coordinator struct {
	busy atomic.Bool

	mu     sync.Mutex
	active map[string]*CancelFlag
}

// NewCoordinator returns a Coordinator with no active transfers.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		active: make(map[string]*CancelFlag),
	}
}

// TryAcquire attempts to take the single worker slot without blocking.
// Returns false if another download is already running.
func (c *Coordinator) TryAcquire() bool {
	return c.busy.CompareAndSwap(false, true)
}

// Release frees the worker slot.
func (c *Coordinator) Release() {
	c.busy.Store(false)
}

// Running reports whether a download currently holds the worker slot.
func (c *Coordinator) Running() bool {
	return c.busy.Load()
}

// Register creates and tracks the cancel flag for a transfer. Must be
// called before any network activity for the file so cancellation has
// no blind window.
func (c *Coordinator) Register(remoteFileID string) *CancelFlag {
	flag := &CancelFlag{}
	c.mu.Lock()
	c.active[remoteFileID] = flag
	c.mu.Unlock()
	return flag
}

// Unregister drops the cancel flag for a transfer. Idempotent.
func (c *Coordinator) Unregister(remoteFileID string) {
	c.mu.Lock()
	delete(c.active, remoteFileID)
	c.mu.Unlock()
}

// Cancel sets the cancel flag for an in-flight transfer. Returns false
// if the file has no active transfer, which callers treat as "nothing
// to cancel", not an error.
func (c *Coordinator) Cancel(remoteFileID string) bool {
	c.mu.Lock()
	flag, ok := c.active[remoteFileID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	flag.Cancel()
	return true
}

// Lookup returns the cancel flag for a transfer, or nil.
func (c *Coordinator) Lookup(remoteFileID string) *CancelFlag {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[remoteFileID]
}
