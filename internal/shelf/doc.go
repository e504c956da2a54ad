// Package shelf defines the data model shared by the bookshelf core.
//
// The bookshelf is split into two catalogs:
//   - cloud items: PDFs known to exist on the remote drive, downloaded on demand
//   - local items: PDFs imported from the local filesystem (no remote counterpart)
//
// Download lifecycle state lives in two places with different owners:
// the catalog row's DownloadStatus (owned by the download pipeline) and
// the durable queue row's QueueStatus (owned by the queue store). Both
// are closed enumerations; unknown values read from the database are an
// error, never silently defaulted.
package shelf
