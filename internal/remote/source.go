// Package remote talks to the drive server over HTTP. It implements
// the listing surface the reconciler needs and the streaming surface
// the download pipeline needs.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hondana/hondana/internal/download"
	"github.com/hondana/hondana/internal/shelf"
)

// HTTPSource is a drive client over a plain HTTP API.
//
// Endpoints:
//
//	GET  {base}/folders/{folderID}/files  JSON listing
//	HEAD {base}/files/{fileID}            size probe via Content-Length
//	GET  {base}/files/{fileID}            content stream
type HTTPSource struct {
	baseURL string
	token   string
	client  *http.Client
}

// Option configures an HTTPSource.
type Option func(*HTTPSource)

// WithToken sets a bearer token sent on every request.
func WithToken(token string) Option {
	return func(s *HTTPSource) { s.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *HTTPSource) { s.client = client }
}

// NewHTTPSource creates a client for the drive API at baseURL.
func NewHTTPSource(baseURL string, opts ...Option) *HTTPSource {
	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			// Listing and probe timeout; streams get their own client
			// without a deadline so large files can finish.
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListFolder fetches the file listing of a remote folder.
func (s *HTTPSource) ListFolder(ctx context.Context, folderID string) ([]shelf.RemoteFile, error) {
	endpoint := fmt.Sprintf("%s/folders/%s/files", s.baseURL, url.PathEscape(folderID))
	req, err := s.newRequest(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing folder %s: %w", folderID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("folder %s: %w", folderID, download.ErrRemoteNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing folder %s: unexpected status %s", folderID, resp.Status)
	}

	var files []shelf.RemoteFile
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("decoding listing for folder %s: %w", folderID, err)
	}
	return files, nil
}

// FileSize probes a remote file's size without downloading it.
func (s *HTTPSource) FileSize(ctx context.Context, remoteFileID string) (int64, error) {
	req, err := s.newRequest(ctx, http.MethodHead, s.fileURL(remoteFileID))
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", remoteFileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("file %s: %w", remoteFileID, download.ErrRemoteNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("probing %s: unexpected status %s", remoteFileID, resp.Status)
	}
	if resp.ContentLength < 0 {
		return 0, nil
	}
	return resp.ContentLength, nil
}

// Open starts streaming a remote file's content.
func (s *HTTPSource) Open(ctx context.Context, remoteFileID string) (io.ReadCloser, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.fileURL(remoteFileID))
	if err != nil {
		return nil, err
	}

	// No client timeout on the stream itself; cancellation comes from
	// the context or the pipeline's cancel flag.
	streamClient := &http.Client{Transport: s.client.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening stream for %s: %w", remoteFileID, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("file %s: %w", remoteFileID, download.ErrRemoteNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("opening stream for %s: unexpected status %s", remoteFileID, resp.Status)
	}
	return resp.Body, nil
}

func (s *HTTPSource) fileURL(remoteFileID string) string {
	return fmt.Sprintf("%s/files/%s", s.baseURL, url.PathEscape(remoteFileID))
}

func (s *HTTPSource) newRequest(ctx context.Context, method, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}
