package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hondana/hondana/internal/download"
	"github.com/hondana/hondana/internal/shelf"
)

func testServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/folders/folder-1/files", func(w http.ResponseWriter, r *http.Request) {
		var listing []shelf.RemoteFile
		for id, data := range files {
			size := int64(len(data))
			listing = append(listing, shelf.RemoteFile{ID: id, Name: id + ".pdf", Size: &size})
		}
		_ = json.NewEncoder(w).Encode(listing)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/files/"):]
		data, ok := files[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestListFolder tests listing decode
func TestListFolder(t *testing.T) {
	srv := testServer(t, map[string][]byte{"file-1": []byte("pdf-data")})
	source := NewHTTPSource(srv.URL)

	files, err := source.ListFolder(context.Background(), "folder-1")
	if err != nil {
		t.Fatalf("ListFolder() failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1", len(files))
	}
	if files[0].ID != "file-1" {
		t.Errorf("ID = %q, want file-1", files[0].ID)
	}
	if files[0].Size == nil || *files[0].Size != int64(len("pdf-data")) {
		t.Errorf("Size = %v, want %d", files[0].Size, len("pdf-data"))
	}
}

// TestListFolder_NotFound tests the missing-folder sentinel
func TestListFolder_NotFound(t *testing.T) {
	srv := testServer(t, nil)
	source := NewHTTPSource(srv.URL)

	_, err := source.ListFolder(context.Background(), "no-such-folder")
	if !errors.Is(err, download.ErrRemoteNotFound) {
		t.Errorf("ListFolder() = %v, want ErrRemoteNotFound", err)
	}
}

// TestFileSize tests the HEAD probe
func TestFileSize(t *testing.T) {
	content := []byte("some pdf bytes")
	srv := testServer(t, map[string][]byte{"file-1": content})
	source := NewHTTPSource(srv.URL)

	size, err := source.FileSize(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("FileSize() failed: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("FileSize() = %d, want %d", size, len(content))
	}
}

// TestFileSize_NotFound tests the missing-file sentinel
func TestFileSize_NotFound(t *testing.T) {
	srv := testServer(t, nil)
	source := NewHTTPSource(srv.URL)

	_, err := source.FileSize(context.Background(), "missing")
	if !errors.Is(err, download.ErrRemoteNotFound) {
		t.Errorf("FileSize() = %v, want ErrRemoteNotFound", err)
	}
}

// TestOpen tests the content stream
func TestOpen(t *testing.T) {
	content := []byte("streamed pdf content")
	srv := testServer(t, map[string][]byte{"file-1": content})
	source := NewHTTPSource(srv.URL)

	stream, err := source.Open(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer stream.Close()

	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("reading stream failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("stream = %q, want %q", got, content)
	}
}

// TestToken tests that the bearer token is attached
func TestToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]shelf.RemoteFile{})
	}))
	t.Cleanup(srv.Close)

	source := NewHTTPSource(srv.URL, WithToken("secret-token"))
	if _, err := source.ListFolder(context.Background(), "folder-1"); err != nil {
		t.Fatalf("ListFolder() failed: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
}
