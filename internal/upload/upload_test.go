package upload_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nullexa/nullexa/internal/upload"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func newTestClient(baseURL string) *upload.Client {
	logger := zerolog.Nop()
	return upload.New(baseURL, &logger)
}

// TestUpload verifies the happy path: the file arrives as a multipart part
// and the returned reference carries the server's filename and URL plus the
// local size.
func TestUpload(t *testing.T) {
	const content = "file payload bytes"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile failed: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer f.Close()
		if header.Filename != "notes.txt" {
			t.Errorf("Filename mismatch: got %q", header.Filename)
		}
		data, _ := io.ReadAll(f)
		if string(data) != content {
			t.Errorf("Payload mismatch: got %q", data)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true,"filename":"1700000000-notes.txt","url":"/files/1700000000-notes.txt"}`)
	}))
	defer srv.Close()

	path := writeTempFile(t, "notes.txt", content)
	info, err := newTestClient(srv.URL).Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if info.Name != "1700000000-notes.txt" {
		t.Errorf("Name mismatch: got %q", info.Name)
	}
	if info.URL != "/files/1700000000-notes.txt" {
		t.Errorf("URL mismatch: got %q", info.URL)
	}
	if info.Size != int64(len(content)) {
		t.Errorf("Size mismatch: got %d, want %d", info.Size, len(content))
	}
}

// TestUploadRejected verifies that a server-side rejection surfaces its error
// text instead of a file reference.
func TestUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInsufficientStorage)
		io.WriteString(w, `{"success":false,"error":"disk full"}`)
	}))
	defer srv.Close()

	path := writeTempFile(t, "notes.txt", "payload")
	_, err := newTestClient(srv.URL).Upload(context.Background(), path)
	if err == nil {
		t.Fatal("Expected an error for a rejected upload")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Rejection reason lost: %v", err)
	}
}

// TestUploadMissingFile verifies that a nonexistent path fails before any
// request is made.
func TestUploadMissingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Request made for a nonexistent file")
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Upload(context.Background(), filepath.Join(t.TempDir(), "missing.bin"))
	if err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}

// TestUploadSizeCap verifies that the cap is enforced locally. The check uses
// the stat size, so a sparse-looking large file is simulated by truncation.
func TestUploadSizeCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := f.Truncate(upload.MaxFileSize + 1); err != nil {
		f.Close()
		t.Skipf("Truncate not supported: %v", err)
	}
	f.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Request made for an oversized file")
	}))
	defer srv.Close()

	_, uploadErr := newTestClient(srv.URL).Upload(context.Background(), path)
	if !errors.Is(uploadErr, upload.ErrFileTooLarge) {
		t.Fatalf("Expected ErrFileTooLarge, got %v", uploadErr)
	}
}
