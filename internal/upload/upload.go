// Package upload is the client side of the file-upload boundary: one
// multipart POST against the coordinator's upload endpoint. File bytes never
// travel over a data channel or the signaling link; only the returned URL
// reference does.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/nullexa/nullexa/internal/chat"
)

// MaxFileSize is the upload cap, enforced locally before any byte is sent.
const MaxFileSize = 1 << 30 // 1 GiB

// ErrFileTooLarge reports a file over MaxFileSize, rejected before upload.
var ErrFileTooLarge = errors.New("file exceeds 1 GiB upload limit")

const requestTimeout = 10 * time.Minute

// Client posts files to the coordinator's upload endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// New creates an upload client for the coordinator at baseURL
// (e.g. http://host:3000).
func New(baseURL string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger.With().Str("component", "upload").Logger(),
	}
}

type response struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Error    string `json:"error"`
}

// Upload sends the file at path and returns the file reference to embed in a
// chat envelope. The size cap is checked against the file on disk before the
// request starts.
func (c *Client) Upload(ctx context.Context, path string) (*chat.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, filepath.Base(path), info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Stream the multipart body through a pipe so a large file is never
	// buffered in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("malformed upload response: %w", err)
	}
	if !body.Success {
		if body.Error == "" {
			body.Error = resp.Status
		}
		return nil, fmt.Errorf("upload rejected: %s", body.Error)
	}

	c.logger.Info().Str("file", body.Filename).Str("url", body.URL).Msg("upload complete")
	return &chat.FileInfo{
		Name: body.Filename,
		Size: info.Size(),
		URL:  body.URL,
	}, nil
}
