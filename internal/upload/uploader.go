// Package upload pushes local files to the attachment endpoint and returns
// the object URLs that message attachments reference.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Uploader sends multipart file uploads to the backend. Files are read
// through an afero.Fs so tests can run against an in-memory filesystem.
type Uploader struct {
	endpoint string
	token    string
	fs       afero.Fs
	http     *http.Client
	logger   *slog.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithFs overrides the filesystem files are read from.
func WithFs(fs afero.Fs) Option {
	return func(u *Uploader) {
		u.fs = fs
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(u *Uploader) {
		u.http = hc
	}
}

// NewUploader creates an uploader targeting the given endpoint.
func NewUploader(endpoint, token string, opts ...Option) *Uploader {
	u := &Uploader{
		endpoint: endpoint,
		token:    token,
		fs:       afero.NewOsFs(),
		http:     &http.Client{Timeout: 60 * time.Second},
		logger:   slog.Default().With("service", "upload"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload sends one file and returns its object URL.
func (u *Uploader) Upload(ctx context.Context, path string) (string, error) {
	f, err := u.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("preparing upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", path, err)
	}
	defer resp.Body.Close()

	var out struct {
		Success bool `json:"success"`
		Data    struct {
			URL string `json:"url"`
		} `json:"data"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if !out.Success || resp.StatusCode >= 400 {
		msg := http.StatusText(resp.StatusCode)
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("upload rejected: %s", msg)
	}

	u.logger.Debug("Uploaded attachment", "path", path, "url", out.Data.URL)
	return out.Data.URL, nil
}
