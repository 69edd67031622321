package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Source delivers the bytes of one shared file. It is opened exactly once per run.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	DisplayName() string
}

type FileSource struct {
	Path string
	Name string
}

func (s FileSource) Open(context.Context) (io.ReadCloser, error) {
	return os.Open(s.Path)
}

func (s FileSource) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return filepath.Base(s.Path)
}

type BytesSource struct {
	Name string
	Data []byte
}

func (s BytesSource) Open(context.Context) (io.ReadCloser, error) {
	if len(s.Data) == 0 {
		return nil, fmt.Errorf("%s is empty", s.Name)
	}
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

func (s BytesSource) DisplayName() string {
	return s.Name
}

// ReaderSource wraps an already-open stream, such as a multipart upload.
type ReaderSource struct {
	Name   string
	Reader io.ReadCloser
}

func (s ReaderSource) Open(context.Context) (io.ReadCloser, error) {
	if s.Reader == nil {
		return nil, fmt.Errorf("%s has no stream", s.Name)
	}
	return s.Reader, nil
}

func (s ReaderSource) DisplayName() string {
	return s.Name
}

// URLSource downloads a remote file, failing once MaxBytes is exceeded.
type URLSource struct {
	URL      string
	Name     string
	MaxBytes int64
	Client   *http.Client
}

func (s URLSource) Open(ctx context.Context) (io.ReadCloser, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("download %s returned status %d", s.Name, resp.StatusCode)
	}
	if s.MaxBytes > 0 {
		if resp.ContentLength > s.MaxBytes {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%s is %d bytes, limit is %d", s.Name, resp.ContentLength, s.MaxBytes)
		}
		return http.MaxBytesReader(nil, resp.Body, s.MaxBytes), nil
	}
	return resp.Body, nil
}

func (s URLSource) DisplayName() string {
	return s.Name
}
