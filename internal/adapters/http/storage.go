// Package http implements ports.Storage over HTTP, for imaging buckets served
// through an HTTP(S) endpoint such as a public S3 website or a presigning proxy.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bft-labs/insitu/internal/ports"
)

// RemoteStorage implements ports.Storage with HTTP GET requests against a
// base URL.
type RemoteStorage struct {
	client  ports.HTTPClient
	baseURL string
	logger  ports.Logger
}

// NewRemoteStorage creates a RemoteStorage. The trailing slash of baseURL is
// optional.
func NewRemoteStorage(client ports.HTTPClient, baseURL string, logger ports.Logger) *RemoteStorage {
	return &RemoteStorage{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// URL returns the object URL of a normalized tile path. Path segments are
// escaped individually so that "/" keeps its meaning.
func (s *RemoteStorage) URL(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(segments, "/")
}

// Open fetches the object at path. The caller must close the returned body.
func (s *RemoteStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	u := s.URL(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u, err)
	}

	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("get %s: server returned %d: %s", u, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	s.logger.Debug("fetching tile", ports.String("url", u), ports.Any("content_length", resp.ContentLength))
	return resp.Body, nil
}

var _ ports.Storage = (*RemoteStorage)(nil)
