package artifacts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher downloads a remote artifact and hands it to the store.
type Fetcher struct {
	store *Store
	http  *http.Client
}

func NewFetcher(store *Store) *Fetcher {
	return &Fetcher{
		store: store,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads url and persists it under name, returning the
// relative path the request surface serves it from.
func (f *Fetcher) Fetch(ctx context.Context, url, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download artifact: unexpected status %s", resp.Status)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read artifact body: %w", err)
	}

	if err := f.store.Put(name, content); err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}

	return "/static/" + name, nil
}
