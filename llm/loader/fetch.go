package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	// DefaultFetchTimeout bounds one page download
	DefaultFetchTimeout = 30 * time.Second
	// MaxFetchSize is the largest page body read (5MB)
	MaxFetchSize = int64(5 * 1024 * 1024)
)

// IsURL reports whether source is an http(s) address rather than a path
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Fetcher downloads web pages, e.g. wiki articles, as records
type Fetcher struct {
	Client *http.Client
}

// NewFetcher returns a fetcher with the default timeout
func NewFetcher() *Fetcher {
	return &Fetcher{Client: &http.Client{Timeout: DefaultFetchTimeout}}
}

// Fetch downloads url and converts it the same way an HTML file is loaded.
// Plain-text responses become one record as is.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]Record, error) {
	if !IsURL(url) {
		return nil, fmt.Errorf("URL must start with http:// or https://: %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "dstgpt-loader/1.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL: %s returned %s", url, resp.Status)
	}

	// Pages are decoded to UTF-8 using the declared or sniffed charset
	contentType := resp.Header.Get("Content-Type")
	body, err := charset.NewReader(io.LimitReader(resp.Body, MaxFetchSize), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var records []Record
	if strings.Contains(contentType, "text/html") || contentType == "" {
		records, err = parseHTML(data)
		if err != nil {
			return nil, err
		}
	} else {
		records = []Record{{Text: string(data), Metadata: map[string]any{}}}
	}

	for i := range records {
		records[i].Metadata["source"] = url
	}
	return records, nil
}
