package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb/maptile"
	"golang.org/x/net/html/charset"
)

// DefaultTimeout bounds a single tile request.
const DefaultTimeout = 10 * time.Second

// maxDiagnosticBody caps the text kept from a non-image response.
const maxDiagnosticBody = 64 << 10

// Fetcher 瓦片加载器
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	Timeout   time.Duration
}

// NewFetcher creates a fetcher with its own transport.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}
	return &Fetcher{
		Client:    &http.Client{Transport: transport},
		UserAgent: userAgent,
		Timeout:   timeout,
	}
}

// FetchTile downloads one tile from server using subdomain. The call returns within the
// fetcher timeout; an expired request is cancelled before returning.
func (f *Fetcher) FetchTile(ctx context.Context, server TileServer, subdomain string, t maptile.Tile) ([]byte, error) {
	url := server.TileURL(subdomain, t)

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	fail := func(kind error, err error) *FetchError {
		return &FetchError{Kind: kind, Tile: t, URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fail(ErrTransport, err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		if timedOut(ctx, err) {
			return nil, fail(ErrTimeout, err)
		}
		return nil, fail(ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ferr := fail(ErrTransport, errors.New(resp.Status))
		ferr.StatusCode = resp.StatusCode
		ferr.ContentType = resp.Header.Get("Content-Type")
		ferr.Body = diagnosticText(resp.Body, ferr.ContentType)
		return nil, ferr
	}

	contentType := resp.Header.Get("Content-Type")
	if !hasPrefixFold(contentType, "image") {
		ferr := fail(ErrUnexpectedContentType, nil)
		ferr.StatusCode = resp.StatusCode
		ferr.ContentType = contentType
		ferr.Body = diagnosticText(resp.Body, contentType)
		return nil, ferr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if timedOut(ctx, err) {
			return nil, fail(ErrTimeout, fmt.Errorf("after %d bytes: %w", len(body), err))
		}
		return nil, fail(ErrTransport, err)
	}
	return body, nil
}

func timedOut(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr interface{ Timeout() bool }
	return errors.As(err, &nerr) && nerr.Timeout()
}

// diagnosticText decodes a textual body for error reports, empty for anything else.
func diagnosticText(r io.Reader, contentType string) string {
	if !hasPrefixFold(contentType, "text") {
		return ""
	}
	decoded, err := charset.NewReader(io.LimitReader(r, maxDiagnosticBody), contentType)
	if err != nil {
		return ""
	}
	text, err := io.ReadAll(decoded)
	if err != nil && len(text) == 0 {
		return ""
	}
	return strings.TrimSpace(string(text))
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
