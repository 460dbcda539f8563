package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n")

func testServer(url string) TileServer {
	return TileServer{
		Name:       "test",
		URL:        url + "/{0}/{1}/{2}/{3}.{4}",
		Subdomains: []string{"a", "b", "c"},
		MaxZoom:    19,
		Format:     PNG,
	}
}

func TestFetchTile(t *testing.T) {
	var gotPath, gotAgent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.UserAgent()
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	}))
	defer ts.Close()

	f := NewFetcher(time.Second, "tilecache-test")
	data, err := f.FetchTile(context.Background(), testServer(ts.URL), "b", maptile.New(3, 5, 4))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "/b/4/3/5.png", gotPath)
	assert.Equal(t, "tilecache-test", gotAgent)
}

func TestFetchTileUnexpectedContentType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "Accès refusé" in latin-1
		w.Write([]byte("<h1>Acc\xe8s refus\xe9</h1>"))
	}))
	defer ts.Close()

	f := NewFetcher(time.Second, "")
	_, err := f.FetchTile(context.Background(), testServer(ts.URL), "a", maptile.New(0, 0, 0))
	require.ErrorIs(t, err, ErrUnexpectedContentType)

	var ferr *FetchError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "text/html; charset=iso-8859-1", ferr.ContentType)
	assert.Equal(t, "<h1>Accès refusé</h1>", ferr.Body)
	assert.Equal(t, ts.URL+"/a/0/0/0.png", ferr.URL)
	assert.Contains(t, err.Error(), "Accès refusé")
}

func TestFetchTileBinaryNonImageHasNoBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"nope"}`))
	}))
	defer ts.Close()

	_, err := NewFetcher(time.Second, "").FetchTile(context.Background(), testServer(ts.URL), "a", maptile.New(0, 0, 0))
	var ferr *FetchError
	require.True(t, errors.As(err, &ferr))
	assert.ErrorIs(t, err, ErrUnexpectedContentType)
	assert.Empty(t, ferr.Body)
}

func TestFetchTileStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such tile", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := NewFetcher(time.Second, "").FetchTile(context.Background(), testServer(ts.URL), "a", maptile.New(1, 1, 1))
	require.ErrorIs(t, err, ErrTransport)

	var ferr *FetchError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, http.StatusNotFound, ferr.StatusCode)
	assert.Equal(t, "no such tile", ferr.Body)
}

func TestFetchTileTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	f := NewFetcher(50*time.Millisecond, "")
	start := time.Now()
	_, err := f.FetchTile(context.Background(), testServer(ts.URL), "a", maptile.New(0, 0, 0))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchTileSlowBodyTimesOut(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	_, err := NewFetcher(100*time.Millisecond, "").FetchTile(context.Background(), testServer(ts.URL), "a", maptile.New(0, 0, 0))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestFetchTileTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewFetcher(time.Second, "").FetchTile(context.Background(), testServer(url), "a", maptile.New(0, 0, 0))
	require.ErrorIs(t, err, ErrTransport)
	assert.True(t, strings.HasPrefix(err.Error(), "fetch tile(z:0, x:0, y:0) from "+url))
}
