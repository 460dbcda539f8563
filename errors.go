package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb/maptile"
)

// Error kinds surfaced by a cache build. Test them with errors.Is.
var (
	ErrInvalidZoomRange      = errors.New("invalid zoom range")
	ErrInvalidBounds         = errors.New("invalid bounding box")
	ErrLatitudeDomain        = errors.New("latitude outside projection domain")
	ErrTileOutOfRange        = errors.New("tile outside grid")
	ErrTimeout               = errors.New("tile fetch timed out")
	ErrTransport             = errors.New("tile fetch transport error")
	ErrUnexpectedContentType = errors.New("unexpected content type")
	ErrWriteFailure          = errors.New("cache write failed")
	ErrUnknownServer         = errors.New("unknown tile server")
)

// FetchError describes a failed tile request.
type FetchError struct {
	Kind        error
	Tile        maptile.Tile
	URL         string
	StatusCode  int
	ContentType string
	// Body holds the decoded response text for textual content types.
	Body string
	Err  error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch tile(z:%d, x:%d, y:%d) from %s: %v", e.Tile.Z, e.Tile.X, e.Tile.Y, e.URL, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ", status %d", e.StatusCode)
	}
	if e.ContentType != "" {
		fmt.Fprintf(&b, ", content type %q", e.ContentType)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		b.WriteString("\n")
		b.WriteString(e.Body)
	}
	return b.String()
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WriteError describes a rejected container write.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrWriteFailure, e.Op, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{ErrWriteFailure, e.Err}
}

// BuildError is the single error terminating a build, with the tile being processed.
type BuildError struct {
	Zoom maptile.Zoom
	Tile *maptile.Tile
	Err  error
}

func (e *BuildError) Error() string {
	if e.Tile != nil {
		return fmt.Sprintf("build aborted at zoom %d tile(x:%d, y:%d): %v", e.Zoom, e.Tile.X, e.Tile.Y, e.Err)
	}
	return fmt.Sprintf("build aborted at zoom %d: %v", e.Zoom, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
