package main

import (
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb/maptile"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var gooseMu sync.Mutex

// Metadata is the run description stored in the metadata table.
type Metadata struct {
	Name        string
	Description string
	Format      string
	Bounds      BoundingBox
}

// Rows returns the metadata key/value pairs in insertion order.
func (m Metadata) Rows() [][2]string {
	return [][2]string{
		{"name", m.Name},
		{"type", "baselayer"},
		{"version", "1"},
		{"description", m.Description},
		{"format", m.Format},
		{"bounds", formatBounds(m.Bounds)},
	}
}

// formatBounds joins SE-lon, SE-lat, NW-lon, NW-lat as plain decimals.
func formatBounds(b BoundingBox) string {
	vals := []float64{b.SouthEast.Lon, b.SouthEast.Lat, b.NorthWest.Lon, b.NorthWest.Lat}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// MBTiles is a single-writer tile cache container. Tiles are written inside one
// transaction that Close commits and Abort rolls back.
type MBTiles struct {
	Path string
	mu   sync.Mutex
	db   *sql.DB
	tx   *sql.Tx
	put  *sql.Stmt
	n    int64
}

// OpenMBTiles opens or creates the container at path and applies the schema.
func OpenMBTiles(path string) (*MBTiles, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &WriteError{Op: "open " + path, Err: err}
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &WriteError{Op: "open " + path, Err: err}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, &WriteError{Op: "create schema", Err: err}
	}
	return &MBTiles{Path: path, db: db}, nil
}

func migrate(db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(log)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// Init writes the metadata rows, replacing earlier values of the same keys.
func (m *MBTiles) Init(meta Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return &WriteError{Op: "write metadata", Err: sql.ErrConnDone}
	}
	tx, err := m.db.Begin()
	if err != nil {
		return &WriteError{Op: "write metadata", Err: err}
	}
	for _, row := range meta.Rows() {
		if _, err := tx.Exec("DELETE FROM metadata WHERE name = ?", row[0]); err != nil {
			tx.Rollback()
			return &WriteError{Op: "write metadata " + row[0], Err: err}
		}
		if _, err := tx.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", row[0], row[1]); err != nil {
			tx.Rollback()
			return &WriteError{Op: "write metadata " + row[0], Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &WriteError{Op: "write metadata", Err: err}
	}
	log.Debugf("metadata written to %s: %v", m.Path, meta.Rows())
	return nil
}

// PutTile stores data for t, with the row flipped to the TMS convention.
func (m *MBTiles) PutTile(t maptile.Tile, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return &WriteError{Op: "insert tile", Err: sql.ErrConnDone}
	}
	if m.tx == nil {
		tx, err := m.db.Begin()
		if err != nil {
			return &WriteError{Op: "begin tiles", Err: err}
		}
		stmt, err := tx.Prepare("INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
		if err != nil {
			tx.Rollback()
			return &WriteError{Op: "prepare tiles", Err: err}
		}
		m.tx, m.put = tx, stmt
	}
	if _, err := m.put.Exec(int(t.Z), int(t.X), int(FlipY(t)), data); err != nil {
		return &WriteError{Op: fmt.Sprintf("insert tile(z:%d, x:%d, y:%d)", t.Z, t.X, t.Y), Err: err}
	}
	m.n++
	return nil
}

// Count returns the tiles written since open.
func (m *MBTiles) Count() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

// Close commits pending tiles and closes the container.
func (m *MBTiles) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	var err error
	if m.tx != nil {
		m.put.Close()
		if cerr := m.tx.Commit(); cerr != nil {
			err = &WriteError{Op: "commit tiles", Err: cerr}
		}
		m.tx, m.put = nil, nil
	}
	if cerr := m.db.Close(); cerr != nil && err == nil {
		err = &WriteError{Op: "close " + m.Path, Err: cerr}
	}
	m.db = nil
	return err
}

// Abort discards pending tiles and closes the container.
func (m *MBTiles) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db == nil {
		return nil
	}
	if m.tx != nil {
		m.put.Close()
		m.tx.Rollback()
		m.tx, m.put = nil, nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}
