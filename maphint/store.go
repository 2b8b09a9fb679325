// Package maphint provides an optional read-only surface-hint store for the
// terrain classifier: a sqlite database of (s2 cell, surface) rows derived
// offline from map data. A missing database simply disables the provider and
// the classifier runs on motion alone.
package maphint

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/golang/geo/s2"
	_ "modernc.org/sqlite"

	"github.com/lelanhus/ruckcore/engine"
)

// CellLevel is the s2 cell level surface polygons are rasterized to.
// Level 16 cells are roughly 150m across, coarse enough to keep the
// database small and fine enough for a surface hint.
const CellLevel = 16

const schema = `
CREATE TABLE IF NOT EXISTS surface_cells (
	cell_id INTEGER PRIMARY KEY,
	surface TEXT NOT NULL
);`

// Store is a read-only surface lookup keyed by s2 cell.
type Store struct {
	db *sql.DB
}

// Open opens the hint database at path. A missing file is an error; callers
// that treat hints as optional should check existence first via Available.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open hint db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("hint db pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("hint db schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("hint db ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Available reports whether a hint database exists at path.
func Available(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// SurfaceAt implements engine.HintProvider.
func (s *Store) SurfaceAt(lat, lon float64) (engine.TerrainType, bool) {
	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(CellLevel)

	var surface string
	err := s.db.QueryRow("SELECT surface FROM surface_cells WHERE cell_id = ?", int64(cell)).Scan(&surface)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Pavement, false
	}
	if err != nil {
		log.Printf("maphint: lookup failed: %v", err)
		return engine.Pavement, false
	}
	return engine.ParseTerrainType(surface)
}

// Put inserts or replaces the surface for the cell containing (lat, lon).
// Used by the offline import tooling and tests.
func (s *Store) Put(lat, lon float64, surface string) error {
	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(CellLevel)
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO surface_cells (cell_id, surface) VALUES (?, ?)",
		int64(cell), surface)
	return err
}

func (s *Store) Close() error { return s.db.Close() }
