// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/pdiddy/medcode/pkg/types"
)

const dbFile = "catalog.db"

// ErrNotCached is returned by Store.Load when no snapshot exists for a key.
var ErrNotCached = errors.New("catalog snapshot not cached")

// Snapshot describes one cached index build.
type Snapshot struct {
	Key         string         `json:"key" yaml:"key"`
	Category    types.Category `json:"category" yaml:"category"`
	Version     string         `json:"version" yaml:"version"`
	ContentHash string         `json:"content_hash" yaml:"content_hash"`
	ModelID     string         `json:"model_id" yaml:"model_id"`
	Dimensions  int            `json:"dimensions" yaml:"dimensions"`
	Entries     int            `json:"entries" yaml:"entries"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
}

// Store persists built indexes in a SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates dir/catalog.db and its schema.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// OpenStore opens the cache in dir, treating an unreadable database as a
// cache miss. A file that is not a usable SQLite database is moved aside
// with a ".corrupt-<unix>" suffix and the store is recreated once. When
// that also fails OpenStore returns nil, which CachedBuilder accepts as
// "no persistence".
func OpenStore(dir string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s, err := NewStore(dir)
	if err == nil {
		return s
	}
	log := logger.WithField("dir", dir)
	log.WithError(err).Warn("catalog cache unusable, moving it aside")

	suffix := fmt.Sprintf(".corrupt-%d", time.Now().Unix())
	dbPath := filepath.Join(dir, dbFile)
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Rename(p, p+suffix); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warn("could not move catalog cache file")
		}
	}

	s, err = NewStore(dir)
	if err != nil {
		log.WithError(err).Warn("catalog cache disabled, indexes will be rebuilt every run")
		return nil
	}
	return s
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS catalog_snapshots (
			cache_key TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			version TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			model_id TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			entry_count INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS catalog_entries (
			cache_key TEXT NOT NULL REFERENCES catalog_snapshots(cache_key) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			code TEXT NOT NULL,
			description TEXT NOT NULL,
			embedding BLOB NOT NULL,
			PRIMARY KEY (cache_key, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_category ON catalog_snapshots(category, version)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save replaces the snapshot stored under snap.Key with entries.
func (s *Store) Save(ctx context.Context, snap Snapshot, entries []types.CatalogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteSnapshot(ctx, tx, snap.Key); err != nil {
		return err
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO catalog_snapshots (cache_key, category, version, content_hash, model_id, dimensions, entry_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Key, string(snap.Category), snap.Version, snap.ContentHash, snap.ModelID,
		snap.Dimensions, len(entries), snap.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO catalog_entries (cache_key, position, code, description, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, snap.Key, i, e.Code, e.Description, encodeVector(e.Embedding)); err != nil {
			return fmt.Errorf("inserting entry %s: %w", e.Code, err)
		}
	}

	return tx.Commit()
}

// Load returns the snapshot and its entries in stored order. It returns
// ErrNotCached when the key is absent and an error when the stored data is
// inconsistent.
func (s *Store) Load(ctx context.Context, key string) (Snapshot, []types.CatalogEntry, error) {
	snap, err := s.snapshot(ctx, key)
	if err != nil {
		return Snapshot{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT code, description, embedding FROM catalog_entries WHERE cache_key = ? ORDER BY position`, key)
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	entries := make([]types.CatalogEntry, 0, snap.Entries)
	for rows.Next() {
		var e types.CatalogEntry
		var blob []byte
		if err := rows.Scan(&e.Code, &e.Description, &blob); err != nil {
			return Snapshot{}, nil, fmt.Errorf("scanning entry: %w", err)
		}
		vec, err := decodeVector(blob, snap.Dimensions)
		if err != nil {
			return Snapshot{}, nil, fmt.Errorf("entry %s: %w", e.Code, err)
		}
		e.Embedding = vec
		e.Category = snap.Category
		e.Version = snap.Version
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, nil, fmt.Errorf("iterating entries: %w", err)
	}
	if len(entries) != snap.Entries {
		return Snapshot{}, nil, fmt.Errorf("snapshot %s: expected %d entries, found %d", key, snap.Entries, len(entries))
	}
	return snap, entries, nil
}

func (s *Store) snapshot(ctx context.Context, key string) (Snapshot, error) {
	var snap Snapshot
	var category, created string
	err := s.db.QueryRowContext(ctx,
		`SELECT cache_key, category, version, content_hash, model_id, dimensions, entry_count, created_at
		 FROM catalog_snapshots WHERE cache_key = ?`, key,
	).Scan(&snap.Key, &category, &snap.Version, &snap.ContentHash, &snap.ModelID, &snap.Dimensions, &snap.Entries, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotCached
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying snapshot: %w", err)
	}
	snap.Category = types.Category(category)
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return snap, nil
}

// Snapshots lists cached builds ordered by category, version and creation time.
func (s *Store) Snapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key, category, version, content_hash, model_id, dimensions, entry_count, created_at
		 FROM catalog_snapshots ORDER BY category, version, created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var category, created string
		if err := rows.Scan(&snap.Key, &category, &snap.Version, &snap.ContentHash, &snap.ModelID,
			&snap.Dimensions, &snap.Entries, &created); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap.Category = types.Category(category)
		snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Delete removes the snapshot stored under key. Deleting a missing key is
// not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := deleteSnapshot(ctx, tx, key); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteSnapshot(ctx context.Context, tx *sql.Tx, key string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_entries WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("deleting snapshot entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_snapshots WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte, dims int) ([]float32, error) {
	if len(b) != dims*4 {
		return nil, fmt.Errorf("embedding blob has %d bytes, want %d", len(b), dims*4)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
