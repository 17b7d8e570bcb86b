package clustering

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// VectorCache persists embedding vectors by cache key.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Put(ctx context.Context, key string, vec []float32) error
	Close() error
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]float32, bool, error) { return nil, false, nil }
func (NopCache) Put(context.Context, string, []float32) error         { return nil }
func (NopCache) Close() error                                         { return nil }

// DirCache keeps one <key>.bin file per vector: a little-endian uint32 length
// followed by the float32 values.
type DirCache struct {
	dir string
}

// NewDirCache creates dir if needed.
func NewDirCache(dir string) (*DirCache, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &DirCache{dir: dir}, nil
}

func (d *DirCache) path(key string) string {
	return filepath.Join(d.dir, key+".bin")
}

// Get reads a vector. Missing files are a miss, truncated files an error.
func (d *DirCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", d.path(key), err)
	}
	return vec, true, nil
}

// Put writes through a temporary file so readers never see partial vectors.
func (d *DirCache) Put(_ context.Context, key string, vec []float32) error {
	path := d.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encodeVector(vec), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (d *DirCache) Close() error { return nil }

// SQLiteCache stores vectors in a single SQLite table.
type SQLiteCache struct {
	db    *sql.DB
	model string
	mu    sync.Mutex
}

const vectorSchema = `CREATE TABLE IF NOT EXISTS vectors (
	key   TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	dim   INTEGER NOT NULL,
	data  BLOB NOT NULL
)`

// OpenSQLiteCache opens (or creates) the database at path. model is recorded
// alongside each row for inspection; keys already include the model id.
func OpenSQLiteCache(ctx context.Context, path, model string) (*SQLiteCache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, vectorSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init vector schema: %w", err)
	}
	return &SQLiteCache{db: db, model: model}, nil
}

func (s *SQLiteCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM vectors WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil, false, fmt.Errorf("vector %s: %w", key, err)
	}
	return vec, true, nil
}

func (s *SQLiteCache) Put(ctx context.Context, key string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vectors (key, model, dim, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET model = excluded.model, dim = excluded.dim, data = excluded.data`,
		key, s.model, len(vec), encodeVector(vec))
	return err
}

func (s *SQLiteCache) Close() error {
	return s.db.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(vec)))
	for i, v := range vec {
		off := 4 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, errors.New("cached vector truncated")
	}
	length := int(binary.LittleEndian.Uint32(data[:4]))
	if len(data) != 4+length*4 {
		return nil, fmt.Errorf("cached vector size mismatch: header %d, payload %d bytes", length, len(data)-4)
	}
	vec := make([]float32, length)
	for i := range vec {
		off := 4 + i*4
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
	}
	return vec, nil
}
