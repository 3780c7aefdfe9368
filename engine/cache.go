package engine

import (
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/chazu/mythos/vm"
)

// ErrCacheMiss indicates the source has no cached unit.
var ErrCacheMiss = errors.New("unit not cached")

// Cache is a content-addressed store of compiled units keyed by the
// SHA-256 of their source. Serialized units live in SQLite; an in-memory
// layer in front keeps repeat lookups within one process cheap.
type Cache struct {
	db *sql.DB

	mu  sync.Mutex
	mem map[[32]byte]*vm.Unit
}

// OpenCache opens (creating if needed) the cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS units (
		hash BLOB PRIMARY KEY,
		name TEXT NOT NULL,
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating units table: %w", err)
	}

	return &Cache{db: db, mem: make(map[[32]byte]*vm.Unit)}, nil
}

// Key returns the cache key for a source text.
func Key(source string) [32]byte {
	return sha256.Sum256([]byte(source))
}

// Get looks up the cached unit for a source text. A hit from the in-memory
// layer returns the identical unit; a database hit decodes and validates
// the stored bytes. Misses return ErrCacheMiss.
func (c *Cache) Get(source string) (*vm.Unit, error) {
	key := Key(source)

	c.mu.Lock()
	if u, ok := c.mem[key]; ok {
		c.mu.Unlock()
		return u, nil
	}
	c.mu.Unlock()

	var data []byte
	err := c.db.QueryRow("SELECT data FROM units WHERE hash = ?", key[:]).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached unit: %w", err)
	}

	u, err := vm.UnmarshalUnit(data)
	if err != nil {
		return nil, fmt.Errorf("decoding cached unit: %w", err)
	}

	c.mu.Lock()
	c.mem[key] = u
	c.mu.Unlock()
	return u, nil
}

// Put stores a compiled unit under its source's key.
func (c *Cache) Put(source string, u *vm.Unit) error {
	data, err := u.Marshal()
	if err != nil {
		return err
	}
	key := Key(source)

	if _, err := c.db.Exec(
		"INSERT OR REPLACE INTO units (hash, name, data) VALUES (?, ?, ?)",
		key[:], u.Name, data,
	); err != nil {
		return fmt.Errorf("writing cached unit: %w", err)
	}

	c.mu.Lock()
	c.mem[key] = u
	c.mu.Unlock()
	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
