// Package cache stores compiled function bodies on disk, keyed by a digest
// of the module, the function index and the settings that shaped the code.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/wasm-zkasm/errors"
)

// Current schema version - increment when Entry format changes
const schemaVersion uint16 = 1

// Key identifies one compiled function.
type Key [sha256.Size]byte

// String returns the key in hex.
func (k Key) String() string { return hex.EncodeToString(k[:]) }

// ModuleDigest hashes module bytes once so per-function keys stay cheap.
func ModuleDigest(module []byte) [sha256.Size]byte {
	return sha256.Sum256(module)
}

// NewKey derives the key of function index in a module. settings is any
// stable encoding of the options that affect emitted code.
func NewKey(module [sha256.Size]byte, index uint32, settings string) Key {
	h := sha256.New()
	h.Write(module[:])
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)
	h.Write(idx[:])
	h.Write([]byte(settings))
	var k Key
	h.Sum(k[:0])
	return k
}

// Entry is the cached result of compiling one function.
type Entry struct {
	Schema uint16
	Index  uint32
	Lines  []string
	IR     string
}

// DiskCache is a directory of msgpack-encoded entries. Safe for concurrent
// use; a nil *DiskCache is a disabled cache.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// Open returns a cache rooted at dir, creating it if needed.
func Open(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "create cache directory")
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *DiskCache) Dir() string { return c.dir }

func (c *DiskCache) pathFor(key Key) string {
	s := key.String()
	return filepath.Join(c.dir, s[:2], s+".mp")
}

// Put writes an entry, replacing any previous one atomically.
func (c *DiskCache) Put(key Key, e *Entry) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "create cache shard")
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "create cache entry")
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !stderrors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = errors.Wrap(errors.PhaseCache, errors.KindInvalidData, rmErr, "remove temp file")
		}
	}()

	stored := *e
	stored.Schema = schemaVersion
	if err := msgpack.NewEncoder(f).Encode(&stored); err != nil {
		_ = f.Close()
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "encode cache entry")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "close cache entry")
	}
	if err := os.Rename(f.Name(), p); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "rename cache entry")
	}
	return nil
}

// Get reads an entry. A missing entry, or one written by another schema
// version, is a miss.
func (c *DiskCache) Get(key Key) (*Entry, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "open cache entry")
	}
	defer f.Close()

	var e Entry
	if err := msgpack.NewDecoder(f).Decode(&e); err != nil {
		return nil, false, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "decode cache entry "+key.String())
	}
	if e.Schema != schemaVersion {
		return nil, false, nil
	}
	return &e, true, nil
}

// DropAll removes every entry.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.RemoveAll(c.dir); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "drop cache")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "recreate cache directory")
	}
	return nil
}
