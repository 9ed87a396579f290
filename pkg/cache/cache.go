// Package cache stores embedding vectors on disk so re-running the embed
// stage does not pay for text it has already embedded.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Store looks up and saves vectors by key.
type Store interface {
	Get(key string) ([]float32, bool)
	Put(key string, vec []float32) error
}

// Key computes a deterministic SHA256 hash of the embedding inputs.
// Order is critical: model, dimensions, text.
func Key(model string, dims int, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(dims)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// DefaultDir returns ~/.cache/solvx/embeddings.
func DefaultDir() string {
	return filepath.Join(os.ExpandEnv("$HOME"), ".cache", "solvx", "embeddings")
}

// Dir is a Store backed by one JSON file per key.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at path. A leading ~ is expanded; an empty path
// uses DefaultDir.
func NewDir(path string) *Dir {
	switch {
	case path == "":
		path = DefaultDir()
	case path == "~" || strings.HasPrefix(path, "~/"):
		path = filepath.Join(os.ExpandEnv("$HOME"), strings.TrimPrefix(path, "~"))
	}
	return &Dir{root: path}
}

// Root returns the directory holding cache files.
func (d *Dir) Root() string { return d.root }

type entry struct {
	Embedding []float32 `json:"embedding"`
}

// Path returns the file for key, sharded by its first two characters.
func (d *Dir) Path(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(d.root, shard, key+".json")
}

// Get returns the cached vector for key. Missing or unreadable entries are
// misses.
func (d *Dir) Get(key string) ([]float32, bool) {
	data, err := os.ReadFile(d.Path(key))
	if err != nil {
		return nil, false // file not found is expected for cache miss
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil || len(e.Embedding) == 0 {
		return nil, false
	}
	return e.Embedding, true
}

// Put writes vec for key.
func (d *Dir) Put(key string, vec []float32) error {
	path := d.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	data, err := json.Marshal(entry{Embedding: vec})
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return os.Rename(tmp, path)
}
