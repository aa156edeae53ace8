package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatdigest/internal/storage"
)

// Shard is one persisted copy of cache entries.
type Shard interface {
	Name() string
	// Load returns nil, nil when the shard does not exist.
	Load(ctx context.Context) (map[string]json.RawMessage, error)
	// Store replaces the shard's contents.
	Store(ctx context.Context, entries map[string]json.RawMessage) error
}

// FileShard is a JSON object file mapping keys to values.
type FileShard struct {
	Path string
}

// Name implements Shard.
func (f *FileShard) Name() string { return f.Path }

// Load implements Shard.
func (f *FileShard) Load(context.Context) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return entries, nil
}

// Store implements Shard. The file is replaced atomically.
func (f *FileShard) Store(_ context.Context, entries map[string]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

// KVShard keeps entries in the sqlite kv_store under "cache:<namespace>:".
type KVShard struct {
	DB        *storage.DB
	Namespace string
}

func (k *KVShard) prefix() string { return "cache:" + k.Namespace + ":" }

// Name implements Shard.
func (k *KVShard) Name() string { return "sqlite:" + k.Namespace }

// Load implements Shard. An empty namespace counts as missing.
func (k *KVShard) Load(context.Context) (map[string]json.RawMessage, error) {
	rows, err := k.DB.KVList(k.prefix())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	entries := make(map[string]json.RawMessage, len(rows))
	for key, v := range rows {
		entries[strings.TrimPrefix(key, k.prefix())] = json.RawMessage(v)
	}
	return entries, nil
}

// Store implements Shard.
func (k *KVShard) Store(_ context.Context, entries map[string]json.RawMessage) error {
	rows := make(map[string]string, len(entries))
	for key, v := range entries {
		rows[key] = string(v)
	}
	return k.DB.KVReplacePrefix(k.prefix(), rows)
}

// OpenShard builds a shard of the configured kind. For "file" location is
// a path; for "sqlite" it is a namespace inside db.
func OpenShard(kind, location string, db *storage.DB) (Shard, error) {
	switch kind {
	case "file", "":
		return &FileShard{Path: location}, nil
	case "sqlite":
		if db == nil {
			return nil, errors.New("cache: sqlite shard needs a database")
		}
		return &KVShard{DB: db, Namespace: location}, nil
	default:
		return nil, fmt.Errorf("cache: unknown shard kind %q", kind)
	}
}
