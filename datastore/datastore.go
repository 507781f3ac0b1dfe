// Package datastore is a small JSON-file key-value store used for per-guild
// settings. Values are kept as raw JSON and decoded into typed records by the
// settings layer, so malformed entries surface at load time instead of deep
// inside a dispatch. Writes are atomic (temp file + rename) and flushed by a
// background autosaver plus a final save on Close.
package datastore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultAutoSaveInterval is how often dirty data hits disk.
const DefaultAutoSaveInterval = 10 * time.Second

type DataStore struct {
	file string

	mu           sync.RWMutex
	data         map[string]json.RawMessage
	lastChecksum string

	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
}

// New opens (or creates) the store at filePath and starts the autosaver.
func New(filePath string) (*DataStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("datastore: file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("datastore: create directory: %w", err)
	}

	ds := &DataStore{
		file: filePath,
		data: make(map[string]json.RawMessage),
		done: make(chan struct{}),
	}

	raw, err := os.ReadFile(filePath)
	switch {
	case os.IsNotExist(err):
		if err := ds.writeFileAtomic([]byte("{}")); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("datastore: read %s: %w", filePath, err)
	default:
		if err := json.Unmarshal(raw, &ds.data); err != nil {
			return nil, fmt.Errorf("datastore: %s is not valid JSON: %w", filePath, err)
		}
		ds.lastChecksum = checksum(raw)
	}

	ds.wg.Add(1)
	go ds.autoSave()
	return ds, nil
}

// Get decodes the value under key into out. The second return is false when
// the key is absent.
func (ds *DataStore) Get(key string, out any) (bool, error) {
	ds.mu.RLock()
	raw, ok := ds.data[key]
	ds.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("datastore: decode key %q: %w", key, err)
	}
	return true, nil
}

// Put stores value under key.
func (ds *DataStore) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("datastore: encode key %q: %w", key, err)
	}
	ds.mu.Lock()
	ds.data[key] = raw
	ds.mu.Unlock()
	return nil
}

// Delete removes a key. Deleting an absent key is a no-op.
func (ds *DataStore) Delete(key string) {
	ds.mu.Lock()
	delete(ds.data, key)
	ds.mu.Unlock()
}

// Keys returns every stored key.
func (ds *DataStore) Keys() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	keys := make([]string, 0, len(ds.data))
	for k := range ds.data {
		keys = append(keys, k)
	}
	return keys
}

// Save forces an immediate flush to disk.
func (ds *DataStore) Save() error {
	return ds.saveToFile()
}

// Close stops the autosaver and performs a final save.
func (ds *DataStore) Close() error {
	var err error
	ds.closed.Do(func() {
		close(ds.done)
		ds.wg.Wait()
		err = ds.saveToFile()
	})
	return err
}

func (ds *DataStore) autoSave() {
	defer ds.wg.Done()
	ticker := time.NewTicker(DefaultAutoSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = ds.saveToFile()
		case <-ds.done:
			return
		}
	}
}

func (ds *DataStore) saveToFile() error {
	ds.mu.RLock()
	raw, err := json.MarshalIndent(ds.data, "", "  ")
	ds.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("datastore: marshal: %w", err)
	}

	sum := checksum(raw)
	ds.mu.Lock()
	unchanged := sum == ds.lastChecksum
	if !unchanged {
		ds.lastChecksum = sum
	}
	ds.mu.Unlock()
	if unchanged {
		return nil
	}
	return ds.writeFileAtomic(raw)
}

func (ds *DataStore) writeFileAtomic(raw []byte) error {
	tmp := ds.file + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("datastore: write temp file: %w", err)
	}
	if err := os.Rename(tmp, ds.file); err != nil {
		return fmt.Errorf("datastore: replace %s: %w", ds.file, err)
	}
	return nil
}

func checksum(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
