package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/lox/holdemtable/internal/fileutil"
)

const snapshotVersion = 1

type snapshotFile struct {
	Version     int                            `json:"version"`
	Collections map[string]map[string]Document `json:"collections"`
}

// SaveSnapshot writes every document to filename atomically.
func (m *Memory) SaveSnapshot(filename string) error {
	m.mu.Lock()
	snap := snapshotFile{
		Version:     snapshotVersion,
		Collections: make(map[string]map[string]Document, len(m.collections)),
	}
	docs := 0
	for path := range m.collections {
		snap.Collections[path] = m.collectionLocked(path)
		docs += len(m.collections[path])
	}
	m.mu.Unlock()

	if err := fileutil.WriteJSON(filename, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	m.logger.Debug("Saved snapshot", "file", filename, "documents", docs)
	return nil
}

// LoadMemory restores a store from a snapshot. A missing file yields an
// empty store.
func LoadMemory(filename string, logger *log.Logger) (*Memory, error) {
	m := NewMemory(logger)
	var snap snapshotFile
	if err := fileutil.ReadJSON(filename, &snap); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.logger.Info("No snapshot found, starting empty", "file", filename)
			return m, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("load snapshot: unsupported version %d", snap.Version)
	}
	docs := 0
	for path, coll := range snap.Collections {
		if len(coll) == 0 {
			continue
		}
		m.collections[path] = make(map[string]Document, len(coll))
		for id, doc := range coll {
			if doc == nil {
				continue
			}
			m.collections[path][id] = doc
			docs++
		}
	}
	m.logger.Info("Loaded snapshot", "file", filename, "documents", docs)
	return m, nil
}
