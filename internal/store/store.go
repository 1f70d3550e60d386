// Package store provides crash-safe persistence of the account position
// snapshot used to seed the account tracker across restarts.
//
// The snapshot is a single file, positions.json, holding the full
// InstrumentId -> held quantity map as of the last GetAccountPositions
// reply processed. Writes use atomic file replacement (write to .tmp, then
// rename) to prevent corruption from partial writes or crashes mid-save.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"

	"triarb/pkg/types"
)

const snapshotFile = "positions.json"

// Store persists the account position snapshot to a JSON file in a
// designated directory. All operations are mutex-protected to prevent
// concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// SavePositions atomically persists the given position snapshot. It writes
// to a .tmp file first, then renames over the target so the file is never
// left in a partial state.
func (s *Store) SavePositions(positions map[types.InstrumentId]decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := make(map[types.InstrumentId]string, len(positions))
	for id, amt := range positions {
		encoded[id] = amt.String()
	}

	data, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}

	path := filepath.Join(s.dir, snapshotFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadPositions restores the last saved position snapshot from disk.
// Returns nil, nil if no snapshot has ever been saved (fresh start).
func (s *Store) LoadPositions() (map[types.InstrumentId]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, snapshotFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read positions: %w", err)
	}

	var encoded map[types.InstrumentId]string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, fmt.Errorf("unmarshal positions: %w", err)
	}

	out := make(map[types.InstrumentId]decimal.Decimal, len(encoded))
	for id, raw := range encoded {
		amt, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse position %d: %w", id, err)
		}
		out[id] = amt
	}
	return out, nil
}
