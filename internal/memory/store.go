// ABOUTME: Long-term per-user memory records persisted to a single JSON file
// ABOUTME: Append-only items, written atomically via temp file and rename

package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrPersistence wraps any failure to read or write the memory file.
var ErrPersistence = errors.New("memory persistence failure")

// DateLayout is the layout used to tag rendered items.
const DateLayout = "2006-01-02"

// Item is one remembered fact.
type Item struct {
	Text    string    `json:"text"`
	SavedAt time.Time `json:"saved_at"`
}

// String renders the item with its date tag, e.g. "[2025-01-31] likes tea".
func (i Item) String() string {
	if i.SavedAt.IsZero() {
		return i.Text
	}
	return "[" + i.SavedAt.Format(DateLayout) + "] " + i.Text
}

// itemList accepts both a list of items and a bare string, which older
// memory files stored as the single record for a user.
type itemList []Item

func (l *itemList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*l = nil
			return nil
		}
		*l = itemList{{Text: s}}
		return nil
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// Store holds all users' records in memory and mirrors them to path.
type Store struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	items map[string]itemList
}

// Open loads the memory file at path. A missing file yields an empty store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   path,
		logger: logger.With("component", "memory"),
		items:  make(map[string]itemList),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrPersistence, path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.items); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrPersistence, path, err)
	}

	s.logger.Info("memory loaded", "path", path, "users", len(s.items))
	return s, nil
}

// Get returns a copy of the user's items in save order.
func (s *Store) Get(ctx context.Context, userID string) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Item(nil), s.items[userID]...), nil
}

// Append saves a new item for userID. The in-memory state only changes if the
// file write succeeds.
func (s *Store) Append(ctx context.Context, userID, text string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]itemList, len(s.items)+1)
	for k, v := range s.items {
		next[k] = v
	}
	cur := s.items[userID]
	updated := make(itemList, len(cur), len(cur)+1)
	copy(updated, cur)
	next[userID] = append(updated, Item{Text: text, SavedAt: at})

	if err := s.write(next); err != nil {
		return err
	}
	s.items = next

	s.logger.Info("memory saved", "user_id", userID, "items", len(next[userID]))
	return nil
}

// write serializes data to a temp file beside path and renames it into place.
func (s *Store) write(data map[string]itemList) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating directory: %w", ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrPersistence, err)
	}
	tmpPath := tmp.Name()
	writeErr := func() error {
		if _, err := tmp.Write(encoded); err != nil {
			return err
		}
		if err := tmp.Sync(); err != nil {
			return err
		}
		return tmp.Close()
	}()
	if writeErr != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write temp file: %w", ErrPersistence, writeErr)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: finalize: %w", ErrPersistence, err)
	}
	return nil
}
