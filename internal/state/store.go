// Package state persists the local attachment history for clauderonctl.
// The store is a small JSON file shared by every invocation of the CLI,
// so updates take a file lock and writes go through a temp file rename.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

const (
	storeVersion = 1

	// MaxEntries bounds how many sessions the history keeps.
	MaxEntries = 50
)

// Entry is one remembered session attachment.
type Entry struct {
	SessionID  string    `json:"sessionId"`
	Name       string    `json:"name,omitempty"`
	Server     string    `json:"server"`
	AttachedAt time.Time `json:"attachedAt"`
	Attaches   int       `json:"attaches"`
}

type storeCtx struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// Store reads and updates the recent-session file at a fixed path.
type Store struct {
	path string
	now  func() time.Time
}

// NewStore creates a store backed by path. The file and its directory
// are created on first update.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Touch records an attachment to sessionID on server, creating or
// refreshing its entry and trimming the history to MaxEntries.
func (s *Store) Touch(sessionID, name, server string) error {
	return s.withLock(func() error {
		store, err := s.read()
		if err != nil {
			return err
		}

		found := false
		for i := range store.Entries {
			e := &store.Entries[i]
			if e.SessionID == sessionID {
				e.AttachedAt = s.now()
				e.Attaches++
				e.Server = server
				if name != "" {
					e.Name = name
				}
				found = true
				break
			}
		}
		if !found {
			store.Entries = append(store.Entries, Entry{
				SessionID:  sessionID,
				Name:       name,
				Server:     server,
				AttachedAt: s.now(),
				Attaches:   1,
			})
		}

		sortEntries(store.Entries)
		if len(store.Entries) > MaxEntries {
			store.Entries = store.Entries[:MaxEntries]
		}
		return s.write(store)
	})
}

// Recent returns the history, most recently attached first.
func (s *Store) Recent() ([]Entry, error) {
	var entries []Entry
	err := s.withLock(func() error {
		store, err := s.read()
		if err != nil {
			return err
		}
		entries = store.Entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// Remove forgets sessionID. Removing an unknown session is a no-op.
func (s *Store) Remove(sessionID string) error {
	return s.withLock(func() error {
		store, err := s.read()
		if err != nil {
			return err
		}
		kept := store.Entries[:0]
		for _, e := range store.Entries {
			if e.SessionID != sessionID {
				kept = append(kept, e)
			}
		}
		if len(kept) == len(store.Entries) {
			return nil
		}
		store.Entries = kept
		return s.write(store)
	})
}

// Clear forgets the whole history.
func (s *Store) Clear() error {
	return s.withLock(func() error {
		return s.write(&storeCtx{Version: storeVersion, Entries: []Entry{}})
	})
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AttachedAt.After(entries[j].AttachedAt)
	})
}

// withLock runs fn while holding the cross-process file lock.
func (s *Store) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock state file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}

func (s *Store) read() (*storeCtx, error) {
	fresh := &storeCtx{Version: storeVersion, Entries: []Entry{}}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return fresh, nil
	}
	if err != nil {
		return nil, err
	}

	var store storeCtx
	if err := json.Unmarshal(data, &store); err != nil {
		// Corrupt file; start over rather than refusing to run.
		return fresh, nil
	}
	return &store, nil
}

func (s *Store) write(store *storeCtx) error {
	b, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
