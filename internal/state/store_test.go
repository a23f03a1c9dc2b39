package state

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "recent.json"))
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	return s, &clock
}

func TestStore_TouchAndRecent(t *testing.T) {
	s, clock := newTestStore(t)

	require.NoError(t, s.Touch("a", "fix-login", "http://127.0.0.1:3030"))
	*clock = clock.Add(time.Minute)
	require.NoError(t, s.Touch("b", "", "http://127.0.0.1:3030"))

	entries, err := s.Recent()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Most recent first.
	assert.Equal(t, "b", entries[0].SessionID)
	assert.Equal(t, "a", entries[1].SessionID)
	assert.Equal(t, "fix-login", entries[1].Name)
	assert.Equal(t, 1, entries[1].Attaches)
}

func TestStore_TouchRefreshesExisting(t *testing.T) {
	s, clock := newTestStore(t)

	require.NoError(t, s.Touch("a", "first", "http://127.0.0.1:3030"))
	*clock = clock.Add(time.Minute)
	require.NoError(t, s.Touch("b", "", "http://127.0.0.1:3030"))
	*clock = clock.Add(time.Minute)
	require.NoError(t, s.Touch("a", "", "http://other:3030"))

	entries, err := s.Recent()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].SessionID)
	assert.Equal(t, 2, entries[0].Attaches)
	// Name survives an update that does not carry one.
	assert.Equal(t, "first", entries[0].Name)
	assert.Equal(t, "http://other:3030", entries[0].Server)
}

func TestStore_TrimsToMaxEntries(t *testing.T) {
	s, clock := newTestStore(t)

	for i := 0; i < MaxEntries+10; i++ {
		*clock = clock.Add(time.Second)
		require.NoError(t, s.Touch(fmt.Sprintf("session-%d", i), "", "srv"))
	}

	entries, err := s.Recent()
	require.NoError(t, err)
	assert.Len(t, entries, MaxEntries)
}

func TestStore_RemoveAndClear(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Touch("a", "", "srv"))
	require.NoError(t, s.Touch("b", "", "srv"))

	require.NoError(t, s.Remove("a"))
	require.NoError(t, s.Remove("missing"))

	entries, err := s.Recent()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].SessionID)

	require.NoError(t, s.Clear())
	entries, err = s.Recent()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_EmptyAndCorrupt(t *testing.T) {
	s, _ := newTestStore(t)

	// Missing file reads as empty history.
	entries, err := s.Recent()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A corrupt file is replaced rather than fatal.
	require.NoError(t, os.MkdirAll(filepath.Dir(s.path), 0755))
	require.NoError(t, os.WriteFile(s.path, []byte("{deeply broken"), 0600))

	require.NoError(t, s.Touch("a", "", "srv"))
	entries, err = s.Recent()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].SessionID)
}
