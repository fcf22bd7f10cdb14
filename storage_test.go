package forum

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type change struct {
	value string
	ok    bool
}

func TestMemorySharedStore(t *testing.T) {
	t.Run("get set remove", func(t *testing.T) {
		s := NewMemorySharedStore()
		_, ok := s.Get("k")
		assert.False(t, ok)

		require.NoError(t, s.Set("k", "v"))
		v, ok := s.Get("k")
		assert.True(t, ok)
		assert.Equal(t, "v", v)

		require.NoError(t, s.Remove("k"))
		_, ok = s.Get("k")
		assert.False(t, ok)
	})

	t.Run("watch", func(t *testing.T) {
		s := NewMemorySharedStore()
		var got recorder[change]
		cancel := s.Watch("k", func(v string, ok bool) { got.add(change{v, ok}) })
		s.Watch("other", func(string, bool) { t.Error("wrong key notified") })

		require.NoError(t, s.Set("k", "a"))
		require.NoError(t, s.Remove("k"))
		require.NoError(t, s.Remove("k"))
		cancel()
		cancel()
		require.NoError(t, s.Set("k", "b"))

		assert.Equal(t, []change{{"a", true}, {"", false}}, got.all())
	})

	t.Run("watcher may cancel itself", func(t *testing.T) {
		s := NewMemorySharedStore()
		calls := 0
		var cancel func()
		cancel = s.Watch("k", func(string, bool) {
			calls++
			cancel()
		})
		require.NoError(t, s.Set("k", "a"))
		require.NoError(t, s.Set("k", "b"))
		assert.Equal(t, 1, calls)
	})

	t.Run("panicking watcher is contained", func(t *testing.T) {
		s := NewMemorySharedStore()
		var got recorder[change]
		s.Watch("k", func(string, bool) { panic("boom") })
		s.Watch("k", func(v string, ok bool) { got.add(change{v, ok}) })

		assert.NotPanics(t, func() { _ = s.Set("k", "a") })
		assert.Equal(t, 1, got.len())
	})
}

func TestFileSharedStore(t *testing.T) {
	t.Run("get set remove", func(t *testing.T) {
		dir := t.TempDir()
		s, err := NewFileSharedStore(filepath.Join(dir, "signals"), 0, nil)
		require.NoError(t, err)

		require.NoError(t, s.Set(LogoutSignalKey, `{"at":1}`))
		v, ok := s.Get(LogoutSignalKey)
		assert.True(t, ok)
		assert.Equal(t, `{"at":1}`, v)

		_, err = os.Stat(filepath.Join(dir, "signals", LogoutSignalKey))
		require.NoError(t, err)

		require.NoError(t, s.Remove(LogoutSignalKey))
		require.NoError(t, s.Remove(LogoutSignalKey))
		_, ok = s.Get(LogoutSignalKey)
		assert.False(t, ok)
	})

	t.Run("keys are escaped", func(t *testing.T) {
		dir := t.TempDir()
		s, err := NewFileSharedStore(dir, 0, nil)
		require.NoError(t, err)

		require.NoError(t, s.Set("a/b", "x"))
		v, ok := s.Get("a/b")
		assert.True(t, ok)
		assert.Equal(t, "x", v)
		_, err = os.Stat(filepath.Join(dir, "a"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("watch sees another process", func(t *testing.T) {
		dir := t.TempDir()
		writer, err := NewFileSharedStore(dir, 0, nil)
		require.NoError(t, err)
		reader, err := NewFileSharedStore(dir, 5*time.Millisecond, nil)
		require.NoError(t, err)

		var got recorder[change]
		cancel := reader.Watch("k", func(v string, ok bool) { got.add(change{v, ok}) })
		defer cancel()

		require.NoError(t, writer.Set("k", "a"))
		require.Eventually(t, func() bool { return got.len() == 1 }, waitFor, tick)
		require.NoError(t, writer.Remove("k"))
		require.Eventually(t, func() bool { return got.len() == 2 }, waitFor, tick)

		assert.Equal(t, []change{{"a", true}, {"", false}}, got.all())
	})

	t.Run("set and remove between polls", func(t *testing.T) {
		dir := t.TempDir()
		writer, err := NewFileSharedStore(dir, 0, nil)
		require.NoError(t, err)
		require.NoError(t, writer.Set("k", "old"))
		reader, err := NewFileSharedStore(dir, 50*time.Millisecond, nil)
		require.NoError(t, err)

		var got recorder[change]
		cancel := reader.Watch("k", func(v string, ok bool) { got.add(change{v, ok}) })
		defer cancel()

		require.NoError(t, writer.Set("k", "a"))
		require.NoError(t, writer.Remove("k"))
		require.Eventually(t, func() bool { return got.len() == 2 }, waitFor, tick)

		assert.Equal(t, []change{{"a", true}, {"", false}}, got.all())
	})

	t.Run("cancelled watch is silent", func(t *testing.T) {
		dir := t.TempDir()
		s, err := NewFileSharedStore(dir, 5*time.Millisecond, nil)
		require.NoError(t, err)

		var got recorder[change]
		cancel := s.Watch("k", func(v string, ok bool) { got.add(change{v, ok}) })
		cancel()
		require.NoError(t, s.Set("k", "a"))

		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, 0, got.len())
	})
}
