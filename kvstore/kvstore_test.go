package kvstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

func testStore(t *testing.T, s store) {
	t.Helper()

	got, err := s.Get("missing")
	require.NoError(t, err)
	require.Nil(t, got, "missing key must read as nil")

	require.NoError(t, s.Put("project", []byte(`{"phase":2}`)))
	got, err = s.Get("project")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"phase":2}`), got)

	require.NoError(t, s.Put("project", []byte(`{"phase":3}`)))
	got, err = s.Get("project")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"phase":3}`), got)
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	value := []byte("original")
	require.NoError(t, m.Put("k", value))
	value[0] = 'X'

	got, err := m.Get("k")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)

	got[0] = 'Y'
	again, err := m.Get("k")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), again)
}

func TestBolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := OpenBolt(path)
	require.NoError(t, err)
	defer db.Close()

	testStore(t, db)
}

func TestBoltReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	db, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, db.Put("project", []byte("persisted")))
	require.NoError(t, db.Close())

	db, err = OpenBolt(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Get("project")
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), got)
}
