package txn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagestore/core"
	"github.com/hupe1980/pagestore/wal"
)

// crash closes m without checkpointing, the closest a test gets to a kill.
func crash(t *testing.T, m *Manager) {
	t.Helper()
	require.NoError(t, m.Close())
}

func TestRecovery_DurableAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	m := openManager(t, dir, WithWALOptions(wal.Options{Compression: wal.CompressionLZ4}))
	file := createFile(t, m, 2)
	writeCommitted(t, m, file, 1, filled(0x42))
	crash(t, m)

	m2, err := New(dir)
	require.NoError(t, err)
	defer m2.Close()

	stats, err := m2.CrashRecover()
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Scanned)
	assert.Equal(t, 3, stats.Replayed)
	assert.Equal(t, 0, stats.Discarded)
	assert.Equal(t, 2, stats.Committed)
	assert.False(t, stats.TornTail)

	assert.Equal(t, int64(0), m2.Stats().WALSize)
	assert.Equal(t, filled(0x42), readFresh(t, m2, file, 1))
	assert.Len(t, readDataFile(t, m2, file), 2*core.PageSize)

	// Ids restart after recovery.
	tx, err := m2.Begin()
	require.NoError(t, err)
	assert.Equal(t, core.TransactionID(2), tx)
}

func TestRecovery_DiscardsUncommitted(t *testing.T) {
	dir := t.TempDir()
	m := openManager(t, dir)
	file := createFile(t, m, 1)
	writeCommitted(t, m, file, 0, filled(1))

	tx, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.WritePage(tx, file, 0, filled(2)))
	orphan, err := m.CreateFile(tx)
	require.NoError(t, err)
	crash(t, m)

	m2, err := New(dir)
	require.NoError(t, err)
	defer m2.Close()
	stats, err := m2.CrashRecover()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Discarded)
	assert.Equal(t, 3, stats.Replayed)

	assert.Equal(t, filled(1), readFresh(t, m2, file, 0))
	_, err = os.Stat(filepath.Join(dir, orphan.String()))
	assert.True(t, os.IsNotExist(err))
}

func TestRecovery_Idempotent(t *testing.T) {
	dir := t.TempDir()
	m := openManager(t, dir)
	a := createFile(t, m, 2)
	writeCommitted(t, m, a, 0, filled(1))
	writeCommitted(t, m, a, 0, filled(2))
	writeCommitted(t, m, a, 1, filled(3))

	// Partially checkpointed state must not confuse replay.
	for i := 0; i < 3; i++ {
		_, err := m.CheckpointStep()
		require.NoError(t, err)
	}
	crash(t, m)

	walPath := filepath.Join(dir, WALFileName)
	walBytes, err := os.ReadFile(walPath)
	require.NoError(t, err)

	m2, err := New(dir)
	require.NoError(t, err)
	_, err = m2.CrashRecover()
	require.NoError(t, err)
	require.NoError(t, m2.Close())
	first := readDataFileAt(t, dir, a)

	// A crash during the first recovery leaves the old WAL in place; replaying
	// it again over the recovered files yields the same state.
	require.NoError(t, os.WriteFile(walPath, walBytes, 0o600))
	m3, err := New(dir)
	require.NoError(t, err)
	defer m3.Close()
	_, err = m3.CrashRecover()
	require.NoError(t, err)
	assert.Equal(t, first, readDataFileAt(t, dir, a))

	assert.Equal(t, filled(2), readFresh(t, m3, a, 0))
	assert.Equal(t, filled(3), readFresh(t, m3, a, 1))

	// Recovering again only sees the commit records of the readers.
	stats, err := m3.CrashRecover()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Replayed)
	assert.Equal(t, first, readDataFileAt(t, dir, a))
}

func readDataFileAt(t *testing.T, dir string, file core.FileID) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, file.String()))
	require.NoError(t, err)
	return data
}

func TestRecovery_TornTail(t *testing.T) {
	dir := t.TempDir()
	m := openManager(t, dir)
	file := createFile(t, m, 1)
	writeCommitted(t, m, file, 0, filled(0x11))
	crash(t, m)

	walPath := filepath.Join(dir, WALFileName)
	data, err := os.ReadFile(walPath)
	require.NoError(t, err)

	// The first 20 bytes of a record: a complete header, a cut payload.
	torn := append([]byte{}, data...)
	torn = append(torn, data[:20]...)
	require.NoError(t, os.WriteFile(walPath, torn, 0o600))

	m2, err := New(dir)
	require.NoError(t, err)
	defer m2.Close()
	stats, err := m2.CrashRecover()
	require.NoError(t, err)
	assert.True(t, stats.TornTail)
	assert.Equal(t, 5, stats.Scanned)
	assert.Equal(t, filled(0x11), readFresh(t, m2, file, 0))

	info, err := os.Stat(walPath)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestRecovery_CommitLostInTornTail(t *testing.T) {
	dir := t.TempDir()
	m := openManager(t, dir)
	file := createFile(t, m, 1)
	tx, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.WritePage(tx, file, 0, filled(0x22)))
	sizeBeforeCommit := m.Stats().WALSize
	require.NoError(t, m.Commit(tx))
	crash(t, m)

	// Cut the commit record in half.
	walPath := filepath.Join(dir, WALFileName)
	require.NoError(t, os.Truncate(walPath, sizeBeforeCommit+5))

	m2, err := New(dir)
	require.NoError(t, err)
	defer m2.Close()
	stats, err := m2.CrashRecover()
	require.NoError(t, err)
	assert.True(t, stats.TornTail)
	assert.Equal(t, 1, stats.Discarded)
	assert.Equal(t, new(core.Page), readFresh(t, m2, file, 0))
}

func TestRecovery_RejectsOpenTransactions(t *testing.T) {
	m := openManager(t, t.TempDir())
	tx, err := m.Begin()
	require.NoError(t, err)

	_, err = m.CrashRecover()
	assert.ErrorIs(t, err, ErrTransactionsOpen)

	require.NoError(t, m.Commit(tx))
	_, err = m.CrashRecover()
	assert.NoError(t, err)
}

func TestRecovery_DeleteReplay(t *testing.T) {
	dir := t.TempDir()
	m := openManager(t, dir)
	file := createFile(t, m, 1)
	drain(t, m)

	tx, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.WritePage(tx, file, 0, filled(5)))
	require.NoError(t, m.DeleteFile(tx, file))
	require.NoError(t, m.Commit(tx))
	crash(t, m)

	m2, err := New(dir)
	require.NoError(t, err)
	defer m2.Close()
	_, err = m2.CrashRecover()
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, file.String()))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, file, m2.Stats().NextFileID)
}
