package txn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagestore/core"
)

func drain(t *testing.T, m *Manager) int {
	t.Helper()
	steps := 0
	for {
		progressed, err := m.CheckpointStep()
		require.NoError(t, err)
		if !progressed {
			return steps
		}
		steps++
		require.Less(t, steps, 10_000, "checkpoint does not converge")
	}
}

func readDataFile(t *testing.T, m *Manager, file core.FileID) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(m.Dir(), file.String()))
	require.NoError(t, err)
	return data
}

func TestCheckpoint_Convergence(t *testing.T) {
	m := openManager(t, t.TempDir(), WithSyncConcurrency(2))
	a := createFile(t, m, 4)
	b := createFile(t, m, 2)

	for i := 0; i < 4; i++ {
		writeCommitted(t, m, a, core.PageID(i), filled(byte(10+i)))
	}
	writeCommitted(t, m, b, 1, filled(0xEE))
	writeCommitted(t, m, a, 0, filled(0x55))

	steps := drain(t, m)
	// Two creates, two extends, six page writes, one truncation.
	assert.Equal(t, 11, steps)

	s := m.Stats()
	assert.Equal(t, 0, s.PendingRecords)
	assert.Equal(t, 0, s.CommittedTransactions)
	assert.Equal(t, int64(0), s.WALSize)

	dataA := readDataFile(t, m, a)
	require.Len(t, dataA, 4*core.PageSize)
	assert.Equal(t, filled(0x55)[:], dataA[:core.PageSize])
	assert.Equal(t, filled(13)[:], dataA[3*core.PageSize:])

	dataB := readDataFile(t, m, b)
	require.Len(t, dataB, 2*core.PageSize)
	assert.Equal(t, make([]byte, core.PageSize), dataB[:core.PageSize])

	// Reads now come from the data files.
	assert.Equal(t, filled(0x55), readFresh(t, m, a, 0))
	assert.Equal(t, filled(0xEE), readFresh(t, m, b, 1))

	// Only the commit records of the readers are left to truncate.
	assert.Equal(t, 1, drain(t, m))
	progressed, err := m.CheckpointStep()
	require.NoError(t, err)
	assert.False(t, progressed)
}

func TestCheckpoint_NoProgressWhileUncommitted(t *testing.T) {
	m := openManager(t, t.TempDir())

	tx, err := m.Begin()
	require.NoError(t, err)
	file, err := m.CreateFile(tx)
	require.NoError(t, err)

	progressed, err := m.CheckpointStep()
	require.NoError(t, err)
	assert.False(t, progressed)

	require.NoError(t, m.Commit(tx))
	assert.Equal(t, 2, drain(t, m))

	_, err = os.Stat(filepath.Join(m.Dir(), file.String()))
	assert.NoError(t, err)
}

func TestCheckpoint_WaitsForOlderReaders(t *testing.T) {
	m := openManager(t, t.TempDir())
	file := createFile(t, m, 1)
	drain(t, m)

	reader, err := m.Begin()
	require.NoError(t, err)
	writeCommitted(t, m, file, 0, filled(8))

	// Applying the write would leak it into reader's view of the data file.
	progressed, err := m.CheckpointStep()
	require.NoError(t, err)
	assert.False(t, progressed)

	got, err := m.ReadPage(reader, file, 0)
	require.NoError(t, err)
	assert.Equal(t, new(core.Page), got)

	require.NoError(t, m.Commit(reader))
	assert.Equal(t, 2, drain(t, m))
	assert.Equal(t, filled(8)[:], readDataFile(t, m, file))
}

func TestCheckpoint_UncommittedBlocksOnlyItsFile(t *testing.T) {
	m := openManager(t, t.TempDir())
	a := createFile(t, m, 1)
	b := createFile(t, m, 1)
	drain(t, m)

	open, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.WritePage(open, a, 0, filled(1)))

	// open began before these commit, so nothing can be applied yet.
	writeCommitted(t, m, a, 0, filled(2))
	writeCommitted(t, m, b, 0, filled(3))
	progressed, err := m.CheckpointStep()
	require.NoError(t, err)
	assert.False(t, progressed)

	require.NoError(t, m.Rollback(open))

	later, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.WritePage(later, a, 0, filled(4)))

	// later's uncommitted write on a does not hold back b. The committed write
	// on a is older than later's record, so it may go too.
	assert.Equal(t, 2, drain(t, m))
	assert.Equal(t, filled(2)[:], readDataFile(t, m, a))
	assert.Equal(t, filled(3)[:], readDataFile(t, m, b))
	assert.Equal(t, 1, m.Stats().PendingRecords)

	require.NoError(t, m.Commit(later))
	assert.Equal(t, 2, drain(t, m))
	assert.Equal(t, filled(4)[:], readDataFile(t, m, a))
}

func TestCheckpoint_DeleteAndShrink(t *testing.T) {
	m := openManager(t, t.TempDir())
	keep := createFile(t, m, 3)
	gone := createFile(t, m, 1)
	drain(t, m)

	tx, err := m.Begin()
	require.NoError(t, err)
	_, err = m.ExtendFile(tx, keep, -2)
	require.NoError(t, err)
	require.NoError(t, m.DeleteFile(tx, gone))
	require.NoError(t, m.Commit(tx))
	drain(t, m)

	assert.Len(t, readDataFile(t, m, keep), core.PageSize)
	_, err = os.Stat(filepath.Join(m.Dir(), gone.String()))
	assert.True(t, os.IsNotExist(err))

	tx, err = m.Begin()
	require.NoError(t, err)
	extent, err := m.Extent(tx, keep)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), extent)
	_, err = m.Extent(tx, gone)
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestCheckpoint_ShrinkRegrowPendingImage(t *testing.T) {
	m := openManager(t, t.TempDir())
	file := createFile(t, m, 4)
	writeCommitted(t, m, file, 3, filled(0xAA))

	tx, err := m.Begin()
	require.NoError(t, err)
	_, err = m.ExtendFile(tx, file, -2)
	require.NoError(t, err)
	_, err = m.ExtendFile(tx, file, 2)
	require.NoError(t, err)

	got, err := m.ReadPage(tx, file, 3)
	require.NoError(t, err)
	assert.Equal(t, new(core.Page), got)

	require.NoError(t, m.WritePage(tx, file, 3, filled(0x01)))
	undo, err := m.UndoChain(tx, file, 3)
	require.NoError(t, err)
	require.Len(t, undo, 1)
	assert.Equal(t, new(core.Page), undo[0])
	require.NoError(t, m.Rollback(tx))

	tx, err = m.Begin()
	require.NoError(t, err)
	_, err = m.ExtendFile(tx, file, -2)
	require.NoError(t, err)
	_, err = m.ExtendFile(tx, file, 2)
	require.NoError(t, err)
	require.NoError(t, m.Commit(tx))

	before := readFresh(t, m, file, 3)
	drain(t, m)
	assert.Equal(t, new(core.Page), before)
	assert.Equal(t, before, readFresh(t, m, file, 3))
	assert.Equal(t, make([]byte, core.PageSize), readDataFile(t, m, file)[3*core.PageSize:])
}

func TestCheckpoint_ShrinkRegrowCheckpointedImage(t *testing.T) {
	dir := t.TempDir()
	m := openManager(t, dir)
	file := createFile(t, m, 4)
	writeCommitted(t, m, file, 3, filled(0xBB))
	writeCommitted(t, m, file, 0, filled(0xCC))
	drain(t, m)

	for _, delta := range []int64{-2, 2} {
		tx, err := m.Begin()
		require.NoError(t, err)
		_, err = m.ExtendFile(tx, file, delta)
		require.NoError(t, err)
		require.NoError(t, m.Commit(tx))
	}

	assert.Equal(t, new(core.Page), readFresh(t, m, file, 3))
	assert.Equal(t, filled(0xCC), readFresh(t, m, file, 0))

	crash(t, m)
	m = openManager(t, dir)
	assert.Equal(t, new(core.Page), readFresh(t, m, file, 3))
	assert.Equal(t, filled(0xCC), readFresh(t, m, file, 0))
}
