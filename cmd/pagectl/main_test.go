package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagestore"
	"github.com/hupe1980/pagestore/txn"
)

// seed writes one committed page and leaves it in the WAL.
func seed(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	st, err := pagestore.Open(dir)
	require.NoError(t, err)

	tx, err := st.Begin()
	require.NoError(t, err)
	file, err := st.CreateFile(tx)
	require.NoError(t, err)
	_, err = st.ExtendFile(tx, file, 2)
	require.NoError(t, err)
	require.NoError(t, st.WritePage(tx, file, 1, new(pagestore.Page)))
	require.NoError(t, st.Commit(tx))
	require.NoError(t, st.Close())
	return dir
}

func TestDump(t *testing.T) {
	dir := seed(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"dump", dir}, &out, &bytes.Buffer{}))

	s := out.String()
	assert.Contains(t, s, "CreateFile")
	assert.Contains(t, s, "ExtendFile")
	assert.Contains(t, s, "ModifyPage")
	assert.Contains(t, s, "CommitTransaction")
	assert.Contains(t, s, "records=4")
	assert.Contains(t, s, "torn_tail=false")
}

func TestDump_TornTail(t *testing.T) {
	dir := seed(t)
	f, err := os.OpenFile(filepath.Join(dir, txn.WALFileName), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var out bytes.Buffer
	require.NoError(t, run([]string{"dump", dir}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "torn_tail=true")
}

func TestRecoverCheckpointStat(t *testing.T) {
	dir := seed(t)

	var out bytes.Buffer
	require.NoError(t, run([]string{"--log-format=json", "--log-level=debug", "recover", dir}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "replayed=3")

	out.Reset()
	require.NoError(t, run([]string{"checkpoint", dir}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "pending=0 wal_bytes=0")

	out.Reset()
	require.NoError(t, run([]string{"stat", dir}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "wal_bytes=0")
	assert.Regexp(t, `(?m)^0\s+2\s+8192$`, out.String())
}

func TestGlobalFlags(t *testing.T) {
	dir := seed(t)
	var out, logs bytes.Buffer
	require.NoError(t, run([]string{"--log-format=json", "--log-level=info", "checkpoint", dir}, &out, &logs))
	assert.Contains(t, logs.String(), `"msg":"crash recovery completed"`)

	err := run([]string{"--compression=zstd", "checkpoint", dir}, &out, &bytes.Buffer{})
	assert.Error(t, err)
	err = run([]string{"--log-format=xml", "checkpoint", dir}, &out, &bytes.Buffer{})
	assert.Error(t, err)
}
