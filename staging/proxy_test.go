package staging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagestore/core"
	"github.com/hupe1980/pagestore/txn"
)

type fakePages struct {
	pages  map[core.PageID]*core.Page
	reads  []core.PageID
	writes []core.PageID
	failAt core.PageID
	fail   bool
}

func newFakePages() *fakePages {
	return &fakePages{pages: make(map[core.PageID]*core.Page)}
}

func (f *fakePages) ReadPage(_ core.TransactionID, _ core.FileID, page core.PageID) (*core.Page, error) {
	f.reads = append(f.reads, page)
	img := new(core.Page)
	if p, ok := f.pages[page]; ok {
		*img = *p
	}
	return img, nil
}

func (f *fakePages) WritePage(_ core.TransactionID, _ core.FileID, page core.PageID, image *core.Page) error {
	if f.fail && page == f.failAt {
		return errors.New("boom")
	}
	f.writes = append(f.writes, page)
	cp := *image
	f.pages[page] = &cp
	return nil
}

func TestProxy_ReadWriteAcrossPages(t *testing.T) {
	pages := newFakePages()
	p := New(pages, 1, 1)

	data := []byte("hello, page boundary")
	addr := uint64(core.PageSize - 5)
	require.NoError(t, p.Write(addr, data))

	got, err := p.Read(addr, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, []core.PageID{0, 1}, p.Dirty())

	// Cached pages are not read twice.
	_, err = p.Read(0, 2*core.PageSize)
	require.NoError(t, err)
	assert.Equal(t, []core.PageID{0, 1}, pages.reads)
	assert.Empty(t, pages.writes)
}

func TestProxy_FlushOncePerDirtyPage(t *testing.T) {
	pages := newFakePages()
	p := New(pages, 1, 1)

	require.NoError(t, p.Write(3*core.PageSize+10, []byte{1}))
	require.NoError(t, p.Write(0, []byte{2}))
	require.NoError(t, p.Write(3*core.PageSize+20, []byte{3}))
	require.NoError(t, p.Write(10, []byte{4}))

	require.NoError(t, p.Flush())
	assert.Equal(t, []core.PageID{0, 3}, pages.writes)
	assert.Empty(t, p.Dirty())
	assert.Equal(t, byte(4), pages.pages[0][10])
	assert.Equal(t, byte(3), pages.pages[3][20])

	require.NoError(t, p.Flush())
	assert.Len(t, pages.writes, 2)
}

func TestProxy_FlushFailureKeepsRemainingDirty(t *testing.T) {
	pages := newFakePages()
	pages.fail, pages.failAt = true, 2
	p := New(pages, 1, 1)

	for _, page := range []uint64{1, 2, 5} {
		require.NoError(t, p.Write(page*core.PageSize, []byte{9}))
	}
	require.Error(t, p.Flush())
	assert.Equal(t, []core.PageID{2, 5}, p.Dirty())
}

func TestProxy_Discard(t *testing.T) {
	pages := newFakePages()
	pages.pages[0] = &core.Page{7}
	p := New(pages, 1, 1)

	require.NoError(t, p.Write(0, []byte{1}))
	p.Discard()
	assert.Empty(t, p.Dirty())

	got, err := p.Read(0, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, got)
}

func TestProxy_InvalidRanges(t *testing.T) {
	p := New(newFakePages(), 1, 1)

	_, err := p.Read(^uint64(0)-2, 8)
	assert.ErrorIs(t, err, ErrAddressOverflow)
	_, err = p.Read(0, -1)
	assert.Error(t, err)

	got, err := p.Read(100, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProxy_WithManager(t *testing.T) {
	m, err := txn.New(t.TempDir())
	require.NoError(t, err)
	defer m.Close()
	_, err = m.CrashRecover()
	require.NoError(t, err)

	tx, err := m.Begin()
	require.NoError(t, err)
	file, err := m.CreateFile(tx)
	require.NoError(t, err)
	_, err = m.ExtendFile(tx, file, 2)
	require.NoError(t, err)

	p := New(m, tx, file)
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, p.Write(core.PageSize-50, payload))
	require.NoError(t, p.Flush())
	require.NoError(t, m.Commit(tx))

	reader, err := m.Begin()
	require.NoError(t, err)
	got, err := New(m, reader, file).Read(core.PageSize-50, 100)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Staging past the extent surfaces the manager's error.
	err = New(m, reader, file).Write(2*core.PageSize, []byte{1})
	assert.ErrorIs(t, err, txn.ErrInvalidAddress)
}
