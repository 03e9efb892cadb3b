// Package staging provides a byte-addressed view of one file inside one
// transaction. Pages are loaded on first access, patched in memory and written
// back through the transaction manager on Flush.
package staging

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/pagestore/core"
)

// ErrAddressOverflow is returned when a range does not fit the 64-bit address space.
var ErrAddressOverflow = errors.New("address range overflows")

// PageReadWriter is the page interface a Proxy stages against.
type PageReadWriter interface {
	ReadPage(txn core.TransactionID, file core.FileID, page core.PageID) (*core.Page, error)
	WritePage(txn core.TransactionID, file core.FileID, page core.PageID, image *core.Page) error
}

// Proxy caches the pages of one file for one transaction.
// It is not safe for concurrent use.
type Proxy struct {
	pages PageReadWriter
	txn   core.TransactionID
	file  core.FileID

	cache map[core.PageID]*core.Page
	dirty *roaring64.Bitmap
}

// New returns an empty proxy for file inside txn.
func New(pages PageReadWriter, txn core.TransactionID, file core.FileID) *Proxy {
	return &Proxy{
		pages: pages,
		txn:   txn,
		file:  file,
		cache: make(map[core.PageID]*core.Page),
		dirty: roaring64.New(),
	}
}

func (p *Proxy) load(page core.PageID) (*core.Page, error) {
	if img, ok := p.cache[page]; ok {
		return img, nil
	}
	img, err := p.pages.ReadPage(p.txn, p.file, page)
	if err != nil {
		return nil, err
	}
	p.cache[page] = img
	return img, nil
}

// span calls fn for every page piece of [addr, addr+n).
func span(addr uint64, n int, fn func(page core.PageID, off, start, end int) error) error {
	if addr+uint64(n) < addr {
		return fmt.Errorf("%w: %d+%d", ErrAddressOverflow, addr, n)
	}
	done := 0
	for done < n {
		cur := addr + uint64(done)
		page := core.PageID(cur >> core.PageShift)
		off := int(cur & core.PageMask)
		chunk := min(core.PageSize-off, n-done)
		if err := fn(page, off, done, done+chunk); err != nil {
			return err
		}
		done += chunk
	}
	return nil
}

// Read returns size bytes starting at addr. The range may cross pages.
func (p *Proxy) Read(addr uint64, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative size %d", size)
	}
	out := make([]byte, size)
	err := span(addr, size, func(page core.PageID, off, start, end int) error {
		img, err := p.load(page)
		if err != nil {
			return err
		}
		copy(out[start:end], img[off:])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Write copies data to addr in the staged pages and marks them dirty.
// Nothing reaches the transaction manager until Flush.
func (p *Proxy) Write(addr uint64, data []byte) error {
	return span(addr, len(data), func(page core.PageID, off, start, end int) error {
		img, err := p.load(page)
		if err != nil {
			return err
		}
		copy(img[off:], data[start:end])
		p.dirty.Add(uint64(page))
		return nil
	})
}

// Dirty returns the modified pages in ascending order.
func (p *Proxy) Dirty() []core.PageID {
	ids := p.dirty.ToArray()
	out := make([]core.PageID, len(ids))
	for i, id := range ids {
		out[i] = core.PageID(id)
	}
	return out
}

// Flush writes every dirty page once, in ascending page order. Pages written
// before a failure are no longer dirty.
func (p *Proxy) Flush() error {
	for _, page := range p.Dirty() {
		if err := p.pages.WritePage(p.txn, p.file, page, p.cache[page]); err != nil {
			return fmt.Errorf("flush page %d: %w", page, err)
		}
		p.dirty.Remove(uint64(page))
	}
	return nil
}

// Discard drops every staged page, including unflushed changes.
func (p *Proxy) Discard() {
	clear(p.cache)
	p.dirty.Clear()
}
