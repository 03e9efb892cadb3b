package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/hupe1980/pagestore/core"
	"github.com/hupe1980/pagestore/internal/conv"
)

// Record layout:
//
//	[CRC32:4][Kind:1][Txn:8][Length:4][Payload:Length]
//
// The CRC covers everything after itself. Payloads:
//
//	ModifyPage:   [File:8][Page:8][Undo block][Redo block]
//	CreateFile:   [File:8]
//	DeleteFile:   [File:8]
//	ExtendFile:   [File:8][Delta:8][Extent:8]
//	Commit/Abort: empty
//
// An image block is [Codec:1][Length:4][Data:Length].
const (
	headerSize      = 4 + 1 + 8 + 4
	blockHeaderSize = 1 + 4
	maxPayloadSize  = 16 + 2*(blockHeaderSize+core.PageSize)
)

var (
	// ErrCorruptRecord is returned when bytes at an offset do not form a valid record.
	// At the physical end of the log this is the expected result of a torn append.
	ErrCorruptRecord = errors.New("corrupt WAL record")
	// ErrInvalidEvent is returned when an event cannot be encoded.
	ErrInvalidEvent = errors.New("invalid WAL event")
)

func payloadSize(e *Event, undo, redo []byte) int {
	switch e.Kind {
	case KindModifyPage:
		return 16 + blockHeaderSize + len(undo) + blockHeaderSize + len(redo)
	case KindCreateFile, KindDeleteFile:
		return 8
	case KindExtendFile:
		return 24
	default:
		return 0
	}
}

// encodeEvent serializes e into a single framed record.
func encodeEvent(e *Event, c Compression) ([]byte, error) {
	if !e.Kind.valid() {
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidEvent, e.Kind)
	}

	var (
		undo, redo           []byte
		undoCodec, redoCodec Compression
	)
	if e.Kind == KindModifyPage {
		if e.Undo == nil || e.Redo == nil {
			return nil, fmt.Errorf("%w: ModifyPage needs undo and redo images", ErrInvalidEvent)
		}
		var err error
		if undo, undoCodec, err = compressPage(e.Undo, c); err != nil {
			return nil, err
		}
		if redo, redoCodec, err = compressPage(e.Redo, c); err != nil {
			return nil, err
		}
	}

	n := payloadSize(e, undo, redo)
	length, err := conv.IntToUint32(n)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	buf := make([]byte, headerSize+n)
	buf[4] = byte(e.Kind)
	binary.LittleEndian.PutUint64(buf[5:], uint64(e.Txn))
	binary.LittleEndian.PutUint32(buf[13:], length)

	p := buf[headerSize:]
	switch e.Kind {
	case KindModifyPage:
		binary.LittleEndian.PutUint64(p[0:], uint64(e.File))
		binary.LittleEndian.PutUint64(p[8:], uint64(e.Page))
		off := putBlock(p, 16, undoCodec, undo)
		putBlock(p, off, redoCodec, redo)
	case KindCreateFile, KindDeleteFile:
		binary.LittleEndian.PutUint64(p[0:], uint64(e.File))
	case KindExtendFile:
		binary.LittleEndian.PutUint64(p[0:], uint64(e.File))
		binary.LittleEndian.PutUint64(p[8:], uint64(e.Delta)) //nolint:gosec // two's complement round-trips
		binary.LittleEndian.PutUint64(p[16:], e.Extent)
	}

	binary.LittleEndian.PutUint32(buf[0:], crc32.ChecksumIEEE(buf[4:]))
	return buf, nil
}

func putBlock(p []byte, off int, c Compression, data []byte) int {
	p[off] = byte(c)
	binary.LittleEndian.PutUint32(p[off+1:], uint32(len(data))) //nolint:gosec // at most one page
	copy(p[off+blockHeaderSize:], data)
	return off + blockHeaderSize + len(data)
}

// Decode reads one record from r and returns it with the number of bytes it
// occupies. A clean end of input yields io.EOF; anything else that is not a
// complete, checksummed record yields ErrCorruptRecord.
func Decode(r io.Reader) (*Event, int64, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, fmt.Errorf("%w: truncated header", ErrCorruptRecord)
		}
		return nil, 0, err
	}

	checksum := binary.LittleEndian.Uint32(header[0:])
	kind := EventKind(header[4])
	txn := core.TransactionID(binary.LittleEndian.Uint64(header[5:]))
	length := binary.LittleEndian.Uint32(header[13:])

	if !kind.valid() {
		return nil, 0, fmt.Errorf("%w: unknown kind %d", ErrCorruptRecord, kind)
	}
	if length > maxPayloadSize {
		return nil, 0, fmt.Errorf("%w: payload length %d", ErrCorruptRecord, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, fmt.Errorf("%w: truncated payload", ErrCorruptRecord)
		}
		return nil, 0, err
	}

	crc := crc32.NewIEEE()
	crc.Write(header[4:])
	crc.Write(payload)
	if crc.Sum32() != checksum {
		return nil, 0, fmt.Errorf("%w: checksum mismatch", ErrCorruptRecord)
	}

	e := &Event{Kind: kind, Txn: txn}
	if err := parsePayload(e, payload); err != nil {
		return nil, 0, err
	}
	return e, int64(headerSize) + int64(length), nil
}

func parsePayload(e *Event, p []byte) error {
	want := func(n int) error {
		if len(p) != n {
			return fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrCorruptRecord, e.Kind, len(p), n)
		}
		return nil
	}

	switch e.Kind {
	case KindModifyPage:
		if len(p) < 16 {
			return fmt.Errorf("%w: short ModifyPage payload", ErrCorruptRecord)
		}
		e.File = core.FileID(binary.LittleEndian.Uint64(p[0:]))
		e.Page = core.PageID(binary.LittleEndian.Uint64(p[8:]))
		undo, off, err := readBlock(p, 16)
		if err != nil {
			return err
		}
		redo, off, err := readBlock(p, off)
		if err != nil {
			return err
		}
		if off != len(p) {
			return fmt.Errorf("%w: trailing bytes in ModifyPage", ErrCorruptRecord)
		}
		e.Undo, e.Redo = undo, redo
	case KindCreateFile, KindDeleteFile:
		if err := want(8); err != nil {
			return err
		}
		e.File = core.FileID(binary.LittleEndian.Uint64(p[0:]))
	case KindExtendFile:
		if err := want(24); err != nil {
			return err
		}
		e.File = core.FileID(binary.LittleEndian.Uint64(p[0:]))
		e.Delta = int64(binary.LittleEndian.Uint64(p[8:])) //nolint:gosec // two's complement round-trips
		e.Extent = binary.LittleEndian.Uint64(p[16:])
	default:
		return want(0)
	}
	return nil
}

func readBlock(p []byte, off int) (*core.Page, int, error) {
	if len(p) < off+blockHeaderSize {
		return nil, 0, fmt.Errorf("%w: short image block", ErrCorruptRecord)
	}
	codec := Compression(p[off])
	n, err := conv.Uint32ToInt(binary.LittleEndian.Uint32(p[off+1:]))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	start := off + blockHeaderSize
	if n > core.PageSize || len(p) < start+n {
		return nil, 0, fmt.Errorf("%w: image block length %d", ErrCorruptRecord, n)
	}
	page, err := decompressPage(p[start:start+n], codec)
	if err != nil {
		return nil, 0, err
	}
	return page, start + n, nil
}
