package wal

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/pagestore/core"
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// compressPage returns the stored form of a page image and the codec that
// produced it. Images that do not shrink are stored raw.
func compressPage(p *core.Page, c Compression) ([]byte, Compression, error) {
	switch c {
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(core.PageSize))
		n, err := lz4.CompressBlock(p[:], dst, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		if n > 0 && n < core.PageSize {
			return dst[:n], CompressionLZ4, nil
		}
	case CompressionZSTD:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, 0, fmt.Errorf("zstd encoder: %w", err)
		}
		out := enc.EncodeAll(p[:], make([]byte, 0, core.PageSize/4))
		putZstdEncoder(enc)
		if len(out) < core.PageSize {
			return out, CompressionZSTD, nil
		}
	}
	return p[:], CompressionNone, nil
}

// decompressPage restores a page image stored with codec c.
func decompressPage(data []byte, c Compression) (*core.Page, error) {
	page := new(core.Page)
	switch c {
	case CompressionNone:
		if len(data) != core.PageSize {
			return nil, fmt.Errorf("%w: raw image is %d bytes", ErrCorruptRecord, len(data))
		}
		copy(page[:], data)
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(data, page[:])
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorruptRecord, err)
		}
		if n != core.PageSize {
			return nil, fmt.Errorf("%w: lz4 image is %d bytes", ErrCorruptRecord, n)
		}
	case CompressionZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		out, err := dec.DecodeAll(data, page[:0])
		putZstdDecoder(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorruptRecord, err)
		}
		if len(out) != core.PageSize {
			return nil, fmt.Errorf("%w: zstd image is %d bytes", ErrCorruptRecord, len(out))
		}
		copy(page[:], out)
	default:
		return nil, fmt.Errorf("%w: unknown image codec %d", ErrCorruptRecord, c)
	}
	return page, nil
}
