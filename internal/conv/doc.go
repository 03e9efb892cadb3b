// Package conv provides checked integer conversions.
//
// Lengths, extents and file sizes cross between the fixed-width fields of the
// WAL and the int/int64 values used by the io and os APIs. The helpers here
// return an error instead of silently wrapping.
//
// Conversions that are provably in range (loop indices, values already
// bounded by a length check) use plain casts.
package conv
