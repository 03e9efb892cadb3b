package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntToUint32(t *testing.T) {
	t.Run("valid zero", func(t *testing.T) {
		got, err := IntToUint32(0)
		assert.NoError(t, err)
		assert.Equal(t, uint32(0), got)
	})

	t.Run("valid max", func(t *testing.T) {
		got, err := IntToUint32(math.MaxUint32)
		assert.NoError(t, err)
		assert.Equal(t, uint32(math.MaxUint32), got)
	})

	t.Run("invalid negative", func(t *testing.T) {
		_, err := IntToUint32(-1)
		assert.Error(t, err)
	})

	t.Run("invalid too large", func(t *testing.T) {
		_, err := IntToUint32(math.MaxUint32 + 1)
		assert.Error(t, err)
	})
}

func TestUint32ToInt(t *testing.T) {
	got, err := Uint32ToInt(math.MaxUint32)
	assert.NoError(t, err)
	assert.Equal(t, math.MaxUint32, got)
}

func TestInt64ToUint64(t *testing.T) {
	got, err := Int64ToUint64(math.MaxInt64)
	assert.NoError(t, err)
	assert.Equal(t, uint64(math.MaxInt64), got)

	_, err = Int64ToUint64(-1)
	assert.Error(t, err)
}

func TestUint64ToInt64(t *testing.T) {
	got, err := Uint64ToInt64(math.MaxInt64)
	assert.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	_, err = Uint64ToInt64(math.MaxInt64 + 1)
	assert.Error(t, err)
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		name    string
		count   uint64
		unit    int64
		want    int64
		wantErr bool
	}{
		{name: "zero", count: 0, unit: 4096, want: 0},
		{name: "pages", count: 3, unit: 4096, want: 12288},
		{name: "largest", count: math.MaxInt64 / 4096, unit: 4096, want: (math.MaxInt64 / 4096) * 4096},
		{name: "overflow", count: math.MaxInt64/4096 + 1, unit: 4096, wantErr: true},
		{name: "bad unit", count: 1, unit: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ByteSize(tt.count, tt.unit)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
