package bits

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	uid := uuid.New()

	// start tiny so the writer has to grow a few times
	w := NewGrowingBuffer(2, binary.LittleEndian)
	w.PutUint16(0xBEEF)
	w.PutUint32(7)
	w.PutUint64(math.MaxUint64)
	w.PutInt64(-42)
	w.PutFloat64(math.Pi)
	w.PutBool(true)
	w.WriteByte(9)
	w.Write(uid[:])
	w.PutString("mvstore")
	w.PutString("")
	w.EmptyBytes(5)

	r := NewBinReader(w.Bytes(), binary.LittleEndian)

	assert.Equal(t, uint16(0xBEEF), r.MustReadU16())

	u32, err := r.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), u32)

	assert.Equal(t, uint64(math.MaxUint64), r.MustReadU64())

	i64, err := r.ReadI64()
	require.NoError(t, err)
	assert.Equal(t, int64(-42), i64)

	f, err := r.ReadF64()
	require.NoError(t, err)
	assert.Equal(t, math.Pi, f)

	b, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)

	assert.Equal(t, uint8(9), r.MustReadU8())

	readUid, err := r.ReadUUID()
	require.NoError(t, err)
	assert.Equal(t, uid, readUid)

	s, err := r.ReadString(64)
	require.NoError(t, err)
	assert.Equal(t, "mvstore", s)

	s, err = r.ReadString(64)
	require.NoError(t, err)
	assert.Empty(t, s)

	require.NoError(t, r.Skip(5))
	assert.Equal(t, w.Position(), r.Consumed())

	_, err = r.ReadU8()
	assert.ErrorIs(t, err, ErrEOF)
}

func TestFixedWriterPanicsWhenFull(t *testing.T) {
	w := NewEncodeBuffer(make([]byte, 4), binary.LittleEndian)
	w.PutUint32(1)

	assert.Panics(t, func() { w.PutUint16(1) })
}

func TestEmptyBytesZeroesReusedBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	w := NewEncodeBuffer(buf, binary.LittleEndian)
	w.EmptyBytes(4)

	assert.Equal(t, []byte{0, 0, 0, 0}, w.Bytes())
}

func TestReaderErrors(t *testing.T) {
	t.Run("short read", func(t *testing.T) {
		r := NewBinReader([]byte{1, 2}, binary.LittleEndian)
		_, err := r.ReadU32()
		assert.ErrorIs(t, err, ErrReadMismatch)
	})

	t.Run("string prefix too long", func(t *testing.T) {
		w := NewGrowingBuffer(8, binary.LittleEndian)
		w.PutString("longer than allowed")

		r := NewBinReader(w.Bytes(), binary.LittleEndian)
		_, err := r.ReadString(4)
		assert.ErrorIs(t, err, ErrTooLong)
	})

	t.Run("truncated string body", func(t *testing.T) {
		w := NewGrowingBuffer(8, binary.LittleEndian)
		w.PutUint32(10)
		w.Write([]byte("abc"))

		r := NewBinReader(w.Bytes(), binary.LittleEndian)
		_, err := r.ReadString(64)
		assert.ErrorIs(t, err, ErrReadMismatch)
	})
}

func TestBitfield(t *testing.T) {
	b := NewBitfield(130)
	require.Len(t, b, 3)
	assert.Equal(t, 3, Words(130))
	assert.False(t, b.Any())

	for _, bit := range []int{0, 63, 64, 129} {
		b.Set(bit)
	}

	assert.True(t, b.Get(63))
	assert.True(t, b.Get(64))
	assert.False(t, b.Get(65))
	assert.Equal(t, 4, b.Count())

	b.Clear(63)
	assert.False(t, b.Get(63))
	assert.Equal(t, 3, b.Count())

	b.Reset()
	assert.False(t, b.Any())
}
