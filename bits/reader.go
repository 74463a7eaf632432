package bits

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/google/uuid"
)

var (
	ErrEOF          = errors.New("end of file")
	ErrReadMismatch = errors.New("read size mismatch")
	ErrTooLong      = errors.New("length prefix exceeds input")
)

const MaxBinReaderBufferSize = 256

type BitsReader struct {
	readBuffer [MaxBinReaderBufferSize]byte

	buf   io.Reader
	order binary.ByteOrder
	read  int
}

func NewReader(buf io.Reader, order binary.ByteOrder) *BitsReader {
	return &BitsReader{buf: buf, order: order}
}

func NewBinReader(input []byte, order binary.ByteOrder) *BitsReader {
	return NewReader(bytes.NewReader(input), order)
}

// Consumed is the number of bytes read so far.
func (r *BitsReader) Consumed() int {
	return r.read
}

func (r *BitsReader) readNextBytesIntoReadBuffer(size int) error {
	readBytes, err := io.ReadFull(r.buf, r.readBuffer[:size])
	r.read += readBytes

	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrReadMismatch
		}
		return err
	}

	return nil
}

func (r *BitsReader) ReadU8() (uint8, error) {
	err := r.readNextBytesIntoReadBuffer(1)
	if err != nil {
		return 0, err
	}

	return r.readBuffer[0], nil
}

func (r *BitsReader) ReadBool() (bool, error) {
	u, err := r.ReadU8()
	return u != 0, err
}

func (r *BitsReader) ReadU16() (uint16, error) {
	err := r.readNextBytesIntoReadBuffer(2)
	if err != nil {
		return 0, err
	}

	return r.order.Uint16(r.readBuffer[:2]), nil
}

func (r *BitsReader) MustReadU16() uint16 {
	u, er := r.ReadU16()
	if er != nil {
		panic(er)
	}
	return u
}

func (r *BitsReader) MustReadU8() uint8 {
	u, er := r.ReadU8()
	if er != nil {
		panic(er)
	}
	return u
}

func (r *BitsReader) ReadUUID() (result uuid.UUID, err error) {
	err = r.ReadBytes(16, result[:])
	return result, err
}

func (r *BitsReader) ReadU32() (uint32, error) {
	readErr := r.readNextBytesIntoReadBuffer(4)
	if readErr != nil {
		return 0, readErr
	}
	return r.order.Uint32(r.readBuffer[:4]), nil
}

func (r *BitsReader) ReadU64() (uint64, error) {
	readErr := r.readNextBytesIntoReadBuffer(8)
	if readErr != nil {
		return 0, readErr
	}
	return r.order.Uint64(r.readBuffer[:8]), nil
}

func (r *BitsReader) MustReadU64() uint64 {
	u, er := r.ReadU64()
	if er != nil {
		panic(er)
	}
	return u
}

func (r *BitsReader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *BitsReader) ReadF64() (float64, error) {
	u, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

func (r *BitsReader) ReadBytes(n int, out []byte) error {
	readBytes, err := io.ReadFull(r.buf, out[:n])
	r.read += readBytes

	if readBytes != n {
		return ErrReadMismatch
	}

	return err
}

// ReadString reads a u32 length prefixed string, maxLen guards against corrupt prefixes.
func (r *BitsReader) ReadString(maxLen int) (string, error) {
	size, err := r.ReadU32()
	if err != nil {
		return "", err
	}

	if int(size) > maxLen {
		return "", ErrTooLong
	}

	if size == 0 {
		return "", nil
	}

	out := make([]byte, size)
	if err := r.ReadBytes(int(size), out); err != nil {
		return "", err
	}

	return string(out), nil
}

func (r *BitsReader) Skip(n int) error {
	for n > 0 {
		chunk := min(n, MaxBinReaderBufferSize)
		if err := r.readNextBytesIntoReadBuffer(chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
