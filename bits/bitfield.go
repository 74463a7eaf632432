package bits

import "math/bits"

// Bitfield is a growable bit set, used as a per-column null mask inside pages.
type Bitfield []uint64

func NewBitfield(size int) Bitfield {
	return make(Bitfield, (size+63)>>6)
}

// Words is the number of 64 bit words needed to hold size bits.
func Words(size int) int {
	return (size + 63) >> 6
}

func (b Bitfield) Set(bit int) {
	word := bit >> 6 // bit / 64
	mask := uint64(1) << (bit & 63)
	b[word] |= mask
}

func (b Bitfield) Clear(bit int) {
	word := bit >> 6
	mask := uint64(1) << (bit & 63)
	b[word] &^= mask
}

func (b Bitfield) Get(bit int) bool {
	word := bit >> 6
	return (b[word]>>(bit&63))&1 == 1
}

func (b Bitfield) Any() bool {
	for _, w := range b {
		if w != 0 {
			return true
		}
	}
	return false
}

func (b Bitfield) Count() int {
	c := 0
	for _, w := range b {
		c += bits.OnesCount64(w)
	}
	return c
}

func (b Bitfield) Reset() {
	clear(b)
}
