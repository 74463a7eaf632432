package io

// MappedRegion is a byte range of a RegionStore file. It must be released
// exactly once, through Release or RegionStore.Unmap.
type MappedRegion struct {
	owner *RegionStore

	// whole mapping, starts at a page aligned offset
	mapping []byte
	data    []byte

	offset   int64
	released bool
}

// Bytes returns the mapped range, nil once released. The slice must not be
// used after release.
func (r *MappedRegion) Bytes() []byte {
	if r.released {
		return nil
	}
	return r.data
}

func (r *MappedRegion) Len() int {
	return len(r.data)
}

func (r *MappedRegion) Offset() int64 {
	return r.offset
}

func (r *MappedRegion) Released() bool {
	return r.released
}

func (r *MappedRegion) Release() error {
	return r.owner.Unmap(r)
}
