//go:build !unix

package io

import "os"

// no mmap here, the region is read into the heap
func mapFileRegion(f *os.File, region *MappedRegion, offset, length int64) error {
	buf := make([]byte, length)

	if _, err := f.ReadAt(buf, offset); err != nil {
		return err
	}

	region.mapping = buf
	region.data = buf

	return nil
}

func unmapFileRegion(region *MappedRegion) error {
	region.mapping = nil
	region.data = nil
	return nil
}
