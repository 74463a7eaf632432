//go:build unix

package io

import (
	"os"

	"golang.org/x/sys/unix"
)

func mapFileRegion(f *os.File, region *MappedRegion, offset, length int64) error {
	pageSize := int64(unix.Getpagesize())
	alignedOffset := offset - offset%pageSize
	delta := offset - alignedOffset

	mapping, err := unix.Mmap(int(f.Fd()), alignedOffset, int(length+delta), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return err
	}

	region.mapping = mapping
	region.data = mapping[delta : delta+length : delta+length]

	return nil
}

func unmapFileRegion(region *MappedRegion) error {
	mapping := region.mapping

	region.mapping = nil
	region.data = nil

	if mapping == nil {
		return nil
	}

	return unix.Munmap(mapping)
}
