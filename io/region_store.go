package io

import (
	"errors"
	"fmt"
	goio "io"
	"os"
	"sync"
	"time"
)

var (
	ErrStoreClosed       = errors.New("region store is closed")
	ErrReadOnly          = errors.New("region store is read only")
	ErrRegionsMapped     = errors.New("region store still has mapped regions")
	ErrRegionReleased    = errors.New("region already released")
	ErrForeignRegion     = errors.New("region is not owned by this store")
	ErrRegionOutOfBounds = errors.New("region is out of file bounds")
	ErrInvalidPosition   = errors.New("invalid position")
)

// RegionStore wraps a single file with a private cursor. Every instance owns
// its own handle, goroutines that read the same file concurrently each get an
// instance via Reopen.
type RegionStore struct {
	path     string
	file     *os.File
	opened   bool
	writable bool

	pos     int64
	modTime time.Time

	regionsLock sync.Mutex
	regions     map[*MappedRegion]struct{}
}

// Open opens an existing file for reading.
func Open(path string) (*RegionStore, error) {
	return open(path, os.O_RDONLY, false)
}

// Create creates or truncates a file for reading and writing.
func Create(path string) (*RegionStore, error) {
	return open(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, true)
}

func open(path string, flags int, writable bool) (*RegionStore, error) {
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}

	info, statErr := f.Stat()
	if statErr != nil {
		f.Close()
		return nil, fmt.Errorf("unable to stat %s: %w", path, statErr)
	}

	return &RegionStore{
		path:     path,
		file:     f,
		opened:   true,
		writable: writable,
		modTime:  info.ModTime(),
		regions:  map[*MappedRegion]struct{}{},
	}, nil
}

// FileModificationTime reads fresh metadata, unlike RegionStore.ModificationTime.
func FileModificationTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (s *RegionStore) Path() string {
	return s.path
}

func (s *RegionStore) IsOpen() bool {
	return s.opened
}

func (s *RegionStore) Writable() bool {
	return s.writable
}

// ModificationTime is captured when the store is opened and never refreshed.
func (s *RegionStore) ModificationTime() time.Time {
	return s.modTime
}

func (s *RegionStore) Position() int64 {
	return s.pos
}

// SetPosition moves the cursor used by Read, Write and MapRegion.
func (s *RegionStore) SetPosition(position int64) error {
	if !s.opened {
		return ErrStoreClosed
	}
	if position < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, position)
	}
	s.pos = position
	return nil
}

func (s *RegionStore) Size() (int64, error) {
	if !s.opened {
		return 0, ErrStoreClosed
	}

	info, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("unable to stat %s: %w", s.path, err)
	}

	return info.Size(), nil
}

// Read reads at the cursor and advances it. io.EOF is returned once the
// cursor reaches the end of the file.
func (s *RegionStore) Read(out []byte) (int, error) {
	if !s.opened {
		return 0, ErrStoreClosed
	}

	if len(out) == 0 {
		return 0, nil
	}

	readBytes, err := s.file.ReadAt(out, s.pos)
	s.pos += int64(readBytes)

	if errors.Is(err, goio.EOF) && readBytes > 0 {
		return readBytes, nil
	}

	return readBytes, err
}

// ReadFull reads exactly len(out) bytes at the cursor.
func (s *RegionStore) ReadFull(out []byte) error {
	_, err := goio.ReadFull(s, out)
	return err
}

// Write writes at the cursor and advances it.
func (s *RegionStore) Write(in []byte) (int, error) {
	if !s.opened {
		return 0, ErrStoreClosed
	}
	if !s.writable {
		return 0, ErrReadOnly
	}

	writtenBytes, err := s.file.WriteAt(in, s.pos)
	s.pos += int64(writtenBytes)

	if err == nil && writtenBytes != len(in) {
		err = goio.ErrShortWrite
	}

	return writtenBytes, err
}

func (s *RegionStore) Truncate(size int64) error {
	if !s.opened {
		return ErrStoreClosed
	}
	if !s.writable {
		return ErrReadOnly
	}

	if err := s.file.Truncate(size); err != nil {
		return fmt.Errorf("unable to truncate %s to %d bytes: %w", s.path, size, err)
	}

	if s.pos > size {
		s.pos = size
	}

	return nil
}

func (s *RegionStore) Sync() error {
	if !s.opened {
		return ErrStoreClosed
	}
	return s.file.Sync()
}

// MapRegion maps length bytes starting at offset. The cursor moves past the
// mapped range. The caller owns the region and must Unmap it before Close.
func (s *RegionStore) MapRegion(offset, length int64) (*MappedRegion, error) {
	if !s.opened {
		return nil, ErrStoreClosed
	}

	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("%w: offset %d, length %d", ErrInvalidPosition, offset, length)
	}

	size, sizeErr := s.Size()
	if sizeErr != nil {
		return nil, sizeErr
	}

	if offset+length > size {
		return nil, fmt.Errorf("%w: [%d, %d) of %d bytes in %s", ErrRegionOutOfBounds, offset, offset+length, size, s.path)
	}

	region := &MappedRegion{owner: s, offset: offset}

	if length > 0 {
		mapErr := mapFileRegion(s.file, region, offset, length)
		if mapErr != nil {
			return nil, fmt.Errorf("unable to map [%d, %d) of %s: %w", offset, offset+length, s.path, mapErr)
		}
	}

	s.regionsLock.Lock()
	s.regions[region] = struct{}{}
	s.regionsLock.Unlock()

	s.pos = offset + length

	return region, nil
}

// Unmap releases a region obtained from this store.
func (s *RegionStore) Unmap(region *MappedRegion) error {
	if region == nil {
		return ErrForeignRegion
	}

	s.regionsLock.Lock()
	defer s.regionsLock.Unlock()

	if region.owner != s {
		return ErrForeignRegion
	}

	if region.released {
		return ErrRegionReleased
	}

	if _, ok := s.regions[region]; !ok {
		return ErrForeignRegion
	}

	delete(s.regions, region)
	region.released = true

	return unmapFileRegion(region)
}

// MappedRegions is the number of regions not yet released.
func (s *RegionStore) MappedRegions() int {
	s.regionsLock.Lock()
	defer s.regionsLock.Unlock()

	return len(s.regions)
}

// Close refuses to close while regions are still mapped, the store stays open
// in that case.
func (s *RegionStore) Close() error {
	if !s.opened {
		return nil
	}

	if mapped := s.MappedRegions(); mapped > 0 {
		return fmt.Errorf("%w: %d regions on %s", ErrRegionsMapped, mapped, s.path)
	}

	s.opened = false
	return s.file.Close()
}

// Reopen opens an independent read only handle on the same file. It works
// while this store is open and after it was closed.
func (s *RegionStore) Reopen() (*RegionStore, error) {
	dup, err := Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("unable to reopen %s: %w", s.path, err)
	}
	return dup, nil
}
