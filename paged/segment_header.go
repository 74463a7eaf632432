package paged

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dot5enko/mvstore/bits"
	"github.com/dot5enko/mvstore/compression"
	"github.com/dot5enko/mvstore/schema"
	"github.com/google/uuid"
)

// segment file on disk
//
// *--------------------------------*
// | segment header (64 bytes)      |
// *--------------------------------*
// | page 0 ... n (maybe lz4)       |
// *--------------------------------*
// | page directory                 |
// | schema                         |
// *--------------------------------*
// | footer (32 bytes)              |
// *--------------------------------*

const (
	SegmentMagic          uint32 = 0x4d565347 // "MVSG"
	CurrentSegmentVersion uint16 = 1

	SegmentHeaderSize = 64
	SegmentFooterSize = 32

	segmentHeaderUsed = 4 + 2 + 16 + 4 + 2
	segmentReserved   = SegmentHeaderSize - segmentHeaderUsed

	pageEntrySize = 8 + 4 + 4 + 4 + 1
)

var ErrCorruptSegment = errors.New("corrupt segment")

type SegmentHeader struct {
	Version  uint16
	Uid      uuid.UUID
	PageRows uint32
	Columns  uint16
}

func (header *SegmentHeader) WriteTo(bw *bits.BitWriter) (int, error) {
	bw.PutUint32(SegmentMagic)
	bw.PutUint16(header.Version)

	n, _ := bw.Write(header.Uid[:])
	if n != 16 {
		return 0, fmt.Errorf("failed to write segment uid")
	}

	bw.PutUint32(header.PageRows)
	bw.PutUint16(header.Columns)

	// reserved for future use
	bw.EmptyBytes(segmentReserved)

	return bw.Position(), nil
}

func (header *SegmentHeader) FromBytes(input []byte) (topErr error) {
	reader := bits.NewBinReader(input, binary.LittleEndian)

	magic, topErr := reader.ReadU32()
	if topErr != nil {
		return fmt.Errorf("unable to decode segment magic: %w", topErr)
	}
	if magic != SegmentMagic {
		return fmt.Errorf("%w: bad header magic %#x", ErrCorruptSegment, magic)
	}

	header.Version, topErr = reader.ReadU16()
	if topErr != nil {
		return fmt.Errorf("unable to decode segment version: %w", topErr)
	}
	if header.Version != CurrentSegmentVersion {
		return fmt.Errorf("invalid version %d. Supported versions: %d", header.Version, CurrentSegmentVersion)
	}

	header.Uid, topErr = reader.ReadUUID()
	if topErr != nil {
		return fmt.Errorf("unable to decode segment uid: %w", topErr)
	}

	header.PageRows, topErr = reader.ReadU32()
	if topErr != nil {
		return fmt.Errorf("unable to decode page rows: %w", topErr)
	}

	header.Columns, topErr = reader.ReadU16()
	if topErr != nil {
		return fmt.Errorf("unable to decode column count: %w", topErr)
	}

	if header.PageRows == 0 || header.Columns == 0 {
		return fmt.Errorf("%w: page rows %d, columns %d", ErrCorruptSegment, header.PageRows, header.Columns)
	}

	return nil
}

type SegmentFooter struct {
	DirectoryOffset uint64
	DirectorySize   uint64
	RowCount        uint64
	PageCount       uint32
}

func (footer *SegmentFooter) WriteTo(bw *bits.BitWriter) {
	bw.PutUint64(footer.DirectoryOffset)
	bw.PutUint64(footer.DirectorySize)
	bw.PutUint64(footer.RowCount)
	bw.PutUint32(footer.PageCount)
	bw.PutUint32(SegmentMagic)
}

func (footer *SegmentFooter) FromBytes(input []byte) (topErr error) {
	reader := bits.NewBinReader(input, binary.LittleEndian)

	footer.DirectoryOffset, topErr = reader.ReadU64()
	if topErr != nil {
		return topErr
	}
	footer.DirectorySize, topErr = reader.ReadU64()
	if topErr != nil {
		return topErr
	}
	footer.RowCount, topErr = reader.ReadU64()
	if topErr != nil {
		return topErr
	}
	footer.PageCount, topErr = reader.ReadU32()
	if topErr != nil {
		return topErr
	}

	magic, topErr := reader.ReadU32()
	if topErr != nil {
		return topErr
	}
	if magic != SegmentMagic {
		return fmt.Errorf("%w: bad footer magic %#x, segment was not completed", ErrCorruptSegment, magic)
	}

	return nil
}

type PageEntry struct {
	Offset     uint64
	StoredSize uint32
	RawSize    uint32
	Rows       uint32
	Codec      compression.Codec
}

func writeDirectory(bw *bits.BitWriter, pages []PageEntry, s schema.Schema) {
	for _, p := range pages {
		bw.PutUint64(p.Offset)
		bw.PutUint32(p.StoredSize)
		bw.PutUint32(p.RawSize)
		bw.PutUint32(p.Rows)
		bw.WriteByte(uint8(p.Codec))
	}

	bw.PutString(s.Name)
	bw.PutUint16(uint16(len(s.Columns)))
	for _, col := range s.Columns {
		bw.WriteByte(uint8(col.Type))
		bw.PutString(col.Name)
	}
}

func readDirectory(input []byte, pageCount int) (pages []PageEntry, s schema.Schema, topErr error) {
	if len(input) < pageCount*pageEntrySize {
		return nil, s, fmt.Errorf("%w: directory of %d bytes can't hold %d pages", ErrCorruptSegment, len(input), pageCount)
	}

	reader := bits.NewBinReader(input, binary.LittleEndian)

	pages = make([]PageEntry, pageCount)
	for i := range pages {
		p := &pages[i]

		if p.Offset, topErr = reader.ReadU64(); topErr != nil {
			return nil, s, topErr
		}
		if p.StoredSize, topErr = reader.ReadU32(); topErr != nil {
			return nil, s, topErr
		}
		if p.RawSize, topErr = reader.ReadU32(); topErr != nil {
			return nil, s, topErr
		}
		if p.Rows, topErr = reader.ReadU32(); topErr != nil {
			return nil, s, topErr
		}

		codec, codecErr := reader.ReadU8()
		if codecErr != nil {
			return nil, s, codecErr
		}
		p.Codec = compression.Codec(codec)
	}

	if s.Name, topErr = reader.ReadString(len(input)); topErr != nil {
		return nil, s, fmt.Errorf("unable to decode schema name: %w", topErr)
	}

	columns, topErr := reader.ReadU16()
	if topErr != nil {
		return nil, s, fmt.Errorf("unable to decode schema columns: %w", topErr)
	}

	s.Columns = make([]schema.SchemaColumn, columns)
	for i := range s.Columns {
		typ, typErr := reader.ReadU8()
		if typErr != nil {
			return nil, s, typErr
		}
		s.Columns[i].Type = schema.FieldType(typ)

		if s.Columns[i].Name, topErr = reader.ReadString(len(input)); topErr != nil {
			return nil, s, fmt.Errorf("unable to decode column name: %w", topErr)
		}
	}

	return pages, s, nil
}
