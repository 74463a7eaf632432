package paged

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dot5enko/mvstore/bits"
	"github.com/dot5enko/mvstore/schema"
)

// largest string accepted while decoding, guards against corrupt length prefixes
const maxStringSize = 64 * 1024 * 1024

// page layout, all columns one after another
//
// *--------------------------------*
// | rows u32                       |
// *--------------------------------*
// | column 0 null mask (u64 words) |
// | column 0 non null values       |
// *--------------------------------*
// | column 1 ...                   |
// *--------------------------------*

type Page struct {
	Rows [][]any
}

func estimatePageSize(rows [][]any) int {
	size := 4
	for _, row := range rows {
		for _, v := range row {
			if s, ok := v.(string); ok {
				size += 4 + len(s)
			} else {
				size += 12
			}
		}
	}
	return size
}

func encodePage(s schema.Schema, rows [][]any) ([]byte, error) {
	bw := bits.NewGrowingBuffer(estimatePageSize(rows), binary.LittleEndian)

	bw.PutUint32(uint32(len(rows)))

	nulls := bits.NewBitfield(len(rows))

	for colIdx, col := range s.Columns {
		nulls.Reset()
		for rowIdx, row := range rows {
			if row[colIdx] == nil {
				nulls.Set(rowIdx)
			}
		}

		for _, w := range nulls {
			bw.PutUint64(w)
		}

		for rowIdx, row := range rows {
			v := row[colIdx]
			if v == nil {
				continue
			}

			if err := putValue(&bw, col.Type, v); err != nil {
				return nil, fmt.Errorf("unable to encode row %d column `%s`: %w", rowIdx, col.Name, err)
			}
		}
	}

	return bw.Bytes(), nil
}

func putValue(bw *bits.BitWriter, typ schema.FieldType, v any) error {
	switch typ {
	case schema.Int64FieldType:
		i, ok := v.(int64)
		if !ok {
			return typ.CheckValue(v)
		}
		bw.PutInt64(i)
	case schema.Float64FieldType:
		f, ok := v.(float64)
		if !ok {
			return typ.CheckValue(v)
		}
		bw.PutFloat64(f)
	case schema.BoolFieldType:
		b, ok := v.(bool)
		if !ok {
			return typ.CheckValue(v)
		}
		bw.PutBool(b)
	case schema.StringFieldType:
		str, ok := v.(string)
		if !ok {
			return typ.CheckValue(v)
		}
		bw.PutString(str)
	case schema.TimestampFieldType:
		t, ok := v.(time.Time)
		if !ok {
			return typ.CheckValue(v)
		}
		bw.PutInt64(t.Unix())
		bw.PutUint32(uint32(t.Nanosecond()))
	default:
		return fmt.Errorf("unsupported field type %d", typ)
	}
	return nil
}

func decodePage(raw []byte, s schema.Schema, expectedRows int) (*Page, error) {
	reader := bits.NewBinReader(raw, binary.LittleEndian)

	rowsCount, err := reader.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("unable to decode page rows: %w", err)
	}

	if int(rowsCount) != expectedRows {
		return nil, fmt.Errorf("page holds %d rows, directory says %d", rowsCount, expectedRows)
	}

	rows := make([][]any, rowsCount)
	values := make([]any, int(rowsCount)*len(s.Columns))
	for i := range rows {
		rows[i] = values[i*len(s.Columns) : (i+1)*len(s.Columns) : (i+1)*len(s.Columns)]
	}

	nulls := bits.NewBitfield(int(rowsCount))

	for colIdx, col := range s.Columns {
		for w := range nulls {
			nulls[w], err = reader.ReadU64()
			if err != nil {
				return nil, fmt.Errorf("unable to decode null mask of column `%s`: %w", col.Name, err)
			}
		}

		for rowIdx := range rows {
			if nulls.Get(rowIdx) {
				continue
			}

			v, readErr := readValue(reader, col.Type)
			if readErr != nil {
				return nil, fmt.Errorf("unable to decode row %d column `%s`: %w", rowIdx, col.Name, readErr)
			}
			rows[rowIdx][colIdx] = v
		}
	}

	return &Page{Rows: rows}, nil
}

func readValue(reader *bits.BitsReader, typ schema.FieldType) (any, error) {
	switch typ {
	case schema.Int64FieldType:
		return reader.ReadI64()
	case schema.Float64FieldType:
		return reader.ReadF64()
	case schema.BoolFieldType:
		return reader.ReadBool()
	case schema.StringFieldType:
		return reader.ReadString(maxStringSize)
	case schema.TimestampFieldType:
		sec, err := reader.ReadI64()
		if err != nil {
			return nil, err
		}
		nsec, err := reader.ReadU32()
		if err != nil {
			return nil, err
		}
		return time.Unix(sec, int64(nsec)).UTC(), nil
	default:
		return nil, fmt.Errorf("unsupported field type %d", typ)
	}
}
