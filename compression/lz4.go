package compression

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

type Codec uint8

const (
	NoCompression Codec = iota
	Lz4Compression
)

func (c Codec) String() string {
	switch c {
	case NoCompression:
		return "none"
	case Lz4Compression:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// CompressPage compresses src with lz4. If the data doesn't shrink the raw
// bytes are returned with NoCompression.
func CompressPage(src []byte) ([]byte, Codec, error) {
	if len(src) == 0 {
		return src, NoCompression, nil
	}

	dst := make([]byte, lz4.CompressBlockBound(len(src)))

	var compressor lz4.Compressor
	compressedSize, err := compressor.CompressBlock(src, dst)
	if err != nil {
		return nil, NoCompression, fmt.Errorf("unable to compress page: %w", err)
	}

	if compressedSize == 0 || compressedSize >= len(src) {
		return src, NoCompression, nil
	}

	return dst[:compressedSize], Lz4Compression, nil
}

// DecompressPage restores a page of known raw size.
func DecompressPage(src []byte, codec Codec, rawSize int) ([]byte, error) {
	switch codec {
	case NoCompression:
		if len(src) != rawSize {
			return nil, fmt.Errorf("raw page size mismatch: stored %d, expected %d", len(src), rawSize)
		}
		out := make([]byte, rawSize)
		copy(out, src)
		return out, nil

	case Lz4Compression:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(src, out)
		if err != nil {
			return nil, fmt.Errorf("unable to decompress page [input length %d, output buffer %d]: %w", len(src), rawSize, err)
		}
		if n != rawSize {
			return nil, fmt.Errorf("decompressed page size mismatch: got %d, expected %d", n, rawSize)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported compression type: %d", codec)
	}
}
