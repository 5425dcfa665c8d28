package sqlite

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Bodies smaller than this are stored as is.
const compressThreshold = 128

const (
	codecNone = "none"
	codecZstd = "zstd"
)

var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("sqlite: zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic(fmt.Sprintf("sqlite: zstd decoder: %v", err))
	}
}

// compressBody returns the stored form of b and the codec used. Compression
// is skipped when it would not save space.
func compressBody(b []byte) ([]byte, string) {
	if len(b) < compressThreshold {
		return b, codecNone
	}
	out := encoder.EncodeAll(b, make([]byte, 0, len(b)))
	if len(out) >= len(b) {
		return b, codecNone
	}
	return out, codecZstd
}

func decompressBody(b []byte, codec string) ([]byte, error) {
	switch codec {
	case codecNone, "":
		return b, nil
	case codecZstd:
		out, err := decoder.DecodeAll(b, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported body codec: %s", codec)
	}
}
