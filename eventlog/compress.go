// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// compressionTag identifies how a stored envelope blob is encoded.
// Stored in the messages table — these values are storage-format
// constants.
type compressionTag int64

const (
	// compressionNone stores the CBOR envelope as-is. Used for small
	// envelopes and for data that does not shrink under zstd.
	compressionNone compressionTag = 0

	// compressionZstd stores the envelope zstd-compressed at the
	// default level. Event payloads are JSON text, which compresses
	// well; transcripts and enrichment results over the threshold
	// routinely shrink 3-5x.
	compressionZstd compressionTag = 1
)

// compressThreshold is the envelope size in bytes above which Publish
// attempts zstd compression. Below it, the frame overhead is not worth
// the CPU.
const compressThreshold = 2048

// zstdEncoder and zstdDecoder are reused across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("eventlog: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("eventlog: zstd decoder initialization failed: " + err.Error())
	}
}

// maybeCompress compresses encoded if it is over the threshold and
// actually shrinks. Returns the bytes to store and the tag describing
// them.
func maybeCompress(encoded []byte) ([]byte, compressionTag) {
	if len(encoded) < compressThreshold {
		return encoded, compressionNone
	}
	compressed := zstdEncoder.EncodeAll(encoded, nil)
	if len(compressed) >= len(encoded) {
		return encoded, compressionNone
	}
	return compressed, compressionZstd
}

// decompress reverses maybeCompress for a stored blob.
func decompress(stored []byte, tag compressionTag) ([]byte, error) {
	switch tag {
	case compressionNone:
		return stored, nil
	case compressionZstd:
		decoded, err := zstdDecoder.DecodeAll(stored, nil)
		if err != nil {
			return nil, fmt.Errorf("eventlog: zstd decompress: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("eventlog: unknown compression tag %d", tag)
	}
}
