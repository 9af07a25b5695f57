// Package region reads Anvil-format region files: a 32x32-chunk grid backed
// by an 8 KiB header of sector offsets and timestamps followed by
// 4096-byte-aligned, individually compressed chunk blobs.
package region

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/oriumgames/isomap/internal/blockstate"
	"github.com/oriumgames/isomap/internal/chunk"
	"github.com/oriumgames/isomap/internal/coord"
)

// ErrMalformedRegion is wrapped by header-level failures: a truncated
// header or an offset table entry pointing outside the file.
var ErrMalformedRegion = errors.New("region: malformed region file")

const (
	sectorSize   = 4096
	headerSize   = sectorSize * 2
	entryCount   = 1024
	compGzip     = 1
	compZlib     = 2
	compPlain    = 3
)

// ChunkStatus is the outcome of a LoadChunk call.
type ChunkStatus int

const (
	ChunkOK ChunkStatus = iota
	ChunkDoesNotExist
	ChunkUnreadable
)

// offsetEntry packs (sector_offset, sector_count) read from the header.
type offsetEntry struct {
	sectorOffset uint32
	sectorCount  uint8
}

func (e offsetEntry) present() bool { return e.sectorOffset != 0 || e.sectorCount != 0 }

// File is an opened region file: its offsets table has been validated, but
// chunk blobs are read and decompressed lazily, on demand.
type File struct {
	path     string
	offsets  [entryCount]offsetEntry
	fileSize int64
}

// Open reads and validates a region file's header. It does not decode any
// chunk payloads.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < headerSize {
		return nil, fmt.Errorf("%w: %s: header truncated (%d bytes)", ErrMalformedRegion, path, info.Size())
	}

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRegion, path, err)
	}

	rf := &File{path: path, fileSize: info.Size()}
	for i := 0; i < entryCount; i++ {
		raw := be32(header[i*4 : i*4+4])
		entry := offsetEntry{sectorOffset: raw >> 8, sectorCount: uint8(raw)}
		if entry.present() {
			start := int64(entry.sectorOffset) * sectorSize
			end := start + int64(entry.sectorCount)*sectorSize
			if entry.sectorOffset < 2 || end > info.Size() {
				return nil, fmt.Errorf("%w: %s: chunk %d offset out of range", ErrMalformedRegion, path, i)
			}
		}
		rf.offsets[i] = entry
	}
	return rf, nil
}

// Has reports whether a chunk slot is populated in the header, without
// reading or decompressing its blob.
func (f *File) Has(local coord.ChunkPos) bool {
	idx := headerIndex(local)
	return f.offsets[idx].present()
}

// LoadChunk locates, decompresses and decodes the chunk at the given
// position (already de-rotated to the position the file was written at)
// into c. The registry is used to intern block-state palette entries.
func (f *File) LoadChunk(local coord.ChunkPos, registry *blockstate.Registry, c *chunk.Chunk) (ChunkStatus, error) {
	idx := headerIndex(local)
	entry := f.offsets[idx]
	if !entry.present() {
		return ChunkDoesNotExist, nil
	}

	fh, err := os.Open(f.path)
	if err != nil {
		return ChunkUnreadable, err
	}
	defer fh.Close()

	start := int64(entry.sectorOffset) * sectorSize
	blobLen := int64(entry.sectorCount) * sectorSize
	raw := make([]byte, blobLen)
	if _, err := fh.ReadAt(raw, start); err != nil {
		return ChunkUnreadable, fmt.Errorf("region: read chunk blob: %w", err)
	}

	if len(raw) < 5 {
		return ChunkUnreadable, fmt.Errorf("region: chunk blob too small")
	}
	length := be32(raw[0:4])
	if length == 0 || int64(length) > int64(len(raw)-4) {
		return ChunkUnreadable, fmt.Errorf("region: chunk blob declares length %d beyond sector bounds", length)
	}
	compressionCode := raw[4]
	payload := raw[5 : 4+length]

	data, err := decompress(payload, compressionCode)
	if err != nil {
		return ChunkUnreadable, fmt.Errorf("region: decompress chunk: %w", err)
	}

	if err := chunk.Decode(data, registry, c); err != nil {
		return ChunkUnreadable, fmt.Errorf("region: decode chunk: %w", err)
	}
	return ChunkOK, nil
}

func decompress(payload []byte, code byte) ([]byte, error) {
	switch code {
	case compGzip:
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return io.ReadAll(gr)
	case compZlib:
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case compPlain:
		return payload, nil
	default:
		return nil, fmt.Errorf("unknown compression code %d", code)
	}
}

func headerIndex(local coord.ChunkPos) int {
	x, z := local.LocalInRegion()
	return int(x) + int(z)*32
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
