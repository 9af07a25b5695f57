package region

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/oriumgames/isomap/internal/blockstate"
	"github.com/oriumgames/isomap/internal/chunk"
	"github.com/oriumgames/isomap/internal/coord"
	"github.com/oriumgames/isomap/internal/nbt"
)

// buildRegionFile writes a minimal region file with exactly one populated
// chunk slot at local (0,0), one sector long, holding payload compressed
// with the given compression code.
func buildRegionFile(t *testing.T, payload []byte, compressionCode byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "r.0.0.mca")

	blob := make([]byte, 0, len(payload)+5)
	var lengthBuf [4]byte
	length := uint32(len(payload) + 1) // +1 for compression byte
	lengthBuf[0] = byte(length >> 24)
	lengthBuf[1] = byte(length >> 16)
	lengthBuf[2] = byte(length >> 8)
	lengthBuf[3] = byte(length)
	blob = append(blob, lengthBuf[:]...)
	blob = append(blob, compressionCode)
	blob = append(blob, payload...)

	// pad blob up to one sector.
	for len(blob) < sectorSize {
		blob = append(blob, 0)
	}

	header := make([]byte, headerSize)
	// offset entry for chunk (0,0): sector offset = 2, sector count = 1.
	raw := uint32(2)<<8 | uint32(1)
	header[0] = byte(raw >> 24)
	header[1] = byte(raw >> 16)
	header[2] = byte(raw >> 8)
	header[3] = byte(raw)

	full := append(header, blob...)
	if err := os.WriteFile(path, full, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func emptyChunkNBT(t *testing.T) []byte {
	t.Helper()
	root := nbt.Compound{
		"xPos": int32(0),
		"zPos": int32(0),
	}
	var buf bytes.Buffer
	if err := nbt.Encode(&buf, root); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestOpenRejectsTruncatedHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.0.0.mca")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error opening truncated region header")
	}
}

func TestOpenRejectsOffsetOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.0.0.mca")
	header := make([]byte, headerSize)
	// claim a chunk lives far past the (tiny) file's actual length.
	raw := uint32(5000)<<8 | uint32(1)
	header[0] = byte(raw >> 24)
	header[1] = byte(raw >> 16)
	header[2] = byte(raw >> 8)
	header[3] = byte(raw)
	if err := os.WriteFile(path, header, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for out-of-range chunk offset")
	}
}

func TestLoadChunkMissingSlotReportsDoesNotExist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.0.0.mca")
	if err := os.WriteFile(path, make([]byte, headerSize), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	registry := blockstate.New()
	c := chunk.New()
	status, err := f.LoadChunk(coord.ChunkPos{X: 0, Z: 0}, registry, c)
	if err != nil || status != ChunkDoesNotExist {
		t.Errorf("LoadChunk on empty slot = %v, %v; want ChunkDoesNotExist, nil", status, err)
	}
}

func TestLoadChunkZlibRoundTrip(t *testing.T) {
	raw := emptyChunkNBT(t)
	compressed := zlibCompress(t, raw)
	path := buildRegionFile(t, compressed, compZlib)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	registry := blockstate.New()
	c := chunk.New()
	status, err := f.LoadChunk(coord.ChunkPos{X: 0, Z: 0}, registry, c)
	if err != nil {
		t.Fatalf("LoadChunk: %v", err)
	}
	if status != ChunkOK {
		t.Fatalf("status = %v, want ChunkOK", status)
	}
}

func TestLoadChunkPlainRoundTrip(t *testing.T) {
	raw := emptyChunkNBT(t)
	path := buildRegionFile(t, raw, compPlain)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	registry := blockstate.New()
	c := chunk.New()
	status, err := f.LoadChunk(coord.ChunkPos{X: 0, Z: 0}, registry, c)
	if err != nil {
		t.Fatalf("LoadChunk: %v", err)
	}
	if status != ChunkOK {
		t.Fatalf("status = %v, want ChunkOK", status)
	}
}

func TestHasMatchesPresence(t *testing.T) {
	raw := emptyChunkNBT(t)
	path := buildRegionFile(t, raw, compPlain)
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !f.Has(coord.ChunkPos{X: 0, Z: 0}) {
		t.Error("Has(0,0) = false, want true")
	}
	if f.Has(coord.ChunkPos{X: 1, Z: 0}) {
		t.Error("Has(1,0) = true, want false")
	}
}
