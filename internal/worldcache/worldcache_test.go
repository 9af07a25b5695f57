package worldcache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/oriumgames/isomap/internal/blockstate"
	"github.com/oriumgames/isomap/internal/chunk"
	"github.com/oriumgames/isomap/internal/coord"
	"github.com/oriumgames/isomap/internal/nbt"
)

// buildStoneWorld writes a world directory holding one region file whose
// chunk (0,0) has a single all-stone section at section index 0.
func buildStoneWorld(t *testing.T) string {
	t.Helper()
	worldDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(worldDir, "region"), 0o755); err != nil {
		t.Fatal(err)
	}

	root := nbt.Compound{
		"xPos": int32(0),
		"zPos": int32(0),
		"sections": &nbt.List{
			ElemType: nbt.TagCompound,
			Items: []any{nbt.Compound{
				"Y": uint8(0),
				"block_states": nbt.Compound{
					"palette": &nbt.List{
						ElemType: nbt.TagCompound,
						Items:    []any{nbt.Compound{"Name": "minecraft:stone"}},
					},
				},
			}},
		},
	}
	var raw bytes.Buffer
	if err := nbt.Encode(&raw, root); err != nil {
		t.Fatal(err)
	}

	blob := raw.Bytes()
	length := uint32(len(blob) + 1)
	payload := []byte{byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length), 3}
	payload = append(payload, blob...)
	for len(payload) < 4096 {
		payload = append(payload, 0)
	}

	header := make([]byte, 8192)
	rawOff := uint32(2)<<8 | uint32(1)
	header[0] = byte(rawOff >> 24)
	header[1] = byte(rawOff >> 16)
	header[2] = byte(rawOff >> 8)
	header[3] = byte(rawOff)

	path := filepath.Join(worldDir, "region", coord.RegionPos{X: 0, Z: 0}.Filename())
	if err := os.WriteFile(path, append(header, payload...), 0o644); err != nil {
		t.Fatal(err)
	}
	return worldDir
}

func TestCacheIndexInRange(t *testing.T) {
	positions := []coord.RegionPos{{X: 0, Z: 0}, {X: -1, Z: 5}, {X: 1000, Z: -1000}, {X: -4096, Z: -4096}}
	for _, p := range positions {
		idx := regionCacheIndex(p)
		if idx < 0 || idx >= regionSize {
			t.Errorf("regionCacheIndex(%v) = %d, out of [0,%d)", p, idx, regionSize)
		}
	}
}

func TestChunkCacheIndexInRange(t *testing.T) {
	positions := []coord.ChunkPos{{X: 0, Z: 0}, {X: -1, Z: 5}, {X: 1 << 20, Z: -(1 << 20)}}
	for _, p := range positions {
		idx := chunkCacheIndex(p)
		if idx < 0 || idx >= chunkSize {
			t.Errorf("chunkCacheIndex(%v) = %d, out of [0,%d)", p, idx, chunkSize)
		}
	}
}

func TestGetRegionMissingIsBrokenAfterFirstMiss(t *testing.T) {
	registry := blockstate.New()
	c := New(t.TempDir(), registry, 0, chunk.WorldCrop{})
	pos := coord.RegionPos{X: 0, Z: 0}

	if f := c.GetRegion(pos); f != nil {
		t.Fatal("expected nil for missing region directory")
	}
	if !c.brokenRegions[pos] {
		t.Fatal("expected region to be recorded broken after failed open")
	}
	// second call must short-circuit via the broken set, still nil.
	if f := c.GetRegion(pos); f != nil {
		t.Fatal("expected nil on repeat lookup of broken region")
	}
}

// TestGetChunkRotatedWithWorldCrop drives a rotated world with an enabled
// crop through the full region-file load path: the cache de-rotates the
// query position to find the on-disk chunk, records both frames on the
// loaded chunk, and block lookups apply the crop in the original frame.
func TestGetChunkRotatedWithWorldCrop(t *testing.T) {
	worldDir := buildStoneWorld(t)
	registry := blockstate.New()
	crop := chunk.WorldCrop{Enabled: true, MinX: 0, MaxX: 7, MinZ: 0, MaxZ: 15}
	c := New(worldDir, registry, 1, crop)

	rotated := coord.ChunkPos{X: 0, Z: 0}.Rotate(1)
	ch := c.GetChunk(rotated)
	if ch == nil {
		t.Fatal("expected rotated chunk position to resolve to the on-disk chunk")
	}
	if ch.Pos != rotated {
		t.Errorf("chunk Pos = %v, want the rotated query position %v", ch.Pos, rotated)
	}
	if ch.PosOriginal != (coord.ChunkPos{X: 0, Z: 0}) {
		t.Errorf("chunk PosOriginal = %v, want the on-disk position (0,0)", ch.PosOriginal)
	}

	// public local (5,3) unrotates to original (3,10): inside the crop.
	inside := ch.GetBlockID(coord.LocalBlockPos{X: 5, Z: 3, Y: 3})
	state, _ := registry.GetState(inside)
	if state.Name != "minecraft:stone" {
		t.Errorf("inside crop through rotation: got %q, want minecraft:stone", state.Name)
	}

	// public local (5,10) unrotates to original (10,10): cropped away.
	outside := ch.GetBlockID(coord.LocalBlockPos{X: 5, Z: 10, Y: 3})
	if outside != blockstate.AirID {
		t.Errorf("outside crop through rotation: got id %d, want AirID", outside)
	}
}

func TestGetBlockBelowWorldFloorIsDefault(t *testing.T) {
	registry := blockstate.New()
	c := New(t.TempDir(), registry, 0, chunk.WorldCrop{})
	pos := coord.BlockPos{X: 0, Z: 0, Y: (coord.Low - 1) * 16}
	b := c.GetBlock(pos, nil, GetID|GetSkyLight)
	if b.SkyLight != 15 {
		t.Errorf("default block sky light = %d, want 15", b.SkyLight)
	}
	if b.FieldsSet != 0 {
		t.Errorf("expected no fields set for below-floor default block, got %v", b.FieldsSet)
	}
}

func TestGetBlockMissingChunkIsDefault(t *testing.T) {
	registry := blockstate.New()
	c := New(t.TempDir(), registry, 0, chunk.WorldCrop{})
	pos := coord.BlockPos{X: 0, Z: 0, Y: 0}
	b := c.GetBlock(pos, nil, GetID)
	if b.ID != blockstate.AirID {
		t.Errorf("missing chunk should report air, got id %d", b.ID)
	}
	// the chunk (and its region) don't exist at all, so GetBlock falls back
	// to an all-default Block without marking any field populated.
	if b.FieldsSet != 0 {
		t.Errorf("expected no fields marked set for a wholly-missing chunk, got %v", b.FieldsSet)
	}
}

func TestGetBlockDefaultsSkyLightWhenNotRequested(t *testing.T) {
	registry := blockstate.New()
	c := New(t.TempDir(), registry, 0, chunk.WorldCrop{})
	pos := coord.BlockPos{X: 0, Z: 0, Y: 0}
	b := c.GetBlock(pos, nil, GetID)
	if b.SkyLight != 15 {
		t.Errorf("sky light should default to 15 when not requested, got %d", b.SkyLight)
	}
}
