// Package chunk decodes a chunk's NBT tree into paletted sections, light
// arrays and biomes, and answers per-block queries against that decoded
// form.
package chunk

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/oriumgames/isomap/internal/blockstate"
	"github.com/oriumgames/isomap/internal/coord"
	"github.com/oriumgames/isomap/internal/nbt"
)

// ErrMalformedChunk is wrapped by decode failures: an NBT stream that fails
// to decode, a palette entry that is not a compound, a multi-entry palette
// without a packed data array, a packed array too short for its bit width,
// or a packed index past the end of the palette. Sections that are not
// compounds, lack a Y or block_states, or lie outside the chunk's range
// are skipped without error.
var ErrMalformedChunk = errors.New("chunk: malformed chunk data")

const sectionBlocks = 16 * 16 * 16
const sectionCount = coord.Top - coord.Low

// One biome ID per 4x4x4 cube, over the chunk's full vertical range.
const biomeCubes = 4 * 4 * (sectionCount * 16 / 4)

// section holds one 16-cube vertical slice of a chunk: a dense block-state
// ID per voxel (already resolved through the registry) plus nibble light
// arrays.
type section struct {
	present    bool
	blockIDs   [sectionBlocks]uint16
	blockLight [sectionBlocks / 2]byte
	skyLight   [sectionBlocks / 2]byte
}

// WorldCrop is a rectangular x/z bound outside of which every block reads
// as air, regardless of what the underlying chunk data holds. A zero-value
// WorldCrop (Enabled false) crops nothing.
type WorldCrop struct {
	Enabled    bool
	MinX, MaxX int32
	MinZ, MaxZ int32
}

// Contains reports whether the global block position (x,z) falls inside
// the crop rectangle, or true unconditionally if cropping is disabled.
func (w WorldCrop) Contains(x, z int32) bool {
	if !w.Enabled {
		return true
	}
	return x >= w.MinX && x <= w.MaxX && z >= w.MinZ && z <= w.MaxZ
}

// Chunk is the decoded form of one 16x(384)x16 column, indexed by section
// Y from coord.Low to coord.Top-1. Pos is the public (possibly rotated)
// position; PosOriginal is the pre-rotation position the chunk's data was
// stored at on disk, and is the frame the world crop applies in.
type Chunk struct {
	Pos         coord.ChunkPos
	PosOriginal coord.ChunkPos
	Rotation    int
	Crop        WorldCrop
	sections    [sectionCount]section
	biomes      [biomeCubes]int32
	extraData   map[coord.LocalBlockPos]int32
}

// SetWorldCrop installs crop, applied by GetBlockID against the chunk's
// original, pre-rotation coordinates. Callers set this after Decode, the
// same as Pos and Rotation, since Decode resets the chunk to a fresh zero
// state.
func (c *Chunk) SetWorldCrop(crop WorldCrop) {
	c.Crop = crop
}

// New returns an empty chunk ready to be populated by Decode.
func New() *Chunk {
	return &Chunk{extraData: make(map[coord.LocalBlockPos]int32)}
}

func sectionIndex(sectionY int32) (int, bool) {
	idx := int(sectionY - coord.Low)
	if idx < 0 || idx >= sectionCount {
		return 0, false
	}
	return idx, true
}

// Decode parses data's NBT tree into c, interning block states through
// registry. c is reset to a fresh, empty state first.
func Decode(data []byte, registry *blockstate.Registry, c *Chunk) error {
	root, err := nbt.Decode(data, nbt.Uncompressed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedChunk, err)
	}

	*c = Chunk{extraData: make(map[coord.LocalBlockPos]int32)}

	if xv, ok := root["xPos"].(int32); ok {
		c.Pos.X = xv
	}
	if zv, ok := root["zPos"].(int32); ok {
		c.Pos.Z = zv
	}
	// the on-disk position is the original one; callers rendering a
	// rotated view override Pos afterwards and leave PosOriginal alone.
	c.PosOriginal = c.Pos

	sectionsList, ok := root["sections"].(*nbt.List)
	if !ok {
		return nil
	}
	for _, raw := range sectionsList.Items {
		sc, ok := raw.(nbt.Compound)
		if !ok {
			continue
		}
		yv, ok := sc["Y"].(int32)
		var y8 int8
		if b, ok2 := sc["Y"].(uint8); ok2 {
			y8 = int8(b)
			yv = int32(y8)
		} else if !ok {
			continue
		}
		idx, ok := sectionIndex(yv)
		if !ok {
			continue
		}
		if err := decodeSection(sc, registry, &c.sections[idx]); err != nil {
			return fmt.Errorf("%w: section %d: %v", ErrMalformedChunk, yv, err)
		}
	}

	if biomesField, ok := root["biomes"].([]int32); ok {
		n := len(biomesField)
		if n > biomeCubes {
			n = biomeCubes
		}
		copy(c.biomes[:n], biomesField[:n])
	}

	decodeBlockEntities(root, c)

	return nil
}

// decodeBlockEntities picks up the few block kinds whose rendering needs
// data outside the block state, currently the bed occupant color.
func decodeBlockEntities(root nbt.Compound, c *Chunk) {
	entities, ok := root["block_entities"].(*nbt.List)
	if !ok {
		return
	}
	for _, raw := range entities.Items {
		entity, ok := raw.(nbt.Compound)
		if !ok {
			continue
		}
		id, _ := entity["id"].(string)
		if id != "minecraft:bed" {
			continue
		}
		color, ok := entity["color"].(int32)
		if !ok {
			continue
		}
		x, okX := entity["x"].(int32)
		y, okY := entity["y"].(int32)
		z, okZ := entity["z"].(int32)
		if !okX || !okY || !okZ {
			continue
		}
		local := coord.LocalBlockPos{X: coord.RemEuclid(x, 16), Z: coord.RemEuclid(z, 16), Y: y}
		c.extraData[local] = color
	}
}

func decodeSection(sc nbt.Compound, registry *blockstate.Registry, out *section) error {
	blockStates, ok := sc["block_states"].(nbt.Compound)
	if !ok {
		return nil
	}
	decodeNibbleArray(sc, "BlockLight", out.blockLight[:])
	decodeNibbleArray(sc, "SkyLight", out.skyLight[:])

	paletteList, ok := blockStates["palette"].(*nbt.List)
	if !ok || len(paletteList.Items) == 0 {
		return nil
	}

	ids := make([]uint16, len(paletteList.Items))
	for i, raw := range paletteList.Items {
		entry, ok := raw.(nbt.Compound)
		if !ok {
			return fmt.Errorf("palette entry %d is not a compound", i)
		}
		name, _ := entry["Name"].(string)
		var props []blockstate.Property
		if propsC, ok := entry["Properties"].(nbt.Compound); ok {
			for k, v := range propsC {
				sv, _ := v.(string)
				props = append(props, blockstate.Property{Key: k, Value: sv})
				registry.AddKnownProperty(name, k)
			}
		}
		ids[i] = registry.GetID(name, props)
	}

	if len(paletteList.Items) == 1 {
		// an all-air section stays absent
		if ids[0] == blockstate.AirID {
			return nil
		}
		out.present = true
		for i := range out.blockIDs {
			out.blockIDs[i] = ids[0]
		}
		return nil
	}

	packed, ok := blockStates["data"].([]int64)
	if !ok {
		return fmt.Errorf("multi-entry palette missing packed data array")
	}
	bitsPerBlock := bits.Len(uint(len(paletteList.Items) - 1))
	if bitsPerBlock < 1 {
		bitsPerBlock = 1
	}
	perWord := 64 / bitsPerBlock
	mask := uint64(1)<<uint(bitsPerBlock) - 1

	out.present = true
	for i := 0; i < sectionBlocks; i++ {
		word := i / perWord
		slot := i % perWord
		if word >= len(packed) {
			return fmt.Errorf("packed data array too short for bits-per-block %d", bitsPerBlock)
		}
		raw := (uint64(packed[word]) >> uint(slot*bitsPerBlock)) & mask
		if int(raw) >= len(ids) {
			return fmt.Errorf("packed index %d out of palette range %d", raw, len(ids))
		}
		out.blockIDs[i] = ids[raw]
	}
	return nil
}

func decodeNibbleArray(sc nbt.Compound, field string, dst []byte) {
	if raw, ok := sc[field].([]byte); ok {
		n := len(raw)
		if n > len(dst) {
			n = len(dst)
		}
		copy(dst, raw[:n])
	}
}

func voxelIndex(x, y, z int32) int {
	return int(y)*256 + int(z)*16 + int(x)
}

// GetBlockID returns the interned block-state ID at local, or AirID if
// local falls outside the chunk's world crop (x/z only; y is never
// cropped), if the section is absent, or if local's section falls outside
// the chunk's range. The world's inverse rotation is applied before
// indexing; the crop rectangle lives in the world's original coordinates,
// so it is checked against the unrotated position.
func (c *Chunk) GetBlockID(local coord.LocalBlockPos) uint16 {
	x, z := coord.UnrotateLocal(local.X, local.Z, c.Rotation)
	if !c.Crop.Contains(c.PosOriginal.X*16+x, c.PosOriginal.Z*16+z) {
		return blockstate.AirID
	}
	sectionY := coord.Floordiv(local.Y, 16)
	idx, ok := sectionIndex(sectionY)
	if !ok {
		return blockstate.AirID
	}
	sec := &c.sections[idx]
	if !sec.present {
		return blockstate.AirID
	}
	yInSec := coord.RemEuclid(local.Y, 16)
	return sec.blockIDs[voxelIndex(x, yInSec, z)]
}

func nibble(arr []byte, i int) byte {
	b := arr[i/2]
	if i%2 == 0 {
		return b & 0x0F
	}
	return b >> 4
}

// GetBlockLight returns the block-light nibble at local; 0 if the section
// is absent.
func (c *Chunk) GetBlockLight(local coord.LocalBlockPos) byte {
	x, z := coord.UnrotateLocal(local.X, local.Z, c.Rotation)
	sectionY := coord.Floordiv(local.Y, 16)
	idx, ok := sectionIndex(sectionY)
	if !ok {
		return 0
	}
	sec := &c.sections[idx]
	if !sec.present {
		return 0
	}
	yInSec := coord.RemEuclid(local.Y, 16)
	return nibble(sec.blockLight[:], voxelIndex(x, yInSec, z))
}

// GetSkyLight returns the sky-light nibble at local; 15 if the section is
// absent.
func (c *Chunk) GetSkyLight(local coord.LocalBlockPos) byte {
	x, z := coord.UnrotateLocal(local.X, local.Z, c.Rotation)
	sectionY := coord.Floordiv(local.Y, 16)
	idx, ok := sectionIndex(sectionY)
	if !ok {
		return 15
	}
	sec := &c.sections[idx]
	if !sec.present {
		return 15
	}
	yInSec := coord.RemEuclid(local.Y, 16)
	return nibble(sec.skyLight[:], voxelIndex(x, yInSec, z))
}

// GetBiomeAt returns the biome ID of the 4x4x4 cube containing local. The
// biome array spans the chunk's full vertical range at 4-block resolution,
// addressed y*16 + z*4 + x per cube.
func (c *Chunk) GetBiomeAt(local coord.LocalBlockPos) int32 {
	x, z := coord.UnrotateLocal(local.X, local.Z, c.Rotation)
	bx := x / 4
	bz := z / 4
	by := coord.Floordiv(local.Y-coord.Low*16, 4)
	idx := int(by)*16 + int(bz)*4 + int(bx)
	if idx < 0 || idx >= len(c.biomes) {
		return 0
	}
	return c.biomes[idx]
}

// SetExtraData records a sparse per-block attachment (e.g. a scheduled
// tick or block-entity marker) keyed by its local position.
func (c *Chunk) SetExtraData(local coord.LocalBlockPos, value int32) {
	c.extraData[local] = value
}

// GetExtraData looks up the sparse per-chunk extra data, returning def if
// absent.
func (c *Chunk) GetExtraData(local coord.LocalBlockPos, def int32) int32 {
	if v, ok := c.extraData[local]; ok {
		return v
	}
	return def
}
