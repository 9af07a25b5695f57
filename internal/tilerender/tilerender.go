// Package tilerender orchestrates the world cache, block-image atlas and
// tile iterator into the actual painter's-algorithm tile composite: it
// walks every voxel a tile's diagonal strip can see, resolves full-water
// and waterlogging substitutions, tints biome-colored blocks, and
// alpha-blits the result in back-to-front order.
package tilerender

import (
	"sort"

	"github.com/oriumgames/isomap/internal/atlas"
	"github.com/oriumgames/isomap/internal/blockstate"
	"github.com/oriumgames/isomap/internal/coord"
	"github.com/oriumgames/isomap/internal/raster"
	"github.com/oriumgames/isomap/internal/tileiter"
	"github.com/oriumgames/isomap/internal/worldcache"
)

// RenderMode is an optional per-voxel hook: a render mode may hide a
// block entirely or paint over its already-composited sprite (lighting,
// overlays). The default (nil) is a no-op.
type RenderMode interface {
	IsHidden(pos coord.BlockPos, id uint16) bool
	Draw(image *raster.Image, pos coord.BlockPos, id uint16)
}

// BiomeEntry is one biome's (temperature, humidity) position used to
// evaluate both the built-in colormaps and a block's own biome_colormap
// triangle.
type BiomeEntry struct {
	Temperature, Humidity float64
}

// BiomeTable maps biome IDs to their climate position. A zero-value
// BiomeTable yields the (0,0) default for every biome.
type BiomeTable map[int32]BiomeEntry

func (t BiomeTable) lookup(id int32) BiomeEntry {
	if e, ok := t[id]; ok {
		return e
	}
	return BiomeEntry{}
}

// Colormaps holds the four built-in biome gradients keyed by
// atlas.ColorMapType. Each is itself a BiomeTriangle-shaped evaluator
// implemented as a lookup function over (humidity, temperature) so callers
// can supply anything from a flat gradient to a full colormap image.
type Colormaps struct {
	Foliage        func(humidity, temperature float64) raster.Color
	FoliageFlipped func(humidity, temperature float64) raster.Color
	Grass          func(humidity, temperature float64) raster.Color
	Water          func(humidity, temperature float64) raster.Color
}

func (c Colormaps) eval(t atlas.ColorMapType, humidity, temperature float64) raster.Color {
	switch t {
	case atlas.ColorMapFoliage:
		if c.Foliage != nil {
			return c.Foliage(humidity, temperature)
		}
	case atlas.ColorMapFoliageFlipped:
		if c.FoliageFlipped != nil {
			return c.FoliageFlipped(temperature, humidity)
		}
	case atlas.ColorMapGrass:
		if c.Grass != nil {
			return c.Grass(humidity, temperature)
		}
	case atlas.ColorMapWater:
		if c.Water != nil {
			return c.Water(humidity, temperature)
		}
	}
	return raster.Color{R: 255, G: 255, B: 255, A: 255}
}

// WaterLookup resolves the partial-water sprite ID for a full water
// block's 3-bit water-neighbor index. Unlike the waterlogging cleanup's
// non-waterlogged counterpart (derivable from the block-state registry
// alone, see Renderer.nonWaterloggedID), the partial-water variants are
// precomputed content data the atlas/registry pairing cannot reconstruct
// on its own, so a caller supplies them.
type WaterLookup interface {
	// PartialFullWaterID returns the block ID to substitute for a full
	// water block given its 3-bit neighbor index
	// (west<<2 | south<<1 | up).
	PartialFullWaterID(index int) (uint16, bool)
}

// Renderer ties a world cache, block-state registry, atlas and optional
// render mode into render_tile.
type Renderer struct {
	Cache        *worldcache.Cache
	Registry     *blockstate.Registry
	Atlas        *atlas.Atlas
	Biomes       BiomeTable
	Colormaps    Colormaps
	Water        WaterLookup
	Mode         RenderMode
	TileWidth    int32
	BlockSize    int32
	RenderBiomes bool

	// Edges holds the configured per-side shadow-edge strengths; the zero
	// value disables shadow edges entirely.
	Edges raster.EdgeStrengths
}

type tileImage struct {
	x, y  int32
	image *raster.Image
	pos   coord.BlockPos
}

// RenderTile renders the tile at tile, returning an RGBA image of size
// BlockSize*16*TileWidth on each side.
func (r *Renderer) RenderTile(tile coord.TilePos) *raster.Image {
	size := int(r.BlockSize) * 16 * int(r.TileWidth)
	out := raster.NewImage(size, size)

	var images []tileImage

	topIt := tileiter.NewTileTopBlockIterator(tile, r.TileWidth)
	minRow, minCol := topIt.MinRow(), topIt.MinCol()
	for {
		top := topIt.Current()
		// every block along the row's screen ray shares the top voxel's
		// draw position; the ray direction is the view direction, so
		// deeper voxels project onto the same pixel cell.
		drawX, drawY := tileiter.ScreenPos(top.Row()-minRow, top.Col()-minCol, r.BlockSize)
		r.walkRow(top, drawX, drawY, &images)
		if !topIt.Next() {
			break
		}
	}

	sort.SliceStable(images, func(i, j int) bool {
		return images[i].pos.Less(images[j].pos)
	})

	for _, ti := range images {
		blitOver(out, ti.image, int(ti.x), int(ti.y))
	}
	return out
}

func (r *Renderer) walkRow(top coord.BlockPos, drawX, drawY int32, images *[]tileImage) {
	rowIt := tileiter.NewBlockRowIterator(top)
	pos := rowIt.Current()
	for {
		if r.visitVoxel(pos, drawX, drawY, images) {
			return
		}
		if !rowIt.Next() {
			return
		}
		pos = rowIt.Current()
	}
}

// visitVoxel processes one voxel of a row; it returns true if the row
// should stop (an opaque block was painted). drawX/drawY is the screen
// position of the row's top voxel, shared by every block along the ray.
func (r *Renderer) visitVoxel(pos coord.BlockPos, drawX, drawY int32, images *[]tileImage) bool {
	chunkPos := pos.Chunk()
	ch := r.Cache.GetChunk(chunkPos)
	if ch == nil {
		return false
	}

	local := coord.LocalBlockPosFromBlock(pos)
	id := ch.GetBlockID(local)

	bi := r.getBlockImage(id)
	if bi.IsAir {
		return false
	}

	if bi.IsFullWater && r.Water != nil {
		up := r.blockIsWater(pos.Add(coord.DirTop))
		south := r.blockIsWater(pos.Add(coord.DirSouth))
		west := r.blockIsWater(pos.Add(coord.DirWest))
		idx := 0
		if up {
			idx |= 1
		}
		if south {
			idx |= 2
		}
		if west {
			idx |= 4
		}
		if idx == 0b111 {
			return false
		}
		if partialID, ok := r.Water.PartialFullWaterID(idx); ok {
			id = partialID
			bi = r.getBlockImage(id)
		}
	}

	// a waterlogged block under the water surface drops its own water
	// top; the voxel above contributes it.
	if bi.IsWaterloggable && bi.IsWaterlogged && r.blockIsWater(pos.Add(coord.DirTop)) {
		if nonWL, ok := r.nonWaterloggedID(id); ok {
			id = nonWL
			bi = r.getBlockImage(id)
		}
	}

	if r.Mode != nil && r.Mode.IsHidden(pos, id) {
		return false
	}

	sprite := cloneImage(bi.Color)

	if bi.IsBiome && r.RenderBiomes {
		color := r.biomeColor(bi, pos)
		if bi.IsMaskedBiome && bi.BiomeMask != nil {
			raster.TintMasked(sprite, bi.BiomeMask, color)
		} else {
			raster.Tint(sprite, color)
		}
	}

	if bi.ShadowEdges > 0 {
		r.applyShadowEdges(sprite, bi, pos)
	}

	if r.Mode != nil {
		r.Mode.Draw(sprite, pos, id)
	}

	*images = append(*images, tileImage{x: drawX, y: drawY, image: sprite, pos: pos})

	return !bi.IsTransparent
}

// applyShadowEdges darkens the sprite's face borders that abut higher or
// supporting terrain: a top-face edge darkens when the neighboring column
// in that direction rises above this block, the side faces' bottom edge
// when the block rests on solid ground.
func (r *Renderer) applyShadowEdges(sprite *raster.Image, bi *atlas.BlockImage, pos coord.BlockPos) {
	if r.Edges == (raster.EdgeStrengths{}) {
		return
	}
	var edges raster.EdgeStrengths
	if r.Edges.North != 0 && r.blockCastsShadow(pos.Add(coord.DirNorth).Add(coord.DirTop)) {
		edges.North = r.Edges.North
	}
	if r.Edges.South != 0 && r.blockCastsShadow(pos.Add(coord.DirSouth).Add(coord.DirTop)) {
		edges.South = r.Edges.South
	}
	if r.Edges.East != 0 && r.blockCastsShadow(pos.Add(coord.DirEast).Add(coord.DirTop)) {
		edges.East = r.Edges.East
	}
	if r.Edges.West != 0 && r.blockCastsShadow(pos.Add(coord.DirWest).Add(coord.DirTop)) {
		edges.West = r.Edges.West
	}
	if r.Edges.Bottom != 0 && r.blockCastsShadow(pos.Add(coord.DirBottom)) {
		edges.Bottom = r.Edges.Bottom
	}
	if edges == (raster.EdgeStrengths{}) {
		return
	}
	raster.ShadowEdges(sprite, bi.UV, edges)
}

func (r *Renderer) blockCastsShadow(pos coord.BlockPos) bool {
	ch := r.Cache.GetChunk(pos.Chunk())
	if ch == nil {
		return false
	}
	id := ch.GetBlockID(coord.LocalBlockPosFromBlock(pos))
	bi := r.getBlockImage(id)
	return !bi.IsAir && !bi.IsTransparent
}

func (r *Renderer) blockIsWater(pos coord.BlockPos) bool {
	chunkPos := pos.Chunk()
	ch := r.Cache.GetChunk(chunkPos)
	if ch == nil {
		return false
	}
	id := ch.GetBlockID(coord.LocalBlockPosFromBlock(pos))
	bi := r.getBlockImage(id)
	return bi.IsFullWater || bi.IsIce || bi.IsWaterloggable
}

// getBlockImage resolves id's prepared sprite, attempting the
// waterlogged=false fallback before the atlas's built-in unknown sprite.
func (r *Renderer) getBlockImage(id uint16) *atlas.BlockImage {
	nonWL, ok := r.nonWaterloggedID(id)
	return r.Atlas.GetBlockImage(id, nonWL, ok)
}

// nonWaterloggedID returns id's waterlogged=false counterpart by
// round-tripping through the block-state registry: id's state is looked
// up, its waterlogged property (if any) is cleared, and the resulting
// state is interned back to an ID. Returns ok=false if id carries no
// registry state or no waterlogged=true property.
func (r *Renderer) nonWaterloggedID(id uint16) (uint16, bool) {
	if r.Registry == nil {
		return 0, false
	}
	st, ok := r.Registry.GetState(id)
	if !ok {
		return 0, false
	}
	wl, ok := st.Get("waterlogged")
	if !ok || wl != "true" {
		return 0, false
	}
	props := make([]blockstate.Property, len(st.Properties))
	copy(props, st.Properties)
	for i := range props {
		if props[i].Key == "waterlogged" {
			props[i].Value = "false"
		}
	}
	return r.Registry.GetID(st.Name, props), true
}

func (r *Renderer) biomeColor(bi *atlas.BlockImage, pos coord.BlockPos) raster.Color {
	chunkPos := pos.Chunk()
	ch := r.Cache.GetChunk(chunkPos)
	var biomeID int32
	if ch != nil {
		biomeID = ch.GetBiomeAt(coord.LocalBlockPosFromBlock(pos))
	}
	entry := r.Biomes.lookup(biomeID)
	if bi.BiomeColormap != nil {
		return bi.BiomeColormap.Eval(entry.Humidity, entry.Temperature)
	}
	return r.Colormaps.eval(bi.BiomeColors, entry.Humidity, entry.Temperature)
}

func cloneImage(im *raster.Image) *raster.Image {
	out := raster.NewImage(im.Width, im.Height)
	copy(out.Pix, im.Pix)
	return out
}

func blitOver(dst, src *raster.Image, x0, y0 int) {
	for y := 0; y < src.Height; y++ {
		dy := y0 + y
		if dy < 0 || dy >= dst.Height {
			continue
		}
		for x := 0; x < src.Width; x++ {
			dx := x0 + x
			if dx < 0 || dx >= dst.Width {
				continue
			}
			sr, sg, sb, sa := src.Get(x, y)
			if sa == 0 {
				continue
			}
			if sa == 255 {
				dst.Set(dx, dy, sr, sg, sb, sa)
				continue
			}
			dr, dg, db, da := dst.Get(dx, dy)
			inv := 255 - sa
			nr := mulDiv255(sr, sa) + mulDiv255(dr, inv)
			ng := mulDiv255(sg, sa) + mulDiv255(dg, inv)
			nb := mulDiv255(sb, sa) + mulDiv255(db, inv)
			na := sa + mulDiv255(da, inv)
			dst.Set(dx, dy, nr, ng, nb, na)
		}
	}
}

func mulDiv255(x, a byte) byte {
	return byte((uint16(x)*uint16(a) + 128) >> 8)
}
