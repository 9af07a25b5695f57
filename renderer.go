// Package isomap turns Java-Edition-shaped Anvil region files into
// isometric tile images. It wires the world cache, block-image atlas and
// tile renderer into the single public Renderer type collaborators drive.
package isomap

import (
	"fmt"

	"github.com/oriumgames/isomap/internal/atlas"
	"github.com/oriumgames/isomap/internal/blockstate"
	"github.com/oriumgames/isomap/internal/chunk"
	"github.com/oriumgames/isomap/internal/coord"
	"github.com/oriumgames/isomap/internal/raster"
	"github.com/oriumgames/isomap/internal/tilerender"
	"github.com/oriumgames/isomap/internal/worldcache"
)

// ShadowEdges is the per-side shadow strength a Renderer applies, indexed
// north, south, east, west, bottom; each is in 0..3.
type ShadowEdges = raster.EdgeStrengths

// WorldCrop bounds every chunk's block lookups to a rectangular x/z
// region, expressed in the world's original, pre-rotation coordinates;
// positions outside it read as air. The zero value crops nothing.
type WorldCrop = chunk.WorldCrop

// Config configures a Renderer at construction time. The core takes no
// configuration from environment variables or files; everything flows
// through this struct.
type Config struct {
	WorldDir  string
	Registry  *blockstate.Registry
	Atlas     *atlas.Atlas
	Biomes    tilerender.BiomeTable
	Colormaps tilerender.Colormaps
	Water     tilerender.WaterLookup
	Mode      tilerender.RenderMode
	Crop      WorldCrop
	Edges     ShadowEdges

	Rotation  int
	TileWidth int32
	BlockSize int32
}

// Renderer is the single entry point collaborators use to produce tile
// images from a world directory. It is not safe for concurrent use;
// callers wanting parallelism construct one Renderer per worker, each
// with its own world cache, and share the registry and atlas.
type Renderer struct {
	cache    *worldcache.Cache
	tr       *tilerender.Renderer
	useWater bool // reserved for set_use_preblit_water; see DESIGN.md
}

// New constructs a Renderer. It performs no I/O beyond what the caller's
// Atlas/Registry construction already did; region files are opened lazily
// per tile.
func New(cfg Config) (*Renderer, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("isomap: Config.Registry must not be nil")
	}
	if cfg.Atlas == nil {
		return nil, fmt.Errorf("isomap: Config.Atlas must not be nil")
	}
	if cfg.BlockSize <= 0 || cfg.TileWidth <= 0 {
		return nil, fmt.Errorf("isomap: Config.BlockSize and Config.TileWidth must be positive")
	}

	cache := worldcache.New(cfg.WorldDir, cfg.Registry, cfg.Rotation, cfg.Crop)
	tr := &tilerender.Renderer{
		Cache:        cache,
		Registry:     cfg.Registry,
		Atlas:        cfg.Atlas,
		Biomes:       cfg.Biomes,
		Colormaps:    cfg.Colormaps,
		Water:        cfg.Water,
		Mode:         cfg.Mode,
		TileWidth:    cfg.TileWidth,
		BlockSize:    cfg.BlockSize,
		RenderBiomes: true,
		Edges:        cfg.Edges,
	}

	return &Renderer{cache: cache, tr: tr}, nil
}

// RenderTile renders the tile at pos, returning an RGBA image of
// TileSize()xTileSize() pixels.
func (r *Renderer) RenderTile(pos coord.TilePos) *raster.Image {
	return r.tr.RenderTile(pos)
}

// TileSize returns the pixel dimension of every tile this Renderer
// produces.
func (r *Renderer) TileSize() int {
	return int(r.tr.BlockSize) * 16 * int(r.tr.TileWidth)
}

// SetRenderBiomes toggles biome tinting.
func (r *Renderer) SetRenderBiomes(v bool) {
	r.tr.RenderBiomes = v
}

// SetShadowEdges sets the per-side shadow-edge strengths (each 0..3)
// applied to blocks whose images carry shadow edges. The zero value
// disables the effect.
func (r *Renderer) SetShadowEdges(edges ShadowEdges) {
	r.tr.Edges = edges
}

// SetUsePreblitWater toggles the preblit-water compositing path. Water
// columns are collapsed through partial-water substitution instead, so
// this setter is kept for interface parity but has no effect; see
// DESIGN.md.
func (r *Renderer) SetUsePreblitWater(v bool) {
	r.useWater = v
}
