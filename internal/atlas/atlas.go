// Package atlas loads a block-image atlas: a text metadata file plus a PNG
// sprite sheet, keyed by (view, rotation, texture_size), and prepares each
// block image for rendering (darkening, side-mask detection, transparency
// detection, biome-mask linking, lighting/shadow defaulting).
package atlas

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	"github.com/oriumgames/isomap/internal/raster"
)

// ErrAtlasLoad is wrapped by metadata or image decode failures.
var ErrAtlasLoad = errors.New("atlas: failed to load block image atlas")

// ColorMapType selects which built-in biome colormap a biome block uses.
type ColorMapType int

const (
	ColorMapFoliage ColorMapType = iota
	ColorMapFoliageFlipped
	ColorMapGrass
	ColorMapWater
)

func parseColorMapType(s string) (ColorMapType, error) {
	switch s {
	case "foliage":
		return ColorMapFoliage, nil
	case "foliage_flipped":
		return ColorMapFoliageFlipped, nil
	case "grass":
		return ColorMapGrass, nil
	case "water":
		return ColorMapWater, nil
	default:
		return 0, fmt.Errorf("must be 'foliage', 'foliage_flipped', 'grass' or 'water'")
	}
}

// LightingType selects how a render mode relights a block image.
// SmoothTopRemainingSimple is only ever assigned by the defaulting pass
// (for waterlogged blocks carrying a water top); it has no textual form in
// the metadata file.
type LightingType int

const (
	LightingNone LightingType = iota
	LightingSimple
	LightingSmooth
	LightingSmoothBottom
	LightingSmoothTopRemainingSimple
)

func parseLightingType(s string) (LightingType, error) {
	switch s {
	case "none":
		return LightingNone, nil
	case "simple":
		return LightingSimple, nil
	case "smooth":
		return LightingSmooth, nil
	case "smooth_bottom":
		return LightingSmoothBottom, nil
	default:
		return 0, fmt.Errorf("must be 'none', 'simple' or 'smooth'")
	}
}

// BlockImage is one prepared sprite plus the flags and derived data the
// tile renderer needs to composite it correctly.
type BlockImage struct {
	Name    string
	Variant string

	Color *raster.Image
	UV    *raster.Image

	IsAir           bool
	IsFullWater     bool
	IsIce           bool
	IsBiome         bool
	IsMaskedBiome   bool
	IsWaterloggable bool
	IsWaterlogged   bool
	HasWaterTop     bool
	IsLilyPad       bool
	CanPartial      bool
	IsTransparent   bool

	BiomeColors   ColorMapType
	BiomeColormap *BiomeTriangle // nil unless the block overrides the colormap
	BiomeMask     *raster.Image  // the linked <name>_biome_mask sprite, if any

	LightingType      LightingType
	HasFaultyLighting bool

	// ShadowEdges is the block's shadow-edge strength; -1 until the
	// preparation pass defaults it from transparency.
	ShadowEdges int

	SideMask uint8 // bit 0=left,1=right,2=up faces present
}

// BiomeTriangle is a per-block override of the default colormap,
// evaluated at barycentric (humidity, temperature).
type BiomeTriangle struct {
	C0, C1, C2 raster.Color
}

// Eval evaluates the triangle at (x,y) = (humidity, temperature) in [0,1]
// per channel: color = c0*(x-y) + c1*(1-x) + c2*y.
func (t BiomeTriangle) Eval(x, y float64) raster.Color {
	f0 := x - y
	f1 := 1 - x
	f2 := y
	mix := func(a, b, c byte) byte {
		v := float64(a)*f0 + float64(b)*f1 + float64(c)*f2
		return raster256(v)
	}
	return raster.Color{
		R: mix(t.C0.R, t.C1.R, t.C2.R),
		G: mix(t.C0.G, t.C1.G, t.C2.G),
		B: mix(t.C0.B, t.C1.B, t.C2.B),
		A: mix(t.C0.A, t.C1.A, t.C2.A),
	}
}

func raster256(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// parseBiomeColormap parses a block's biome_colormap metadata value,
// "#RRGGBBAA|#RRGGBBAA|#RRGGBBAA", into a BiomeTriangle, mirroring
// ColorMap::parse.
func parseBiomeColormap(s string) (*BiomeTriangle, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return nil, fmt.Errorf("must be three '|'-separated colors")
	}
	var colors [3]raster.Color
	for i, part := range parts {
		if len(part) != 9 || part[0] != '#' {
			return nil, fmt.Errorf("color %d: must be '#' followed by 8 hex digits", i)
		}
		v, err := strconv.ParseUint(part[1:], 16, 32)
		if err != nil {
			return nil, fmt.Errorf("color %d: %v", i, err)
		}
		colors[i] = raster.Color{
			R: byte(v >> 24),
			G: byte(v >> 16),
			B: byte(v >> 8),
			A: byte(v),
		}
	}
	return &BiomeTriangle{C0: colors[0], C1: colors[1], C2: colors[2]}, nil
}

// Atlas is a fully loaded and prepared block-image atlas for one
// (view, rotation, texture_size) triple.
type Atlas struct {
	BlockSize int
	images    map[string]*BlockImage // keyed by "name variant"
	byID      map[uint16]*BlockImage
	unknown   *BlockImage

	darkenLeft, darkenRight byte
}

// Options configures the preparation pass's global darkening factors.
type Options struct {
	DarkenLeft, DarkenRight byte // left/right face multipliers out of 255 (255 leaves a face unchanged); the pass is skipped only when both are 0
	BlockSize               int  // target sprite size; atlas is resampled to this if its native size differs
}

// Load reads metaPath and imagePath and prepares every block image they
// describe.
func Load(metaPath, imagePath string, idOf func(name, variant string) (uint16, bool), opts Options) (*Atlas, error) {
	metaFile, err := os.Open(metaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAtlasLoad, err)
	}
	defer metaFile.Close()

	imgFile, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAtlasLoad, err)
	}
	defer imgFile.Close()

	sheet, err := png.Decode(imgFile)
	if err != nil {
		return nil, fmt.Errorf("%w: decode atlas png: %v", ErrAtlasLoad, err)
	}

	a := &Atlas{
		BlockSize:   opts.BlockSize,
		images:      make(map[string]*BlockImage),
		byID:        make(map[uint16]*BlockImage),
		darkenLeft:  opts.DarkenLeft,
		darkenRight: opts.DarkenRight,
	}

	if err := a.loadMeta(metaFile, sheet, idOf, opts.BlockSize); err != nil {
		return nil, err
	}
	a.prepareAll()
	return a, nil
}

func (a *Atlas) loadMeta(r io.Reader, sheet image.Image, idOf func(string, string) (uint16, bool), blockSize int) error {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return fmt.Errorf("%w: empty metadata file", ErrAtlasLoad)
	}
	header := strings.Fields(scanner.Text())
	if len(header) != 3 {
		return fmt.Errorf("%w: header must be \"WIDTH HEIGHT COLUMNS\"", ErrAtlasLoad)
	}
	w, err1 := strconv.Atoi(header[0])
	h, err2 := strconv.Atoi(header[1])
	cols, err3 := strconv.Atoi(header[2])
	if err1 != nil || err2 != nil || err3 != nil || cols <= 0 {
		return fmt.Errorf("%w: invalid header %q", ErrAtlasLoad, scanner.Text())
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return fmt.Errorf("%w: malformed entry %q", ErrAtlasLoad, line)
		}
		name := fields[0]
		variant := fields[1]
		props := map[string]string{}
		if variant != "-" {
			for _, kv := range strings.Split(variant, ",") {
				parts := strings.SplitN(kv, "=", 2)
				if len(parts) == 2 {
					props[parts[0]] = parts[1]
				}
			}
		}
		meta := map[string]string{}
		for _, kv := range strings.Split(fields[2], ";") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 {
				meta[parts[0]] = parts[1]
			}
		}

		prop := func(key, def string) string {
			if v, ok := props[key]; ok {
				return v
			}
			return def
		}

		bi := &BlockImage{Name: name, Variant: variant}
		_, bi.IsAir = meta["is_air"]
		if v, ok := meta["biome_type"]; ok {
			bi.IsBiome = true
			bi.IsMaskedBiome = v == "masked"
			cm, err := parseColorMapType(meta["biome_colors"])
			if err != nil {
				return fmt.Errorf("%w: block %q biome_colors: %v", ErrAtlasLoad, name, err)
			}
			bi.BiomeColors = cm
			if v, ok := meta["biome_colormap"]; ok {
				triangle, err := parseBiomeColormap(v)
				if err != nil {
					log.Printf("atlas: unable to parse biome_colormap %q for block %q: %v", v, name, err)
				} else {
					bi.BiomeColormap = triangle
				}
			}
		}
		// full water means still water: level 0 (source) or 8 (falling
		// source). minecraft:full_water is the pre-rendered partial-water
		// family used for substitution.
		if name == "minecraft:water" {
			bi.IsFullWater = prop("level", "") == "0" || prop("level", "") == "8"
		}
		if name == "minecraft:full_water" {
			bi.IsFullWater = true
		}
		bi.IsIce = name == "minecraft:ice" || name == "minecraft:blue_ice" || name == "minecraft:packed_ice"
		bi.IsLilyPad = name == "minecraft:lily_pad"
		if _, ok := meta["is_waterloggable"]; ok {
			bi.IsWaterloggable = true
			bi.IsWaterlogged = prop("waterlogged", "true") == "true" || prop("was_waterlogged", "") == "true"
			bi.HasWaterTop = prop("waterlogged", "true") == "true" && prop("was_waterlogged", "") != "true"
		}
		if v, ok := meta["lighting_type"]; ok {
			lt, err := parseLightingType(v)
			if err != nil {
				return fmt.Errorf("%w: block %q lighting_type: %v", ErrAtlasLoad, name, err)
			}
			bi.LightingType = lt
		} else {
			bi.LightingType = -1 // defaulted in the preparation pass
		}
		_, bi.HasFaultyLighting = meta["faulty_lighting"]
		if v, ok := meta["partial"]; ok && v == "true" {
			bi.CanPartial = true
		}
		bi.ShadowEdges = -1
		if v, ok := meta["shadow_edges"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: block %q shadow_edges: %v", ErrAtlasLoad, name, err)
			}
			bi.ShadowEdges = n
		}
		if bi.HasWaterTop {
			bi.ShadowEdges = 1
		}

		colorIdx, err := strconv.Atoi(meta["color"])
		if err != nil {
			return fmt.Errorf("%w: block %q: bad color index: %v", ErrAtlasLoad, name, err)
		}
		uvIdx, err := strconv.Atoi(meta["uv"])
		if err != nil {
			return fmt.Errorf("%w: block %q: bad uv index: %v", ErrAtlasLoad, name, err)
		}

		bi.Color = cropSprite(sheet, colorIdx, w, h, cols, blockSize)
		bi.UV = cropSprite(sheet, uvIdx, w, h, cols, blockSize)

		key := name + " " + variant
		a.images[key] = bi
		if idOf != nil {
			if id, ok := idOf(name, variant); ok {
				a.byID[id] = bi
			}
		}
	}
	return scanner.Err()
}

// cropSprite extracts sprite index idx (row=idx/cols, col=idx%cols) from
// sheet and resamples it to blockSize if its native size differs.
func cropSprite(sheet image.Image, idx, w, h, cols, blockSize int) *raster.Image {
	row := idx / cols
	col := idx % cols
	x0, y0 := col*w, row*h
	sub := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(sub, sub.Bounds(), sheet, image.Pt(x0, y0), draw.Src)

	var resized *image.RGBA
	if w == blockSize && h == blockSize {
		resized = sub
	} else {
		resized = image.NewRGBA(image.Rect(0, 0, blockSize, blockSize))
		draw.ApproxBiLinear.Scale(resized, resized.Bounds(), sub, sub.Bounds(), draw.Src, nil)
	}

	out := raster.NewImage(blockSize, blockSize)
	for y := 0; y < blockSize; y++ {
		srcOff := resized.PixOffset(0, y)
		copy(out.Pix[y*blockSize*4:(y+1)*blockSize*4], resized.Pix[srcOff:srcOff+blockSize*4])
	}
	return out
}

// prepareAll runs the post-load preparation pass over every block image:
// side darkening, side-mask and transparency scans, biome-mask linking,
// and lighting/shadow-edge defaulting. The transparency scan runs against
// the solid reference block's UV mask so a sprite that simply paints fewer
// pixels than a full cube counts as transparent.
func (a *Atlas) prepareAll() {
	var solid *BlockImage
	for _, bi := range a.images {
		if bi.Name == "minecraft:unknown_block" {
			solid = bi
			break
		}
	}

	for _, bi := range a.images {
		if strings.HasSuffix(bi.Name, "_biome_mask") {
			continue
		}
		if a.darkenLeft != 0 || a.darkenRight != 0 {
			raster.Multiply(bi.Color, bi.UV, a.darkenLeft, a.darkenRight, 255)
		}
		bi.SideMask = scanSideMask(bi.UV)
		solidUV := bi.UV
		if solid != nil {
			solidUV = solid.UV
		}
		bi.IsTransparent = scanTransparent(bi.Color, solidUV)

		if bi.ShadowEdges == -1 {
			if bi.IsTransparent {
				bi.ShadowEdges = 0
			} else {
				bi.ShadowEdges = 1
			}
		}

		if bi.IsBiome && bi.IsMaskedBiome {
			if mask, ok := a.images[bi.Name+"_biome_mask "+bi.Variant]; ok {
				bi.BiomeMask = mask.Color
			}
		}

		if bi.LightingType == -1 {
			if !bi.IsTransparent {
				bi.LightingType = LightingSmooth
			} else if bi.IsFullWater || bi.IsIce {
				bi.LightingType = LightingSmooth
			} else if bi.IsWaterlogged && bi.HasWaterTop {
				bi.LightingType = LightingSmoothTopRemainingSimple
			} else {
				bi.LightingType = LightingSimple
			}
		}
	}

	if solid != nil {
		a.unknown = solid
	} else {
		a.unknown = &BlockImage{
			Name:  "minecraft:unknown_block",
			Color: raster.NewImage(a.BlockSize, a.BlockSize),
			UV:    raster.NewImage(a.BlockSize, a.BlockSize),
		}
	}
}

func scanSideMask(uv *raster.Image) uint8 {
	var mask uint8
	for y := 0; y < uv.Height; y++ {
		for x := 0; x < uv.Width; x++ {
			_, _, b, a := uv.Get(x, y)
			if a == 0 {
				continue
			}
			switch b {
			case raster.FaceLeft:
				mask |= 1
			case raster.FaceRight:
				mask |= 2
			case raster.FaceUp:
				mask |= 4
			}
		}
	}
	return mask
}

func scanTransparent(color, uv *raster.Image) bool {
	for y := 0; y < uv.Height; y++ {
		for x := 0; x < uv.Width; x++ {
			_, _, _, ua := uv.Get(x, y)
			if ua == 0 {
				continue
			}
			_, _, _, ca := color.Get(x, y)
			if ca < 255 {
				return true
			}
		}
	}
	return false
}

// GetBlockImage looks up id's prepared sprite. If id is out of range it
// retries the same block with waterlogged=false; if still missing it
// falls back to the built-in unknown-block sprite.
func (a *Atlas) GetBlockImage(id uint16, nonWaterloggedID uint16, hasNonWaterlogged bool) *BlockImage {
	if bi, ok := a.byID[id]; ok {
		return bi
	}
	if hasNonWaterlogged {
		if bi, ok := a.byID[nonWaterloggedID]; ok {
			return bi
		}
	}
	return a.unknown
}

// Unknown returns the built-in fallback sprite used when no block image
// can be resolved at all.
func (a *Atlas) Unknown() *BlockImage { return a.unknown }
