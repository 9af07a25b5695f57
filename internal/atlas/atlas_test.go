package atlas

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/oriumgames/isomap/internal/raster"
)

func TestParseColorMapType(t *testing.T) {
	cases := map[string]ColorMapType{
		"foliage":         ColorMapFoliage,
		"foliage_flipped": ColorMapFoliageFlipped,
		"grass":           ColorMapGrass,
		"water":           ColorMapWater,
	}
	for s, want := range cases {
		got, err := parseColorMapType(s)
		if err != nil || got != want {
			t.Errorf("parseColorMapType(%q) = %v, %v; want %v", s, got, err, want)
		}
	}
	if _, err := parseColorMapType("bogus"); err == nil {
		t.Error("expected error for unrecognized colormap type")
	}
}

func TestParseLightingType(t *testing.T) {
	cases := map[string]LightingType{
		"none":          LightingNone,
		"simple":        LightingSimple,
		"smooth":        LightingSmooth,
		"smooth_bottom": LightingSmoothBottom,
	}
	for s, want := range cases {
		got, err := parseLightingType(s)
		if err != nil || got != want {
			t.Errorf("parseLightingType(%q) = %v, %v; want %v", s, got, err, want)
		}
	}
	// smooth_top_remaining_simple is assigned only by the defaulting pass
	// and has no textual form.
	for _, s := range []string{"bogus", "smooth_top_remaining_simple"} {
		if _, err := parseLightingType(s); err == nil {
			t.Errorf("expected error for lighting type %q", s)
		}
	}
}

func TestBiomeTriangleEvalCorners(t *testing.T) {
	tri := BiomeTriangle{
		C0: raster.Color{R: 10, A: 255},
		C1: raster.Color{R: 20, A: 255},
		C2: raster.Color{R: 30, A: 255},
	}
	// (x,y) = (0,0) -> f0=0, f1=1, f2=0 -> c1
	if got := tri.Eval(0, 0); got.R != 20 {
		t.Errorf("Eval(0,0).R = %d, want 20 (c1)", got.R)
	}
	// (x,y) = (1,0) -> f0=1, f1=0, f2=0 -> c0
	if got := tri.Eval(1, 0); got.R != 10 {
		t.Errorf("Eval(1,0).R = %d, want 10 (c0)", got.R)
	}
	// (x,y) = (0,1) -> f0=-1, f1=1, f2=1 -> c1 - c0 + c2 = 20-10+30=40 clamp 40
	if got := tri.Eval(0, 1); got.R != 30+20-10 {
		t.Errorf("Eval(0,1).R = %d, want %d", got.R, 30+20-10)
	}
}

// writeTestAtlas builds a minimal 2-sprite atlas (one solid opaque sprite,
// one with an alpha hole) plus matching metadata, and returns the paths.
func writeTestAtlas(t *testing.T) (metaPath, imagePath string) {
	t.Helper()
	dir := t.TempDir()

	const spriteSize = 4
	sheet := image.NewRGBA(image.Rect(0, 0, spriteSize*2, spriteSize))
	for y := 0; y < spriteSize; y++ {
		for x := 0; x < spriteSize; x++ {
			sheet.Set(x, y, color.RGBA{200, 200, 200, 255})
		}
	}
	for y := 0; y < spriteSize; y++ {
		for x := 0; x < spriteSize; x++ {
			uvB := byte(raster.FaceUp)
			sheet.Set(spriteSize+x, y, color.RGBA{0, 0, uvB, 255})
		}
	}

	imagePath = filepath.Join(dir, "atlas.png")
	f, err := os.Create(imagePath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, sheet); err != nil {
		t.Fatal(err)
	}

	meta := "4 4 2\n" +
		"minecraft:stone - color=0;uv=1\n"

	metaPath = filepath.Join(dir, "atlas.txt")
	if err := os.WriteFile(metaPath, []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}
	return metaPath, imagePath
}

func TestLoadPreparesSideMaskAndLighting(t *testing.T) {
	metaPath, imagePath := writeTestAtlas(t)

	a, err := Load(metaPath, imagePath, nil, Options{BlockSize: 4})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	bi, ok := a.images["minecraft:stone -"]
	if !ok {
		t.Fatal("expected minecraft:stone entry")
	}
	if bi.SideMask&4 == 0 {
		t.Errorf("expected UP face bit set in side mask, got %b", bi.SideMask)
	}
	if bi.LightingType != LightingSmooth {
		t.Errorf("default lighting type for opaque non-water block = %v, want smooth", bi.LightingType)
	}
	if bi.IsTransparent {
		t.Errorf("fully opaque color sprite should not be marked transparent")
	}
}

func TestLoadRejectsBadHeader(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "atlas.png")
	sheet := image.NewRGBA(image.Rect(0, 0, 4, 4))
	f, _ := os.Create(imagePath)
	png.Encode(f, sheet)
	f.Close()

	metaPath := filepath.Join(dir, "atlas.txt")
	os.WriteFile(metaPath, []byte("not a valid header\n"), 0o644)

	if _, err := Load(metaPath, imagePath, nil, Options{BlockSize: 4}); err == nil {
		t.Fatal("expected error for malformed header")
	}
}

func TestParseBiomeColormap(t *testing.T) {
	tri, err := parseBiomeColormap("#FF000080|#00FF0040|#0000FFFF")
	if err != nil {
		t.Fatalf("parseBiomeColormap: %v", err)
	}
	if tri.C0 != (raster.Color{R: 0xFF, G: 0x00, B: 0x00, A: 0x80}) {
		t.Errorf("C0 = %+v, want (255,0,0,128)", tri.C0)
	}
	if tri.C1 != (raster.Color{R: 0x00, G: 0xFF, B: 0x00, A: 0x40}) {
		t.Errorf("C1 = %+v, want (0,255,0,64)", tri.C1)
	}
	if tri.C2 != (raster.Color{R: 0x00, G: 0x00, B: 0xFF, A: 0xFF}) {
		t.Errorf("C2 = %+v, want (0,0,255,255)", tri.C2)
	}
}

func TestParseBiomeColormapRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"#FF000080|#00FF0040",
		"FF000080|#00FF0040|#0000FFFF",
		"#GG000080|#00FF0040|#0000FFFF",
	}
	for _, c := range cases {
		if _, err := parseBiomeColormap(c); err == nil {
			t.Errorf("parseBiomeColormap(%q) = nil error, want error", c)
		}
	}
}

func TestLoadParsesBiomeColormapSoftFailure(t *testing.T) {
	dir := t.TempDir()
	const spriteSize = 2
	sheet := image.NewRGBA(image.Rect(0, 0, spriteSize, spriteSize*2))
	for y := 0; y < spriteSize*2; y++ {
		for x := 0; x < spriteSize; x++ {
			sheet.Set(x, y, color.RGBA{10, 20, 30, 255})
		}
	}
	imagePath := filepath.Join(dir, "atlas.png")
	f, err := os.Create(imagePath)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, sheet); err != nil {
		t.Fatal(err)
	}
	f.Close()

	meta := "2 2 1\n" +
		"minecraft:good - color=0;uv=0;biome_colormap=#FF000080|#00FF0040|#0000FFFF\n" +
		"minecraft:bad - color=1;uv=1;biome_colormap=not-a-colormap\n"
	metaPath := filepath.Join(dir, "atlas.txt")
	if err := os.WriteFile(metaPath, []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := Load(metaPath, imagePath, nil, Options{BlockSize: spriteSize})
	if err != nil {
		t.Fatalf("Load: %v, want success despite malformed biome_colormap", err)
	}

	good := a.images["minecraft:good -"]
	if good.BiomeColormap == nil {
		t.Fatal("expected minecraft:good to have a parsed BiomeColormap")
	}
	if good.BiomeColormap.C0 != (raster.Color{R: 0xFF, A: 0x80}) {
		t.Errorf("minecraft:good C0 = %+v, want (255,0,0,128)", good.BiomeColormap.C0)
	}

	bad := a.images["minecraft:bad -"]
	if bad.BiomeColormap != nil {
		t.Error("expected minecraft:bad to keep a nil BiomeColormap after a soft parse failure")
	}
}

func TestUnknownFallback(t *testing.T) {
	metaPath, imagePath := writeTestAtlas(t)
	a, err := Load(metaPath, imagePath, nil, Options{BlockSize: 4})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := a.GetBlockImage(9999, 0, false)
	if got != a.Unknown() {
		t.Error("expected fallback to unknown sprite for unmapped ID")
	}
}

// writeSolidReferenceAtlas builds an atlas with the minecraft:unknown_block
// solid reference, a full opaque block, and a half-coverage block whose own
// painted pixels are all opaque. Sprite cells: 0 = fully painted color,
// 1 = full-cube UV, 2 = color painting only the top half, 3 = UV painting
// only the top half.
func writeSolidReferenceAtlas(t *testing.T, extraMeta string) (metaPath, imagePath string) {
	t.Helper()
	dir := t.TempDir()

	const spriteSize = 4
	sheet := image.NewRGBA(image.Rect(0, 0, spriteSize*4, spriteSize))
	for y := 0; y < spriteSize; y++ {
		for x := 0; x < spriteSize; x++ {
			sheet.Set(x, y, color.RGBA{200, 200, 200, 255})
			sheet.Set(spriteSize+x, y, color.RGBA{0, 0, raster.FaceUp, 255})
			if y < spriteSize/2 {
				sheet.Set(2*spriteSize+x, y, color.RGBA{90, 90, 90, 255})
				sheet.Set(3*spriteSize+x, y, color.RGBA{0, 0, raster.FaceUp, 255})
			}
		}
	}

	imagePath = filepath.Join(dir, "atlas.png")
	f, err := os.Create(imagePath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, sheet); err != nil {
		t.Fatal(err)
	}

	meta := "4 4 4\n" +
		"minecraft:unknown_block - color=0;uv=1\n" +
		"minecraft:stone - color=0;uv=1\n" +
		"minecraft:slab_like - color=2;uv=3\n" +
		extraMeta

	metaPath = filepath.Join(dir, "atlas.txt")
	if err := os.WriteFile(metaPath, []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}
	return metaPath, imagePath
}

func TestTransparencyScansThroughSolidUV(t *testing.T) {
	metaPath, imagePath := writeSolidReferenceAtlas(t, "")
	a, err := Load(metaPath, imagePath, nil, Options{BlockSize: 4})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	stone := a.images["minecraft:stone -"]
	if stone.IsTransparent {
		t.Error("full opaque block marked transparent")
	}
	// every painted pixel of slab_like is opaque, but it covers only half of
	// what the solid reference covers, so it must count as transparent.
	slab := a.images["minecraft:slab_like -"]
	if !slab.IsTransparent {
		t.Error("half-coverage block should be transparent against the solid UV mask")
	}
	if slab.ShadowEdges != 0 {
		t.Errorf("transparent block shadow edges = %d, want 0", slab.ShadowEdges)
	}
	if stone.ShadowEdges != 1 {
		t.Errorf("opaque block shadow edges = %d, want 1", stone.ShadowEdges)
	}
	if slab.LightingType != LightingSimple {
		t.Errorf("transparent block lighting = %v, want simple", slab.LightingType)
	}
}

func TestUnknownFallbackUsesSolidReference(t *testing.T) {
	metaPath, imagePath := writeSolidReferenceAtlas(t, "")
	a, err := Load(metaPath, imagePath, nil, Options{BlockSize: 4})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.Unknown() != a.images["minecraft:unknown_block -"] {
		t.Error("expected the solid reference block to serve as the unknown fallback")
	}
}

func TestWaterlogFlagsAndForcedShadowEdges(t *testing.T) {
	extra := "minecraft:oak_fence waterlogged=true color=2;uv=3;is_waterloggable=true;shadow_edges=0\n" +
		"minecraft:oak_fence waterlogged=false,was_waterlogged=true color=2;uv=3;is_waterloggable=true\n" +
		"minecraft:water level=0 color=0;uv=1\n" +
		"minecraft:water level=2 color=0;uv=1\n"
	metaPath, imagePath := writeSolidReferenceAtlas(t, extra)
	a, err := Load(metaPath, imagePath, nil, Options{BlockSize: 4})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	logged := a.images["minecraft:oak_fence waterlogged=true"]
	if !logged.IsWaterloggable || !logged.IsWaterlogged || !logged.HasWaterTop {
		t.Errorf("waterlogged fence flags = %+v", logged)
	}
	// a water top forces shadow edges on, over the explicit shadow_edges=0.
	if logged.ShadowEdges != 1 {
		t.Errorf("water-top block shadow edges = %d, want forced 1", logged.ShadowEdges)
	}
	if logged.LightingType != LightingSmoothTopRemainingSimple {
		t.Errorf("water-top block lighting = %v, want smooth_top_remaining_simple", logged.LightingType)
	}

	was := a.images["minecraft:oak_fence waterlogged=false,was_waterlogged=true"]
	if !was.IsWaterlogged || was.HasWaterTop {
		t.Errorf("was_waterlogged fence should be waterlogged without a water top: %+v", was)
	}

	still := a.images["minecraft:water level=0"]
	if !still.IsFullWater {
		t.Error("still water (level=0) should be full water")
	}
	flowing := a.images["minecraft:water level=2"]
	if flowing.IsFullWater {
		t.Error("flowing water (level=2) should not be full water")
	}
}
