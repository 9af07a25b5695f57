// Command isomap-render drives a Renderer across a rectangle of tile
// positions, distributing work across a worker pool, and writes each
// resulting tile to disk as a PNG.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/oriumgames/isomap"
	"github.com/oriumgames/isomap/internal/atlas"
	"github.com/oriumgames/isomap/internal/blockstate"
	"github.com/oriumgames/isomap/internal/coord"
	"github.com/oriumgames/isomap/internal/raster"
)

func main() {
	worldDir := flag.String("world", "", "path to the world directory (containing region/)")
	outDir := flag.String("out", "tiles", "directory to write rendered tiles into")
	atlasMeta := flag.String("atlas-meta", "", "path to the atlas metadata text file")
	atlasImage := flag.String("atlas-image", "", "path to the atlas PNG sprite sheet")
	blockSize := flag.Int("block-size", 16, "pixel size of one block's diagonal projection")
	tileWidth := flag.Int("tile-width", 1, "tile width in chunks")
	rotation := flag.Int("rotation", 0, "world rotation, in quarter turns (0-3)")
	minX := flag.Int("min-x", 0, "minimum tile X")
	maxX := flag.Int("max-x", 0, "maximum tile X (inclusive)")
	minY := flag.Int("min-y", 0, "minimum tile Y")
	maxY := flag.Int("max-y", 0, "maximum tile Y (inclusive)")
	workers := flag.Int("workers", 4, "number of concurrent render workers")
	shadowEdges := flag.Int("shadow-edges", 1, "shadow-edge strength for all five sides (0-3, 0 disables)")
	flag.Parse()

	if *worldDir == "" || *atlasMeta == "" || *atlasImage == "" {
		fmt.Fprintln(os.Stderr, "usage: isomap-render -world <dir> -atlas-meta <file> -atlas-image <file> [options]")
		os.Exit(1)
	}

	if err := run(*worldDir, *outDir, *atlasMeta, *atlasImage, *blockSize, *tileWidth, *rotation,
		*minX, *maxX, *minY, *maxY, *workers, *shadowEdges); err != nil {
		log.Fatalf("isomap-render: %v", err)
	}
}

func run(worldDir, outDir, atlasMeta, atlasImage string, blockSize, tileWidth, rotation,
	minX, maxX, minY, maxY, workers, shadowEdges int) error {

	registry := blockstate.New()
	// idOf interns the same (name, properties) pair the atlas's variant
	// line describes into registry, the identical registry chunk.Decode
	// interns palette entries into, so an atlas-assigned ID and a
	// chunk-decoded ID for the same block state always agree.
	idOf := func(name, variant string) (uint16, bool) {
		state := blockstate.ParseVariant(name, variant)
		for _, p := range state.Properties {
			registry.AddKnownProperty(name, p.Key)
		}
		return registry.GetID(name, state.Properties), true
	}
	a, err := atlas.Load(atlasMeta, atlasImage, idOf, atlas.Options{
		DarkenLeft:  191, // 0.75 * 255
		DarkenRight: 153, // 0.6 * 255
		BlockSize:   blockSize,
	})
	if err != nil {
		return fmt.Errorf("load atlas: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	total := (maxX - minX + 1) * (maxY - minY + 1)
	if total <= 0 {
		return fmt.Errorf("empty tile range")
	}

	type job struct {
		x, y int
	}
	jobs := make(chan job, total)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			jobs <- job{x, y}
		}
	}
	close(jobs)

	edge := uint8(shadowEdges)
	g, ctx := errgroup.WithContext(context.Background())
	var done atomic.Int64
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			r, err := isomap.New(isomap.Config{
				WorldDir:  worldDir,
				Registry:  registry,
				Atlas:     a,
				Rotation:  rotation,
				TileWidth: int32(tileWidth),
				BlockSize: int32(blockSize),
				Edges:     isomap.ShadowEdges{North: edge, South: edge, East: edge, West: edge, Bottom: edge},
			})
			if err != nil {
				return err
			}
			for j := range jobs {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				img := r.RenderTile(coord.TilePos{X: int32(j.x), Y: int32(j.y)})
				path := filepath.Join(outDir, fmt.Sprintf("%d_%d.png", j.x, j.y))
				if err := writePNG(path, img); err != nil {
					return fmt.Errorf("tile (%d,%d): %w", j.x, j.y, err)
				}
				if n := done.Add(1); n%32 == 0 {
					log.Printf("rendered %d/%d tiles", n, total)
				}
			}
			return nil
		})
	}

	return g.Wait()
}

func writePNG(path string, im *raster.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))
	copy(img.Pix, im.Pix)
	return png.Encode(f, img)
}
