// Package coord implements the region/chunk/block position types used
// throughout the renderer, their conversions, and the diagonal row/column
// projection the tile iterator walks.
package coord

import "fmt"

// TOP and LOW bound a chunk's vertical section range: sections TOP-1 down to
// LOW are the ones a chunk may hold.
const (
	Top = 20
	Low = -4
)

// Floordiv rounds toward negative infinity, unlike Go's truncating /.
func Floordiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// RemEuclid returns a non-negative remainder of a/b.
func RemEuclid(a, b int32) int32 {
	r := a % b
	if r < 0 {
		if b < 0 {
			r -= b
		} else {
			r += b
		}
	}
	return r
}

// RegionPos identifies a 512x512-block, 32x32-chunk region.
type RegionPos struct {
	X, Z int32
}

// Rotate rotates the region position by k quarter turns: (x,z) -> (-z,x).
func (p RegionPos) Rotate(k int) RegionPos {
	for i := 0; i < k; i++ {
		p.X, p.Z = -p.Z, p.X
	}
	return p
}

// Filename returns the canonical "r.<x>.<z>.mca" region file name.
func (p RegionPos) Filename() string {
	return fmt.Sprintf("r.%d.%d.mca", p.X, p.Z)
}

// RegionPosFromFilename parses a "r.<x>.<z>.mca" region file name.
func RegionPosFromFilename(name string) (RegionPos, error) {
	var x, z int32
	if n, err := fmt.Sscanf(name, "r.%d.%d.mca", &x, &z); n != 2 || err != nil {
		return RegionPos{}, fmt.Errorf("coord: invalid region filename %q", name)
	}
	return RegionPos{x, z}, nil
}

// ChunkPos identifies a 16x16 block column of unbounded vertical extent.
type ChunkPos struct {
	X, Z int32
}

// ChunkPosFromBlock returns the chunk containing a block position.
func ChunkPosFromBlock(x, z int32) ChunkPos {
	return ChunkPos{Floordiv(x, 16), Floordiv(z, 16)}
}

// Region returns the region this chunk belongs to.
func (p ChunkPos) Region() RegionPos {
	return RegionPos{Floordiv(p.X, 32), Floordiv(p.Z, 32)}
}

// LocalInRegion returns the chunk's 0..31 offset within its region.
func (p ChunkPos) LocalInRegion() (x, z int32) {
	return RemEuclid(p.X, 32), RemEuclid(p.Z, 32)
}

// Rotate rotates a chunk position by k quarter turns. The chunk's region
// is rotated as a whole and the chunk's local offset within it follows
// (x,z) -> (31-z, x), so chunks stay inside their (rotated) region.
func (p ChunkPos) Rotate(k int) ChunkPos {
	for i := 0; i < k; i++ {
		lx, lz := p.LocalInRegion()
		region := p.Region().Rotate(1)
		p.X = region.X*32 + 31 - lz
		p.Z = region.Z*32 + lx
	}
	return p
}

// Row and Col give the diagonal projection used by the tile iterator.
func (p ChunkPos) Row() int32 { return p.Z - p.X }
func (p ChunkPos) Col() int32 { return p.X + p.Z }

// ChunkPosFromRowCol inverts Row/Col.
func ChunkPosFromRowCol(row, col int32) ChunkPos {
	return ChunkPos{(col - row) / 2, (col + row) / 2}
}

// BlockPos is an absolute block position; Y is vertical.
type BlockPos struct {
	X, Z, Y int32
}

// Direction offsets used when stepping between neighboring blocks.
var (
	DirNorth  = BlockPos{0, -1, 0}
	DirSouth  = BlockPos{0, 1, 0}
	DirEast   = BlockPos{1, 0, 0}
	DirWest   = BlockPos{-1, 0, 0}
	DirTop    = BlockPos{0, 0, 1}
	DirBottom = BlockPos{0, 0, -1}
)

// Add returns p+o.
func (p BlockPos) Add(o BlockPos) BlockPos {
	return BlockPos{p.X + o.X, p.Z + o.Z, p.Y + o.Y}
}

// Sub returns p-o.
func (p BlockPos) Sub(o BlockPos) BlockPos {
	return BlockPos{p.X - o.X, p.Z - o.Z, p.Y - o.Y}
}

// Row is the diagonal row coordinate, including the vertical contribution.
func (p BlockPos) Row() int32 {
	return p.Z - p.X + (Top*16-p.Y)*4
}

// Col is the diagonal column coordinate.
func (p BlockPos) Col() int32 {
	return p.X + p.Z
}

// Chunk returns the chunk this block lies in.
func (p BlockPos) Chunk() ChunkPos {
	return ChunkPosFromBlock(p.X, p.Z)
}

// Less implements the painter's-order total order used for sprite
// compositing: y primary (ascending), x descending as a tiebreak, then z
// ascending.
func (p BlockPos) Less(o BlockPos) bool {
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	if p.X != o.X {
		return p.X > o.X
	}
	return p.Z < o.Z
}

// LocalBlockPos is a chunk-local block position; X and Z are in 0..15.
type LocalBlockPos struct {
	X, Z int32
	Y    int32
}

// LocalBlockPosFromBlock derives the chunk-local position of a block,
// using Euclidean (always non-negative) X/Z remainder.
func LocalBlockPosFromBlock(p BlockPos) LocalBlockPos {
	return LocalBlockPos{RemEuclid(p.X, 16), RemEuclid(p.Z, 16), p.Y}
}

// ToGlobal places a local position within a chunk.
func (p LocalBlockPos) ToGlobal(chunk ChunkPos) BlockPos {
	return BlockPos{p.X + chunk.X*16, p.Z + chunk.Z*16, p.Y}
}

// Row and Col mirror BlockPos's diagonal projection for local positions.
func (p LocalBlockPos) Row() int32 {
	return p.Z - p.X + (Top*16-p.Y)*4
}

func (p LocalBlockPos) Col() int32 {
	return p.X + p.Z
}

// Less mirrors BlockPos.Less.
func (p LocalBlockPos) Less(o LocalBlockPos) bool {
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	if p.X != o.X {
		return p.X > o.X
	}
	return p.Z < o.Z
}

// RotateLocal rotates a local position within its 16x16 column by k quarter
// turns: (x,z) -> (15-z, x).
func RotateLocal(x, z int32, k int) (int32, int32) {
	for i := 0; i < k; i++ {
		x, z = 15-z, x
	}
	return x, z
}

// UnrotateLocal inverts RotateLocal; used to map a rotated public-facing
// local position back to the coordinates the underlying chunk data was
// stored at.
func UnrotateLocal(x, z int32, k int) (int32, int32) {
	return RotateLocal(x, z, (4-(k%4))%4)
}

// TilePos identifies a tile in the output tile grid.
type TilePos struct {
	X, Y int32
}
