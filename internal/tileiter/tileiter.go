// Package tileiter walks the diagonal column strip of blocks a single
// output tile covers, from its top-right chunk down to the iteration
// bounds, and from each "top" voxel down along its screen ray.
package tileiter

import "github.com/oriumgames/isomap/internal/coord"

// TopRightChunk returns the chunk at a tile's top-right corner: each tile
// is four chunk-rows high and two chunk-columns wide in diagonal space, so
// a tile's top-right chunk is the top-left chunk of the tile east of it.
func TopRightChunk(tile coord.TilePos, tileWidth int32) coord.ChunkPos {
	row := 4 * tileWidth * tile.Y
	col := 2 * tileWidth * (tile.X + 1)
	return coord.ChunkPosFromRowCol(row, col)
}

// TileTopBlockIterator walks the top row of voxels a tile must consider,
// column by column, top to bottom in screen space.
type TileTopBlockIterator struct {
	current coord.BlockPos
	top     coord.BlockPos

	minRow, maxRow int32
	minCol, maxCol int32

	done bool
}

// NewTileTopBlockIterator constructs the iterator for a tile at tile_pos,
// given the renderer's tile_width (in chunks).
func NewTileTopBlockIterator(tile coord.TilePos, tileWidth int32) *TileTopBlockIterator {
	topRightChunk := TopRightChunk(tile, tileWidth)
	start := coord.LocalBlockPos{X: 8, Z: 6, Y: coord.Top*16 - 1}.ToGlobal(topRightChunk)

	it := &TileTopBlockIterator{
		current: start,
		top:     start,
	}
	it.minRow = start.Row() + 1
	it.maxRow = start.Row() + 64*tileWidth + 4
	it.maxCol = start.Col() + 2
	it.minCol = it.maxCol - 32*tileWidth
	return it
}

// Current returns the iterator's current top voxel.
func (it *TileTopBlockIterator) Current() coord.BlockPos { return it.current }

// Done reports whether the iterator has been exhausted.
func (it *TileTopBlockIterator) Done() bool { return it.done }

// MinRow and MinCol are the tile's fixed diagonal-space origin: each top
// voxel's ScreenPos is computed relative to these same two bounds for the
// lifetime of the tile, and the voxels reached by walking a
// BlockRowIterator down from it share that top voxel's screen position.
func (it *TileTopBlockIterator) MinRow() int32 { return it.minRow }
func (it *TileTopBlockIterator) MinCol() int32 { return it.minCol }

// Next advances the iterator to the next top voxel, reporting whether one
// remains.
func (it *TileTopBlockIterator) Next() bool {
	if it.done {
		return false
	}

	it.current = it.current.Add(coord.BlockPos{X: 0, Z: 1, Y: 0})

	if it.current.Col() > it.maxCol || it.current.Row() > it.maxRow {
		it.top = it.top.Sub(coord.BlockPos{X: 1, Z: 1, Y: 0})
		it.current = it.top
		if it.current.Col() < it.minCol-1 {
			shift := it.minCol - 1 - it.current.Col()
			it.current = it.current.Add(coord.BlockPos{X: 0, Z: shift, Y: 0})
		}
	}

	if it.current.Row() == it.maxRow && (it.current.Col() == it.minCol || it.current.Col() == it.minCol+1) {
		it.done = true
		return false
	}
	return true
}

// BlockRowIterator walks downward along a tile's screen ray from a given
// top voxel, stopping once y goes negative.
type BlockRowIterator struct {
	current coord.BlockPos
	done    bool
}

// NewBlockRowIterator starts a row walk at top.
func NewBlockRowIterator(top coord.BlockPos) *BlockRowIterator {
	return &BlockRowIterator{current: top}
}

// Current returns the row iterator's current voxel.
func (it *BlockRowIterator) Current() coord.BlockPos { return it.current }

// Next advances to the next voxel along the ray, reporting whether it is
// still within bounds (y >= 0).
func (it *BlockRowIterator) Next() bool {
	if it.done {
		return false
	}
	next := it.current.Add(coord.BlockPos{X: 1, Z: -1, Y: -1})
	if next.Y < 0 {
		it.done = true
		return false
	}
	it.current = next
	return true
}

// ScreenPos returns the screen-space pixel offset of a voxel, given its
// row/col already made relative to the tile's MinRow/MinCol (i.e. row -
// tile.MinRow(), col - tile.MinCol()), not the voxel's absolute diagonal
// position.
func ScreenPos(row, col int32, blockSize int32) (x, y int32) {
	return col * blockSize / 2, row*blockSize/4 - blockSize/2
}
