package liftover

import "sort"

// blockIndex answers overlap queries over aligned chain blocks from a slice
// sorted by start. Blocks are loaded once and never modified.
type blockIndex struct {
	blocks []*block
	maxEnd []int64 // maxEnd[i] = max(end) for blocks[:i+1]
}

// block is one ungapped alignment segment of a chain, in 0-based half-open
// source coordinates [start, end).
type block struct {
	start  int64
	end    int64
	qStart int64
	chain  *chain
}

// buildBlockIndex creates an index from a slice of blocks.
func buildBlockIndex(blocks []*block) *blockIndex {
	if len(blocks) == 0 {
		return &blockIndex{}
	}

	sorted := make([]*block, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].start < sorted[j].start
	})

	// Running max from the left: no block at or before i ends past maxEnd[i].
	maxEnd := make([]int64, len(sorted))
	maxEnd[0] = sorted[0].end
	for i := 1; i < len(sorted); i++ {
		maxEnd[i] = max(maxEnd[i-1], sorted[i].end)
	}

	return &blockIndex{blocks: sorted, maxEnd: maxEnd}
}

// findOverlaps returns all blocks whose [start, end) range contains pos.
func (t *blockIndex) findOverlaps(pos int64) []*block {
	result, _ := t.scan(pos)
	return result
}

// scan walks left from the last block starting at or before pos and stops
// once no earlier block can reach pos. It also reports how many blocks it
// examined. Chain blocks on one chromosome rarely nest, so a query costs a
// binary search plus the overlapping blocks.
func (t *blockIndex) scan(pos int64) (result []*block, visited int) {
	if len(t.blocks) == 0 {
		return nil, 0
	}

	// hi is the first index with start > pos; candidates are [0, hi).
	hi := sort.Search(len(t.blocks), func(i int) bool {
		return t.blocks[i].start > pos
	})

	for i := hi - 1; i >= 0; i-- {
		if t.maxEnd[i] <= pos {
			break
		}
		visited++
		if t.blocks[i].end > pos {
			result = append(result, t.blocks[i])
		}
	}
	return result, visited
}
