// Package addressmap maps a (virtual offset, length) span on the disk onto
// the blocks it touches: an optional unaligned head fragment, a run of
// aligned body blocks, and an optional unaligned tail fragment.
package addressmap

import "fmt"

// Fragment describes the portion of a span that falls within one block.
type Fragment struct {
	// Block is the 0-based block number.
	Block int64
	// BlockOffset is the byte offset within the block where this fragment
	// begins.
	BlockOffset int64
	// Length is the number of bytes this fragment covers.
	Length int64
	// Full reports whether this fragment covers the entire block.
	Full bool
}

// Span is the decomposition of [off, off+n) into head, body, and tail.
// Head and Tail are present only when they are non-nil and unaligned (partial
// coverage of their block); a fully-covered single-block span is reported as
// one Full body fragment with Head and Tail nil, per the single-block edge
// case in the component design.
type Span struct {
	Head *Fragment
	Body []Fragment
	Tail *Fragment
}

// BlockOf returns the block number and intra-block offset for a virtual
// offset, i.e. divmod(off, objSize).
func BlockOf(off, objSize int64) (block, blockOffset int64) {
	return off / objSize, off % objSize
}

// Key derives the block key for a block number under the given prefix,
// formatted as "<prefix>/<blockno_hex16>".
func Key(prefix string, block int64) string {
	return fmt.Sprintf("%s/%016x", prefix, block)
}

// Map partitions [off, off+n) into head/body/tail fragments given the
// object size. It is a pure function: it performs no I/O and holds no
// state.
func Map(off, n, objSize int64) Span {
	if n == 0 {
		return Span{}
	}

	end := off + n
	firstBlock, firstOff := BlockOf(off, objSize)
	lastBlock, lastEndOff := BlockOf(end-1, objSize)
	lastEndOff++ // exclusive end within lastBlock

	if firstBlock == lastBlock {
		// Single-block span.
		length := end - off
		if firstOff == 0 && length == objSize {
			return Span{Body: []Fragment{{Block: firstBlock, BlockOffset: 0, Length: objSize, Full: true}}}
		}
		return Span{Head: &Fragment{Block: firstBlock, BlockOffset: firstOff, Length: length, Full: false}}
	}

	var span Span

	if firstOff != 0 {
		span.Head = &Fragment{
			Block:       firstBlock,
			BlockOffset: firstOff,
			Length:      objSize - firstOff,
			Full:        false,
		}
		firstBlock++
	}

	if lastEndOff != objSize {
		span.Tail = &Fragment{
			Block:       lastBlock,
			BlockOffset: 0,
			Length:      lastEndOff,
			Full:        false,
		}
		lastBlock--
	}

	for b := firstBlock; b <= lastBlock; b++ {
		span.Body = append(span.Body, Fragment{Block: b, BlockOffset: 0, Length: objSize, Full: true})
	}

	return span
}
