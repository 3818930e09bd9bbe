// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import "math/bits"

// tickTree is a sparse two-level bitmap over initialized ticks,
// compressed by tick spacing. The leaf layer stores one bit per
// tick-spacing unit in 256-bit words; the summary layer stores one bit
// per nonempty leaf word. It answers nearest-initialized-tick queries in
// near-constant time and must always agree with the tick table's linked
// list on which ticks are set.
type tickTree struct {
	spacing int32
	words   map[int16]*[4]uint64 // leaf: 256 ticks per word
	summary map[int16]uint64     // one bit per nonempty leaf word

	minWord, maxWord int16 // leaf word bounds for the spacing
}

func newTickTree(spacing int32) *tickTree {
	return &tickTree{
		spacing: spacing,
		words:   make(map[int16]*[4]uint64),
		summary: make(map[int16]uint64),
		minWord: leafWordPos(floorDiv(MinTick, spacing)),
		maxWord: leafWordPos(floorDiv(MaxTick, spacing)),
	}
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func leafWordPos(compressed int32) int16 {
	return int16(compressed >> 8)
}

func leafBitPos(compressed int32) uint8 {
	return uint8(compressed & 0xFF)
}

// Toggle flips the activation bit for an aligned tick and keeps the
// summary layer in sync.
func (tt *tickTree) Toggle(tick int32) {
	compressed := tick / tt.spacing
	wp := leafWordPos(compressed)
	bp := leafBitPos(compressed)

	word, ok := tt.words[wp]
	if !ok {
		word = new([4]uint64)
		tt.words[wp] = word
	}
	word[bp/64] ^= 1 << (bp % 64)

	if wordEmpty(word) {
		delete(tt.words, wp)
		tt.summary[summaryPos(wp)] &^= 1 << summaryBit(wp)
		if tt.summary[summaryPos(wp)] == 0 {
			delete(tt.summary, summaryPos(wp))
		}
	} else {
		tt.summary[summaryPos(wp)] |= 1 << summaryBit(wp)
	}
}

// Has reports whether an aligned tick is set.
func (tt *tickTree) Has(tick int32) bool {
	compressed := tick / tt.spacing
	word, ok := tt.words[leafWordPos(compressed)]
	if !ok {
		return false
	}
	bp := leafBitPos(compressed)
	return word[bp/64]&(1<<(bp%64)) != 0
}

// NextAbove returns the smallest set tick strictly greater than tick.
func (tt *tickTree) NextAbove(tick int32) (int32, bool) {
	from := floorDiv(tick, tt.spacing) + 1
	wp := leafWordPos(from)
	bp := leafBitPos(from)

	// Remainder of the starting word.
	if word, ok := tt.words[wp]; ok {
		if bit, found := lowestSetBitFrom(word, bp); found {
			return (int32(wp)*256 + int32(bit)) * tt.spacing, true
		}
	}
	// Walk the summary layer toward higher words.
	for w := wp + 1; w <= tt.maxWord; {
		sw := tt.summary[summaryPos(w)]
		sw &= ^uint64(0) << summaryBit(w)
		if sw == 0 {
			w = nextSummaryBlockStart(w)
			continue
		}
		w = summaryPos(w)*64 + int16(bits.TrailingZeros64(sw))
		if word, ok := tt.words[w]; ok {
			if bit, found := lowestSetBitFrom(word, 0); found {
				return (int32(w)*256 + int32(bit)) * tt.spacing, true
			}
		}
		w++
	}
	return 0, false
}

// PrevAtOrBelow returns the greatest set tick at or below tick.
func (tt *tickTree) PrevAtOrBelow(tick int32) (int32, bool) {
	from := floorDiv(tick, tt.spacing)
	wp := leafWordPos(from)
	bp := leafBitPos(from)

	if word, ok := tt.words[wp]; ok {
		if bit, found := highestSetBitTo(word, bp); found {
			return (int32(wp)*256 + int32(bit)) * tt.spacing, true
		}
	}
	for w := wp - 1; w >= tt.minWord; {
		sw := tt.summary[summaryPos(w)]
		sw &= ^uint64(0) >> (63 - summaryBit(w))
		if sw == 0 {
			w = prevSummaryBlockEnd(w)
			continue
		}
		w = summaryPos(w)*64 + int16(63-bits.LeadingZeros64(sw))
		if word, ok := tt.words[w]; ok {
			if bit, found := highestSetBitTo(word, 255); found {
				return (int32(w)*256 + int32(bit)) * tt.spacing, true
			}
		}
		w--
	}
	return 0, false
}

func summaryPos(wp int16) int16 {
	// Word positions are signed; shift keeps floor semantics.
	return wp >> 6
}

func summaryBit(wp int16) uint {
	return uint(wp & 0x3F)
}

func nextSummaryBlockStart(w int16) int16 {
	return (summaryPos(w))*64 + 64
}

func prevSummaryBlockEnd(w int16) int16 {
	return summaryPos(w)*64 - 1
}

func wordEmpty(w *[4]uint64) bool {
	return w[0] == 0 && w[1] == 0 && w[2] == 0 && w[3] == 0
}

// lowestSetBitFrom scans a 256-bit word for the lowest set bit at or
// above from.
func lowestSetBitFrom(w *[4]uint64, from uint8) (uint8, bool) {
	idx := int(from) / 64
	shift := uint(from) % 64
	for i := idx; i < 4; i++ {
		v := w[i]
		if i == idx {
			v &= ^uint64(0) << shift
		}
		if v != 0 {
			return uint8(i*64 + bits.TrailingZeros64(v)), true
		}
	}
	return 0, false
}

// highestSetBitTo scans a 256-bit word for the highest set bit at or
// below to.
func highestSetBitTo(w *[4]uint64, to uint8) (uint8, bool) {
	idx := int(to) / 64
	shift := uint(to) % 64
	for i := idx; i >= 0; i-- {
		v := w[i]
		if i == idx && shift != 63 {
			v &= (uint64(1) << (shift + 1)) - 1
		}
		if v != 0 {
			return uint8(i*64 + 63 - bits.LeadingZeros64(v)), true
		}
	}
	return 0, false
}
