// Package tokens estimates input-token counts for uploaded content without
// calling a tokenizer. The image heuristic reproduces the vendor's tile-based
// pricing so pre-flight estimates match the billed cost.
package tokens

import "unicode/utf8"

// Image pricing constants.
const (
	LowDetailTokens = 85   // flat cost of any image, and the whole cost when small
	TileTokens      = 170  // cost per 512x512 tile
	TileSize        = 512  // tile edge in pixels
	MaxImageSide    = 2048 // longest side after the first downscale
	ShortSideTarget = 768  // shortest side after the second downscale
)

// charsPerToken is the length-based proxy for sub-word tokenization.
const charsPerToken = 4

// EstimateTextTokens returns max(1, runes/4).
func EstimateTextTokens(text string) int {
	n := utf8.RuneCountInString(text) / charsPerToken
	if n < 1 {
		return 1
	}
	return n
}

// EstimateImageTokens returns the tile-based token estimate for an image of
// the given pixel dimensions. Images that fit in a single 512x512 tile cost
// LowDetailTokens. Larger images are scaled so the longest side is at most
// 2048, then so the shortest side is at most 768, and are charged per tile.
func EstimateImageTokens(width, height int) int {
	if width <= TileSize && height <= TileSize {
		return LowDetailTokens
	}

	w, h := float64(width), float64(height)

	if longest := max(w, h); longest > MaxImageSide {
		scale := MaxImageSide / longest
		w = float64(int(w * scale))
		h = float64(int(h * scale))
	}

	if shortest := min(w, h); shortest > ShortSideTarget {
		scale := ShortSideTarget / shortest
		w = float64(int(w * scale))
		h = float64(int(h * scale))
	}

	tiles := ceilDiv(int(w), TileSize) * ceilDiv(int(h), TileSize)
	return LowDetailTokens + TileTokens*tiles
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
