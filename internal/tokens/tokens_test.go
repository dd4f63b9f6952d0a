package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTextTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 1},
		{"shorter than one token", "abc", 1},
		{"exactly one token", "abcd", 1},
		{"eight chars", "abcdefgh", 2},
		{"truncates", "abcdefghijk", 2},
		{"multibyte counts runes", "日本語の文章です", 2},
		{"long", strings.Repeat("x", 4000), 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTextTokens(tt.text))
		})
	}
}

func TestEstimateTextTokens_Monotonic(t *testing.T) {
	prev := EstimateTextTokens("")
	assert.GreaterOrEqual(t, prev, 1)
	var b strings.Builder
	for i := range 2000 {
		b.WriteByte(byte('a' + i%26))
		got := EstimateTextTokens(b.String())
		assert.GreaterOrEqual(t, got, prev, "length %d", i+1)
		assert.GreaterOrEqual(t, got, 1)
		prev = got
	}
}

func TestEstimateImageTokens(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          int
	}{
		{"tiny", 1, 1, 85},
		{"single tile boundary", 512, 512, 85},
		{"wide but short", 512, 100, 85},
		{"just over a tile", 513, 513, 85 + 170*4},
		{"one axis over", 513, 100, 85 + 170*2},
		{"shortest side scaled to 768", 1024, 1024, 85 + 170*4},
		{"landscape hd", 1920, 1080, 85 + 170*6},
		{"portrait", 768, 1536, 85 + 170*6},
		{"capped then scaled", 4096, 4096, 85 + 170*4},
		{"very wide", 8000, 600, 85 + 170*4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateImageTokens(tt.width, tt.height))
		})
	}
}

func TestEstimateImageTokens_DownscaleBeforeTiling(t *testing.T) {
	// 4096x4096 reduces to 2048x2048 in the first step, so both must price
	// identically.
	assert.Equal(t, EstimateImageTokens(2048, 2048), EstimateImageTokens(4096, 4096))
	assert.Greater(t, EstimateImageTokens(513, 513), LowDetailTokens)
}
