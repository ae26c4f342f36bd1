// Package shuffle orders answer options deterministically per question so a
// player sees the same order on every device without any stored state.
package shuffle

import (
	"unicode/utf16"

	"github.com/mind-engage/valuejourney/internal/catalog"
)

const (
	lcgMultiplier = 1103515245
	lcgIncrement  = 12345
	lcgMask       = 0x7fffffff
)

// Scale is the Likert option set every question offers.
var Scale = []int{1, 2, 3, 4, 5}

// Hash folds seed into a signed 32-bit value with h = h*31 + c over UTF-16
// code units, wrapping on every step.
func Hash(seed string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(seed)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}

// next advances the generator. The product is taken in float64 so large
// hashes lose precision exactly like the browser client does; the result is
// then truncated and masked to 31 bits.
func next(h int64) int64 {
	// The explicit conversion rounds the product before the add. Without it
	// the compiler may emit a fused multiply-add (arm64 does), which rounds
	// once and yields a different sequence than the browser.
	p := float64(float64(h)*lcgMultiplier) + lcgIncrement
	return int64(p) & lcgMask
}

// Shuffle returns a Fisher-Yates permutation of values driven only by seed.
// The input slice is not modified.
func Shuffle[T any](values []T, seed string) []T {
	out := make([]T, len(values))
	copy(out, values)
	h := int64(Hash(seed))
	for i := len(out) - 1; i > 0; i-- {
		h = next(h)
		j := int(h % int64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Seed builds the per-question seed from the role's display name, e.g.
// "L2_Q14_Founder", as the browser client does. An empty stakeholder yields
// the level/code form used before a role is chosen.
func Seed(levelID, questionCode string, s catalog.Stakeholder) string {
	if s == "" {
		return levelID + "_" + questionCode
	}
	return levelID + "_" + questionCode + "_" + s.DisplayName()
}

// Options returns the on-screen order of the 1..5 scale for one question.
func Options(levelID, questionCode string, s catalog.Stakeholder) []int {
	return Shuffle(Scale, Seed(levelID, questionCode, s))
}
