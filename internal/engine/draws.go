package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Source names the transform that turns a seed hash into draws.
type Source string

const (
	// SourceSine is frac(sin(x) * 10000). It matches recorded sessions bit for
	// bit only where the platform's sin agrees with the recording client.
	SourceSine Source = "sine"
	// SourceXorshift is a xorshift32 stream keyed by the same hash.
	SourceXorshift Source = "xorshift"
)

// ParseSource accepts "sine" (default when empty) or "xorshift".
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceSine:
		return SourceSine, nil
	case SourceXorshift:
		return SourceXorshift, nil
	default:
		return "", fmt.Errorf("unknown draw source %q", s)
	}
}

// Draws returns three floats in [0,1) derived from hash.
func (s Source) Draws(hash uint32) [3]float64 {
	if s == SourceXorshift {
		return xorshiftDraws(hash)
	}
	return [3]float64{
		sineDraw(float64(hash)),
		sineDraw(float64(hash) + 1),
		sineDraw(float64(hash) + 2),
	}
}

// HashSeed is the 32-bit polynomial rolling hash (h*31 + unit) over the
// UTF-16 code units of s, returned as an absolute value.
func HashSeed(s string) uint32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(u)
	}
	if h < 0 {
		return uint32(-int64(h))
	}
	return uint32(h)
}

// FormatAmount prints an amount the way the recorded clients stringified it.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func sineDraw(x float64) float64 {
	v := math.Sin(x) * 10000
	return v - math.Floor(v)
}

func xorshiftDraws(hash uint32) [3]float64 {
	state := hash
	if state == 0 {
		state = 0x9e3779b9
	}
	var out [3]float64
	for i := range out {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		out[i] = float64(state) / (1 << 32)
	}
	return out
}
