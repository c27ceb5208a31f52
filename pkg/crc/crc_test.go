package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldPositionInvariant(t *testing.T) {
	width := 4
	data := []byte("the quick brown fox jumps over the lazy dog, twice over")

	a := NewFold(width)
	a.Update(data)

	// Feed the same bytes starting from an offset congruent to 0 mod width.
	b := NewFold(width)
	b.Update(make([]byte, width*3)) // advances offset by a multiple of width, net no-op
	b.offset = 0                    // same starting phase as a
	b.Update(data)

	assert.True(t, Equal(a, b))
}

func TestFoldDetectsCorruption(t *testing.T) {
	a := NewFold(2)
	a.Update([]byte("hello world"))

	b := NewFold(2)
	b.Update([]byte("hello worlD"))

	assert.False(t, Equal(a, b))
}

func TestCRC64Deterministic(t *testing.T) {
	a := NewCRC64()
	b := NewCRC64()
	a.Update([]byte("payload bytes"))
	b.Update([]byte("payload"))
	b.Update([]byte(" bytes"))
	assert.True(t, Equal(a, b))
}
