package models

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "exact", Truncate("exact", 5))

	long := strings.Repeat("q", 600)
	out := Truncate(long, QueryTruncateLen)
	assert.Len(t, out, QueryTruncateLen+3)
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	// A budget landing inside a multi-byte rune must back off to the
	// preceding boundary instead of emitting a broken sequence.
	s := strings.Repeat("é", 300) // 2 bytes each
	out := Truncate(s, 499)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, 498+3, len(out))
	assert.True(t, strings.HasSuffix(out, "é..."))

	cjk := strings.Repeat("网", 200) // 3 bytes each
	out = Truncate(cjk, 500)
	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, len(out), 503)
}
