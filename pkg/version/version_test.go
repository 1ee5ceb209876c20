package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFull(t *testing.T) {
	assert.True(t, strings.HasPrefix(Full(), AppName+"/"))
	assert.NotEmpty(t, GitCommit)
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "a3f8c2d1", shorten("a3f8c2d1e9b74460"))
	assert.Equal(t, "abc", shorten("abc"))
}
