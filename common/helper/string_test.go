package helper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShorten(t *testing.T) {
	assert.Equal(t, "abc", Shorten("  abc  ", 10))
	assert.Equal(t, "abcde…", Shorten("abcdefghij", 5))
	assert.Equal(t, "abcdefghij", Shorten("abcdefghij", 0), "non-positive limit disables clamping")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short body", Snippet([]byte("  short body \n")))

	long := strings.Repeat("x", 400)
	got := Snippet([]byte(long))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Less(t, len(got), 400)
}
