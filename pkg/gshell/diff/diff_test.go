package diff

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifiedEqual(t *testing.T) {
	d, err := Unified("sig", "same", "same")
	require.NoError(t, err)
	assert.Empty(t, d)
}

func TestUnified(t *testing.T) {
	d, err := Unified("signature", "Regards,\nBob", "Cheers,\nBob")
	require.NoError(t, err)
	assert.Contains(t, d, "--- current/signature")
	assert.Contains(t, d, "+++ new/signature")
	assert.Contains(t, d, "-Regards,")
	assert.Contains(t, d, "+Cheers,")
	assert.Contains(t, d, " Bob")
}

func TestUnifiedExactLines(t *testing.T) {
	d, err := Unified("f", "a\nb\n", "a\nc\n")
	require.NoError(t, err)
	assert.Equal(t, "--- current/f\n+++ new/f\n@@ -1,2 +1,2 @@\n a\n-b\n+c\n", d)

	d, err = Unified("f", "", "x")
	require.NoError(t, err)
	assert.Equal(t, "--- current/f\n+++ new/f\n@@ -0,0 +1 @@\n+x\n", d)
}

func TestColorizeNoColor(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	in := "--- a\n+++ b\n@@ -1 +1 @@\n-x\n+y"
	assert.Equal(t, in, Colorize(in))
}

func TestColorizeWrapsLines(t *testing.T) {
	old := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = old }()

	out := Colorize("-x\n+y\n same")
	assert.True(t, strings.Contains(out, "\x1b["), "expected ANSI escapes in %q", out)
	assert.Equal(t, 3, len(strings.Split(out, "\n")))
}
