package pathexpr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergedoc/mergedoc/api"
)

func key(k string) Segment { return Segment{Kind: SegKey, Key: k} }
func index(i int) Segment  { return Segment{Kind: SegIndex, Index: i} }

func TestParse_SingleKey(t *testing.T) {
	segs, err := Parse("name")
	require.NoError(t, err)
	assert.Equal(t, []Segment{key("name")}, segs)
}

func TestParse_DottedKeys(t *testing.T) {
	segs, err := Parse("user.profile.name")
	require.NoError(t, err)
	assert.Equal(t, []Segment{key("user"), key("profile"), key("name")}, segs)
}

func TestParse_MixedIndices(t *testing.T) {
	segs, err := Parse("users[0].profile.name")
	require.NoError(t, err)
	assert.Equal(t, []Segment{key("users"), index(0), key("profile"), key("name")}, segs)
}

func TestParse_ChainedIndices(t *testing.T) {
	segs, err := Parse("grid[2][7]")
	require.NoError(t, err)
	assert.Equal(t, []Segment{key("grid"), index(2), index(7)}, segs)
}

func TestParse_RootMarker(t *testing.T) {
	bare, err := Parse("users[0].name")
	require.NoError(t, err)

	for _, raw := range []string{"$.users[0].name", "$users[0].name"} {
		segs, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, bare, segs, "root marker must have no semantic effect")
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":               "",
		"bare root":           "$",
		"bare root dot":       "$.",
		"leading dot":         ".a",
		"trailing dot":        "a.",
		"doubled dot":         "a..b",
		"negative index":      "a[-1]",
		"non-numeric index":   "a[x]",
		"unterminated":        "a[1",
		"empty bracket":       "a[]",
		"quoted key":          "a['b']",
		"wildcard":            "a.*",
		"descent":             "a..b.c",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw)
			require.Error(t, err, "raw %q", raw)
			assert.True(t, errors.Is(err, api.ErrParse), "raw %q got %v", raw, err)
		})
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	segs, err := Parse("users[0].profile.name")
	require.NoError(t, err)
	assert.Equal(t, "users[0].profile.name", Format(segs))
}
