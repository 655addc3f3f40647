package doc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergedoc/mergedoc/api"
)

func TestPutDiff_Replacement(t *testing.T) {
	d := New()
	require.NoError(t, d.PutText("content", "Hello World"))

	diff := `--- a/content
+++ b/content
@@ -1 +1 @@
-Hello World
+Hello Rust
`
	require.NoError(t, d.PutDiff("content", diff))

	got, err := d.GetText("content")
	require.NoError(t, err)
	assert.Equal(t, "Hello Rust", got)
}

func TestPutDiff_Insertion(t *testing.T) {
	d := New()
	require.NoError(t, d.PutText("doc", "Line 1\nLine 3\n"))

	diff := `--- a/doc
+++ b/doc
@@ -1,2 +1,3 @@
 Line 1
+Line 2
 Line 3
`
	require.NoError(t, d.PutDiff("doc", diff))

	got, err := d.GetText("doc")
	require.NoError(t, err)
	assert.Equal(t, "Line 1\nLine 2\nLine 3\n", got)
}

func TestPutDiff_Deletion(t *testing.T) {
	d := New()
	require.NoError(t, d.PutText("doc", "Line 1\nLine 2\nLine 3\n"))

	diff := `--- a/doc
+++ b/doc
@@ -1,3 +1,2 @@
 Line 1
-Line 2
 Line 3
`
	require.NoError(t, d.PutDiff("doc", diff))

	got, err := d.GetText("doc")
	require.NoError(t, err)
	assert.Equal(t, "Line 1\nLine 3\n", got)
}

func TestPutDiff_MultiHunk(t *testing.T) {
	d := New()
	require.NoError(t, d.PutText("doc", "a\nb\nc\nd\ne\n"))

	diff := `@@ -1,2 +1,2 @@
 a
-b
+B
@@ -4,2 +4,2 @@
 d
-e
+E
`
	require.NoError(t, d.PutDiff("doc", diff))

	got, err := d.GetText("doc")
	require.NoError(t, err)
	assert.Equal(t, "a\nB\nc\nd\nE\n", got)
}

func TestPutDiff_OneChangeRecord(t *testing.T) {
	d := New()
	require.NoError(t, d.PutText("doc", "Line 1\nLine 3\n"))
	d.TakeChanges()

	diff := `@@ -1,2 +1,3 @@
 Line 1
+Line 2
 Line 3
`
	require.NoError(t, d.PutDiff("doc", diff))
	assert.Len(t, d.TakeChanges(), 1, "the whole diff is one commit")
}

func TestPutDiff_ReplicatesLikeAnyEdit(t *testing.T) {
	d1 := New()
	require.NoError(t, d1.PutText("doc", "Hello World"))

	d2 := New()
	require.NoError(t, d2.ApplyChanges(d1.TakeChanges()))

	diff := `@@ -1 +1 @@
-Hello World
+Hello Rust
`
	require.NoError(t, d1.PutDiff("doc", diff))
	require.NoError(t, d2.ApplyChanges(d1.TakeChanges()))

	got, err := d2.GetText("doc")
	require.NoError(t, err)
	assert.Equal(t, "Hello Rust", got)
	assert.Equal(t, d1.Materialize(), d2.Materialize())
}

func TestPutDiff_NoOpCommitsNothing(t *testing.T) {
	d := New()
	require.NoError(t, d.PutText("doc", "Line 1\nLine 2\n"))
	d.TakeChanges()

	diff := `@@ -1,2 +1,2 @@
 Line 1
 Line 2
`
	require.NoError(t, d.PutDiff("doc", diff))
	assert.Empty(t, d.TakeChanges())
}

func TestPutDiff_StaleDiffRejected(t *testing.T) {
	d := New()
	require.NoError(t, d.PutText("doc", "Line 1\nCHANGED\nLine 3\n"))

	diff := `@@ -1,3 +1,2 @@
 Line 1
-Line 2
 Line 3
`
	assert.True(t, errors.Is(d.PutDiff("doc", diff), api.ErrRange))

	got, err := d.GetText("doc")
	require.NoError(t, err)
	assert.Equal(t, "Line 1\nCHANGED\nLine 3\n", got, "failed diff must not mutate")
}

func TestPutDiff_HunkBeyondText(t *testing.T) {
	d := New()
	require.NoError(t, d.PutText("doc", "only\n"))

	diff := `@@ -9,1 +9,1 @@
-nowhere
+somewhere
`
	assert.True(t, errors.Is(d.PutDiff("doc", diff), api.ErrRange))
}

func TestPutDiff_Malformed(t *testing.T) {
	d := New()
	require.NoError(t, d.PutText("doc", "x\n"))

	for name, diff := range map[string]string{
		"empty":          "",
		"no hunks":       "just some text\n",
		"bad header":     "@@ nonsense @@\n x\n",
		"negative start": "@@ --3 +1 @@\n x\n",
		"stray line":     "@@ -1 +1 @@\n?x\n",
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errors.Is(d.PutDiff("doc", diff), api.ErrParse), "diff %q", diff)
		})
	}
}

func TestPutDiff_TargetChecks(t *testing.T) {
	d := New()
	require.NoError(t, d.PutInt("n", 1))

	diff := "@@ -1 +1 @@\n-x\n+y\n"
	assert.True(t, errors.Is(d.PutDiff("n", diff), api.ErrTypeMismatch))
	assert.True(t, errors.Is(d.PutDiff("missing", diff), api.ErrNotFound))
}
