package doc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mergedoc/mergedoc/api"
	"github.com/mergedoc/mergedoc/internal/pathexpr"
)

// PutDiff applies a unified diff to the text node at path, committing the
// whole edit as a single change record: the minimal contiguous region that
// differs is spliced once. A structurally malformed diff fails with
// api.ErrParse; a hunk whose line numbers or context do not match the current
// text fails with api.ErrRange. Either way the tree is untouched. A diff that
// changes nothing succeeds without producing a change record.
func (d *Document) PutDiff(path, diff string) error {
	segs, err := pathexpr.Parse(path)
	if err != nil {
		return err
	}
	o, err := d.resolveObject(segs)
	if err != nil {
		return err
	}
	if o.kind != api.KindText {
		return fmt.Errorf("path %q: %s is not text: %w",
			pathexpr.Format(segs), o.kind, api.ErrTypeMismatch)
	}

	oldText := d.materializeText(o)
	newText, err := applyUnifiedDiff(oldText, diff)
	if err != nil {
		return fmt.Errorf("path %q: %w", pathexpr.Format(segs), err)
	}

	oldR := []rune(oldText)
	newR := []rune(newText)
	p := 0
	for p < len(oldR) && p < len(newR) && oldR[p] == newR[p] {
		p++
	}
	oldEnd, newEnd := len(oldR), len(newR)
	for oldEnd > p && newEnd > p && oldR[oldEnd-1] == newR[newEnd-1] {
		oldEnd--
		newEnd--
	}
	if p == oldEnd && p == newEnd {
		return nil
	}

	b := d.builder()
	b.planSplice(o, o.visible(), p, oldEnd-p, string(newR[p:newEnd]))
	d.commit(b.ops)
	return nil
}

// applyUnifiedDiff applies a unified diff to text and returns the patched
// result. Lines are newline-separated; hunk headers carry 1-based old line
// numbers, and every context and deletion line is verified against the text,
// so a stale diff never half-applies.
func applyUnifiedDiff(text, diff string) (string, error) {
	oldLines := strings.Split(text, "\n")
	out := make([]string, 0, len(oldLines))
	idx := 0 // next unconsumed old line
	inHunk := false

	diffLines := strings.Split(diff, "\n")
	for i, line := range diffLines {
		switch {
		case line == "" && i == len(diffLines)-1:
			// the diff's own trailing newline
		case !inHunk && (strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ ")):
			// file headers
		case strings.HasPrefix(line, "@@"):
			from, err := hunkStart(line)
			if err != nil {
				return "", err
			}
			if from < idx || from > len(oldLines) {
				return "", fmt.Errorf("hunk %q outside text of %d lines: %w",
					line, len(oldLines), api.ErrRange)
			}
			out = append(out, oldLines[idx:from]...)
			idx = from
			inHunk = true
		case inHunk && strings.HasPrefix(line, "+"):
			out = append(out, line[1:])
		case inHunk && strings.HasPrefix(line, "-"):
			if idx >= len(oldLines) || oldLines[idx] != line[1:] {
				return "", hunkMismatch(line, idx)
			}
			idx++
		case inHunk && (strings.HasPrefix(line, " ") || line == ""):
			content := strings.TrimPrefix(line, " ")
			if idx >= len(oldLines) || oldLines[idx] != content {
				return "", hunkMismatch(line, idx)
			}
			out = append(out, content)
			idx++
		case strings.HasPrefix(line, `\`):
			// "\ No newline at end of file" — informational
		default:
			return "", fmt.Errorf("unexpected diff line %q: %w", line, api.ErrParse)
		}
	}
	if !inHunk {
		return "", fmt.Errorf("diff contains no hunks: %w", api.ErrParse)
	}
	out = append(out, oldLines[idx:]...)
	return strings.Join(out, "\n"), nil
}

func hunkMismatch(line string, idx int) error {
	return fmt.Errorf("diff line %q does not match text line %d: %w",
		line, idx+1, api.ErrRange)
}

// hunkStart parses "@@ -start[,len] +start[,len] @@" and returns the 0-based
// old line index the hunk applies at. A zero-length old range names the line
// the hunk inserts after, so its start needs no -1 adjustment.
func hunkStart(header string) (int, error) {
	malformed := func() error {
		return fmt.Errorf("malformed hunk header %q: %w", header, api.ErrParse)
	}
	fields := strings.Fields(header)
	if len(fields) < 3 || !strings.HasPrefix(fields[1], "-") {
		return 0, malformed()
	}
	spec := fields[1][1:]
	numStr, lenStr, hasLen := strings.Cut(spec, ",")
	start, err := strconv.Atoi(numStr)
	if err != nil || start < 0 {
		return 0, malformed()
	}
	oldLen := 1
	if hasLen {
		if oldLen, err = strconv.Atoi(lenStr); err != nil || oldLen < 0 {
			return 0, malformed()
		}
	}
	if oldLen == 0 {
		return start, nil
	}
	if start == 0 {
		return 0, malformed()
	}
	return start - 1, nil
}
