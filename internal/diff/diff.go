// Package diff renders line-oriented differences between two snapshots of
// a document, or between a snapshot and the working copy.
//
// Output is not a strict unified diff: each line carries a two-character
// prefix ("- ", "+ " or "  ") and long unchanged runs are folded to a
// single "  ..." line so section edits stay readable in a terminal.
package diff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// keep is how many unchanged lines survive on each side of a fold.
const keep = 3

const (
	removed   = "- "
	added     = "+ "
	unchanged = "  "
	fold      = unchanged + "...\n"
)

const (
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiReset = "\033[0m"
)

// ErrInvalidRange reports a snapshot range that is not "N:M" with N, M >= 1.
var ErrInvalidRange = errors.New("invalid version range")

// Options names the snapshots to compare. Zero stands for the working copy.
type Options struct {
	Version1 int
	Version2 int
}

// Differ resolves a document and two snapshot numbers to a Result.
type Differ interface {
	Diff(ctx context.Context, doc string, opts Options) (Result, error)
}

// Result is a rendered comparison. Old and New label the two sides.
type Result struct {
	Old     string `json:"old"`
	New     string `json:"new"`
	Diff    string `json:"diff"`
	Changed bool   `json:"changed"`
}

// Run asks svc for the comparison and prints it to w.
func Run(ctx context.Context, w io.Writer, svc Differ, doc string, opts Options, colour bool) (Result, error) {
	r, err := svc.Diff(ctx, doc, opts)
	if err == nil {
		_, err = io.WriteString(w, r.Format(colour))
	}
	return r, err
}

// Compute compares two texts line by line after semantic cleanup.
func Compute(oldContent, newContent, oldLabel, newLabel string) Result {
	dmp := diffmatchpatch.New()
	hunks := dmp.DiffCleanupSemantic(dmp.DiffMain(oldContent, newContent, false))
	return Result{
		Old:     oldLabel,
		New:     newLabel,
		Diff:    render(hunks),
		Changed: oldContent != newContent,
	}
}

func render(hunks []diffmatchpatch.Diff) string {
	var b strings.Builder
	for _, h := range hunks {
		// A trailing newline would split into an empty last line.
		body := strings.TrimSuffix(h.Text, "\n")
		if body == "" {
			continue
		}
		lines := strings.Split(body, "\n")
		switch h.Type {
		case diffmatchpatch.DiffDelete:
			emit(&b, removed, lines)
		case diffmatchpatch.DiffInsert:
			emit(&b, added, lines)
		case diffmatchpatch.DiffEqual:
			if len(lines) <= 2*keep {
				emit(&b, unchanged, lines)
				continue
			}
			emit(&b, unchanged, lines[:keep])
			b.WriteString(fold)
			emit(&b, unchanged, lines[len(lines)-keep:])
		}
	}
	return b.String()
}

func emit(b *strings.Builder, prefix string, lines []string) {
	for _, l := range lines {
		b.WriteString(prefix)
		b.WriteString(l)
		b.WriteByte('\n')
	}
}

// Colourise paints removed lines red and added lines green. Blank lines
// are dropped.
func Colourise(d string) string {
	var b strings.Builder
	for line := range strings.SplitSeq(d, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, removed):
			line = ansiRed + line + ansiReset
		case strings.HasPrefix(line, added):
			line = ansiGreen + line + ansiReset
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Format prefixes the body with "--- old" and "+++ new" label lines.
func (r Result) Format(colour bool) string {
	body := r.Diff
	if colour {
		body = Colourise(body)
	}
	return "--- " + r.Old + "\n+++ " + r.New + "\n" + body
}

// ParseVersionRange splits "from:to" into two snapshot numbers.
func ParseVersionRange(s string) (from, to int, err error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok || strings.Contains(b, ":") {
		return 0, 0, fmt.Errorf("%w %q (expected v1:v2)", ErrInvalidRange, s)
	}
	if a == "" || b == "" {
		return 0, 0, fmt.Errorf("%w %q: both versions required", ErrInvalidRange, s)
	}
	if from, err = snapshotNumber(a, "start"); err != nil {
		return 0, 0, err
	}
	if to, err = snapshotNumber(b, "end"); err != nil {
		return 0, 0, err
	}
	return from, to, nil
}

func snapshotNumber(s, side string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s version: %w", ErrInvalidRange, side, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %s version must be >= 1", ErrInvalidRange, side)
	}
	return n, nil
}
