package diff

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseVersionRange(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		v1      int
		v2      int
		wantErr bool
		errMsg  string
	}{
		{
			name:  "valid range",
			input: "1:3",
			v1:    1,
			v2:    3,
		},
		{
			name:  "same version",
			input: "2:2",
			v1:    2,
			v2:    2,
		},
		{
			name:  "large versions",
			input: "100:999",
			v1:    100,
			v2:    999,
		},
		{
			name:    "empty colon",
			input:   ":",
			wantErr: true,
			errMsg:  "both versions required",
		},
		{
			name:    "missing start",
			input:   ":5",
			wantErr: true,
			errMsg:  "both versions required",
		},
		{
			name:    "missing end",
			input:   "3:",
			wantErr: true,
			errMsg:  "both versions required",
		},
		{
			name:    "no colon",
			input:   "5",
			wantErr: true,
			errMsg:  "expected v1:v2",
		},
		{
			name:    "too many colons",
			input:   "1:2:3",
			wantErr: true,
			errMsg:  "expected v1:v2",
		},
		{
			name:    "non-numeric start",
			input:   "abc:5",
			wantErr: true,
			errMsg:  "invalid start version",
		},
		{
			name:    "non-numeric end",
			input:   "3:xyz",
			wantErr: true,
			errMsg:  "invalid end version",
		},
		{
			name:    "zero start",
			input:   "0:3",
			wantErr: true,
			errMsg:  "start version must be >= 1",
		},
		{
			name:    "negative start",
			input:   "-1:3",
			wantErr: true,
			errMsg:  "start version must be >= 1",
		},
		{
			name:    "zero end",
			input:   "1:0",
			wantErr: true,
			errMsg:  "end version must be >= 1",
		},
		{
			name:    "negative end",
			input:   "1:-5",
			wantErr: true,
			errMsg:  "end version must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v1, v2, err := ParseVersionRange(tt.input)

			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseVersionRange(%q) = (%d, %d, nil), want error containing %q",
						tt.input, v1, v2, tt.errMsg)
					return
				}
				if !errors.Is(err, ErrInvalidRange) {
					t.Errorf("ParseVersionRange(%q) error = %v, want ErrInvalidRange", tt.input, err)
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ParseVersionRange(%q) error = %q, want containing %q",
						tt.input, err.Error(), tt.errMsg)
				}
				return
			}

			if err != nil {
				t.Errorf("ParseVersionRange(%q) = error %v, want (%d, %d)",
					tt.input, err, tt.v1, tt.v2)
				return
			}

			if v1 != tt.v1 || v2 != tt.v2 {
				t.Errorf("ParseVersionRange(%q) = (%d, %d), want (%d, %d)",
					tt.input, v1, v2, tt.v1, tt.v2)
			}
		})
	}
}

func TestCompute(t *testing.T) {
	r := Compute("## Intro\nHello\n", "## Intro\nHi\n", "v1", "v2")
	if !r.Changed {
		t.Fatal("Compute reported no change")
	}
	if !strings.Contains(r.Diff, "- ") || !strings.Contains(r.Diff, "+ ") {
		t.Errorf("diff missing markers:\n%s", r.Diff)
	}

	same := Compute("x\n", "x\n", "v1", "current")
	if same.Changed {
		t.Error("identical content reported as changed")
	}
	if got := same.Format(false); !strings.HasPrefix(got, "--- v1\n+++ current\n") {
		t.Errorf("Format header = %q", got)
	}
}

func TestFormat_CollapsesLongContext(t *testing.T) {
	var lines []string
	for range 10 {
		lines = append(lines, "same")
	}
	old := strings.Join(lines, "\n") + "\nold\n"
	cur := strings.Join(lines, "\n") + "\nnew\n"
	r := Compute(old, cur, "a", "b")
	if !strings.Contains(r.Diff, "  ...\n") {
		t.Errorf("long equal run not collapsed:\n%s", r.Diff)
	}
	if c := Colourise(r.Diff); !strings.Contains(c, "\033[31m") {
		t.Errorf("Colourise did not mark deletions: %q", c)
	}
}

func TestFormat_FoldKeepsEdges(t *testing.T) {
	old := "a\nb\nc\nd\ne\nf\ng\nh\nold\n"
	cur := "a\nb\nc\nd\ne\nf\ng\nh\nnew\n"
	want := "  a\n  b\n  c\n  ...\n  f\n  g\n  h\n- old\n+ new\n"
	if got := Compute(old, cur, "v1", "v2").Diff; got != want {
		t.Errorf("Diff =\n%s\nwant\n%s", got, want)
	}
}

type fixedDiffer struct {
	r    Result
	err  error
	opts Options
}

func (f *fixedDiffer) Diff(_ context.Context, _ string, opts Options) (Result, error) {
	f.opts = opts
	return f.r, f.err
}

func TestRun(t *testing.T) {
	d := &fixedDiffer{r: Compute("x\n", "y\n", "v2", "current")}
	var buf bytes.Buffer
	r, err := Run(context.Background(), &buf, d, "notes", Options{Version1: 2}, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.opts.Version1 != 2 || d.opts.Version2 != 0 {
		t.Errorf("Differ got %+v", d.opts)
	}
	if !r.Changed || buf.String() != "--- v2\n+++ current\n- x\n+ y\n" {
		t.Errorf("Run wrote %q", buf.String())
	}

	buf.Reset()
	d.err = ErrInvalidRange
	if _, err := Run(context.Background(), &buf, d, "notes", Options{}, false); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Run error = %v, want ErrInvalidRange", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Run wrote output on error: %q", buf.String())
	}
}
