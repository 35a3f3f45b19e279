package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/jpl-au/quill/internal/failure"
)

// LaTeXEngine shells out to pandoc.
type LaTeXEngine struct {
	Pandoc   string
	Template string   // passed as --template
	Args     []string // extra pandoc arguments
}

func (LaTeXEngine) Format() Format { return LaTeX }
func (LaTeXEngine) Name() string   { return "pandoc" }

func (e LaTeXEngine) Convert(ctx context.Context, src Source, w io.Writer) error {
	name := e.Pandoc
	if name == "" {
		name = "pandoc"
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return unavailable(LaTeX, e.Name(), "pandoc not installed").
			Suggest("install pandoc or set convert.pandoc").Wrap(err)
	}

	args := []string{
		"-f", "markdown",
		"-t", "latex",
		"--standalone",
		"--metadata", "title=" + src.Title(),
	}
	if e.Template != "" {
		if _, err := os.Stat(e.Template); err != nil {
			return badTemplate(LaTeX, e.Template, err)
		}
		args = append(args, "--template="+e.Template)
	}
	args = append(args, e.Args...)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(src.Body)
	cmd.Stdout = w
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return failure.Engine(failure.CodeEngineFailed, "pandoc failed").
				With("stderr", strings.TrimSpace(stderr.String())).Wrap(err)
		}
		return failure.Engine(failure.CodeEngineFailed, "pandoc execution failed").Wrap(err)
	}
	return nil
}

// Verify checks the output is a complete LaTeX document.
func (LaTeXEngine) Verify(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !bytes.Contains(b, []byte(`\begin{document}`)) || !bytes.Contains(b, []byte(`\end{document}`)) {
		return fmt.Errorf("latex output is not a standalone document")
	}
	return nil
}
