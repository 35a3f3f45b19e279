package convert

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/jpl-au/quill/internal/failure"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// browsers are searched in order when no executable is configured.
var browsers = []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "chrome"}

// PDFEngine prints the HTML rendering through headless Chrome.
type PDFEngine struct {
	HTML   *HTMLEngine
	Chrome string
}

func (e *PDFEngine) Format() Format { return PDF }
func (e *PDFEngine) Name() string   { return "chromedp" }

func (e *PDFEngine) browser() (string, error) {
	if e.Chrome != "" {
		return exec.LookPath(e.Chrome)
	}
	for _, b := range browsers {
		if p, err := exec.LookPath(b); err == nil {
			return p, nil
		}
	}
	return "", exec.ErrNotFound
}

func (e *PDFEngine) Convert(ctx context.Context, src Source, w io.Writer) error {
	bin, err := e.browser()
	if err != nil {
		return unavailable(PDF, e.Name(), "no Chrome or Chromium executable found").
			Suggest("install chromium or set convert.chrome").Wrap(err)
	}
	html, err := e.HTML.Render(src)
	if err != nil {
		return err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(bin),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()
	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var out []byte
	err = chromedp.Run(taskCtx,
		chromedp.Navigate("data:text/html;charset=utf-8;base64,"+base64.StdEncoding.EncodeToString(html)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			out, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27). // A4
				WithPaperHeight(11.69).
				WithMarginTop(0.75).
				WithMarginBottom(0.75).
				WithMarginLeft(0.75).
				WithMarginRight(0.75).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return failure.Engine(failure.CodeEngineFailed, "chrome pdf generation failed").
			With("doc", src.Doc).Wrap(err)
	}
	_, err = w.Write(out)
	return err
}

var pdfConfig = sync.OnceValue(func() *model.Configuration {
	api.DisableConfigDir()
	return model.NewDefaultConfiguration()
})

// Verify validates the PDF structure with pdfcpu and checks that its text
// layer can be read.
func (e *PDFEngine) Verify(path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := api.Validate(f, pdfConfig()); err != nil {
		return fmt.Errorf("pdf structure: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf text: %v", r)
		}
	}()
	r, err := pdflib.NewReader(f, info.Size())
	if err != nil {
		return fmt.Errorf("pdf text: %w", err)
	}
	if r.NumPage() == 0 {
		return fmt.Errorf("pdf has no pages")
	}
	if _, err := r.GetPlainText(); err != nil {
		return fmt.Errorf("pdf text: %w", err)
	}
	return nil
}
