package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"communitydms/api/internal/util"
)

// Printer turns a complete HTML page into PDF bytes.
type Printer interface {
	Print(ctx context.Context, html string) ([]byte, error)
}

// ChromePDFRenderer prints through a headless Chrome started per call.
type ChromePDFRenderer struct {
	Timeout  time.Duration
	ExecPath string
}

var browserCandidates = []string{"chromium-browser", "chromium", "google-chrome", "headless-shell"}

// NewChromePDFRenderer locates a browser binary up front so a missing
// dependency is reported at startup rather than on the first request.
func NewChromePDFRenderer(timeout time.Duration) (*ChromePDFRenderer, error) {
	for _, name := range browserCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return &ChromePDFRenderer{Timeout: timeout, ExecPath: path}, nil
		}
	}
	return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
}

// percentEncodeForDataURL encodes a string for use in a data URL
// Unlike url.QueryEscape, this properly encodes spaces as %20 for data URLs
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				fmt.Fprintf(&result, "%%%02X", b)
			}
		}
	}
	return result.String()
}

func (c *ChromePDFRenderer) Print(ctx context.Context, html string) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	var pdfData []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.5). // Letter size
				WithPaperHeight(11.0).
				WithMarginTop(0.75).
				WithMarginBottom(0.75).
				WithMarginLeft(0.75).
				WithMarginRight(0.75).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFUnavailable, err)
	}
	return pdfData, nil
}

// pdfFilename creates a safe download name from a title
func pdfFilename(title string, fillable bool) string {
	name := util.Slugify(title)
	if len(name) > 50 {
		name = strings.TrimRight(name[:50], "-")
	}
	if fillable {
		name += "-fillable"
	}
	return name + ".pdf"
}
