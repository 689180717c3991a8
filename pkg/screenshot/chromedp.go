// Package screenshot captures page renderings with a headless browser for
// vision-mode classification.
package screenshot

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// Capturer renders a URL and returns a JPEG screenshot.
type Capturer interface {
	Capture(ctx context.Context, url string) ([]byte, error)
	Close()
}

// Config controls the headless capture behavior.
type Config struct {
	Timeout time.Duration
	Width   int64
	Height  int64
	Quality int
}

// ChromeCapturer implements Capturer using chromedp and headless Chrome. The
// browser allocator is shared across captures; each capture runs in its own
// tab with a bounded timeout.
type ChromeCapturer struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChrome creates a headless screenshot capturer.
func NewChrome(cfg Config) *ChromeCapturer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Width <= 0 {
		cfg.Width = 1280
	}
	if cfg.Height <= 0 {
		cfg.Height = 800
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 80
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromeCapturer{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// Close cancels the allocator context.
func (c *ChromeCapturer) Close() {
	c.allocCancel()
}

// Capture navigates to the URL, waits for the page to settle, and returns a
// JPEG of the viewport.
func (c *ChromeCapturer) Capture(ctx context.Context, url string) ([]byte, error) {
	taskCtx, taskCancel := chromedp.NewContext(c.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, c.cfg.Timeout)
	defer cancel()

	// Honor caller cancellation too.
	go func() {
		select {
		case <-ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	var buf []byte
	actions := []chromedp.Action{
		emulation.SetDeviceMetricsOverride(c.cfg.Width, c.cfg.Height, 1, false),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// Give dynamic calendars a moment to render.
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&buf, c.cfg.Quality),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, eris.Wrapf(err, "screenshot: capture %s", url)
	}
	return buf, nil
}
