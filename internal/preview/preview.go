// Package preview renders a running project in headless Chrome.
package preview

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

const maxHTML = 50000

// Browser keeps one headless Chrome alive and opens a tab per request.
type Browser struct {
	Width   int64
	Height  int64
	Timeout time.Duration

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowser() *Browser {
	return &Browser{
		Width:   1280,
		Height:  800,
		Timeout: 60 * time.Second,
	}
}

// CheckURL accepts only absolute http(s) URLs.
func CheckURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url: %q", raw)
	}
	return nil
}

func (b *Browser) initBrowser() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(int(b.Width), int(b.Height)),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	return chromedp.Run(b.browserCtx)
}

func (b *Browser) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.mu.Lock()
	b.cleanup()
	b.mu.Unlock()
}

func (b *Browser) run(ctx context.Context, rawURL string, actions ...chromedp.Action) error {
	if err := CheckURL(rawURL); err != nil {
		return err
	}
	if err := b.initBrowser(); err != nil {
		return fmt.Errorf("failed to initialize browser: %v", err)
	}

	b.mu.Lock()
	parent := b.browserCtx
	b.mu.Unlock()

	tabCtx, cancelTab := chromedp.NewContext(parent)
	defer cancelTab()
	actionCtx, cancel := context.WithTimeout(tabCtx, b.Timeout)
	defer cancel()

	// Stop early when the caller gives up.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	all := append([]chromedp.Action{
		chromedp.EmulateViewport(b.Width, b.Height),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}, actions...)
	return chromedp.Run(actionCtx, all...)
}

// Capture returns a PNG screenshot of the page at rawURL.
func (b *Browser) Capture(ctx context.Context, rawURL string) ([]byte, error) {
	var buf []byte
	if err := b.run(ctx, rawURL, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// HTML returns the rendered document of the page at rawURL.
func (b *Browser) HTML(ctx context.Context, rawURL string) (string, error) {
	var html string
	err := b.run(ctx, rawURL, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("render failed: %w", err)
	}
	if len(html) > maxHTML {
		html = html[:maxHTML] + "\n... (truncated)"
	}
	return html, nil
}
