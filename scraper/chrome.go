package scraper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Renderer loads a page in a headless browser and returns the rendered markup.
type Renderer interface {
	Render(ctx context.Context, target string, headers map[string]string) (string, error)
}

// idleGrace bounds how long rendering waits for network idle once the DOM is
// ready; pages with long-polling never go idle.
const idleGrace = 10 * time.Second

// ChromeRenderer renders with chromedp. Every call starts its own browser
// process and tears it down before returning.
type ChromeRenderer struct {
	chromeBin string
	userAgent string
	timeout   time.Duration
}

// NewChromeRenderer builds a renderer. An empty chromeBin is resolved from
// CHROME_BIN or the usual install locations.
func NewChromeRenderer(chromeBin, userAgent string, timeout time.Duration) *ChromeRenderer {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	return &ChromeRenderer{chromeBin: chromeBin, userAgent: userAgent, timeout: timeout}
}

func (r *ChromeRenderer) Render(ctx context.Context, target string, headers map[string]string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(r.userAgent),
	)
	if r.chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(r.chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()

	lc := newLifecycleWatch()
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok {
			lc.observe(e.Name)
		}
	})

	extra := network.Headers{}
	for k, v := range headers {
		if k == "User-Agent" {
			continue
		}
		extra[k] = v
	}

	var html string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(extra),
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(target),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return lc.wait(ctx, idleGrace)
		}),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp render %s: %w", target, err)
	}
	return html, nil
}

// lifecycleWatch tracks the lifecycle events of the document being loaded.
// Events before the navigation's "init" belong to the blank start page.
type lifecycleWatch struct {
	mu       sync.Mutex
	started  bool
	domReady chan struct{}
	idle     chan struct{}
	domOnce  sync.Once
	idleOnce sync.Once
}

func newLifecycleWatch() *lifecycleWatch {
	return &lifecycleWatch{domReady: make(chan struct{}), idle: make(chan struct{})}
}

func (w *lifecycleWatch) observe(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch name {
	case "init":
		w.started = true
	case "DOMContentLoaded":
		if w.started {
			w.domOnce.Do(func() { close(w.domReady) })
		}
	case "networkIdle":
		if w.started {
			w.idleOnce.Do(func() { close(w.idle) })
		}
	}
}

// wait blocks until DOMContentLoaded, then up to grace for network idle.
func (w *lifecycleWatch) wait(ctx context.Context, grace time.Duration) error {
	select {
	case <-w.domReady:
	case <-ctx.Done():
		return ctx.Err()
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-w.idle:
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
