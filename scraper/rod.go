package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// requestIdleWindow is how long no request may be in flight for the page
// to count as network idle.
const requestIdleWindow = 500 * time.Millisecond

// RodRenderer renders with go-rod and the stealth evasions, for portals that
// serve an interstitial to plain headless Chrome.
type RodRenderer struct {
	chromeBin string
	userAgent string
	timeout   time.Duration
}

func NewRodRenderer(chromeBin, userAgent string, timeout time.Duration) *RodRenderer {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	return &RodRenderer{chromeBin: chromeBin, userAgent: userAgent, timeout: timeout}
}

func (r *RodRenderer) Render(ctx context.Context, target string, headers map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage")
	if r.chromeBin != "" {
		l = l.Bin(r.chromeBin)
	}
	u, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("rod: launch: %w", err)
	}
	defer l.Kill()

	browser := rod.New().ControlURL(u).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("rod: connect: %w", err)
	}
	defer browser.Close()

	pg, err := stealth.Page(browser)
	if err != nil {
		return "", fmt.Errorf("rod: create tab: %w", err)
	}
	defer pg.Close()
	pg = pg.Context(ctx)

	dict := make([]string, 0, len(headers)*2)
	for k, v := range headers {
		if k == "User-Agent" {
			continue
		}
		dict = append(dict, k, v)
	}
	if len(dict) > 0 {
		if _, err := pg.SetExtraHeaders(dict); err != nil {
			return "", fmt.Errorf("rod: set headers: %w", err)
		}
	}
	if err := pg.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      r.userAgent,
		AcceptLanguage: headers["Accept-Language"],
	}); err != nil {
		return "", fmt.Errorf("rod: set user agent: %w", err)
	}

	domReady := pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pg.Navigate(target); err != nil {
		return "", fmt.Errorf("rod: navigate %s: %w", target, err)
	}
	domReady()
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("rod: wait dom: %w", err)
	}

	// Same readiness as ChromeRenderer: network idle, waited for at most idleGrace.
	idle := pg.Timeout(idleGrace)
	idle.WaitRequestIdle(requestIdleWindow, nil, nil, nil)()
	idle.CancelTimeout()

	html, err := pg.HTML()
	if err != nil {
		return "", fmt.Errorf("rod: read html: %w", err)
	}
	return html, nil
}
