package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"leilao-insights/models"
	"leilao-insights/storage"
	"leilao-insights/utils"
)

// Fetcher performs the static step of acquisition.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (string, error)
}

// Acquisition is the usable markup of a listing and how it was obtained.
type Acquisition struct {
	HTML string
	Via  models.FetchVia
}

// Acquirer obtains listing markup: a static fetch first, then a headless
// render when the static result is unusable.
type Acquirer struct {
	fetcher   Fetcher
	renderer  Renderer
	headers   map[string]string
	minBytes  int
	snapshots storage.SnapshotSaver
	logger    *utils.Logger
}

// AcquirerConfig holds the Acquirer's collaborators. Snapshots may be nil.
type AcquirerConfig struct {
	Fetcher      Fetcher
	Renderer     Renderer
	Headers      map[string]string
	MinHTMLBytes int
	Snapshots    storage.SnapshotSaver
	Logger       *utils.Logger
}

func NewAcquirer(c AcquirerConfig) *Acquirer {
	if c.MinHTMLBytes <= 0 {
		c.MinHTMLBytes = 1000
	}
	return &Acquirer{
		fetcher:   c.Fetcher,
		renderer:  c.Renderer,
		headers:   c.Headers,
		minBytes:  c.MinHTMLBytes,
		snapshots: c.Snapshots,
		logger:    c.Logger.With("acquire"),
	}
}

// Usable reports whether html looks like a rendered page rather than an
// error body or bot interstitial.
func Usable(html string, minBytes int) bool {
	return len(html) > minBytes && strings.Contains(strings.ToLower(html), "<html")
}

// Acquire returns usable markup for target or an error wrapping
// models.ErrAcquisition.
func (a *Acquirer) Acquire(ctx context.Context, target string) (Acquisition, error) {
	html, err := a.fetcher.Fetch(ctx, target)
	switch {
	case err != nil:
		a.logger.Warn("static fetch failed for %s: %v", target, err)
	default:
		a.snapshot(ctx, target, models.ViaStatic, html)
		if Usable(html, a.minBytes) {
			a.logger.Debug("static fetch ok for %s (%d bytes)", target, len(html))
			return Acquisition{HTML: html, Via: models.ViaStatic}, nil
		}
		a.logger.Info("static markup unusable for %s (%d bytes), rendering", target, len(html))
	}

	if a.renderer == nil {
		return Acquisition{}, fmt.Errorf("%w: %s: static fetch unusable and no renderer", models.ErrAcquisition, target)
	}

	rendered, rerr := a.renderer.Render(ctx, target, a.headers)
	if rerr != nil {
		return Acquisition{}, fmt.Errorf("%w: %s: render: %v", models.ErrAcquisition, target, rerr)
	}
	a.snapshot(ctx, target, models.ViaRendered, rendered)
	if !Usable(rendered, a.minBytes) {
		return Acquisition{}, fmt.Errorf("%w: %s: rendered markup unusable (%d bytes)", models.ErrAcquisition, target, len(rendered))
	}
	a.logger.Debug("rendered %s (%d bytes)", target, len(rendered))
	return Acquisition{HTML: rendered, Via: models.ViaRendered}, nil
}

func (a *Acquirer) snapshot(ctx context.Context, target string, via models.FetchVia, html string) {
	if a.snapshots == nil {
		return
	}
	host := ""
	if u, err := url.Parse(target); err == nil {
		host = utils.HostOf(u)
	}
	err := a.snapshots.SaveSnapshot(ctx, models.Snapshot{
		URL:        target,
		Host:       host,
		Origin:     via,
		HTML:       html,
		CapturedAt: time.Now().UTC(),
	})
	if err != nil {
		a.logger.Warn("snapshot save failed for %s: %v", target, err)
	}
}
