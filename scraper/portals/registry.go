package portals

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"leilao-insights/models"
	"leilao-insights/utils"
)

// Extractor reads a PropertyRecord from one portal's listing markup. It never
// performs I/O.
type Extractor interface {
	Name() string
	CanHandle(u *url.URL) bool
	Extract(doc *goquery.Document, u *url.URL) models.PropertyRecord
}

// Registry dispatches listing markup to the matching portal extractor.
type Registry struct {
	extractors []Extractor
	logger     *utils.Logger
}

// NewRegistry returns the registry with every known portal, generic last.
func NewRegistry(logger *utils.Logger) *Registry {
	logger = logger.With("portals")
	return &Registry{
		extractors: []Extractor{
			NewZuk(logger),
			NewMega(logger),
			NewCaixa(logger),
			NewSodre(logger),
			NewGeneric(logger),
		},
		logger: logger,
	}
}

// Select returns the first extractor that handles u. The generic extractor
// accepts everything, so Select never returns nil on a default registry.
func (r *Registry) Select(u *url.URL) Extractor {
	for _, e := range r.extractors {
		if e.CanHandle(u) {
			return e
		}
	}
	return nil
}

// Portal names the extractor Select would pick for u.
func (r *Registry) Portal(u *url.URL) string {
	if e := r.Select(u); e != nil {
		return e.Name()
	}
	return ""
}

// Names lists the registered portals in dispatch order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.extractors))
	for i, e := range r.extractors {
		names[i] = e.Name()
	}
	return names
}

// Extract parses html once and runs the matching extractor. It returns the
// record and the name of the portal that produced it.
func (r *Registry) Extract(html string, u *url.URL) (models.PropertyRecord, string, error) {
	e := r.Select(u)
	if e == nil {
		return models.PropertyRecord{}, "", fmt.Errorf("portals: no extractor for %s", u)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.PropertyRecord{}, e.Name(), fmt.Errorf("portals: parse %s: %w", u, err)
	}
	rec := e.Extract(doc, u)
	if rec.AuctionType == "" {
		rec.AuctionType = models.DefaultAuctionType
	}
	r.logger.Debug("%s extracted %s (title=%q minBid=%.2f type=%q)",
		e.Name(), u, rec.Title, rec.MinimumBid, rec.PropertyType)
	return rec, e.Name(), nil
}

// hostMatcher handles the listed hosts exactly, with or without "www.".
type hostMatcher []string

func (h hostMatcher) CanHandle(u *url.URL) bool {
	host := strings.TrimPrefix(utils.HostOf(u), "www.")
	for _, want := range h {
		if host == want {
			return true
		}
	}
	return false
}

// guard runs one field's extraction, turning a panic into a logged
// ExtractionError so the rest of the record survives.
type guard struct {
	portal string
	logger *utils.Logger
}

func (g guard) field(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			err := &models.ExtractionError{Portal: g.portal, Field: name, Cause: rec}
			g.logger.Warn("%v", err)
		}
	}()
	fn()
}
