package portals

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"leilao-insights/models"
	"leilao-insights/utils"
)

// Sodre extracts listings from sodresantoro.com.br.
type Sodre struct {
	hostMatcher
	g guard
}

func NewSodre(logger *utils.Logger) *Sodre {
	return &Sodre{hostMatcher: hostMatcher{"sodresantoro.com.br"}, g: guard{portal: "sodre", logger: logger}}
}

func (s *Sodre) Name() string { return "sodre" }

func (s *Sodre) Extract(doc *goquery.Document, u *url.URL) models.PropertyRecord {
	var rec models.PropertyRecord

	s.g.field("title", func() {
		rec.Title = firstText(doc, "h1.product-title", "h1")
		if rec.Title == "" {
			rec.Title = metaContent(doc, "og:title")
		}
	})

	s.g.field("minBid", func() {
		rec.MinimumBid = ParseCurrency(firstText(doc, "div.product-price", "[class*=product-price]"))
	})

	s.g.field("auctionHistory", func() {
		rec.AuctionHistory = roundsFromText(doc)
		if rec.MinimumBid == 0 && len(rec.AuctionHistory) > 0 {
			rec.MinimumBid = rec.AuctionHistory[len(rec.AuctionHistory)-1].Value
		}
	})

	s.g.field("auctionDate", func() {
		rec.AuctionDate = ParseAuctionDate(firstText(doc, "div.auction-date", "[class*=auction-date]"))
	})

	s.g.field("location", func() {
		full := firstText(doc, "div.product-address", "[class*=address]", "[class*=localizacao]")
		if street, city, state, ok := SplitAddress(full); ok {
			rec.Address, rec.City, rec.State = street, TitleCase(city), state
		} else {
			rec.Address = full
		}
	})

	s.g.field("propertyType", func() {
		rec.PropertyType = InferPropertyType(firstText(doc, "[class*=product-category]", "[class*=categoria]"))
		if rec.PropertyType == "" {
			rec.PropertyType = InferPropertyType(rec.Title)
		}
	})

	s.g.field("images", func() {
		refs := imageRefs(doc.Find("div.product-gallery img"))
		if len(refs) == 0 {
			refs = []string{metaContent(doc, "og:image")}
		}
		rec.Images = ResolveURLs(u, refs)
	})

	s.g.field("documents", func() {
		rec.Documents = ResolveURLs(u, attrs(doc.Find("a[href$='.pdf'], a[href*='edital']"), "href"))
	})

	s.g.field("description", func() {
		rec.Description = describe(doc.Find("div.product-description, [class*=description]"), u.String())
	})

	s.g.field("auctionType", func() {
		lower := FoldAccents(strings.ToLower(firstText(doc, "[class*=auction-type]", "[class*=modalidade]")))
		switch {
		case strings.Contains(lower, "extrajudicial"):
			rec.AuctionType = "Leilão Extrajudicial"
		case strings.Contains(lower, "judicial"):
			rec.AuctionType = "Leilão Judicial"
		}
	})

	return rec
}
