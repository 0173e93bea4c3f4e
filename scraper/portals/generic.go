package portals

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"leilao-insights/models"
	"leilao-insights/utils"
)

var (
	cityStateRegexp    = regexp.MustCompile(`([\p{L} .'-]{2,})/([A-Z]{2})\b`)
	addressLineRegexp  = regexp.MustCompile(`([^,]{3,}),\s*([^,]{2,}),\s*([A-Z]{2})\b`)
	mainImageClassHint = regexp.MustCompile(`(?i)principal|main`)
)

// Generic extracts best-effort attributes from any listing page. It is the
// registry's fallback and accepts every URL.
type Generic struct {
	g guard
}

func NewGeneric(logger *utils.Logger) *Generic {
	return &Generic{g: guard{portal: "generic", logger: logger}}
}

func (g *Generic) Name() string { return "generic" }

func (g *Generic) CanHandle(*url.URL) bool { return true }

func (g *Generic) Extract(doc *goquery.Document, u *url.URL) models.PropertyRecord {
	var rec models.PropertyRecord

	g.g.field("title", func() {
		rec.Title = firstText(doc, "h1")
		if rec.Title == "" {
			rec.Title = metaContent(doc, "og:title")
		}
		if rec.Title == "" {
			rec.Title = firstText(doc, "title")
		}
	})

	g.g.field("minBid", func() {
		textNodes(doc, "div, span, p", func(t string) bool {
			if strings.Contains(t, "R$") {
				rec.MinimumBid = ParseCurrency(t)
			}
			return rec.MinimumBid == 0
		})
	})

	g.g.field("images", func() {
		refs := []string{metaContent(doc, "og:image")}
		doc.Find("img[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			class, _ := s.Attr("class")
			if mainImageClassHint.MatchString(class) {
				refs = append(refs, imageRefs(s)...)
				return false
			}
			return true
		})
		rec.Images = ResolveURLs(u, refs)
	})

	g.g.field("auctionDate", func() {
		textNodes(doc, "div, span, p", func(t string) bool {
			rec.AuctionDate = ParseAuctionDate(t)
			return rec.AuctionDate == ""
		})
	})

	g.g.field("description", func() {
		rec.Description = metaContent(doc, "og:description")
		if rec.Description == "" {
			rec.Description = metaContent(doc, "description")
		}
	})

	g.g.field("location", func() {
		block := firstText(doc, "div[class*=endereco]", "div[class*=address]", "span[class*=endereco]", "span[class*=address]")
		if street, city, state, ok := SplitAddress(block); ok {
			rec.Address, rec.City, rec.State = street, city, state
		} else {
			rec.Address = block
		}
		if rec.City != "" && rec.State != "" {
			return
		}
		textNodes(doc, "div, span, p", func(t string) bool {
			if m := addressLineRegexp.FindStringSubmatch(t); m != nil && IsState(m[3]) {
				if rec.Address == "" {
					rec.Address = strings.TrimSpace(m[1])
				}
				rec.City, rec.State = strings.TrimSpace(m[2]), m[3]
				return false
			}
			if m := cityStateRegexp.FindStringSubmatch(t); m != nil && IsState(m[2]) {
				rec.City, rec.State = strings.TrimSpace(m[1]), m[2]
				return false
			}
			return true
		})
	})

	g.g.field("propertyType", func() {
		rec.PropertyType = InferPropertyType(rec.Title)
	})

	return rec
}
