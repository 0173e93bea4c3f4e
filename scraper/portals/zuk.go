package portals

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"leilao-insights/models"
	"leilao-insights/utils"
)

// Zuk extracts listings from portalzuk.com.br. Most attributes come from the
// analytics dataLayer the portal embeds in every listing page.
type Zuk struct {
	hostMatcher
	g guard
}

func NewZuk(logger *utils.Logger) *Zuk {
	return &Zuk{hostMatcher: hostMatcher{"portalzuk.com.br"}, g: guard{portal: "zuk", logger: logger}}
}

func (z *Zuk) Name() string { return "zuk" }

// dataLayerValue reads 'key':'value' pairs from inline dataLayer scripts.
func dataLayerValue(doc *goquery.Document, key string) string {
	re := regexp.MustCompile(fmt.Sprintf(`['"]%s['"]\s*:\s*['"]([^'"]*)['"]`, regexp.QuoteMeta(key)))
	var found string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		body := s.Text()
		if !strings.Contains(body, "dataLayer") {
			return true
		}
		if m := re.FindStringSubmatch(body); m != nil {
			found = strings.TrimSpace(m[1])
			return false
		}
		return true
	})
	return found
}

type labeledValue struct {
	label string
	value string
}

// featuredItems returns the highlighted attributes in page order, labels
// folded to lowercase ASCII.
func featuredItems(doc *goquery.Document) []labeledValue {
	var items []labeledValue
	doc.Find("div.property-featured-item").Each(func(_ int, s *goquery.Selection) {
		label := FoldAccents(strings.ToLower(CleanText(s.Find("span.property-featured-item-label").Text())))
		value := CleanText(s.Find("span.property-featured-item-value").Text())
		if label != "" && value != "" {
			items = append(items, labeledValue{label, value})
		}
	})
	return items
}

func lookupLabel(items []labeledValue, fragments ...string) string {
	for _, f := range fragments {
		for _, it := range items {
			if strings.Contains(it.label, f) {
				return it.value
			}
		}
	}
	return ""
}

func (z *Zuk) Extract(doc *goquery.Document, u *url.URL) models.PropertyRecord {
	var rec models.PropertyRecord
	items := featuredItems(doc)

	z.g.field("title", func() {
		rec.Title = metaContent(doc, "og:title")
		if rec.Title == "" {
			rec.Title = firstText(doc, "h1.property-title", "h1", "title")
		}
	})

	z.g.field("auctionHistory", func() {
		doc.Find("ul.card-property-prices li.card-property-price").Each(func(_ int, li *goquery.Selection) {
			value := ParseCurrency(li.Find("span.card-property-price-value").Text())
			date := ParseAuctionDate(CleanText(li.Find("span.card-property-price-data").Text()))
			if value > 0 || date != "" {
				rec.AuctionHistory = append(rec.AuctionHistory, models.AuctionEvent{Date: date, Value: value})
			}
		})
	})

	z.g.field("minBid", func() {
		rec.MinimumBid = ParseCurrency(dataLayerValue(doc, "valorMinimo"))
		if rec.MinimumBid == 0 {
			for _, ev := range rec.AuctionHistory {
				if ev.Value > 0 {
					rec.MinimumBid = ev.Value
					break
				}
			}
		}
	})

	z.g.field("evaluatedValue", func() {
		rec.EvaluatedValue = ParseCurrency(lookupLabel(items, "avaliacao", "avaliado"))
	})

	z.g.field("auctionDate", func() {
		rec.AuctionDate = ParseAuctionDate(dataLayerValue(doc, "leilaoData"))
		if rec.AuctionDate == "" {
			block := doc.Find("main.imovel-main div.property").First()
			rec.AuctionDate = ParseAuctionDate(CleanText(block.Text()))
		}
		if rec.AuctionDate == "" && len(rec.AuctionHistory) > 0 {
			rec.AuctionDate = rec.AuctionHistory[0].Date
		}
	})

	z.g.field("location", func() {
		rec.State = strings.ToUpper(dataLayerValue(doc, "uf"))
		rec.City = dataLayerValue(doc, "cidade")
		bairro := dataLayerValue(doc, "bairro")

		full := firstText(doc, "div.property-address", "p.property-address", "div.card-property-address")
		if street, city, state, ok := SplitAddress(full); ok {
			rec.Address = street
			if rec.City == "" {
				rec.City = city
			}
			if rec.State == "" {
				rec.State = state
			}
		} else if full != "" {
			rec.Address = full
		}
		if rec.Address == "" {
			rec.Address = bairro
		}
		if !IsState(rec.State) {
			rec.State = ""
		}
	})

	z.g.field("propertyType", func() {
		rec.PropertyType = lookupLabel(items, "tipo de imovel", "tipo do imovel", "categoria")
		if rec.PropertyType == "" {
			rec.PropertyType = InferPropertyType(rec.Title)
		}
	})

	z.g.field("images", func() {
		refs := []string{metaContent(doc, "og:image")}
		refs = append(refs, imageRefs(doc.Find("div.property-gallery img, div.gallery img, [class*=gallery] img"))...)
		rec.Images = ResolveURLs(u, refs)
	})

	z.g.field("documents", func() {
		refs := attrs(doc.Find("div.property-documents a[href], div.documents a[href], a.glossary-link[href], a[href$='.pdf']"), "href")
		rec.Documents = ResolveURLs(u, refs)
	})

	z.g.field("description", func() {
		rec.Description = describe(doc.Find("div.property-info-text.div-text-observacoes, div.property-description, div.property-info-text"), u.String())
	})

	z.g.field("auctionType", func() {
		if kind := lookupLabel(items, "modalidade", "tipo de leilao"); kind != "" {
			rec.AuctionType = "Leilão " + kind
		}
	})

	return rec
}
