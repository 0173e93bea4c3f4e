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
	megaTitleSuffix   = regexp.MustCompile(`\s*\|\s*Mega Leil[õo]es.*$`)
	canonicalCityPath = regexp.MustCompile(`/([a-z]{2})/([^/]+)/`)
	roundLabel        = regexp.MustCompile(`(?i)\d\s*[ºo°]\s*leil[aã]o`)
)

// Mega extracts listings from megaleiloes.com.br.
type Mega struct {
	hostMatcher
	g guard
}

func NewMega(logger *utils.Logger) *Mega {
	return &Mega{hostMatcher: hostMatcher{"megaleiloes.com.br"}, g: guard{portal: "mega", logger: logger}}
}

func (m *Mega) Name() string { return "mega" }

func (m *Mega) Extract(doc *goquery.Document, u *url.URL) models.PropertyRecord {
	var rec models.PropertyRecord

	m.g.field("title", func() {
		rec.Title = firstText(doc, "h1")
		if rec.Title == "" {
			rec.Title = metaContent(doc, "og:title")
		}
		if rec.Title == "" {
			rec.Title = firstText(doc, "title")
		}
		rec.Title = strings.TrimSpace(megaTitleSuffix.ReplaceAllString(rec.Title, ""))
	})

	m.g.field("minBid", func() {
		for _, sel := range []string{"div.valor-minimo", "div.valor", "div.price", "[class*=price]", "[class*=valor]"} {
			doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				text := s.Text()
				if strings.Contains(text, "R$") {
					rec.MinimumBid = ParseCurrency(text)
				}
				return rec.MinimumBid == 0
			})
			if rec.MinimumBid > 0 {
				return
			}
		}
	})

	m.g.field("auctionHistory", func() {
		rec.AuctionHistory = roundsFromText(doc)
		if rec.MinimumBid == 0 && len(rec.AuctionHistory) > 0 {
			rec.MinimumBid = rec.AuctionHistory[len(rec.AuctionHistory)-1].Value
		}
	})

	m.g.field("evaluatedValue", func() {
		textNodes(doc, "div, span, p, li", func(t string) bool {
			if strings.Contains(FoldAccents(strings.ToLower(t)), "avaliacao") && strings.Contains(t, "R$") {
				rec.EvaluatedValue = ParseCurrency(t)
			}
			return rec.EvaluatedValue == 0
		})
	})

	m.g.field("propertyType", func() {
		// Property-type nodes only; their text must name a known type.
		if t := InferPropertyType(firstText(doc, "div.type", "div.tipo", "div.tipo-imovel", ".property-type")); t != "" {
			rec.PropertyType = t
			return
		}
		textNodes(doc, "div, span, p, li", func(t string) bool {
			if i := strings.Index(t, "Tipo:"); i >= 0 {
				rec.PropertyType = InferPropertyType(t[i+len("Tipo:"):])
			}
			return rec.PropertyType == ""
		})
		if rec.PropertyType == "" {
			rec.PropertyType = InferPropertyType(rec.Title)
		}
	})

	m.g.field("auctionDate", func() {
		textNodes(doc, "div, span, p, li", func(t string) bool {
			lower := strings.ToLower(t)
			if strings.Contains(lower, "leilão") || strings.Contains(lower, "data") {
				rec.AuctionDate = ParseAuctionDate(t)
			}
			return rec.AuctionDate == ""
		})
		if rec.AuctionDate == "" && len(rec.AuctionHistory) > 0 {
			rec.AuctionDate = rec.AuctionHistory[0].Date
		}
	})

	m.g.field("location", func() {
		block := firstText(doc, "div.endereco", "div.address", "div.localizacao", "div.property-address")
		if street, city, state, ok := SplitAddress(block); ok {
			rec.Address, rec.City, rec.State = street, TitleCase(city), state
		} else {
			rec.Address = block
		}

		if rec.City == "" || rec.State == "" {
			parts := strings.Split(rec.Title, " - ")
			for i := len(parts) - 1; i >= 0; i-- {
				p := strings.TrimSpace(parts[i])
				if len(p) == 2 && IsState(p) {
					if rec.State == "" {
						rec.State = strings.ToUpper(p)
					}
					if rec.City == "" && i > 0 {
						rec.City = TitleCase(strings.TrimSpace(parts[i-1]))
					}
					break
				}
			}
		}

		if rec.City == "" || rec.State == "" {
			canonical, _ := doc.Find(`link[rel="canonical"]`).Attr("href")
			if canonical == "" {
				canonical = u.Path + "/"
			}
			if mm := canonicalCityPath.FindStringSubmatch(canonical); mm != nil && IsState(mm[1]) {
				if rec.State == "" {
					rec.State = strings.ToUpper(mm[1])
				}
				if rec.City == "" {
					rec.City = TitleCase(strings.ReplaceAll(mm[2], "-", " "))
				}
			}
		}
	})

	m.g.field("images", func() {
		refs := []string{metaContent(doc, "og:image")}
		refs = append(refs, imageRefs(doc.Find("[class*=gallery] img, [class*=carousel] img, [class*=foto] img"))...)
		rec.Images = ResolveURLs(u, refs)
	})

	m.g.field("documents", func() {
		refs := attrs(doc.Find("a[href$='.pdf'], a[href*='edital'], a[href*='matricula'], [class*=document] a[href]"), "href")
		rec.Documents = ResolveURLs(u, refs)
	})

	m.g.field("description", func() {
		rec.Description = describe(doc.Find("#descricao, div.description, div.descricao, [class*=description]"), u.String())
	})

	m.g.field("auctionType", func() {
		lower := FoldAccents(strings.ToLower(firstText(doc, "[class*=modalidade]", "[class*=auction-type]")))
		switch {
		case strings.Contains(lower, "extrajudicial"):
			rec.AuctionType = "Leilão Extrajudicial"
		case strings.Contains(lower, "judicial"):
			rec.AuctionType = "Leilão Judicial"
		}
	})

	return rec
}

// roundsFromText collects "1º Leilão ... dd/mm/yyyy ... R$ x" rounds from
// small text blocks, in page order.
func roundsFromText(doc *goquery.Document) []models.AuctionEvent {
	var out []models.AuctionEvent
	seen := make(map[models.AuctionEvent]struct{})
	textNodes(doc, "div, li, p", func(t string) bool {
		if !roundLabel.MatchString(t) || !strings.Contains(t, "R$") || len(roundLabel.FindAllString(t, -1)) > 1 {
			return true
		}
		ev := models.AuctionEvent{Date: ParseAuctionDate(t), Value: ParseCurrency(t)}
		if ev.Value == 0 {
			return true
		}
		if _, dup := seen[ev]; !dup {
			seen[ev] = struct{}{}
			out = append(out, ev)
		}
		return true
	})
	return out
}
