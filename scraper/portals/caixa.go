package portals

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"leilao-insights/models"
	"leilao-insights/utils"
)

const caixaBase = "https://venda-imoveis.caixa.gov.br/"

var (
	caixaMinBid    = regexp.MustCompile(`(?i)valor m[íi]nimo de venda(?:\s*\d\s*[ºo°]\s*leil[aã]o)?\s*:?\s*(R\$\s*[\d.,]+)`)
	caixaEvaluated = regexp.MustCompile(`(?i)valor de avalia[çc][ãa]o\s*:?\s*(R\$\s*[\d.,]+)`)
	caixaComarca   = regexp.MustCompile(`(?i)comarca\s*:?\s*([^:]+?)\s*[-/]\s*([A-Za-z]{2})\b`)
	caixaAddress   = regexp.MustCompile(`(?i)endere[çc]o\s*:\s*(.+)`)
	caixaType      = regexp.MustCompile(`(?i)tipo de im[óo]vel\s*:\s*([^:]+?)(?:\s{2,}|\s+[A-ZÀ-Ú][a-zà-ú]+\s*:|$)`)
)

// Caixa extracts listings from the Caixa Econômica Federal sale portal.
// Pages are plain server-rendered HTML with labels inlined in paragraphs.
type Caixa struct {
	hostMatcher
	g guard
}

func NewCaixa(logger *utils.Logger) *Caixa {
	return &Caixa{hostMatcher: hostMatcher{"venda-imoveis.caixa.gov.br"}, g: guard{portal: "caixa", logger: logger}}
}

func (c *Caixa) Name() string { return "caixa" }

func (c *Caixa) Extract(doc *goquery.Document, u *url.URL) models.PropertyRecord {
	var rec models.PropertyRecord
	base, _ := url.Parse(caixaBase)
	body := CleanText(doc.Find("body").Text())

	c.g.field("title", func() {
		rec.Title = firstText(doc, "h5", "h1", "title")
	})

	c.g.field("minBid", func() {
		if m := caixaMinBid.FindStringSubmatch(body); m != nil {
			rec.MinimumBid = ParseCurrency(m[1])
		}
	})

	c.g.field("evaluatedValue", func() {
		if m := caixaEvaluated.FindStringSubmatch(body); m != nil {
			rec.EvaluatedValue = ParseCurrency(m[1])
		}
	})

	c.g.field("auctionHistory", func() {
		rec.AuctionHistory = roundsFromText(doc)
	})

	c.g.field("auctionDate", func() {
		textNodes(doc, "p, span, div, li", func(t string) bool {
			lower := strings.ToLower(t)
			if strings.Contains(lower, "leilão") || strings.Contains(lower, "leilao") || strings.Contains(lower, "data") {
				rec.AuctionDate = ParseAuctionDate(t)
			}
			return rec.AuctionDate == ""
		})
	})

	c.g.field("address", func() {
		doc.Find("p, span, div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if s.Children().Length() > 3 {
				return true
			}
			if m := caixaAddress.FindStringSubmatch(CleanText(s.Text())); m != nil {
				rec.Address = strings.TrimSpace(m[1])
			}
			return rec.Address == ""
		})
		if street, city, state, ok := SplitAddress(rec.Address); ok && street != "" {
			rec.Address, rec.City, rec.State = street, TitleCase(city), state
		}
	})

	c.g.field("location", func() {
		if m := caixaComarca.FindStringSubmatch(body); m != nil && IsState(m[2]) {
			if rec.City == "" {
				rec.City = TitleCase(m[1])
			}
			if rec.State == "" {
				rec.State = strings.ToUpper(m[2])
			}
		}
		if rec.City != "" && rec.State != "" {
			return
		}
		crumbs := doc.Find(".breadcrumb li, ol.breadcrumb a, .breadcrumb a")
		crumbs.Each(func(_ int, s *goquery.Selection) {
			t := CleanText(s.Text())
			if rec.State == "" && len(t) == 2 && IsState(t) {
				rec.State = strings.ToUpper(t)
				return
			}
			if _, city, state, ok := SplitAddress(t); ok && rec.City == "" {
				rec.City, rec.State = TitleCase(city), state
			}
		})
	})

	c.g.field("propertyType", func() {
		if m := caixaType.FindStringSubmatch(body); m != nil {
			rec.PropertyType = InferPropertyType(m[1])
			if rec.PropertyType == "" {
				rec.PropertyType = TitleCase(m[1])
			}
		}
		if rec.PropertyType == "" {
			rec.PropertyType = InferPropertyType(rec.Title)
		}
	})

	c.g.field("images", func() {
		refs := imageRefs(doc.Find("img.preview, img#preview, img.img-imovel, img.foto, .thumbnails img, #galeria img"))
		rec.Images = ResolveURLs(base, refs)
	})

	c.g.field("documents", func() {
		var refs []string
		doc.Find("a[href], a[onclick]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			if strings.HasSuffix(strings.ToLower(href), ".pdf") {
				refs = append(refs, href)
				return
			}
			// Links to notices are javascript:ExibeDoc('/editais/x.pdf').
			onclick, _ := s.Attr("onclick")
			for _, src := range []string{href, onclick} {
				if i := strings.Index(src, "'/"); i >= 0 {
					if j := strings.Index(src[i+1:], "'"); j > 0 {
						refs = append(refs, src[i+1:i+1+j])
					}
				}
			}
		})
		rec.Documents = ResolveURLs(base, refs)
	})

	c.g.field("description", func() {
		rec.Description = describe(doc.Find("#dadosImovel, div.content-wrapper .related-box, div.control-item"), u.String())
	})

	c.g.field("auctionType", func() {
		lower := FoldAccents(strings.ToLower(body))
		switch {
		case strings.Contains(lower, "venda direta online"):
			rec.AuctionType = "Venda Direta Online"
		case strings.Contains(lower, "licitacao aberta"):
			rec.AuctionType = "Licitação Aberta"
		case strings.Contains(lower, "leilao sfi"):
			rec.AuctionType = "Leilão SFI"
		}
	})

	return rec
}
