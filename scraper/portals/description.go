package portals

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// maxDescriptionRunes caps stored descriptions; some portals inline the whole
// auction notice.
const maxDescriptionRunes = 4000

var (
	descriptionPolicy = bluemonday.UGCPolicy()
	mdConverter       = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// describe renders a description block as Markdown. Scripts, styles and
// event handlers are dropped before conversion; plain text is the fallback.
func describe(sel *goquery.Selection, pageURL string) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	raw, err := sel.First().Html()
	if err != nil {
		return truncateRunes(CleanText(sel.First().Text()))
	}
	clean := descriptionPolicy.Sanitize(raw)
	md, err := mdConverter.ConvertString(clean, converter.WithDomain(pageURL))
	md = strings.TrimSpace(md)
	if err != nil || md == "" {
		return truncateRunes(CleanText(sel.First().Text()))
	}
	return truncateRunes(md)
}

func truncateRunes(s string) string {
	r := []rune(s)
	if len(r) <= maxDescriptionRunes {
		return s
	}
	return strings.TrimSpace(string(r[:maxDescriptionRunes])) + "…"
}
