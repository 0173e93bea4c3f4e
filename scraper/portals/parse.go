package portals

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// brlRegexp captures the amount following an R$ marker.
	brlRegexp = regexp.MustCompile(`R\$\s*([\d][\d.,]*)`)
	// numberRegexp captures the first bare number when no R$ marker exists.
	numberRegexp = regexp.MustCompile(`\d[\d.,]*`)
	// thousandsRegexp matches dot-grouped integers such as 100.000.
	thousandsRegexp = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
)

// ParseCurrency converts BRL text ("R$ 1.234.567,89", "1234.50") to a
// number. It returns 0 when no amount is present.
func ParseCurrency(raw string) float64 {
	match := ""
	if m := brlRegexp.FindStringSubmatch(raw); m != nil {
		match = m[1]
	} else {
		match = numberRegexp.FindString(raw)
	}
	match = strings.TrimRight(match, ".,")
	if match == "" {
		return 0
	}

	switch {
	case strings.Contains(match, ","):
		match = strings.ReplaceAll(match, ".", "")
		match = strings.Replace(match, ",", ".", 1)
		match = strings.ReplaceAll(match, ",", "")
	case thousandsRegexp.MatchString(match):
		match = strings.ReplaceAll(match, ".", "")
	case strings.Count(match, ".") > 1:
		match = strings.ReplaceAll(match, ".", "")
	}

	v, err := strconv.ParseFloat(match, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

var (
	dateAtTimeRegexp   = regexp.MustCompile(`(?i)(\d{2})/(\d{2})/(\d{2,4})\s*(?:às|as)\s*(\d{1,2})\s*[h:]\s*(\d{2})`)
	dateDashTimeRegexp = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})\s*-\s*(\d{1,2})\s*[h:]\s*(\d{2})`)
	dateRegexp         = regexp.MustCompile(`\b(\d{2})/(\d{2})/(\d{4})\b`)
	isoDateRegexp      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})(?:[T ](\d{2}):(\d{2})(?::(\d{2}))?)?`)
	longDateRegexp     = regexp.MustCompile(`(?i)\b(\d{1,2})\s+de\s+([a-zç]+)\s+de\s+(\d{4})\b`)
)

var monthsPT = map[string]int{
	"janeiro": 1, "fevereiro": 2, "marco": 3, "abril": 4, "maio": 5, "junho": 6,
	"julho": 7, "agosto": 8, "setembro": 9, "outubro": 10, "novembro": 11, "dezembro": 12,
}

// ParseAuctionDate finds the first auction date in raw, trying the known
// patterns in a fixed order. Patterns with a time of day yield
// "YYYY-MM-DDTHH:MM:SS"; date-only patterns yield "YYYY-MM-DD". Impossible
// calendar dates are skipped.
func ParseAuctionDate(raw string) string {
	if m := dateAtTimeRegexp.FindStringSubmatch(raw); m != nil {
		if s, ok := isoTimestamp(m[3], m[2], m[1], m[4], m[5], "0"); ok {
			return s
		}
	}
	if m := dateDashTimeRegexp.FindStringSubmatch(raw); m != nil {
		if s, ok := isoTimestamp(m[3], m[2], m[1], m[4], m[5], "0"); ok {
			return s
		}
	}
	for _, m := range dateRegexp.FindAllStringSubmatch(raw, -1) {
		if s, ok := isoDate(m[3], m[2], m[1]); ok {
			return s
		}
	}
	if m := isoDateRegexp.FindStringSubmatch(raw); m != nil {
		if m[4] != "" {
			if s, ok := isoTimestamp(m[1], m[2], m[3], m[4], m[5], m[6]); ok {
				return s
			}
		} else if s, ok := isoDate(m[1], m[2], m[3]); ok {
			return s
		}
	}
	for _, m := range longDateRegexp.FindAllStringSubmatch(raw, -1) {
		month, ok := monthsPT[FoldAccents(strings.ToLower(m[2]))]
		if !ok {
			continue
		}
		if s, ok := isoDate(m[3], strconv.Itoa(month), m[1]); ok {
			return s
		}
	}
	return ""
}

func civilDate(year, month, day string) (time.Time, bool) {
	y, err1 := strconv.Atoi(year)
	mo, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if len(year) == 2 {
		y += 2000
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func isoDate(year, month, day string) (string, bool) {
	t, ok := civilDate(year, month, day)
	if !ok {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

func isoTimestamp(year, month, day, hour, minute, second string) (string, bool) {
	t, ok := civilDate(year, month, day)
	if !ok {
		return "", false
	}
	if second == "" {
		second = "0"
	}
	h, err1 := strconv.Atoi(hour)
	mi, err2 := strconv.Atoi(minute)
	s, err3 := strconv.Atoi(second)
	if err1 != nil || err2 != nil || err3 != nil || h > 23 || mi > 59 || s > 59 {
		return "", false
	}
	t = t.Add(time.Duration(h)*time.Hour + time.Duration(mi)*time.Minute + time.Duration(s)*time.Second)
	return t.Format("2006-01-02T15:04:05"), true
}

// brazilianStates are the 27 federative units.
var brazilianStates = map[string]struct{}{
	"AC": {}, "AL": {}, "AP": {}, "AM": {}, "BA": {}, "CE": {}, "DF": {}, "ES": {}, "GO": {},
	"MA": {}, "MT": {}, "MS": {}, "MG": {}, "PA": {}, "PB": {}, "PR": {}, "PE": {}, "PI": {},
	"RJ": {}, "RN": {}, "RS": {}, "RO": {}, "RR": {}, "SC": {}, "SP": {}, "SE": {}, "TO": {},
}

// IsState reports whether uf is a Brazilian state abbreviation.
func IsState(uf string) bool {
	_, ok := brazilianStates[strings.ToUpper(uf)]
	return ok
}

var addressTailRegexp = regexp.MustCompile(`^(.*?)\s*[,/\-–]\s*([A-Z]{2})\.?\s*$`)

// SplitAddress splits a free-text address ending in "<city>, <UF>",
// "<city> - <UF>" or "<city>/<UF>" into street, city and state. The UF must
// be an uppercase state abbreviation. ok is false when no valid trailing
// state is found; street then holds the input.
func SplitAddress(raw string) (street, city, state string, ok bool) {
	raw = CleanText(raw)
	m := addressTailRegexp.FindStringSubmatch(raw)
	if m == nil || !IsState(m[2]) {
		return raw, "", "", false
	}
	head := strings.TrimSpace(m[1])
	state = strings.ToUpper(m[2])

	cut, sepLen := -1, 0
	for _, sep := range []string{",", " - ", " – "} {
		if i := strings.LastIndex(head, sep); i > cut {
			cut, sepLen = i, len(sep)
		}
	}
	if cut < 0 {
		return "", head, state, head != ""
	}
	street = strings.Trim(strings.TrimSpace(head[:cut]), ",-– ")
	city = strings.TrimSpace(head[cut+sepLen:])
	if city == "" {
		return raw, "", "", false
	}
	return street, city, state, true
}

type typeRule struct {
	label    string
	keywords *regexp.Regexp
}

// propertyTypeRules is checked in order; the first match wins.
var propertyTypeRules = []typeRule{
	{"Fração Ideal", regexp.MustCompile(`\b(fracao ideal|parte ideal|fracao)\b`)},
	{"Hotel", regexp.MustCompile(`\b(hotel|pousada|hostel)\b`)},
	{"Apartamento", regexp.MustCompile(`\b(apartamento|apto|cobertura|kitnet|kitinete|studio|flat)\b`)},
	{"Casa", regexp.MustCompile(`\b(casa|sobrado|residencia|casa terrea)\b`)},
	{"Comercial", regexp.MustCompile(`\b(comercial|loja|sala|galpao|escritorio|predio|armazem)\b`)},
	{"Terreno", regexp.MustCompile(`\b(terreno|gleba|area rural|fazenda|sitio|chacara)\b`)},
}

// InferPropertyType maps listing text to a property type label using the
// keyword table. It returns "" when nothing matches.
func InferPropertyType(text string) string {
	folded := FoldAccents(strings.ToLower(text))
	for _, rule := range propertyTypeRules {
		if rule.keywords.MatchString(folded) {
			return rule.label
		}
	}
	return ""
}

// FoldAccents strips diacritics ("Fração" -> "Fracao").
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// ResolveURLs makes refs absolute against base, dropping empties, fragments,
// script and data URLs, and duplicates. Order is kept.
func ResolveURLs(base *url.URL, refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" || strings.HasPrefix(ref, "#") {
			continue
		}
		lower := strings.ToLower(ref)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "mailto:") {
			continue
		}
		u, err := url.Parse(ref)
		if err != nil {
			continue
		}
		abs := u
		if base != nil {
			abs = base.ResolveReference(u)
		}
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		abs.Fragment = ""
		s := abs.String()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// CleanText trims and collapses internal whitespace.
func CleanText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// TitleCase capitalizes each word, leaving short connectives lowercase.
func TitleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		if i > 0 && (w == "de" || w == "da" || w == "do" || w == "das" || w == "dos" || w == "e") {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// metaContent returns the content of <meta property|name=key>.
func metaContent(doc *goquery.Document, key string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property=%q], meta[name=%q]`, key, key)).First()
	v, _ := sel.Attr("content")
	return CleanText(v)
}

// firstText returns the first non-empty text among the selectors, in order.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, s := range selectors {
		var found string
		doc.Find(s).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			found = CleanText(sel.Text())
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// attrs collects attr from every node matched by selector.
func attrs(sel *goquery.Selection, attr string) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok {
			out = append(out, v)
		}
	})
	return out
}

// imageRefs prefers lazy-load attributes over src placeholders.
func imageRefs(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		for _, a := range []string{"data-src", "data-lazy", "data-original", "src"} {
			if v, ok := s.Attr(a); ok && strings.TrimSpace(v) != "" {
				out = append(out, v)
				return
			}
		}
	})
	return out
}

// textNodes yields the trimmed text of each leaf-ish element matched by
// selector, stopping when fn returns false.
func textNodes(doc *goquery.Document, selector string, fn func(string) bool) {
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 3 {
			return true
		}
		t := CleanText(s.Text())
		if t == "" {
			return true
		}
		return fn(t)
	})
}
