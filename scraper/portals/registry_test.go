package portals

import (
	"bytes"
	"io"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"leilao-insights/models"
	"leilao-insights/utils"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func newTestRegistry() *Registry {
	return NewRegistry(utils.NewLoggerTo(io.Discard))
}

func TestRegistrySelect(t *testing.T) {
	r := newTestRegistry()
	tests := []struct {
		input    string
		expected string
	}{
		{"https://www.portalzuk.com.br/imovel/sp/campinas/123", "zuk"},
		{"https://portalzuk.com.br/imovel/1", "zuk"},
		{"https://www.megaleiloes.com.br/imoveis/j123", "mega"},
		{"https://venda-imoveis.caixa.gov.br/sistema/detalhe-imovel.asp?hdnimovel=1", "caixa"},
		{"https://www.sodresantoro.com.br/imoveis/lote/9", "sodre"},
		{"https://megaleiloes-br.com/imoveis/1", "generic"},
		{"https://sub.portalzuk.com.br/imovel/1", "generic"},
		{"https://example.com/listing/1", "generic"},
	}
	for _, tt := range tests {
		result := r.Select(mustURL(t, tt.input)).Name()
		if result != tt.expected {
			t.Errorf("Select(%q) = %q; want %q", tt.input, result, tt.expected)
		}
	}

	expected := []string{"zuk", "mega", "caixa", "sodre", "generic"}
	if names := r.Names(); !reflect.DeepEqual(names, expected) {
		t.Errorf("Names() = %v; want %v", names, expected)
	}
}

func TestMegaExtract(t *testing.T) {
	html := `<html><head><title>Apartamento Teste | Mega Leilões</title></head><body>
<h1>Apartamento Teste</h1>
<div class="price">R$ 100.000,00</div>
<div class="type">Apartamento</div>
</body></html>`
	u := mustURL(t, "https://www.megaleiloes.com.br/imoveis/apartamentos/sp/sao-paulo/apartamento-teste-j123")

	rec, portal, err := newTestRegistry().Extract(html, u)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if portal != "mega" {
		t.Errorf("portal = %q; want mega", portal)
	}
	if rec.Title != "Apartamento Teste" {
		t.Errorf("Title = %q; want %q", rec.Title, "Apartamento Teste")
	}
	if rec.MinimumBid != 100000 {
		t.Errorf("MinimumBid = %v; want 100000", rec.MinimumBid)
	}
	if rec.PropertyType != "Apartamento" {
		t.Errorf("PropertyType = %q; want Apartamento", rec.PropertyType)
	}
	if rec.State != "SP" || rec.City != "Sao Paulo" {
		t.Errorf("location = %q/%q; want Sao Paulo/SP", rec.City, rec.State)
	}
	if rec.AuctionType != models.DefaultAuctionType {
		t.Errorf("AuctionType = %q; want %q", rec.AuctionType, models.DefaultAuctionType)
	}
}

func TestMegaPropertyTypeIgnoresAuctionType(t *testing.T) {
	html := `<html><head><title>Apartamento 2 dormitórios | Mega Leilões</title></head><body>
<h1>Apartamento 2 dormitórios - São Paulo - SP</h1>
<div class="price">R$ 150.000,00</div>
<div class="auction-type">Leilão Judicial</div>
</body></html>`
	u := mustURL(t, "https://www.megaleiloes.com.br/imoveis/apartamentos/sp/sao-paulo/apartamento-j456")

	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{"auction type only", html, "Apartamento"},
		{"type node not a property type", strings.Replace(html, `class="auction-type"`, `class="type"`, 1), "Apartamento"},
		{"type node wins over title", strings.Replace(html, `<div class="auction-type">Leilão Judicial</div>`, `<div class="type">Casa</div>`, 1), "Casa"},
	}
	for _, tt := range tests {
		rec, _, err := newTestRegistry().Extract(tt.html, u)
		if err != nil {
			t.Fatalf("%s: Extract() error: %v", tt.name, err)
		}
		if rec.PropertyType != tt.expected {
			t.Errorf("%s: PropertyType = %q; want %q", tt.name, rec.PropertyType, tt.expected)
		}
	}
}

func TestZukExtract(t *testing.T) {
	html := `<html><head>
<meta property="og:title" content="Casa em Campinas">
<meta property="og:image" content="/fotos/casa.jpg">
<script>window.dataLayer = window.dataLayer || [];
dataLayer.push({'valorMinimo':'R$ 250.000,00','leilaoData':'20/05/2025 às 14:00','uf':'sp','cidade':'Campinas','bairro':'Centro'});</script>
</head><body>
<div class="property-featured-item"><span class="property-featured-item-label">Valor de avaliação</span><span class="property-featured-item-value">R$ 400.000,00</span></div>
<div class="property-featured-item"><span class="property-featured-item-label">Tipo de imóvel</span><span class="property-featured-item-value">Casa</span></div>
<div class="property-featured-item"><span class="property-featured-item-label">Modalidade</span><span class="property-featured-item-value">Extrajudicial</span></div>
</body></html>`
	u := mustURL(t, "https://www.portalzuk.com.br/imovel/sp/campinas/centro/123")

	rec, portal, err := newTestRegistry().Extract(html, u)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if portal != "zuk" {
		t.Errorf("portal = %q; want zuk", portal)
	}
	expected := models.PropertyRecord{
		Title:          "Casa em Campinas",
		MinimumBid:     250000,
		PropertyType:   "Casa",
		Address:        "Centro",
		City:           "Campinas",
		State:          "SP",
		EvaluatedValue: 400000,
		AuctionDate:    "2025-05-20T14:00:00",
		Images:         []string{"https://www.portalzuk.com.br/fotos/casa.jpg"},
		AuctionType:    "Leilão Extrajudicial",
	}
	if !reflect.DeepEqual(rec, expected) {
		t.Errorf("Extract() = %+v; want %+v", rec, expected)
	}
}

func TestCaixaExtract(t *testing.T) {
	html := `<html><body>
<h5>CASA - JARDIM AMERICA - CAMPINAS</h5>
<p>Valor de avaliação: R$ 300.000,00</p>
<p>Valor mínimo de venda 1º Leilão: R$ 150.000,00</p>
<p><span>Tipo de imóvel: Casa</span></p>
<p><strong>Endereço:</strong><br>RUA DAS PALMEIRAS, N. 10, CAMPINAS - SP</p>
<p>Comarca: CAMPINAS-SP</p>
<img class="preview" src="/fotos/F123.jpg">
</body></html>`
	u := mustURL(t, "https://venda-imoveis.caixa.gov.br/sistema/detalhe-imovel.asp?hdnimovel=123")

	rec, portal, err := newTestRegistry().Extract(html, u)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if portal != "caixa" {
		t.Errorf("portal = %q; want caixa", portal)
	}
	if rec.Title != "CASA - JARDIM AMERICA - CAMPINAS" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.MinimumBid != 150000 || rec.EvaluatedValue != 300000 {
		t.Errorf("values = %v/%v; want 150000/300000", rec.MinimumBid, rec.EvaluatedValue)
	}
	if rec.PropertyType != "Casa" {
		t.Errorf("PropertyType = %q; want Casa", rec.PropertyType)
	}
	if rec.Address != "RUA DAS PALMEIRAS, N. 10" || rec.City != "Campinas" || rec.State != "SP" {
		t.Errorf("address = %q, %q, %q", rec.Address, rec.City, rec.State)
	}
	if want := []string{"https://venda-imoveis.caixa.gov.br/fotos/F123.jpg"}; !reflect.DeepEqual(rec.Images, want) {
		t.Errorf("Images = %v; want %v", rec.Images, want)
	}
}

func TestSodreExtract(t *testing.T) {
	html := `<html><body>
<h1 class="product-title">Apartamento em Santos</h1>
<div class="product-price">Lance inicial R$ 320.000,00</div>
<div class="product-gallery"><img src="/img/1.jpg"><img data-src="/img/2.jpg" src="/img/blank.gif"></div>
<div class="auction-date">Leilão em 10/06/2025 às 10:00</div>
</body></html>`
	u := mustURL(t, "https://www.sodresantoro.com.br/imoveis/lote/9")

	rec, portal, err := newTestRegistry().Extract(html, u)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if portal != "sodre" {
		t.Errorf("portal = %q; want sodre", portal)
	}
	if rec.Title != "Apartamento em Santos" || rec.MinimumBid != 320000 {
		t.Errorf("title/bid = %q/%v", rec.Title, rec.MinimumBid)
	}
	if rec.AuctionDate != "2025-06-10T10:00:00" {
		t.Errorf("AuctionDate = %q; want 2025-06-10T10:00:00", rec.AuctionDate)
	}
	if rec.PropertyType != "Apartamento" {
		t.Errorf("PropertyType = %q; want Apartamento", rec.PropertyType)
	}
	want := []string{"https://www.sodresantoro.com.br/img/1.jpg", "https://www.sodresantoro.com.br/img/2.jpg"}
	if !reflect.DeepEqual(rec.Images, want) {
		t.Errorf("Images = %v; want %v", rec.Images, want)
	}
}

func TestGenericExtract(t *testing.T) {
	html := `<html><head><title>Imóvel</title>
<meta property="og:image" content="https://cdn.example.com/a.jpg">
<meta name="description" content="Casa ampla com quintal">
</head><body>
<h1>Casa em Ribeirão Preto</h1>
<p>Lance mínimo: R$ 90.000,00</p>
<span>Leilão dia 05/07/2025</span>
<div class="endereco-imovel">Rua A, 100, Ribeirão Preto - SP</div>
</body></html>`
	u := mustURL(t, "https://leiloes.example.com/lote/77")

	rec, portal, err := newTestRegistry().Extract(html, u)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	expected := models.PropertyRecord{
		Title:        "Casa em Ribeirão Preto",
		MinimumBid:   90000,
		PropertyType: "Casa",
		Address:      "Rua A, 100",
		City:         "Ribeirão Preto",
		State:        "SP",
		AuctionDate:  "2025-07-05",
		Images:       []string{"https://cdn.example.com/a.jpg"},
		Description:  "Casa ampla com quintal",
		AuctionType:  models.DefaultAuctionType,
	}
	if portal != "generic" {
		t.Errorf("portal = %q; want generic", portal)
	}
	if !reflect.DeepEqual(rec, expected) {
		t.Errorf("Extract() = %+v; want %+v", rec, expected)
	}
}

func TestGuardRecoversFieldPanic(t *testing.T) {
	var buf bytes.Buffer
	g := guard{portal: "zuk", logger: utils.NewLoggerTo(&buf)}

	reached := false
	g.field("title", func() {
		var m map[string]int
		m["boom"] = 1
	})
	g.field("minBid", func() { reached = true })

	if !reached {
		t.Error("field after panic was not run")
	}
	if !strings.Contains(buf.String(), "extract zuk.title") {
		t.Errorf("log = %q; want extraction error for zuk.title", buf.String())
	}
}
