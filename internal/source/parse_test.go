package source

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jprome/auct-alert/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEstateSalesParsePage(t *testing.T) {
	html := `
<div class="sale-list">
  <a href="/FL/Miami/33139/4760445"><span>12</span>Estate Sale - Furniture, Antiques &amp; More</a>
  <a href="/FL/Fort-Lauderdale/33301/4760501">Moving Sale Listed by Acme Estates</a>
  <a href="/FL/Miami/33139/4760445">duplicate link</a>
  <a href="/about">not a sale</a>
</div>`

	s := NewEstateSalesScraper(nil, discardLogger())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	listings := s.parsePage(html, "raw_abc")
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}

	first := listings[0]
	if first.SourceItemID != "4760445" {
		t.Fatalf("sale id = %s", first.SourceItemID)
	}
	if first.City != "Miami" || first.State != "FL" {
		t.Fatalf("location = %s, %s", first.City, first.State)
	}
	if first.SourceURL != "https://www.estatesales.net/FL/Miami/33139/4760445" {
		t.Fatalf("source url = %s", first.SourceURL)
	}
	if first.RawRef != "raw_abc" {
		t.Fatalf("raw ref = %s", first.RawRef)
	}
	if first.ClosingAt != "2026-03-04 12:00:00" {
		t.Fatalf("default closing = %s", first.ClosingAt)
	}

	second := listings[1]
	if second.City != "Fort Lauderdale" {
		t.Fatalf("city = %s", second.City)
	}
	// "Listed by ..." boilerplate must be stripped.
	if second.Title != "Moving Sale" {
		t.Fatalf("title = %q", second.Title)
	}
}

func TestFloridaSurplusParseResults(t *testing.T) {
	html := `
<table>
  <tr><td><a href="/index.cfm?fa=Main.Item&itemid=98765&acctid=1">Office Desk Lot</a></td>
      <td>Current bid: $45.00</td></tr>
  <tr><td><a href="/index.cfm?fa=Main.Item&itemid=98765&acctid=1">dup</a></td></tr>
</table>`

	s := NewFloridaSurplusScraper(nil, discardLogger())
	listings := s.parseResults(html, "raw_x")
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
	l := listings[0]
	if l.SourceItemID != "98765" {
		t.Fatalf("item id = %s", l.SourceItemID)
	}
	if l.Title != "Office Desk Lot" {
		t.Fatalf("title = %q", l.Title)
	}
	if l.CurrentPrice != "45.00" {
		t.Fatalf("price = %q", l.CurrentPrice)
	}
}

func TestHiBidParseCatalogLinks(t *testing.T) {
	html := `
<div>
  <a href="/catalog/697000/spring-furniture-auction"><h3>Spring Furniture Auction</h3></a>
  <a href="/catalog/697000/spring-furniture-auction">same catalog</a>
  <a href="/catalog/697123/tools-and-equipment">Tools and Equipment</a>
  <a href="/lot/555">lot link, ignored</a>
</div>`

	s := NewHiBidScraper(config.BrowserConfig{}, nil, discardLogger())
	listings := s.parseCatalogLinks(html, "raw_h")
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}
	if listings[0].SourceItemID != "697000" {
		t.Fatalf("catalog id = %s", listings[0].SourceItemID)
	}
	if listings[0].Title != "Spring Furniture Auction" {
		t.Fatalf("title = %q", listings[0].Title)
	}
	if listings[0].SourceURL != "https://www.hibid.com/catalog/697000/spring-furniture-auction" {
		t.Fatalf("source url = %s", listings[0].SourceURL)
	}
}
