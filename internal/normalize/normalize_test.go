package normalize

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jprome/auct-alert/internal/model"
	"github.com/jprome/auct-alert/internal/source"
)

func testNormalizer() *Normalizer {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNormalize_DiningTable(t *testing.T) {
	n := testNormalizer()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	raw := source.RawListing{
		SourceItemID: "123456",
		Source:       model.SourceHiBid,
		SourceURL:    "https://www.hibid.com/catalog/123456/sale",
		Title:        "Solid Oak Dining Table with   Leaf &amp; 6 Chairs",
		CurrentPrice: "$1,050.00",
		ClosingAt:    "2026-03-03 18:00:00",
		City:         "Miami",
		State:        "fl",
	}

	item, err := n.Normalize(&raw, now)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if item.ItemID != "hibid_123456" {
		t.Fatalf("item id = %s", item.ItemID)
	}
	if item.Category != model.CategoryFurniture || item.Subtype != model.SubtypeDiningTable {
		t.Fatalf("classified as %s/%s", item.Category, item.Subtype)
	}
	if item.Title != "Solid Oak Dining Table with Leaf 6 Chairs" {
		t.Fatalf("title = %q", item.Title)
	}
	if item.CurrentPrice == nil || *item.CurrentPrice != 1050 {
		t.Fatalf("price = %v", item.CurrentPrice)
	}
	want := time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC)
	if item.ClosingAt == nil || !item.ClosingAt.Equal(want) {
		t.Fatalf("closing = %v", item.ClosingAt)
	}
	if item.PickupState != "FL" {
		t.Fatalf("state = %s", item.PickupState)
	}
	if item.PickupLat == nil || *item.PickupLat != 25.7617 {
		t.Fatalf("lat = %v", item.PickupLat)
	}
	if !item.FirstSeen.Equal(now) || !item.LastSeen.Equal(now) {
		t.Fatalf("seen timestamps = %v / %v", item.FirstSeen, item.LastSeen)
	}
}

func TestNormalize_RejectsMissingIdentity(t *testing.T) {
	n := testNormalizer()
	now := time.Now().UTC()

	if _, err := n.Normalize(&source.RawListing{Source: model.SourceHiBid}, now); err == nil {
		t.Fatal("expected error for missing source item id")
	}
	if _, err := n.Normalize(&source.RawListing{SourceItemID: "1", Source: "ebay"}, now); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestNormalizeBatch_SkipsMalformed(t *testing.T) {
	n := testNormalizer()
	now := time.Now().UTC()

	raws := []source.RawListing{
		{SourceItemID: "1", Source: model.SourceEstateSales, Title: "Estate sale with sofa"},
		{Source: model.SourceEstateSales, Title: "no id"},
		{SourceItemID: "2", Source: model.SourceFloridaSurplus, Title: "Office desk"},
	}

	items := n.NormalizeBatch(raws, now)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ItemID != "estatesales_net_1" || items[1].ItemID != "florida_surplus_2" {
		t.Fatalf("item ids = %s, %s", items[0].ItemID, items[1].ItemID)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		title    string
		category model.ItemCategory
		subtype  model.ItemSubtype
	}{
		{"Farmhouse dining table seats 8", model.CategoryFurniture, model.SubtypeDiningTable},
		{"Leather sectional couch", model.CategoryFurniture, model.SubtypeSofa},
		{"Queen bed frame with headboard", model.CategoryFurniture, model.SubtypeBed},
		{"Executive desk, glass top", model.CategoryFurniture, model.SubtypeDesk},
		{"Antique china cabinet", model.CategoryFurniture, model.SubtypeCabinet},
		{"Mahogany bench", model.CategoryFurniture, model.SubtypeOther},
		{"Samsung 65 inch television", model.CategoryElectronics, model.SubtypeOther},
		{"Whirlpool washer and dryer", model.CategoryAppliances, model.SubtypeOther},
		{"DeWalt drill and sander lot", model.CategoryTools, model.SubtypeOther},
		{"2014 Ford truck", model.CategoryVehicles, model.SubtypeOther},
		{"Box of misc household goods", model.CategoryOther, model.SubtypeOther},
	}

	for _, tt := range tests {
		category, subtype := Classify(tt.title, "")
		if category != tt.category || subtype != tt.subtype {
			t.Errorf("Classify(%q) = %s/%s, want %s/%s",
				tt.title, category, subtype, tt.category, tt.subtype)
		}
	}
}

func TestParsePrice(t *testing.T) {
	if p := ParsePrice("$1,234.50"); p == nil || *p != 1234.50 {
		t.Fatalf("ParsePrice($1,234.50) = %v", p)
	}
	if p := ParsePrice("  45 "); p == nil || *p != 45 {
		t.Fatalf("ParsePrice(45) = %v", p)
	}
	for _, bad := range []string{"", "free", "0", "-10"} {
		if p := ParsePrice(bad); p != nil {
			t.Fatalf("ParsePrice(%q) = %v, want nil", bad, *p)
		}
	}
}

func TestParseDatetime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-03T18:00:00Z", time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC)},
		{"2026-03-03 18:00:00", time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC)},
		{"2026-03-03", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)},
		{"3/3/2026 18:00", time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC)},
		{"3/3/2026", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := ParseDatetime(tt.in)
		if got == nil || !got.Equal(tt.want) {
			t.Errorf("ParseDatetime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"", "soon", "tomorrow"} {
		if got := ParseDatetime(bad); got != nil {
			t.Errorf("ParseDatetime(%q) = %v, want nil", bad, got)
		}
	}
}

func TestBuildLocation(t *testing.T) {
	city, state, lat, lng := buildLocation("Fort Lauderdale", "fl")
	if city != "Fort Lauderdale" || state != "FL" {
		t.Fatalf("location = %s, %s", city, state)
	}
	if lat == nil || *lat != 26.1224 || lng == nil || *lng != -80.1373 {
		t.Fatalf("coords = %v, %v", lat, lng)
	}

	// Unknown Florida city falls back to the state centroid.
	_, _, lat, _ = buildLocation("Ocala", "FL")
	if lat == nil || *lat != 27.6648 {
		t.Fatalf("centroid lat = %v", lat)
	}

	// No city means no coordinates.
	_, _, lat, lng = buildLocation("", "FL")
	if lat != nil || lng != nil {
		t.Fatalf("expected nil coords, got %v, %v", lat, lng)
	}
}
