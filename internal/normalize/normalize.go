// Package normalize turns raw scraped listings into canonical auction
// items: text cleanup, keyword-based category and subtype detection,
// price and date parsing, and city-to-coordinate resolution.
package normalize

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jprome/auct-alert/internal/model"
	"github.com/jprome/auct-alert/internal/source"
)

// furnitureKeywords flag a listing as furniture when any appears in the
// title or description.
var furnitureKeywords = []string{
	"furniture", "table", "chair", "sofa", "couch", "desk", "dresser",
	"cabinet", "bookshelf", "bookcase", "bed", "headboard", "nightstand",
	"armoire", "wardrobe", "credenza", "hutch", "buffet", "sideboard",
	"ottoman", "recliner", "loveseat", "sectional", "bench", "stool",
}

// subtypeKeywords resolve the furniture subtype. Order matters: the first
// subtype with a keyword hit wins, and multi-word phrases sit ahead of
// their generic parents so "dining table" never classifies as desk.
var subtypeKeywords = []struct {
	subtype  model.ItemSubtype
	keywords []string
}{
	{model.SubtypeDiningTable, []string{
		"dining table", "dining room table", "kitchen table", "breakfast table",
		"conference table", "extension table", "pedestal table", "farm table",
		"farmhouse table", "trestle table", "drop leaf table",
	}},
	{model.SubtypeDiningChair, []string{
		"dining chair", "dining chairs", "side chair", "kitchen chair",
		"set of chairs",
	}},
	{model.SubtypeSofa, []string{
		"sofa", "couch", "loveseat", "sectional", "settee", "futon",
	}},
	{model.SubtypeBed, []string{
		"bed frame", "bedframe", "headboard", "queen bed", "king bed",
		"twin bed", "full bed", "bunk bed", "daybed",
	}},
	{model.SubtypeDresser, []string{
		"dresser", "chest of drawers", "armoire", "wardrobe", "bureau",
	}},
	{model.SubtypeDesk, []string{
		"desk", "writing table", "workstation", "secretary",
	}},
	{model.SubtypeBookshelf, []string{
		"bookshelf", "bookcase", "shelving unit", "etagere",
	}},
	{model.SubtypeCabinet, []string{
		"cabinet", "credenza", "hutch", "buffet", "sideboard",
		"china cabinet", "curio",
	}},
}

// categoryKeywords resolve non-furniture categories. Furniture is checked
// first, so these only see listings the furniture pass did not claim.
var categoryKeywords = []struct {
	category model.ItemCategory
	keywords []string
}{
	{model.CategoryElectronics, []string{
		"tv", "television", "laptop", "computer", "monitor", "printer",
		"speaker", "stereo", "camera", "tablet", "projector",
	}},
	{model.CategoryAppliances, []string{
		"refrigerator", "fridge", "washer", "dryer", "dishwasher",
		"microwave", "oven", "stove", "freezer",
	}},
	{model.CategoryTools, []string{
		"drill", "saw", "toolbox", "tool box", "wrench", "sander",
		"compressor", "generator", "ladder", "mower",
	}},
	{model.CategoryVehicles, []string{
		"truck", "sedan", "suv", "trailer", "motorcycle", "forklift",
		"golf cart", "boat",
	}},
	{model.CategoryCollectibles, []string{
		"antique", "vintage", "collectible", "coin", "stamp", "painting",
		"artwork", "porcelain", "figurine",
	}},
}

// floridaCityCoords maps known pickup cities to coordinates. The state
// centroid and a Miami fallback cover everything else.
var floridaCityCoords = map[string][2]float64{
	"miami":           {25.7617, -80.1918},
	"fort lauderdale": {26.1224, -80.1373},
	"west palm beach": {26.7153, -80.0534},
	"boca raton":      {26.3683, -80.1289},
	"hollywood":       {26.0112, -80.1495},
	"pompano beach":   {26.2379, -80.1248},
	"coral gables":    {25.7215, -80.2684},
	"hialeah":         {25.8576, -80.2781},
	"homestead":       {25.4687, -80.4776},
	"naples":          {26.1420, -81.7948},
	"fort myers":      {26.6406, -81.8723},
	"orlando":         {28.5384, -81.3789},
	"tampa":           {27.9506, -82.4572},
	"jacksonville":    {30.3322, -81.6557},
	"florida":         {27.6648, -81.5158},
}

var (
	entityPattern     = regexp.MustCompile(`&[a-z]+;`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	priceStripper     = strings.NewReplacer(",", "", "$", "")
)

// datetimeLayouts are tried in order when parsing closing times.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"1/2/2006 15:04",
	"1/2/2006",
}

// Normalizer converts RawListings into AuctionItems.
type Normalizer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize converts one raw listing. It fails only when the listing has
// no usable identity; every other field degrades to its unknown form.
func (n *Normalizer) Normalize(raw *source.RawListing, now time.Time) (*model.AuctionItem, error) {
	if raw.SourceItemID == "" {
		return nil, fmt.Errorf("listing has no source item id")
	}
	if !raw.Source.Valid() {
		return nil, fmt.Errorf("unknown source %q", raw.Source)
	}

	title := CleanText(raw.Title)
	description := CleanText(raw.Description)
	category, subtype := Classify(title, description)

	item := &model.AuctionItem{
		ItemID:        string(raw.Source) + "_" + raw.SourceItemID,
		Source:        raw.Source,
		SourceURL:     raw.SourceURL,
		Title:         title,
		Description:   description,
		Category:      category,
		Subtype:       subtype,
		CurrentPrice:  ParsePrice(raw.CurrentPrice),
		StartingPrice: ParsePrice(raw.StartingPrice),
		BuyNowPrice:   ParsePrice(raw.BuyNowPrice),
		ClosingAt:     ParseDatetime(raw.ClosingAt),
		FirstSeen:     now,
		LastSeen:      now,
		RawRef:        raw.RawRef,
	}

	item.PickupCity, item.PickupState, item.PickupLat, item.PickupLng = buildLocation(raw.City, raw.State)
	return item, nil
}

// NormalizeBatch converts a batch, skipping malformed rows with a warning.
func (n *Normalizer) NormalizeBatch(raws []source.RawListing, now time.Time) []*model.AuctionItem {
	items := make([]*model.AuctionItem, 0, len(raws))
	for i := range raws {
		item, err := n.Normalize(&raws[i], now)
		if err != nil {
			n.logger.Warn("skipping malformed listing",
				slog.String("source", string(raws[i].Source)),
				slog.String("url", raws[i].SourceURL),
				slog.String("error", err.Error()))
			continue
		}
		items = append(items, item)
	}
	return items
}

// CleanText collapses whitespace and strips leftover HTML entities.
func CleanText(s string) string {
	s = entityPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Classify resolves category and subtype from the listing text. Furniture
// is checked first; within furniture the first subtype keyword hit wins.
func Classify(title, description string) (model.ItemCategory, model.ItemSubtype) {
	text := strings.ToLower(title + " " + description)

	if containsAny(text, furnitureKeywords) {
		for _, st := range subtypeKeywords {
			if containsAny(text, st.keywords) {
				return model.CategoryFurniture, st.subtype
			}
		}
		return model.CategoryFurniture, model.SubtypeOther
	}

	for _, c := range categoryKeywords {
		if containsAny(text, c.keywords) {
			return c.category, model.SubtypeOther
		}
	}
	return model.CategoryOther, model.SubtypeOther
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ParsePrice parses a price string. Returns nil for anything that is not
// a positive number; zero means free which no auction price is.
func ParsePrice(s string) *float64 {
	s = strings.TrimSpace(priceStripper.Replace(s))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// ParseDatetime parses a closing time in any of the accepted layouts.
// Returns nil when no layout fits; an unknown close is scored as unknown,
// never as already closed.
func ParseDatetime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// buildLocation resolves coordinates for a pickup city. Unknown Florida
// cities fall back to the state centroid; a missing city yields no
// coordinates at all so the scorer treats distance as unknown.
func buildLocation(city, state string) (string, string, *float64, *float64) {
	city = CleanText(city)
	state = strings.ToUpper(CleanText(state))

	if city == "" {
		return "", state, nil, nil
	}

	key := strings.ToLower(city)
	coords, ok := floridaCityCoords[key]
	if !ok {
		coords = floridaCityCoords["florida"]
	}
	lat, lng := coords[0], coords[1]
	return city, state, &lat, &lng
}
