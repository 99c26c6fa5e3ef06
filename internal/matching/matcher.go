// Package matching scores auction items against user intents.
//
// The score is a weighted sum of six factors (category, subtype, keywords,
// price, distance, timing), each in [0, 1]. An item matches an intent when
// the combined confidence reaches the intent's threshold.
package matching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jprome/auct-alert/internal/model"
)

// Weights holds the factor weights of the scorer. The defaults sum to 1;
// custom weights are accepted as-is because the total is clamped.
type Weights struct {
	Category float64
	Subtype  float64
	Keyword  float64
	Price    float64
	Distance float64
	Timing   float64
}

// DefaultWeights returns the standard factor weights.
func DefaultWeights() Weights {
	return Weights{
		Category: 0.20,
		Subtype:  0.25,
		Keyword:  0.15,
		Price:    0.20,
		Distance: 0.10,
		Timing:   0.10,
	}
}

// MatchResult is the outcome of scoring one (item, intent) pair.
type MatchResult struct {
	Item   model.AuctionItem
	Intent model.UserIntent

	Confidence   float64
	MatchReasons []string
	IsMatch      bool

	// Per-factor subscores, kept for debugging and the learning loop.
	CategoryScore float64
	SubtypeScore  float64
	KeywordScore  float64
	PriceScore    float64
	DistanceScore float64
	TimingScore   float64
}

// Matcher evaluates items against intents with a fixed set of weights.
type Matcher struct {
	weights Weights
	workers int
}

// NewMatcher builds a matcher. workers bounds the fan-out of MatchAll and
// is raised to at least 1.
func NewMatcher(weights Weights, workers int) *Matcher {
	if workers <= 0 {
		workers = 1
	}
	return &Matcher{weights: weights, workers: workers}
}

// Score evaluates a single pair at the given time. It is a pure function
// of its inputs; the explicit now keeps the timing factor deterministic.
func (m *Matcher) Score(item *model.AuctionItem, intent *model.UserIntent, now time.Time) MatchResult {
	reasons := make([]string, 0, 6)

	categoryScore := scoreCategory(item, intent, &reasons)
	subtypeScore := scoreSubtype(item, intent, &reasons)
	keywordScore := scoreKeywords(item, intent, &reasons)
	priceScore := scorePrice(item, intent, &reasons)
	distanceScore := scoreDistance(item, intent, &reasons)
	timingScore := scoreTiming(item, intent, now, &reasons)

	total := m.weights.Category*categoryScore +
		m.weights.Subtype*subtypeScore +
		m.weights.Keyword*keywordScore +
		m.weights.Price*priceScore +
		m.weights.Distance*distanceScore +
		m.weights.Timing*timingScore

	confidence := math.Min(1.0, math.Max(0.0, total))

	return MatchResult{
		Item:          *item,
		Intent:        *intent,
		Confidence:    confidence,
		MatchReasons:  reasons,
		IsMatch:       confidence >= intent.ConfidenceThreshold,
		CategoryScore: categoryScore,
		SubtypeScore:  subtypeScore,
		KeywordScore:  keywordScore,
		PriceScore:    priceScore,
		DistanceScore: distanceScore,
		TimingScore:   timingScore,
	}
}

// MatchAll scores every item against every active intent and returns the
// pairs at or above threshold, sorted by descending confidence. Equal
// scores keep item order, then intent order. Scoring fans out over a
// bounded worker pool; each pair is independent.
func (m *Matcher) MatchAll(ctx context.Context, items []model.AuctionItem, intents []model.UserIntent, now time.Time) []MatchResult {
	active := make([]model.UserIntent, 0, len(intents))
	for _, intent := range intents {
		if intent.IsActive {
			active = append(active, intent)
		}
	}
	if len(items) == 0 || len(active) == 0 {
		return nil
	}

	// Results are written by pair index so the pre-sort order is the
	// deterministic generation order regardless of worker scheduling.
	results := make([]MatchResult, len(items)*len(active))

	type pair struct{ i, j int }
	work := make(chan pair)

	var wg sync.WaitGroup
	for w := 0; w < m.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range work {
				results[p.i*len(active)+p.j] = m.Score(&items[p.i], &active[p.j], now)
			}
		}()
	}

feed:
	for i := range items {
		for j := range active {
			select {
			case work <- pair{i, j}:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(work)
	wg.Wait()

	matches := make([]MatchResult, 0, len(results))
	for _, r := range results {
		if r.IsMatch {
			matches = append(matches, r)
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Confidence > matches[b].Confidence
	})
	return matches
}

// scoreCategory is 1 on exact category match, 0 otherwise.
func scoreCategory(item *model.AuctionItem, intent *model.UserIntent, reasons *[]string) float64 {
	if item.Category == intent.Category {
		*reasons = append(*reasons, fmt.Sprintf("Category match: %s", item.Category))
		return 1.0
	}
	return 0.0
}

// scoreSubtype is 1 on exact match, 0.5 when the intent has no subtype
// requirement, and 0.3 for an unclassified furniture item against a
// furniture intent.
func scoreSubtype(item *model.AuctionItem, intent *model.UserIntent, reasons *[]string) float64 {
	if intent.Subtype == model.SubtypeAny {
		return 0.5
	}
	if item.Subtype == intent.Subtype {
		*reasons = append(*reasons, fmt.Sprintf("Subtype match: %s", item.Subtype))
		return 1.0
	}
	if item.Category == model.CategoryFurniture &&
		intent.Category == model.CategoryFurniture &&
		item.Subtype == model.SubtypeOther {
		return 0.3
	}
	return 0.0
}

// scoreKeywords is the fraction of intent keywords found in the title or
// description, or 0.5 when the intent specifies none.
func scoreKeywords(item *model.AuctionItem, intent *model.UserIntent, reasons *[]string) float64 {
	if len(intent.Keywords) == 0 {
		return 0.5
	}

	text := strings.ToLower(item.Title + " " + item.Description)
	matched := make([]string, 0, len(intent.Keywords))
	for _, kw := range intent.Keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}

	if len(matched) > 0 {
		*reasons = append(*reasons, fmt.Sprintf("Keywords found: %s", strings.Join(matched, ", ")))
	}
	return float64(len(matched)) / float64(len(intent.Keywords))
}

// scorePrice grades the current price against the budget: 0.5-1.0 within
// budget (lower is better), 0.3 up to 20% over, 0 beyond, 0.5 unknown.
func scorePrice(item *model.AuctionItem, intent *model.UserIntent, reasons *[]string) float64 {
	if item.CurrentPrice == nil {
		*reasons = append(*reasons, "Price unknown")
		return 0.5
	}

	price := *item.CurrentPrice
	if price <= intent.MaxPrice {
		ratio := price / intent.MaxPrice
		*reasons = append(*reasons, fmt.Sprintf("Price $%.0f within $%.0f budget", price, intent.MaxPrice))
		return 1.0 - ratio*0.5
	}

	if price/intent.MaxPrice < 1.2 {
		*reasons = append(*reasons, fmt.Sprintf("Price $%.0f slightly over $%.0f", price, intent.MaxPrice))
		return 0.3
	}
	return 0.0
}

// scoreDistance grades the pickup distance: 0.5-1.0 within range (closer
// is better), 0 out of range, 0.5 unknown location.
func scoreDistance(item *model.AuctionItem, intent *model.UserIntent, reasons *[]string) float64 {
	if !item.HasCoordinates() {
		*reasons = append(*reasons, "Location unknown")
		return 0.5
	}

	distance := HaversineMiles(intent.ReferenceLat, intent.ReferenceLng, *item.PickupLat, *item.PickupLng)
	if distance <= intent.MaxDistanceMiles {
		ratio := distance / intent.MaxDistanceMiles
		*reasons = append(*reasons, fmt.Sprintf("Distance %.0f miles from reference", distance))
		return 1.0 - ratio*0.5
	}
	return 0.0
}

// scoreTiming grades the time left before the auction closes: 0 already
// closed, 0.2 closing before the minimum window, 0.5-1.0 inside the window
// (sooner is better), 0.3 beyond it, 0.5 unknown.
func scoreTiming(item *model.AuctionItem, intent *model.UserIntent, now time.Time, reasons *[]string) float64 {
	if item.ClosingAt == nil {
		*reasons = append(*reasons, "Closing time unknown")
		return 0.5
	}

	hours := item.ClosingAt.Sub(now).Hours()
	if hours < 0 {
		return 0.0
	}
	if hours < float64(intent.MinHoursBeforeClose) {
		*reasons = append(*reasons, fmt.Sprintf("Closing too soon (%.1fh)", hours))
		return 0.2
	}
	if hours <= float64(intent.MaxHoursBeforeClose) {
		urgency := 1.0 - hours/float64(intent.MaxHoursBeforeClose)
		*reasons = append(*reasons, fmt.Sprintf("Closing in %.1f hours", hours))
		return 0.5 + urgency*0.5
	}
	*reasons = append(*reasons, fmt.Sprintf("Closing in %.0f hours (outside %dh window)", hours, intent.MaxHoursBeforeClose))
	return 0.3
}

// HaversineMiles returns the great-circle distance between two points in
// miles.
func HaversineMiles(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusMiles = 3959

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}
