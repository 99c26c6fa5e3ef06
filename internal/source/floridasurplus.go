package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/jprome/auct-alert/internal/model"
)

const (
	govDealsBaseURL   = "https://www.govdeals.com"
	govDealsSearchURL = "https://www.govdeals.com/index.cfm"
)

// surplusCategories are the search categories scraped each pass.
var surplusCategories = []string{"furniture", "office"}

var (
	// surplusItemPattern matches item detail links and captures the
	// numeric asset id plus the anchor text.
	surplusItemPattern = regexp.MustCompile(`<a[^>]+href="([^"]*(?:itemid|asset)[^"]*?(\d+)[^"]*)"[^>]*>((?s:.*?))</a>`)

	// surplusPricePattern finds the current-bid figure near a listing.
	surplusPricePattern = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d{2})?)`)
)

// FloridaSurplusScraper pulls government surplus auctions (GovDeals,
// Florida filter). Office furniture shows up here at low prices.
type FloridaSurplusScraper struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

func NewFloridaSurplusScraper(fetcher *Fetcher, logger *slog.Logger) *FloridaSurplusScraper {
	return &FloridaSurplusScraper{fetcher: fetcher, logger: logger}
}

func (s *FloridaSurplusScraper) Source() model.AuctionSource {
	return model.SourceFloridaSurplus
}

func (s *FloridaSurplusScraper) FetchListings(ctx context.Context) ([]RawListing, error) {
	seen := map[string]bool{}
	var all []RawListing
	var lastErr error

	for _, category := range surplusCategories {
		listings, err := s.searchCategory(ctx, category)
		if err != nil {
			s.logger.Warn("surplus category search failed",
				slog.String("category", category),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		for _, l := range listings {
			if seen[l.SourceItemID] {
				continue
			}
			seen[l.SourceItemID] = true
			all = append(all, l)
		}
	}

	if len(all) == 0 && lastErr != nil {
		return nil, fmt.Errorf("florida surplus: all categories failed: %w", lastErr)
	}
	return all, nil
}

func (s *FloridaSurplusScraper) searchCategory(ctx context.Context, category string) ([]RawListing, error) {
	params := url.Values{}
	params.Set("fa", "Main.AdvSearchResultsNew")
	params.Set("category", category)
	params.Set("state", "FL")
	params.Set("sortOption", "ad") // soonest ending first

	searchURL := govDealsSearchURL + "?" + params.Encode()
	body, rawRef, err := s.fetcher.Get(ctx, s.Source(), searchURL)
	if err != nil {
		return nil, err
	}
	return s.parseResults(body, rawRef), nil
}

func (s *FloridaSurplusScraper) parseResults(body, rawRef string) []RawListing {
	var listings []RawListing
	seen := map[string]bool{}

	for _, m := range surplusItemPattern.FindAllStringSubmatch(body, -1) {
		href, itemID, inner := m[1], m[2], m[3]
		if itemID == "" || seen[itemID] {
			continue
		}
		seen[itemID] = true

		title := cleanAnchorText(inner)
		if title == "" {
			continue
		}

		sourceURL := href
		if strings.HasPrefix(href, "/") {
			sourceURL = govDealsBaseURL + href
		}

		listing := RawListing{
			SourceItemID: itemID,
			Source:       s.Source(),
			SourceURL:    sourceURL,
			Title:        title,
			State:        "FL",
			RawRef:       rawRef,
		}

		// Best-effort current bid from the surrounding markup.
		if idx := strings.Index(body, href); idx >= 0 {
			window := body[idx:min(idx+600, len(body))]
			if pm := surplusPricePattern.FindStringSubmatch(window); pm != nil {
				listing.CurrentPrice = pm[1]
			}
		}

		listings = append(listings, listing)
	}
	return listings
}
