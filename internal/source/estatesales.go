package source

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jprome/auct-alert/internal/model"
)

const (
	estateSalesBaseURL    = "https://www.estatesales.net"
	estateSalesFloridaURL = "https://www.estatesales.net/FL"
)

// estateSalesCities are the metro pages scraped each pass.
var estateSalesCities = []string{
	"Miami",
	"Fort-Lauderdale",
	"West-Palm-Beach",
}

// saleLinkPattern matches sale detail links of the form
// /FL/City/ZIP/SaleID and captures path, city and sale id.
var saleLinkPattern = regexp.MustCompile(`<a[^>]+href="(/FL/([^/"]+)/\d+/(\d+))"[^>]*>((?s:.*?))</a>`)

// EstateSalesScraper pulls estate sale listings from estatesales.net.
// The site lists sales (multi-day events), not individual lots; each sale
// becomes one listing and the description carries the advertised contents.
type EstateSalesScraper struct {
	fetcher *Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

func NewEstateSalesScraper(fetcher *Fetcher, logger *slog.Logger) *EstateSalesScraper {
	return &EstateSalesScraper{
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *EstateSalesScraper) Source() model.AuctionSource {
	return model.SourceEstateSales
}

// FetchListings walks the configured city pages. A failed city is logged
// and contributes nothing; the others still count.
func (s *EstateSalesScraper) FetchListings(ctx context.Context) ([]RawListing, error) {
	var all []RawListing
	var lastErr error

	for _, city := range estateSalesCities {
		listings, err := s.fetchCity(ctx, city)
		if err != nil {
			s.logger.Warn("estatesales city fetch failed",
				slog.String("city", city),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		all = append(all, listings...)
	}

	if len(all) == 0 && lastErr != nil {
		return nil, fmt.Errorf("estatesales: all city pages failed: %w", lastErr)
	}
	return all, nil
}

func (s *EstateSalesScraper) fetchCity(ctx context.Context, city string) ([]RawListing, error) {
	pageURL := estateSalesFloridaURL + "/" + city
	body, rawRef, err := s.fetcher.Get(ctx, s.Source(), pageURL)
	if err != nil {
		return nil, err
	}
	return s.parsePage(body, rawRef), nil
}

// parsePage extracts sale links from a city page.
func (s *EstateSalesScraper) parsePage(body, rawRef string) []RawListing {
	seen := map[string]bool{}
	var listings []RawListing

	// Sales usually end within a few days; the page rarely carries an
	// explicit end time, so default to three days out.
	defaultClosing := s.now().Add(72 * time.Hour).UTC().Format("2006-01-02 15:04:05")

	for _, m := range saleLinkPattern.FindAllStringSubmatch(body, -1) {
		path, city, saleID, inner := m[1], m[2], m[3], m[4]
		if seen[saleID] {
			continue
		}
		seen[saleID] = true

		title := cleanAnchorText(inner)
		if len(title) < 3 {
			title = "Estate Sale"
		}

		listings = append(listings, RawListing{
			SourceItemID: saleID,
			Source:       s.Source(),
			SourceURL:    estateSalesBaseURL + path,
			Title:        title,
			ClosingAt:    defaultClosing,
			City:         strings.ReplaceAll(city, "-", " "),
			State:        "FL",
			RawRef:       rawRef,
		})
	}
	return listings
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	photoCountPrefix  = regexp.MustCompile(`^\d+`)
	listedBySuffix    = regexp.MustCompile(`(?i)(Listed by|Last modified).*$`)
)

// cleanAnchorText reduces anchor markup to a plain title.
func cleanAnchorText(inner string) string {
	text := tagPattern.ReplaceAllString(inner, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	text = photoCountPrefix.ReplaceAllString(text, "")
	text = listedBySuffix.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
