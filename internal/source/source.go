// Package source fetches raw auction listings from the supported sites.
// Each scraper speaks one site's format and returns RawListing values for
// the normalizer; they share a rate-limited fetcher that captures every
// response for audit.
package source

import (
	"context"

	"github.com/jprome/auct-alert/internal/model"
)

// RawListing is one unparsed listing as pulled from a source. All fields
// are raw strings; the normalizer owns type conversion and cleanup.
type RawListing struct {
	SourceItemID string // source-native identifier, without prefix
	Source       model.AuctionSource
	SourceURL    string

	Title       string
	Description string

	CurrentPrice  string
	StartingPrice string
	BuyNowPrice   string

	ClosingAt string // raw datetime text

	City  string
	State string

	// RawRef points at the captured payload this listing came from.
	RawRef string
}

// Scraper fetches listings from one auction site.
type Scraper interface {
	Source() model.AuctionSource
	FetchListings(ctx context.Context) ([]RawListing, error)
}

// PayloadStore persists captured scrape responses.
type PayloadStore interface {
	StoreRawPayload(ctx context.Context, p *model.RawPayload) error
}
