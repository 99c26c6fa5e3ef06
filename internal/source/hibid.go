package source

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"

	"github.com/jprome/auct-alert/internal/config"
	"github.com/jprome/auct-alert/internal/model"
)

const hibidBaseURL = "https://www.hibid.com"

// hibidKeywords are the auction searches run each pass.
var hibidKeywords = []string{"furniture"}

// catalogLinkPattern matches auction catalog links like /catalog/697000/slug.
var catalogLinkPattern = regexp.MustCompile(`<a[^>]+href="(/catalog/(\d+)[^"]*)"[^>]*>((?s:.*?))</a>`)

// HiBidScraper pulls auction catalogs from hibid.com. The site is a
// client-rendered SPA, so it needs a real browser instead of the plain
// HTTP fetcher.
type HiBidScraper struct {
	cfg      config.BrowserConfig
	payloads PayloadStore
	logger   *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

func NewHiBidScraper(cfg config.BrowserConfig, payloads PayloadStore, logger *slog.Logger) *HiBidScraper {
	return &HiBidScraper{
		cfg:      cfg,
		payloads: payloads,
		logger:   logger,
	}
}

func (s *HiBidScraper) Source() model.AuctionSource {
	return model.SourceHiBid
}

func (s *HiBidScraper) FetchListings(ctx context.Context) ([]RawListing, error) {
	browser, err := s.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var all []RawListing
	var lastErr error

	for _, keyword := range hibidKeywords {
		listings, err := s.searchKeyword(ctx, browser, keyword)
		if err != nil {
			s.logger.Warn("hibid search failed",
				slog.String("keyword", keyword),
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
		return nil, fmt.Errorf("hibid: all searches failed: %w", lastErr)
	}
	return all, nil
}

func (s *HiBidScraper) searchKeyword(ctx context.Context, browser *rod.Browser, keyword string) ([]RawListing, error) {
	searchURL := fmt.Sprintf("%s/auctions/%s?state=FL", hibidBaseURL, keyword)

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	timeout := s.cfg.PageTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	page = page.Context(ctx).Timeout(timeout)

	if err := page.Navigate(searchURL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", searchURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load %s: %w", searchURL, err)
	}
	// Let the SPA finish rendering the result cards.
	time.Sleep(2 * time.Second)

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}

	rawRef := s.archive(ctx, searchURL, html)
	return s.parseCatalogLinks(html, rawRef), nil
}

func (s *HiBidScraper) parseCatalogLinks(html, rawRef string) []RawListing {
	seen := map[string]bool{}
	var listings []RawListing

	for _, m := range catalogLinkPattern.FindAllStringSubmatch(html, -1) {
		path, catalogID, inner := m[1], m[2], m[3]
		if seen[catalogID] {
			continue
		}
		seen[catalogID] = true

		title := cleanAnchorText(inner)
		if title == "" {
			continue
		}

		listings = append(listings, RawListing{
			SourceItemID: catalogID,
			Source:       s.Source(),
			SourceURL:    hibidBaseURL + path,
			Title:        title,
			State:        "FL",
			RawRef:       rawRef,
		})
	}
	return listings
}

func (s *HiBidScraper) archive(ctx context.Context, url, content string) string {
	if s.payloads == nil {
		return ""
	}
	ref := "raw_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	err := s.payloads.StoreRawPayload(ctx, &model.RawPayload{
		ID:          ref,
		Source:      s.Source(),
		URL:         url,
		Content:     content,
		ContentType: "html",
		ScrapedAt:   time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("archive raw payload failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return ""
	}
	return ref
}

// ensureBrowser launches the headless browser on first use. Flags follow
// what containers and small hosts need (no sandbox, no /dev/shm, no GPU).
func (s *HiBidScraper) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		return s.browser, nil
	}

	bin := s.cfg.BinPath
	if bin == "" {
		s.logger.Info("no browser binary specified, downloading default")
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, fmt.Errorf("download browser: %w", err)
		}
		bin = path
	}

	l := launcher.New().
		Headless(s.cfg.Headless).
		Bin(bin).
		NoSandbox(true).
		Set("disable-dev-shm-usage", "true").
		Set("disable-gpu", "true").
		Set("disable-software-rasterizer", "true").
		Set("remote-allow-origins", "*")

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	// The browser outlives any single fetch; it is tied to the scraper,
	// not to the per-run context.
	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	s.browser = browser
	s.logger.Info("headless browser started", slog.Bool("headless", s.cfg.Headless))
	return browser, nil
}

// Close shuts the browser down. Safe to call without a prior fetch.
func (s *HiBidScraper) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		_ = s.browser.Close()
		s.browser = nil
	}
}
