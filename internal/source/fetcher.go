package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jprome/auct-alert/internal/model"
	"github.com/jprome/auct-alert/internal/pkg/ratelimit"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"

	// maxBodyBytes caps how much of a response we read and archive.
	maxBodyBytes = 4 << 20
)

// Fetcher is the shared HTTP layer of the plain-HTTP scrapers. Every
// request goes through the per-source rate limiter and every response body
// is archived as a raw payload.
type Fetcher struct {
	client   *http.Client
	limiter  *ratelimit.RateLimiter
	payloads PayloadStore
	logger   *slog.Logger
}

func NewFetcher(timeout time.Duration, limiter *ratelimit.RateLimiter, payloads PayloadStore, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		limiter:  limiter,
		payloads: payloads,
		logger:   logger,
	}
}

// Get fetches one URL and archives the body. It returns the body and the
// raw payload reference. Archive failures are logged, not fatal; losing
// the audit copy should not lose the scrape.
func (f *Fetcher) Get(ctx context.Context, src model.AuctionSource, url string) (string, string, error) {
	if err := f.limiter.Acquire(ctx); err != nil {
		return "", "", fmt.Errorf("rate limit %s: %w", src, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", fmt.Errorf("read body %s: %w", url, err)
	}

	rawRef := f.archive(ctx, src, url, string(body), contentTypeOf(resp))
	return string(body), rawRef, nil
}

// archive stores the payload and returns its reference, or "" on failure.
func (f *Fetcher) archive(ctx context.Context, src model.AuctionSource, url, content, contentType string) string {
	if f.payloads == nil {
		return ""
	}
	ref := "raw_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	err := f.payloads.StoreRawPayload(ctx, &model.RawPayload{
		ID:          ref,
		Source:      src,
		URL:         url,
		Content:     content,
		ContentType: contentType,
		ScrapedAt:   time.Now().UTC(),
	})
	if err != nil {
		f.logger.Warn("archive raw payload failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return ""
	}
	return ref
}

func contentTypeOf(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "json") {
		return "json"
	}
	return "html"
}
