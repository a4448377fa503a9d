// internal/adapters/remote/client.go
package remote

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"airbnb_insights/internal/adapters/filesource"
	"airbnb_insights/internal/adapters/observability"
	"airbnb_insights/internal/domain"
	"airbnb_insights/internal/mapper"
)

// Client downloads a listings export (CSV or a JSON array of documents).
type Client struct {
	url string
	hc  *http.Client
	key string
	rl  *rate.Limiter
}

func New(exportURL, key string, rps int) (*Client, error) {
	u, err := url.Parse(exportURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("export URL %q is not absolute", exportURL)
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		url: exportURL,
		hc:  &http.Client{Timeout: 60 * time.Second},
		key: key,
		rl:  rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (c *Client) Name() string { return "http" }

var (
	ErrNotFound  = errors.New("remote: export not found")
	errPermanent = errors.New("remote: unexpected status")
)

// LoadListings fetches the export and decodes it by content type.
func (c *Client) LoadListings(ctx context.Context) ([]domain.ListingRecord, error) {
	body, ctype, err := c.get(ctx, c.url)
	if err != nil {
		return nil, err
	}
	var (
		recs    []domain.ListingRecord
		skipped int
	)
	if isCSV(ctype, c.url) {
		recs, skipped, err = filesource.DecodeCSV(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
	} else {
		var docs []map[string]any
		if err := json.Unmarshal(body, &docs); err != nil {
			return nil, fmt.Errorf("remote: decode json: %w", err)
		}
		recs, skipped = mapper.Listings(docs)
	}
	log.Info().Str("url", c.url).Int("rows", len(recs)).Int("skipped", skipped).Msg("remote export loaded")
	return recs, nil
}

func isCSV(ctype, rawURL string) bool {
	mt, _, _ := mime.ParseMediaType(ctype)
	switch mt {
	case "text/csv", "application/csv", "text/plain":
		return true
	case "application/json":
		return false
	}
	return strings.HasSuffix(strings.ToLower(strings.SplitN(rawURL, "?", 2)[0]), ".csv")
}

const maxAttempts = 4

// errRetry marks a response worth another attempt; wait is the server's
// Retry-After hint, zero when absent.
type errRetry struct {
	status int
	wait   time.Duration
}

func (e *errRetry) Error() string { return fmt.Sprintf("remote: status %d", e.status) }

// get downloads the export under the client rate limit. Network errors, 429
// and transient 5xx are retried with backoff, honoring Retry-After.
func (c *Client) get(ctx context.Context, url string) ([]byte, string, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, "", err
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, ctype, err := c.fetch(ctx, url)
		if err == nil {
			return body, ctype, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		wait := backoff(attempt)
		var re *errRetry
		switch {
		case errors.As(err, &re):
			if re.wait > 0 {
				wait = re.wait
			}
		case errors.Is(err, ErrNotFound), errors.Is(err, errPermanent):
			return nil, "", err
		}
		if attempt == maxAttempts-1 {
			break
		}
		log.Debug().Err(err).Dur("wait", wait).Int("attempt", attempt+1).Msg("remote export retry")
		if !sleepCtx(ctx, wait) {
			return nil, "", ctx.Err()
		}
	}
	return nil, "", lastErr
}

// fetch makes one attempt.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errPermanent, err)
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	req.Header.Set("Accept", "text/csv, application/json")
	req.Header.Set("User-Agent", "airbnb-insights/1.0")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("remote", "export", 0, time.Since(start))
		return nil, "", err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("remote", "export", resp.StatusCode, time.Since(start))

	switch code := resp.StatusCode; {
	case code == http.StatusOK:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", err
		}
		return b, resp.Header.Get("Content-Type"), nil
	case code == http.StatusNotFound:
		return nil, "", ErrNotFound
	case code == http.StatusTooManyRequests, code >= 500:
		return nil, "", &errRetry{status: code, wait: retryAfter(resp)}
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("%w %d: %s", errPermanent, code, strings.TrimSpace(string(b)))
	}
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
