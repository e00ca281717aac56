package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	mathrand "math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html/charset"

	"sjsage522/pepperwatch/logger"
	"sjsage522/pepperwatch/pkg/errors"
	"sjsage522/pepperwatch/services/cache"
)

// Request identity pools rotated across calls to stay under the radar
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	}

	referers = []string{
		"https://www.google.com/",
		"https://www.pepper.pl/",
		"https://www.bing.com/",
	}

	blockedStatusCodes = []int{http.StatusTooManyRequests, 430}
)

const cooldownPrefix = "pepper_blocked"

// Options configures a Fetcher
type Options struct {
	Timeout       time.Duration
	Retries       int
	Pacing        time.Duration
	BlockCooldown time.Duration
}

// Fetcher performs HTTP retrieval with retry, pacing and block cooldown.
// The cooldown state lives in the shared cache so all jobs back off together.
type Fetcher struct {
	client        *http.Client
	cacheSvc      cache.CacheService
	log           *logger.Logger
	retries       int
	pacing        time.Duration
	blockCooldown time.Duration

	mu          sync.Mutex
	nextAllowed time.Time
}

// New creates a new Fetcher
func New(cacheSvc cache.CacheService, opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Pacing == 0 {
		opts.Pacing = 1500 * time.Millisecond
	}
	if opts.BlockCooldown == 0 {
		opts.BlockCooldown = 500 * time.Second
	}

	return &Fetcher{
		client:        &http.Client{Timeout: opts.Timeout},
		cacheSvc:      cacheSvc,
		log:           logger.ForFetcher(),
		retries:       opts.Retries,
		pacing:        opts.Pacing,
		blockCooldown: opts.BlockCooldown,
	}
}

// Fetch retrieves url and returns its body decoded to UTF-8.
// Transient failures are retried with exponential backoff and jitter;
// anti-scraping blocks set a host cooldown and fail fast until it expires.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (io.Reader, error) {
	host := hostOf(pageURL)

	if f.coolingDown(host) {
		return nil, errors.NewBlocked(host, "host is cooling down after an anti-scraping block")
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
				return nil, errors.NewTransient(host, "fetch cancelled", err)
			}
		}

		if err := f.pace(ctx); err != nil {
			return nil, errors.NewTransient(host, "fetch cancelled", err)
		}

		body, err := f.fetchOnce(ctx, pageURL, host)
		if err == nil {
			return body, nil
		}

		lastErr = err
		if errors.IsBlocked(err) {
			f.startCooldown(host)
			return nil, err
		}
		if !errors.IsTransient(err) {
			return nil, err
		}

		f.log.Warn().
			Str("url", pageURL).
			Int("attempt", attempt+1).
			Err(err).
			Msg("Transient fetch failure")
	}

	return nil, lastErr
}

// fetchOnce performs a single paced request and classifies the response
func (f *Fetcher) fetchOnce(ctx context.Context, pageURL, host string) (io.Reader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set browser-like headers with a rotated identity
	req.Header.Set("User-Agent", userAgents[mathrand.IntN(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pl,en-US;q=0.7,en;q=0.3")
	req.Header.Set("Referer", referers[mathrand.IntN(len(referers))])
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NewTransient(host, "request failed", err)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))

	for _, code := range blockedStatusCodes {
		if resp.StatusCode == code {
			return nil, errors.NewBlocked(host, fmt.Sprintf("rate limited with status %d", resp.StatusCode))
		}
	}
	if resp.StatusCode == http.StatusForbidden {
		return nil, errors.NewBlocked(host, "forbidden, likely bot detection")
	}
	if resp.StatusCode >= 500 {
		return nil, errors.NewTransient(host, fmt.Sprintf("server error %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewStatus(host, resp.StatusCode)
	}
	if readErr != nil {
		return nil, errors.NewTransient(host, "failed to read response body", readErr)
	}
	if looksLikeChallenge(bodyBytes) {
		return nil, errors.NewBlocked(host, "challenge page served instead of content")
	}

	return decodeToUTF8(bodyBytes, resp.Header.Get("Content-Type"))
}

// pace enforces the minimum inter-request delay regardless of retries
func (f *Fetcher) pace(ctx context.Context) error {
	f.mu.Lock()
	now := time.Now()
	wait := f.nextAllowed.Sub(now)
	if wait < 0 {
		wait = 0
	}
	f.nextAllowed = now.Add(wait + f.pacing)
	f.mu.Unlock()

	return sleepCtx(ctx, wait)
}

// coolingDown reports whether the host has an active block cooldown
func (f *Fetcher) coolingDown(host string) bool {
	if f.cacheSvc == nil {
		return false
	}
	_, err := f.cacheSvc.Get(cooldownKey(host))
	return err == nil
}

// startCooldown records a block so subsequent fetches fail fast
func (f *Fetcher) startCooldown(host string) {
	if f.cacheSvc == nil {
		return
	}
	seconds := fmt.Sprintf("%d", int(f.blockCooldown.Seconds()))
	if err := f.cacheSvc.Set(cooldownKey(host), []byte(seconds), f.blockCooldown); err != nil {
		f.log.Warn().Str("host", host).Err(err).Msg("Failed to record block cooldown")
	}
	f.log.Warn().
		Str("host", host).
		Dur("cooldown", f.blockCooldown).
		Msg("Blocked by source, entering cooldown")
}

// decodeToUTF8 converts the body to UTF-8 based on headers and content sniffing
func decodeToUTF8(body []byte, contentType string) (io.Reader, error) {
	encoding, name, _ := charset.DetermineEncoding(body, contentType)
	if strings.EqualFold(name, "utf-8") {
		return bytes.NewReader(body), nil
	}

	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(body))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return nil, fmt.Errorf("failed to convert body to UTF-8: %w", err)
	}
	return &buf, nil
}

// looksLikeChallenge detects CAPTCHA or bot-wall pages served with status 200
func looksLikeChallenge(body []byte) bool {
	sample := bytes.ToLower(body[:min(len(body), 4096)])
	return bytes.Contains(sample, []byte("cf-challenge")) ||
		bytes.Contains(sample, []byte("g-recaptcha")) ||
		bytes.Contains(sample, []byte("are you a robot"))
}

func backoffDelay(attempt int) time.Duration {
	base := time.Second * time.Duration(1<<(attempt-1))
	jitter := time.Duration(mathrand.Int64N(int64(500 * time.Millisecond)))
	return base + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cooldownKey(host string) string {
	return cooldownPrefix + ":" + host
}

func hostOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return pageURL
	}
	return u.Host
}
