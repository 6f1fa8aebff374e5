// Package fetch downloads catalog item images from shop pages. Shops
// frequently gate image CDNs behind session cookies, so the fetcher can
// prime a cookie jar by visiting the shop page before requesting the image.
package fetch

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxImageBytes bounds the downloaded image size (20 MiB).
const maxImageBytes = 20 << 20

// Fetcher downloads images and returns them as data URLs ready for the
// image embedding provider.
type Fetcher struct {
	httpClient   *http.Client
	primeCookies bool
	logger       *zap.Logger
}

// Config holds fetcher settings.
type Config struct {
	Timeout      time.Duration
	PrimeCookies bool
	Logger       *zap.Logger
}

// New creates a Fetcher with its own cookie jar.
func New(cfg *Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		primeCookies: cfg.PrimeCookies,
		logger:       cfg.Logger,
	}
}

// FetchImage downloads imageURL and returns it as a base64 data URL.
// When cookie priming is enabled and pageURL is non-empty, the page is
// visited first so session cookies land in the jar.
func (f *Fetcher) FetchImage(ctx context.Context, imageURL, pageURL string) (string, error) {
	ua := randomUserAgent()

	if f.primeCookies && pageURL != "" {
		if err := f.prime(ctx, pageURL, ua); err != nil {
			// Priming is best-effort, the image may still be reachable.
			f.logger.Warn("Cookie priming failed",
				zap.String("page_url", pageURL),
				zap.Error(err),
			)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", ua)
	if pageURL != "" {
		req.Header.Set("Referer", pageURL)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image body: %w", err)
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty image body")
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("not an image: content type %q", contentType)
	}

	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// prime visits the shop page so the server sets session cookies in the jar.
func (f *Fetcher) prime(ctx context.Context, pageURL, ua string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", ua)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("visit page: %w", err)
	}
	// Drain so the connection can be reused; the body itself is irrelevant.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.Body.Close()
}

var uaPlatforms = []string{"Windows NT 10.0; Win64; x64", "Macintosh; Intel Mac OS X 10_15_7", "X11; Linux x86_64"}

// randomUserAgent varies the browser fingerprint between requests so shop
// anti-bot heuristics do not pin a single client.
func randomUserAgent() string {
	platform := uaPlatforms[rand.Intn(len(uaPlatforms))]
	major := rand.Intn(20) + 110
	build := rand.Intn(9000) + 1000
	return fmt.Sprintf(
		"Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.%d.0 Safari/537.36",
		platform, major, build,
	)
}
