package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"leilao-insights/utils"
)

// maxBodyBytes caps how much of a listing page is read.
const maxBodyBytes = 10 << 20

// BrowserHeaders returns the request headers sent on every listing fetch so
// portals serve the same markup a desktop browser gets.
func BrowserHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":                userAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7",
		"Upgrade-Insecure-Requests": "1",
	}
}

// StaticFetcher retrieves raw markup with a plain HTTP GET.
type StaticFetcher struct {
	client  *http.Client
	headers map[string]string
	retry   *utils.RetryConfig
}

// NewStaticFetcher builds a fetcher whose every attempt is bounded by timeout.
// retry may be nil for a single attempt.
func NewStaticFetcher(timeout time.Duration, headers map[string]string, retry *utils.RetryConfig) *StaticFetcher {
	return &StaticFetcher{
		client:  &http.Client{Timeout: timeout},
		headers: headers,
		retry:   retry,
	}
}

// Fetch returns the body of target. Non-2xx responses are errors; client
// errors are not retried.
func (f *StaticFetcher) Fetch(ctx context.Context, target string) (string, error) {
	if f.retry == nil {
		return f.fetchOnce(ctx, target)
	}
	var body string
	err := f.retry.Do(ctx, "static-fetch", func() error {
		var err error
		body, err = f.fetchOnce(ctx, target)
		return err
	})
	return body, err
}

func (f *StaticFetcher) fetchOnce(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &utils.Permanent{Err: fmt.Errorf("fetch: build request: %w", err)}
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("fetch: %s returned HTTP %d", target, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", &utils.Permanent{Err: err}
		}
		return "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("fetch: read body: %w", err)
	}
	return string(body), nil
}
