package scraper

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/Clean1ines/iXe/internal/browser"
	"github.com/Clean1ines/iXe/internal/models"
	"github.com/Clean1ines/iXe/internal/normalize"
	"github.com/Clean1ines/iXe/internal/utils"
)

// ErrFetch is returned once both the direct path and the render
// fallback are exhausted.
var ErrFetch = errors.New("fetch failed")

// defaultBackoff holds the delays slept between direct attempts. The
// attempt count is always len(backoff)+1, so this schedule yields three
// attempts with 0.5s and 1s gaps.
var defaultBackoff = []time.Duration{500 * time.Millisecond, time.Second}

// PageRenderer is the render fallback, satisfied by browser.Renderer.
type PageRenderer interface {
	Render(ctx context.Context, url string, wait browser.WaitCondition, timeout time.Duration) (string, error)
}

// FetchResult is one fetched page.
type FetchResult struct {
	Status  int
	Body    []byte
	Method  models.FetchMethod
	Latency time.Duration
}

// Fetcher retrieves pages over plain HTTP and falls back to headless
// rendering when the direct path cannot produce usable markup: TLS
// failures, bot-protection responses, or pages whose content only
// exists after script execution.
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	renderer PageRenderer

	wait          browser.WaitCondition
	contentMarker string
	userAgent     string

	backoff       []time.Duration
	fetchTimeout  time.Duration
	renderTimeout time.Duration
}

// FetcherConfig wires a Fetcher.
type FetcherConfig struct {
	Limiter       *rate.Limiter
	Renderer      PageRenderer
	Wait          browser.WaitCondition
	ContentMarker string // substring expected in usable markup, e.g. "qblock"
	UserAgent     string
	FetchTimeout  time.Duration
	RenderTimeout time.Duration
	InsecureTLS   bool

	// Backoff overrides the inter-attempt delays; the direct path makes
	// len(Backoff)+1 attempts. Used by tests.
	Backoff []time.Duration
}

// NewFetcher builds a fetcher with the site's browser-like headers.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = defaultBackoff
	}
	client := &http.Client{Timeout: cfg.FetchTimeout}
	if cfg.InsecureTLS {
		client.Transport = insecureTransport()
	}
	return &Fetcher{
		client:        client,
		limiter:       cfg.Limiter,
		renderer:      cfg.Renderer,
		wait:          cfg.Wait,
		contentMarker: cfg.ContentMarker,
		userAgent:     cfg.UserAgent,
		backoff:       backoff,
		fetchTimeout:  cfg.FetchTimeout,
		renderTimeout: cfg.RenderTimeout,
	}
}

// Fetch retrieves url. The direct path gets one attempt per backoff
// delay plus the initial one; the render fallback is attempted exactly
// once because it is the path of last resort.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	var lastErr error
	needRender := false

	attempts := len(f.backoff) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(f.backoff[attempt-1]):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		res, err := f.fetchDirect(ctx, url)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if isRenderEscalation(err) {
			// Retrying the direct path cannot help: go straight to
			// the browser.
			needRender = true
			break
		}
		utils.Warnf("direct fetch attempt %d/%d failed [%s]: %v", attempt+1, attempts, url, err)
	}
	if !needRender {
		utils.Warnf("direct fetch exhausted [%s], falling back to render: %v", url, lastErr)
	}

	if f.renderer == nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, url, lastErr)
	}

	res, err := f.fetchRendered(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: direct: %v; rendered: %v", ErrFetch, url, lastErr, err)
	}
	return res, nil
}

// errEscalate marks failures where the render fallback is the only
// option: TLS breakage, bot protection, script-only content.
type errEscalate struct{ err error }

func (e errEscalate) Error() string { return e.err.Error() }
func (e errEscalate) Unwrap() error { return e.err }

func isRenderEscalation(err error) bool {
	var esc errEscalate
	return errors.As(err, &esc)
}

// fetchDirect performs one rate-limited GET.
func (f *Fetcher) fetchDirect(ctx context.Context, url string) (*FetchResult, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	f.setHeaders(req)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if isTLSError(err) {
			return nil, errEscalate{fmt.Errorf("tls failure: %w", err)}
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	latency := time.Since(start)

	if isBotProtection(resp.StatusCode) {
		return nil, errEscalate{fmt.Errorf("bot protection response: HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	// The bank serves windows-1251; downstream parsing expects UTF-8.
	body = normalize.DecodeToUTF8(body, resp.Header.Get("Content-Type"))

	if f.contentMarker != "" && !strings.Contains(string(body), f.contentMarker) {
		return nil, errEscalate{fmt.Errorf("response lacks %q marker: content is script-rendered", f.contentMarker)}
	}

	return &FetchResult{
		Status:  resp.StatusCode,
		Body:    body,
		Method:  models.FetchDirect,
		Latency: latency,
	}, nil
}

// fetchRendered drives the pooled browser once.
func (f *Fetcher) fetchRendered(ctx context.Context, url string) (*FetchResult, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	html, err := f.renderer.Render(ctx, url, f.wait, f.renderTimeout)
	if err != nil {
		return nil, err
	}

	return &FetchResult{
		Status:  http.StatusOK,
		Body:    []byte(html),
		Method:  models.FetchRendered,
		Latency: time.Since(start),
	}, nil
}

func (f *Fetcher) setHeaders(req *http.Request) {
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
}

// decodeBody handles the content encodings the site serves. The
// transport's transparent gzip is disabled once Accept-Encoding is set
// manually, so all three are decoded here.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(reader)
}

// isTLSError recognizes certificate and handshake failures on the
// direct path. The headless browser ignores certificate errors, so
// these escalate immediately.
func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return true
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}
	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &certInvalid) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "tls:") || strings.Contains(msg, "x509:")
}

// insecureTransport skips certificate verification, matching the
// headless browser's ignore-certificate-errors mode. The bank serves a
// certificate chain many trust stores reject.
func insecureTransport() *http.Transport {
	return &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
}

// isBotProtection covers the statuses the bank's anti-bot layer emits.
func isBotProtection(status int) bool {
	switch status {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	return false
}
