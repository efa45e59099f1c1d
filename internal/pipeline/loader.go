package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/loreguard/internal/extract"
	"github.com/ppiankov/loreguard/internal/model"
	"github.com/ppiankov/loreguard/internal/util"
	"github.com/ppiankov/loreguard/internal/worker"
)

const fetchAttempts = 3

// fetchSleepFunc is replaced in tests
var fetchSleepFunc = time.Sleep

// ErrDisallowed is returned when robots.txt forbids fetching a document
var ErrDisallowed = errors.New("disallowed by robots.txt")

// fetchStatusError is a non-2xx reply to a document fetch
type fetchStatusError struct {
	StatusCode int
	Status     string
}

func (e *fetchStatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.StatusCode, e.Status)
}

// Loader reads narrative and backstory documents from files or http(s) URLs.
// HTML documents are reduced to their visible text.
type Loader struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	pacer      *worker.Limiter
	logger     *zap.Logger
}

// NewLoader creates a loader from the fetch settings
func NewLoader(cfg model.FetchConfig, proxy util.ProxyConfig, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := util.NewHTTPClient(time.Duration(cfg.Timeout)*time.Second, proxy)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 3 {
			return fmt.Errorf("stopped after 3 redirects")
		}
		return nil
	}

	l := &Loader{
		httpClient: client,
		userAgent:  cfg.UserAgent,
		maxBytes:   cfg.MaxBodyBytes,
		pacer:      worker.LimiterFromConfig(model.RateLimitingConfig{}),
		logger:     logger,
	}
	if cfg.RespectRobots {
		l.robots = util.NewRobotsChecker(cfg.UserAgent, client)
	}
	return l
}

// Load returns the text content of source
func (l *Loader) Load(ctx context.Context, source string) (string, error) {
	if isURL(source) {
		return l.loadURL(ctx, source)
	}
	return l.loadFile(source)
}

func (l *Loader) loadFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if l.maxBytes > 0 && info.Size() > l.maxBytes {
		return "", fmt.Errorf("%s is %d bytes, larger than the %d byte limit", path, info.Size(), l.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	content := string(data)
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".html" || ext == ".htm" || extract.LooksLikeHTML("", content) {
		return extract.VisibleText(content)
	}
	return content, nil
}

func (l *Loader) loadURL(ctx context.Context, rawURL string) (string, error) {
	var crawlDelay time.Duration
	if l.robots != nil {
		allowed, delay, err := l.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return "", fmt.Errorf("robots check: %w", err)
		}
		if !allowed {
			return "", fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		crawlDelay = delay
	}
	if crawlDelay > 0 {
		l.logger.Debug("Honoring crawl delay", zap.String("url", rawURL), zap.Duration("delay", crawlDelay))
	}
	if err := l.pacer.WaitWithDelay(ctx, rawURL, crawlDelay); err != nil {
		return "", err
	}

	body, contentType, err := l.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if extract.LooksLikeHTML(contentType, body) {
		return extract.VisibleText(body)
	}
	return body, nil
}

// FetchWithRetry fetches rawURL, retrying transient failures with a short
// backoff. It returns the body and its content type.
func (l *Loader) FetchWithRetry(ctx context.Context, rawURL string) (string, string, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		body, contentType, err := l.fetch(ctx, rawURL)
		if err == nil {
			return body, contentType, nil
		}
		lastErr = err

		if !isRetryableFetchError(err) || attempt == fetchAttempts || ctx.Err() != nil {
			break
		}
		l.logger.Debug("Retrying document fetch", zap.String("url", rawURL), zap.Int("attempt", attempt), zap.Error(err))
		fetchSleepFunc(time.Duration(attempt) * 500 * time.Millisecond)
	}
	return "", "", lastErr
}

func (l *Loader) fetch(ctx context.Context, rawURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", &fetchStatusError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	reader := io.Reader(resp.Body)
	if l.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, l.maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}
	if l.maxBytes > 0 && int64(len(body)) > l.maxBytes {
		return "", "", fmt.Errorf("%s exceeds the %d byte limit", rawURL, l.maxBytes)
	}

	return string(body), resp.Header.Get("Content-Type"), nil
}

// isRetryableFetchError reports whether a fetch failure is worth retrying:
// 429, 5xx and transport errors
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *fetchStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func isURL(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
