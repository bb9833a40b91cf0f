package scrape

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

var recordIDPattern = regexp.MustCompile(`\{"recordId":"(.*?)"\}`)

// RecordIDSource finds the price article's record id for a locale.
type RecordIDSource interface {
	RecordID(ctx context.Context, locale string) (string, error)
}

// ExtractRecordID returns the first record id embedded in a rendered page.
func ExtractRecordID(page string) (string, bool) {
	m := recordIDPattern.FindStringSubmatch(page)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// BrowserRecordSource renders the article page in headless Chrome. The id
// only appears after the page's scripts run.
type BrowserRecordSource struct {
	baseURL     string
	bin         string
	navTimeout  time.Duration
	logger      zerolog.Logger
	mu          sync.Mutex
	browser     *rod.Browser
	launcherRef *launcher.Launcher
}

// NewBrowserRecordSource creates a source. The browser starts lazily on first use.
func NewBrowserRecordSource(baseURL string) *BrowserRecordSource {
	return &BrowserRecordSource{
		baseURL:    baseURL,
		navTimeout: 30 * time.Second,
		logger:     zerolog.Nop(),
	}
}

// WithBin uses a specific Chrome binary instead of the auto-downloaded one.
func (s *BrowserRecordSource) WithBin(path string) *BrowserRecordSource {
	s.bin = path
	return s
}

// WithLogger sets the logger.
func (s *BrowserRecordSource) WithLogger(l zerolog.Logger) *BrowserRecordSource {
	s.logger = l
	return s
}

func (s *BrowserRecordSource) connect() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		return s.browser, nil
	}

	l := launcher.New().Headless(true).NoSandbox(true)
	if s.bin != "" {
		l = l.Bin(s.bin)
	}
	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	s.logger.Info().Str("url", wsURL).Msg("browser launched")
	s.browser, s.launcherRef = b, l
	return b, nil
}

// RecordID opens <base>/<locale>/article/disneyplus-price and scans the DOM.
func (s *BrowserRecordSource) RecordID(ctx context.Context, locale string) (string, error) {
	b, err := s.connect()
	if err != nil {
		return "", err
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	pageURL := fmt.Sprintf("%s/%s/article/disneyplus-price", s.baseURL, locale)
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return "", fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.logger.Warn().Str("url", pageURL).Err(err).Msg("page did not settle")
	}
	html, err := page.Context(navCtx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: read DOM: %w", err)
	}

	id, ok := ExtractRecordID(html)
	if !ok {
		return "", fmt.Errorf("no recordId found for locale %s", locale)
	}
	return id, nil
}

// Close shuts the browser down.
func (s *BrowserRecordSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.launcherRef.Kill()
	s.browser, s.launcherRef = nil, nil
	return err
}
