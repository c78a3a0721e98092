package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adscraper/pkg/challenge"
	"adscraper/pkg/config"
	"adscraper/pkg/fetch"
	"adscraper/pkg/logger"
	"adscraper/pkg/pacing"
)

// scriptedFetcher serves canned responses keyed by URL, falling back to a
// default function, and records per-host cookies like the real client
type scriptedFetcher struct {
	mu      sync.Mutex
	handler func(url string, call int) (*fetch.RawResponse, error)
	calls   int
	cookies map[string]string
}

func newScriptedFetcher(handler func(url string, call int) (*fetch.RawResponse, error)) *scriptedFetcher {
	return &scriptedFetcher{
		handler: handler,
		cookies: make(map[string]string),
	}
}

func (f *scriptedFetcher) Fetch(_ context.Context, rawURL string) (*fetch.RawResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.handler(rawURL, call)
}

func (f *scriptedFetcher) SetHostCookies(host, cookies string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies[host] = cookies
}

func (f *scriptedFetcher) hostCookies(host string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookies[host]
}

type fixedSolver struct {
	result challenge.SolverResult
	err    error
	calls  int
	mu     sync.Mutex
}

func (s *fixedSolver) Solve(context.Context, challenge.Challenge) (challenge.SolverResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.result, s.err
}

func listingHTML(n int) string {
	page := "<html><body>"
	for i := 0; i < n; i++ {
		page += fmt.Sprintf(`<div class="ad"><a href="/ad/%d"><span class="t">Ad %d</span></a><span class="p">%d &#8364;</span></div>`, i, i, (i+1)*10)
	}
	return page + "</body></html>"
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Targets = []config.TargetConfig{{
		Name:     "example",
		URL:      "https://www.example.com/search",
		Keywords: []string{"bike"},
		Selectors: config.SelectorConfig{
			Record: "div.ad",
			Title:  ".t",
			Price:  ".p",
		},
	}}
	cfg.Scraping.MaxPages = 2
	cfg.Scraping.Workers = 2
	cfg.Pacing.BaseInterval = time.Millisecond
	cfg.Pacing.MinInterval = 0
	cfg.Pacing.MaxDelay = 8 * time.Millisecond
	cfg.Pacing.MaxBackoffLevel = 3
	cfg.Pacing.JitterFraction = 0
	cfg.Challenge.ResolutionDeadline = time.Second
	cfg.Challenge.MaxResolutionRetries = 2
	cfg.Challenge.MaxEncounters = 5
	cfg.Challenge.CooldownBase = time.Millisecond
	cfg.Challenge.CooldownSpread = 0
	cfg.Limits.MaxNetworkRetries = 2
	return cfg
}

func newTestScraper(t *testing.T, cfg *config.Config, fetcher fetch.Fetcher, solver challenge.Solver) *Scraper {
	t.Helper()
	s := New(cfg, fetcher, solver, logger.NewTestLogger())
	s.SessionDir = t.TempDir()
	return s
}

func TestRunCollectsRecords(t *testing.T) {
	fetcher := newScriptedFetcher(func(url string, _ int) (*fetch.RawResponse, error) {
		return &fetch.RawResponse{StatusCode: 200, Body: listingHTML(2), URL: url}, nil
	})

	s := newTestScraper(t, testConfig(t), fetcher, &fixedSolver{})
	result, err := s.Run(context.Background())
	require.NoError(t, err)

	// Two pages serve the same two ads; duplicates collapse
	assert.Equal(t, 2, result.Stats.TotalRecords)
	require.Len(t, result.Records, 2)
	assert.Equal(t, "Ad 0", result.Records[0].Title)
	assert.Equal(t, "example", result.Records[0].Target)
	assert.Equal(t, 2, result.Stats.SuccessfulPages)
	assert.Equal(t, 0, result.Stats.TargetsAborted)
}

func TestRunChallengeResolvedAndPageRetried(t *testing.T) {
	captchaPage := `<html><body><div class="g-recaptcha">verify</div></body></html>`
	fetcher := newScriptedFetcher(func(url string, call int) (*fetch.RawResponse, error) {
		if call == 1 {
			return &fetch.RawResponse{StatusCode: 200, Body: captchaPage, URL: url}, nil
		}
		return &fetch.RawResponse{StatusCode: 200, Body: listingHTML(1), URL: url}, nil
	})
	solver := &fixedSolver{result: challenge.SolverResult{Cookies: "clearance=ok"}}

	cfg := testConfig(t)
	cfg.Scraping.MaxPages = 1
	s := newTestScraper(t, cfg, fetcher, solver)

	result, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, solver.calls)
	assert.Equal(t, 1, result.Stats.CaptchaEncounters)
	assert.Equal(t, 1, result.Stats.ChallengesResolved)
	assert.Equal(t, 1, result.Stats.TotalRecords, "the blocked page is retried after resolution")
	assert.Equal(t, "clearance=ok", fetcher.hostCookies("www.example.com"),
		"resolved credentials are applied to the fetcher")
}

func TestRunChallengeFailureAbandonsTarget(t *testing.T) {
	captchaPage := `<html><body><script src="https://js.hcaptcha.com/1/api.js"></script></body></html>`
	fetcher := newScriptedFetcher(func(url string, _ int) (*fetch.RawResponse, error) {
		return &fetch.RawResponse{StatusCode: 200, Body: captchaPage, URL: url}, nil
	})
	solver := &fixedSolver{err: errors.New("solver backend down")}

	cfg := testConfig(t)
	s := newTestScraper(t, cfg, fetcher, solver)

	result, err := s.Run(context.Background())
	require.NoError(t, err, "per-target failures do not fail the run by default")
	assert.Equal(t, 1, result.Stats.TargetsAborted)
	assert.Equal(t, cfg.Challenge.MaxResolutionRetries, solver.calls)
	assert.Empty(t, result.Records)
}

func TestRunChallengeFailureAbortsRunWhenConfigured(t *testing.T) {
	captchaPage := `<html><body>cf-browser-verification</body></html>`
	fetcher := newScriptedFetcher(func(url string, _ int) (*fetch.RawResponse, error) {
		return &fetch.RawResponse{StatusCode: 200, Body: captchaPage, URL: url}, nil
	})
	solver := &fixedSolver{err: errors.New("solver backend down")}

	cfg := testConfig(t)
	cfg.Limits.AbortOnFailure = true
	s := newTestScraper(t, cfg, fetcher, solver)

	_, err := s.Run(context.Background())
	require.Error(t, err)

	var terr *TargetError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "example", terr.Target)
	assert.ErrorIs(t, err, challenge.ErrChallengeFailed)
}

func TestRunRateLimitExhaustion(t *testing.T) {
	// Every response is a challenge page and the solver succeeds without
	// clearing the block, so the backoff level climbs to its ceiling
	captchaPage := `<html><body><div class="g-recaptcha"></div></body></html>`
	fetcher := newScriptedFetcher(func(url string, _ int) (*fetch.RawResponse, error) {
		return &fetch.RawResponse{StatusCode: 200, Body: captchaPage, URL: url}, nil
	})
	solver := &fixedSolver{result: challenge.SolverResult{Cookies: "c=1"}}

	cfg := testConfig(t)
	cfg.Limits.AbortOnFailure = true
	cfg.Challenge.MaxEncounters = 100
	s := newTestScraper(t, cfg, fetcher, solver)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, pacing.ErrRateLimitExhausted)
}

func TestRunThrottledPagesAreAbandoned(t *testing.T) {
	fetcher := newScriptedFetcher(func(url string, _ int) (*fetch.RawResponse, error) {
		return &fetch.RawResponse{StatusCode: 429, Body: "slow down", URL: url}, nil
	})

	cfg := testConfig(t)
	cfg.Scraping.MaxPages = 1
	s := newTestScraper(t, cfg, fetcher, &fixedSolver{})

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.FailedPages)
	assert.Empty(t, result.Records)
}

func TestRunNetworkErrorsRespectRetryLimit(t *testing.T) {
	fetcher := newScriptedFetcher(func(string, int) (*fetch.RawResponse, error) {
		return nil, errors.New("connection refused")
	})

	cfg := testConfig(t)
	cfg.Scraping.MaxPages = 1
	s := newTestScraper(t, cfg, fetcher, &fixedSolver{})

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.FailedPages)
	// Initial attempt plus the configured retries
	assert.Equal(t, cfg.Limits.MaxNetworkRetries+1, fetcher.calls)
}

func TestRunCancellationFlushesRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := newScriptedFetcher(func(url string, call int) (*fetch.RawResponse, error) {
		if call >= 2 {
			cancel()
		}
		return &fetch.RawResponse{StatusCode: 200, Body: listingHTML(1), URL: url}, nil
	})

	cfg := testConfig(t)
	cfg.Scraping.MaxPages = 10
	s := newTestScraper(t, cfg, fetcher, &fixedSolver{})

	result, err := s.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, result.Records, 1, "records collected before cancellation survive")
}

func TestRunResumeSkipsCompletedPages(t *testing.T) {
	var urls []string
	var mu sync.Mutex
	fetcher := newScriptedFetcher(func(url string, _ int) (*fetch.RawResponse, error) {
		mu.Lock()
		urls = append(urls, url)
		mu.Unlock()
		return &fetch.RawResponse{StatusCode: 200, Body: listingHTML(2), URL: url}, nil
	})

	cfg := testConfig(t)
	dir := t.TempDir()

	first := New(cfg, fetcher, &fixedSolver{}, logger.NewTestLogger())
	first.SessionDir = dir
	_, err := first.Run(context.Background())
	require.NoError(t, err)

	mu.Lock()
	urls = nil
	mu.Unlock()

	second := New(cfg, fetcher, &fixedSolver{}, logger.NewTestLogger())
	second.SessionDir = dir
	second.Resume = true
	_, err = second.Run(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	for _, u := range urls {
		assert.NotContains(t, u, "page=1", "resumed run starts past the persisted page")
	}
}

func TestBuildPageURL(t *testing.T) {
	u, err := buildPageURL("https://www.example.com/search?sort=date", "bikes", "mountain bike", 3)
	require.NoError(t, err)
	assert.Equal(t, "https://www.example.com/search?category=bikes&page=3&sort=date&text=mountain+bike", u)

	u, err = buildPageURL("https://www.example.com/search", "", "", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://www.example.com/search?page=1", u)

	_, err = buildPageURL("://bad", "", "x", 1)
	assert.Error(t, err)
}
