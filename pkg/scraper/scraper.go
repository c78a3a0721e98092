// Package scraper runs the fetch loops. One loop per target, targets
// concurrent up to the configured worker limit, each loop sequencing
// pacing, fetch, outcome classification, challenge handling, extraction
// and session persistence for its host.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"adscraper/pkg/challenge"
	"adscraper/pkg/config"
	"adscraper/pkg/fetch"
	"adscraper/pkg/logger"
	"adscraper/pkg/models"
	"adscraper/pkg/pacing"
	"adscraper/pkg/ratelimit"
	"adscraper/pkg/session"
)

// Result is what a completed run produced
type Result struct {
	Records []models.Record
	Stats   *models.SessionStats
}

// Scraper coordinates the per-target fetch loops
type Scraper struct {
	cfg        *config.Config
	fetcher    fetch.Fetcher
	solver     challenge.Solver
	pacer      *pacing.Controller
	classifier *challenge.Classifier
	challenges *challenge.Handler
	log        logger.Logger

	// SessionDir overrides the platform session directory when set
	SessionDir string
	// Resume continues each keyword from its last persisted page
	Resume bool

	mu      sync.Mutex
	records []models.Record
	stats   models.SessionStats
}

// New creates a scraper with an explicit fetcher and solver. Most callers
// want NewDefault.
func New(cfg *config.Config, fetcher fetch.Fetcher, solver challenge.Solver, log logger.Logger) *Scraper {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Scraper{
		cfg:        cfg,
		fetcher:    fetcher,
		solver:     solver,
		pacer:      pacing.NewController(pacing.NewRegistry(), cfg.Pacing, log),
		classifier: challenge.NewClassifier(cfg.Challenge),
		challenges: challenge.NewHandler(cfg.Challenge, log),
		log:        log,
	}
}

// NewDefault creates a scraper with the HTTP fetcher and the solver named
// by the challenge configuration.
func NewDefault(cfg *config.Config, solver challenge.Solver, log logger.Logger) *Scraper {
	limiter := ratelimit.NewHostLimiter(cfg.Pacing.RequestsPerSecond, cfg.Pacing.Burst)
	return New(cfg, fetch.NewClient(cfg, limiter, log), solver, log)
}

// Registry exposes the pacing registry for reporting
func (s *Scraper) Registry() *pacing.Registry {
	return s.pacer.Registry()
}

// Run executes every configured target and returns the collected records
// and run statistics. A cancelled context flushes what was already
// collected; the records in the Result are valid even when err is not nil.
func (s *Scraper) Run(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	s.stats = models.SessionStats{StartTime: time.Now()}
	s.records = nil
	s.mu.Unlock()

	workers := s.cfg.Scraping.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, target := range s.cfg.Targets {
		target := target
		g.Go(func() error {
			err := s.scrapeTarget(gctx, target)
			if err == nil {
				return nil
			}

			var terr *TargetError
			if errors.As(err, &terr) && !s.cfg.Limits.AbortOnFailure {
				// Per-target failure with the run policy set to continue:
				// record it and let the other targets finish.
				s.log.ErrorWithFields("target abandoned", map[string]interface{}{
					"target": terr.Target,
					"host":   terr.Host,
					"error":  terr.Err.Error(),
				})
				s.mu.Lock()
				s.stats.TargetsAborted++
				s.mu.Unlock()
				return nil
			}
			return err
		})
	}

	runErr := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.EndTime = time.Now()
	s.stats.TotalRecords = len(s.records)
	s.stats.CaptchaEncounters = s.challenges.Encounters()
	s.stats.ChallengesResolved = s.challenges.Resolved()

	statsCopy := s.stats
	return &Result{
		Records: append([]models.Record(nil), s.records...),
		Stats:   &statsCopy,
	}, runErr
}

// sessionManagerFor returns the session manager for a target
func (s *Scraper) sessionManagerFor(name string) (*session.Manager, error) {
	if s.SessionDir != "" {
		return session.NewManagerAt(filepath.Join(s.SessionDir, name+".session.json")), nil
	}
	return session.NewManager(name)
}

// buildPageURL produces the search URL for one page of results
func buildPageURL(base, category, keyword string, page int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid target URL %q: %w", base, err)
	}

	q := u.Query()
	if category != "" {
		q.Set("category", category)
	}
	if keyword != "" {
		q.Set("text", keyword)
	}
	q.Set("page", fmt.Sprintf("%d", page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Scraper) addRecords(records []models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

func (s *Scraper) pageDone(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.stats.SuccessfulPages++
	} else {
		s.stats.FailedPages++
	}
}
