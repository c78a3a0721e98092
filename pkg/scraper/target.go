package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"adscraper/pkg/challenge"
	"adscraper/pkg/config"
	"adscraper/pkg/extract"
	"adscraper/pkg/fetch"
	"adscraper/pkg/logger"
	"adscraper/pkg/models"
	"adscraper/pkg/pacing"
	"adscraper/pkg/session"
)

// consecutive empty pages that end pagination for a keyword
const maxEmptyPages = 3

// scrapeTarget runs the sequential fetch loop for one target
func (s *Scraper) scrapeTarget(ctx context.Context, target config.TargetConfig) error {
	parsed, err := url.Parse(target.URL)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("target %s has an invalid URL %q", target.Name, target.URL)
	}
	host := parsed.Hostname()

	sm, err := s.sessionManagerFor(target.Name)
	if err != nil {
		return fmt.Errorf("session manager for %s: %w", target.Name, err)
	}
	state, err := sm.Load()
	if err != nil {
		return fmt.Errorf("loading session for %s: %w", target.Name, err)
	}
	if state == nil {
		state, err = sm.Create(target.Name, host)
		if err != nil {
			return fmt.Errorf("creating session for %s: %w", target.Name, err)
		}
	}

	// A previous run's verified cookies carry over
	if setter, ok := s.fetcher.(cookieSetter); ok && state.Cookies != "" {
		setter.SetHostCookies(host, state.Cookies)
	}

	sink := &credentialSink{fetcher: s.fetcher, manager: sm, state: state}
	extractor := extract.NewExtractor(target, s.log)

	s.log.InfoWithFields("target started", map[string]interface{}{
		"target": target.Name,
		"host":   host,
	})

	keywords := target.Keywords
	if len(keywords) == 0 {
		keywords = []string{""}
	}
	categories := target.Categories
	if len(categories) == 0 {
		categories = []string{""}
	}

	for _, category := range categories {
		for _, keyword := range keywords {
			if err := s.scrapeKeyword(ctx, target, host, category, keyword, extractor, sink, sm, state); err != nil {
				return err
			}
		}
	}

	s.log.InfoWithFields("target finished", map[string]interface{}{
		"target":  target.Name,
		"host":    host,
		"records": state.TotalRecords,
	})
	return nil
}

// scrapeKeyword pages through one category/keyword combination
func (s *Scraper) scrapeKeyword(ctx context.Context, target config.TargetConfig, host, category, keyword string,
	extractor *extract.Extractor, sink *credentialSink, sm *session.Manager, state *session.Session) error {

	progressKey := keyword
	if category != "" {
		progressKey = category + "/" + keyword
	}

	startPage := 1
	if s.Resume {
		startPage = state.ResumePage(progressKey)
	}

	maxPages := s.cfg.Scraping.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	emptyPages := 0
	for page := startPage; page <= maxPages; page++ {
		records, ok, err := s.fetchPage(ctx, target, host, category, keyword, page, extractor, sink)
		if err != nil {
			return err
		}
		if !ok {
			// Failed page already counted; move on
			continue
		}

		fresh := records[:0]
		for _, r := range records {
			if state.RecordSeen(r.URL) {
				r.Category = category
				fresh = append(fresh, r)
			}
		}

		if len(fresh) == 0 {
			emptyPages++
			if emptyPages >= maxEmptyPages {
				s.log.InfoWithFields("pagination exhausted", map[string]interface{}{
					"target":  target.Name,
					"keyword": keyword,
					"page":    page,
				})
				break
			}
			continue
		}
		emptyPages = 0

		s.addRecords(fresh)
		if err := sm.UpdateProgress(state, progressKey, page); err != nil {
			s.log.WarnWithFields("failed to persist progress", map[string]interface{}{
				"target": target.Name,
				"error":  err.Error(),
			})
		}
	}
	return nil
}

// fetchPage fetches and extracts one page, retrying under the pacing
// policy. It returns ok=false when the page was abandoned after retries;
// a non-nil error is fatal for the target.
func (s *Scraper) fetchPage(ctx context.Context, target config.TargetConfig, host, category, keyword string,
	page int, extractor *extract.Extractor, sink *credentialSink) ([]models.Record, bool, error) {

	pageURL, err := buildPageURL(target.URL, category, keyword, page)
	if err != nil {
		return nil, false, err
	}

	// Enough attempts for the backoff to reach its ceiling once
	maxAttempts := s.cfg.Pacing.MaxBackoffLevel + 2
	if maxAttempts < 2 {
		maxAttempts = 2
	}

	for attempt := 1; ; attempt++ {
		if err := pacing.Wait(ctx, s.pacer.NextDelay(host)); err != nil {
			return nil, false, err
		}

		resp, fetchErr := s.fetcher.Fetch(ctx, pageURL)
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}

		outcome := s.classifier.Classify(resp, fetchErr)
		paceErr := s.pacer.RecordOutcome(host, outcome)
		logger.LogOutcome(host, outcome.Kind.String(), s.pacer.Registry().Get(host).BackoffLevel, page)

		switch outcome.Kind {
		case models.OutcomeSuccess:
			s.pacer.ClearNetworkRetries(host)
			records, xerr := extractor.Extract(resp, keyword, page)
			if xerr != nil {
				s.log.WarnWithFields("page extraction failed", map[string]interface{}{
					"target": target.Name,
					"url":    pageURL,
					"error":  xerr.Error(),
				})
				s.pageDone(false)
				return nil, false, nil
			}
			s.pageDone(true)
			return records, true, nil

		case models.OutcomeBlocked:
			if errors.Is(paceErr, pacing.ErrRateLimitExhausted) {
				s.pageDone(false)
				return nil, false, &TargetError{
					Target:      target.Name,
					Host:        host,
					LastOutcome: outcome.Kind,
					Retries:     attempt,
					Err:         paceErr,
				}
			}
			if err := s.resolveChallenge(ctx, host, pageURL, outcome, resp, sink); err != nil {
				s.pageDone(false)
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, false, err
				}
				return nil, false, &TargetError{
					Target:      target.Name,
					Host:        host,
					LastOutcome: outcome.Kind,
					Retries:     attempt,
					Err:         err,
				}
			}
			// Challenge cleared; retry the same page with fresh credentials

		case models.OutcomeThrottled:
			if attempt >= maxAttempts {
				s.pageDone(false)
				return nil, false, nil
			}

		case models.OutcomeNetworkError:
			retries := s.pacer.Registry().Get(host).NetworkRetries
			if retries > s.cfg.Limits.MaxNetworkRetries {
				s.pacer.ClearNetworkRetries(host)
				s.log.WarnWithFields("network retries exhausted for page", map[string]interface{}{
					"target": target.Name,
					"url":    pageURL,
				})
				s.pageDone(false)
				return nil, false, nil
			}
		}
	}
}

// resolveChallenge opens a challenge session and drives solve attempts
// until the challenge clears, the target aborts, or the run is cancelled
func (s *Scraper) resolveChallenge(ctx context.Context, host, pageURL string, outcome models.Outcome,
	resp *fetch.RawResponse, sink *credentialSink) error {

	ch := challenge.Challenge{
		Host:    host,
		PageURL: pageURL,
		Type:    outcome.ChallengeType,
	}
	if resp != nil {
		ch.Body = resp.Body
		if resp.URL != "" {
			// A redirect to a verification page is the URL the operator
			// or service must actually solve
			ch.PageURL = resp.URL
		}
	}

	chSession, err := s.challenges.Begin(host, ch)
	if err != nil {
		return err
	}

	for {
		err := s.challenges.Resolve(ctx, chSession, s.solver, sink)
		if err == nil {
			break
		}
		if errors.Is(err, challenge.ErrChallengeFailed) || ctx.Err() != nil {
			return err
		}
		// Retryable attempt failure; the handler booked the retry
	}

	// Extra politeness pause before resuming the host
	return pacing.Wait(ctx, s.challenges.Cooldown())
}
