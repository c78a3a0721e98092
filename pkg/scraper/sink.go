package scraper

import (
	"fmt"

	"adscraper/pkg/challenge"
	"adscraper/pkg/session"
)

// cookieSetter is implemented by fetchers that send per-host cookies
type cookieSetter interface {
	SetHostCookies(host, cookies string)
}

// credentialSink applies resolved challenge credentials to the live
// fetcher and persists them in the target's session state.
type credentialSink struct {
	fetcher interface{}
	manager *session.Manager
	state   *session.Session
}

func (s *credentialSink) ApplyCredentials(host string, result challenge.SolverResult) error {
	if setter, ok := s.fetcher.(cookieSetter); ok && result.Cookies != "" {
		setter.SetHostCookies(host, result.Cookies)
	}
	if s.manager == nil || s.state == nil {
		return nil
	}
	if err := s.manager.UpdateCredentials(s.state, result.Cookies, result.Tokens); err != nil {
		return fmt.Errorf("persisting credentials for %s: %w", host, err)
	}
	return nil
}
