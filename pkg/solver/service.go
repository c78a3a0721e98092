package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"adscraper/pkg/challenge"
	"adscraper/pkg/logger"
)

// ServiceSolver submits challenges to an external solving service and
// returns the credentials it produces.
type ServiceSolver struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	log        logger.Logger
}

// NewServiceSolver creates a solver talking to the given endpoint. The
// per-attempt deadline is enforced by the caller's context; the client
// timeout is only a hard upper bound.
func NewServiceSolver(endpoint, apiKey string, log logger.Logger) *ServiceSolver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &ServiceSolver{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		log: log,
	}
}

// solveRequest is the payload sent to the solving service
type solveRequest struct {
	Host    string `json:"host"`
	PageURL string `json:"page_url"`
	Type    string `json:"type"`
}

// solveResponse is the service's answer
type solveResponse struct {
	Status  string            `json:"status"`
	Cookies string            `json:"cookies"`
	Tokens  map[string]string `json:"tokens"`
	Message string            `json:"message"`
}

// Solve posts the challenge to the service and waits for credentials
func (s *ServiceSolver) Solve(ctx context.Context, ch challenge.Challenge) (challenge.SolverResult, error) {
	payload, err := json.Marshal(solveRequest{
		Host:    ch.Host,
		PageURL: ch.PageURL,
		Type:    ch.Type,
	})
	if err != nil {
		return challenge.SolverResult{}, fmt.Errorf("encoding solve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return challenge.SolverResult{}, fmt.Errorf("building solve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	s.log.InfoWithFields("submitting challenge to solving service", map[string]interface{}{
		"host":     ch.Host,
		"type":     ch.Type,
		"endpoint": s.endpoint,
	})

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return challenge.SolverResult{}, fmt.Errorf("solving service request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return challenge.SolverResult{}, fmt.Errorf("reading solving service response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return challenge.SolverResult{}, fmt.Errorf("solving service returned status %d: %s", resp.StatusCode, string(body))
	}

	var answer solveResponse
	if err := json.Unmarshal(body, &answer); err != nil {
		return challenge.SolverResult{}, fmt.Errorf("decoding solving service response: %w", err)
	}

	if answer.Status != "solved" {
		return challenge.SolverResult{}, fmt.Errorf("solving service could not solve challenge: %s", answer.Message)
	}

	return challenge.SolverResult{
		Cookies: answer.Cookies,
		Tokens:  answer.Tokens,
	}, nil
}
