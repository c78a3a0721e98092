package solver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"adscraper/pkg/challenge"
	"adscraper/pkg/logger"
)

// ManualSolver asks the operator to resolve the challenge by hand: open
// the page in a browser, pass the verification, then paste the resulting
// Cookie header. It blocks the calling fetch loop until the operator
// answers, the context is cancelled, or the resolution deadline passes.
type ManualSolver struct {
	in  io.Reader
	out io.Writer
	log logger.Logger

	// A single reader goroutine serves every attempt. A per-attempt reader
	// would leak when the deadline fires and swallow the line the operator
	// types for the next attempt.
	readerOnce sync.Once
	lines      chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// NewManualSolver creates a solver prompting on stdin/stdout
func NewManualSolver(log logger.Logger) *ManualSolver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &ManualSolver{
		in:  os.Stdin,
		out: os.Stdout,
		log: log,
	}
}

// NewManualSolverWithIO creates a solver with explicit streams, for tests
func NewManualSolverWithIO(in io.Reader, out io.Writer, log logger.Logger) *ManualSolver {
	s := NewManualSolver(log)
	s.in = in
	s.out = out
	return s
}

// Solve prompts the operator and returns the pasted session cookies
func (s *ManualSolver) Solve(ctx context.Context, ch challenge.Challenge) (challenge.SolverResult, error) {
	fmt.Fprintf(s.out, "\nCAPTCHA detected on %s (%s)\n", ch.Host, ch.Type)
	fmt.Fprintf(s.out, "Open the page in a browser and complete the verification:\n")
	fmt.Fprintf(s.out, "  %s\n", ch.PageURL)
	fmt.Fprintf(s.out, "Then paste the Cookie header of the verified session and press Enter\n")
	fmt.Fprintf(s.out, "(empty input aborts this attempt): ")

	// The read cannot be interrupted, so the persistent goroutine blocks in
	// ReadString and the select below enforces cancellation and the deadline.
	// The channel is unbuffered: a line read after a timed-out attempt is
	// held until the next attempt consumes it.
	s.readerOnce.Do(func() {
		s.lines = make(chan lineResult)
		in := s.in
		go func() {
			reader := bufio.NewReader(in)
			for {
				line, err := reader.ReadString('\n')
				s.lines <- lineResult{line: line, err: err}
				if err != nil {
					close(s.lines)
					return
				}
			}
		}()
	})

	select {
	case <-ctx.Done():
		return challenge.SolverResult{}, ctx.Err()
	case res, ok := <-s.lines:
		if !ok {
			return challenge.SolverResult{}, fmt.Errorf("operator input closed for %s", ch.Host)
		}
		if res.err != nil && res.line == "" {
			return challenge.SolverResult{}, fmt.Errorf("reading operator input: %w", res.err)
		}
		cookies := strings.TrimSpace(res.line)
		if cookies == "" {
			return challenge.SolverResult{}, fmt.Errorf("operator aborted resolution for %s", ch.Host)
		}
		s.log.InfoWithFields("operator supplied session cookies", map[string]interface{}{
			"host": ch.Host,
		})
		return challenge.SolverResult{Cookies: cookies}, nil
	}
}
