package models

// OutcomeKind is the classification of a single response
type OutcomeKind int

const (
	// OutcomeSuccess is a normal response with usable content
	OutcomeSuccess OutcomeKind = iota
	// OutcomeThrottled is a transient rate-limit signal (HTTP 429/503 or a
	// throttle indicator in the body)
	OutcomeThrottled
	// OutcomeBlocked is a confirmed CAPTCHA/anti-bot challenge
	OutcomeBlocked
	// OutcomeNetworkError is a transport failure before any response arrived
	OutcomeNetworkError
)

// String returns the snake_case name used in logs
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeNetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// Outcome is the immutable classification of one response. It is produced
// by the challenge classifier and consumed once by the pacing controller
// and the challenge handler.
type Outcome struct {
	Kind OutcomeKind
	// ChallengeType names the matched challenge signature when Kind is
	// OutcomeBlocked (e.g. "recaptcha", "cf-browser-verification")
	ChallengeType string
	// StatusCode is the HTTP status of the classified response, 0 for
	// network errors
	StatusCode int
	// Err carries the transport error for OutcomeNetworkError
	Err error
}

// Success is the zero-challenge success outcome
func Success(status int) Outcome {
	return Outcome{Kind: OutcomeSuccess, StatusCode: status}
}

// Throttled marks a transient rate-limit outcome
func Throttled(status int) Outcome {
	return Outcome{Kind: OutcomeThrottled, StatusCode: status}
}

// Blocked marks a confirmed challenge outcome
func Blocked(challengeType string, status int) Outcome {
	return Outcome{Kind: OutcomeBlocked, ChallengeType: challengeType, StatusCode: status}
}

// NetworkError marks a transport failure
func NetworkError(err error) Outcome {
	return Outcome{Kind: OutcomeNetworkError, Err: err}
}
