package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Record represents a single scraped listing
type Record struct {
	Title      string    `json:"title"`
	Price      string    `json:"price"`
	CleanPrice float64   `json:"clean_price"`
	URL        string    `json:"url"`
	Location   string    `json:"location"`
	Category   string    `json:"category"`
	Keyword    string    `json:"keyword"`
	PageNumber int       `json:"page_number"`
	Target     string    `json:"target"`
	ScrapedAt  time.Time `json:"scraped_at"`
}

var priceRe = regexp.MustCompile(`[\d.,]+`)

// freeMarkers are price strings that mean "no charge" rather than a number
var freeMarkers = map[string]bool{
	"gratuit":    true,
	"free":       true,
	"à débattre": true,
}

// NewRecord builds a Record, trimming the title and deriving the numeric price
func NewRecord(title, price, url string) Record {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	return Record{
		Title:      title,
		Price:      price,
		CleanPrice: CleanPrice(price),
		URL:        url,
		ScrapedAt:  time.Now(),
	}
}

// CleanPrice extracts a numeric price from a raw price string. Free listings
// yield 0; unparseable strings yield -1.
func CleanPrice(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || freeMarkers[strings.ToLower(raw)] {
		return 0
	}

	// Collapse spaces used as thousand separators, then normalise the
	// decimal comma
	compact := strings.ReplaceAll(raw, " ", "")
	compact = strings.ReplaceAll(compact, " ", "")
	match := priceRe.FindString(compact)
	if match == "" {
		return -1
	}
	match = strings.ReplaceAll(match, ",", ".")

	// Keep only the first decimal point ("1.234.56" from "1 234,56")
	if first := strings.Index(match, "."); first != -1 {
		match = match[:first+1] + strings.ReplaceAll(match[first+1:], ".", "")
	}

	val, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return -1
	}
	return val
}

// SessionStats aggregates the outcome of a scraping run
type SessionStats struct {
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	TotalRecords       int       `json:"total_records"`
	SuccessfulPages    int       `json:"successful_pages"`
	FailedPages        int       `json:"failed_pages"`
	CaptchaEncounters  int       `json:"captcha_encounters"`
	ChallengesResolved int       `json:"challenges_resolved"`
	TargetsAborted     int       `json:"targets_aborted"`
}

// Duration returns the elapsed session time
func (s *SessionStats) Duration() time.Duration {
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartTime)
}

// SuccessRate returns the percentage of pages fetched without failure
func (s *SessionStats) SuccessRate() float64 {
	total := s.SuccessfulPages + s.FailedPages
	if total == 0 {
		return 0
	}
	return float64(s.SuccessfulPages) / float64(total) * 100
}
