// Package extract turns fetched listing pages into records using the
// per-target CSS selectors from the configuration.
package extract

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"adscraper/pkg/config"
	"adscraper/pkg/fetch"
	"adscraper/pkg/logger"
	"adscraper/pkg/models"
)

// Extractor parses listing pages for a single target
type Extractor struct {
	target config.TargetConfig
	log    logger.Logger
}

// NewExtractor creates an extractor using the target's selectors
func NewExtractor(target config.TargetConfig, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Extractor{
		target: target,
		log:    log,
	}
}

// Extract parses the response body and returns the records found on the
// page. Records missing a title are skipped. An empty page is not an
// error; the caller decides whether it ends pagination.
func (e *Extractor) Extract(resp *fetch.RawResponse, keyword string, pageNumber int) ([]models.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing page %d of %s: %w", pageNumber, e.target.Name, err)
	}

	base, err := url.Parse(resp.URL)
	if err != nil {
		base = nil
	}

	now := time.Now()
	var records []models.Record
	doc.Find(e.target.Selectors.Record).Each(func(_ int, sel *goquery.Selection) {
		title := textOf(sel, e.target.Selectors.Title)
		if title == "" {
			return
		}

		rawPrice := textOf(sel, e.target.Selectors.Price)
		records = append(records, models.Record{
			Title:      title,
			Price:      rawPrice,
			CleanPrice: models.CleanPrice(rawPrice),
			URL:        recordURL(sel, base),
			Location:   textOf(sel, e.target.Selectors.Location),
			Keyword:    keyword,
			PageNumber: pageNumber,
			Target:     e.target.Name,
			ScrapedAt:  now,
		})
	})

	e.log.DebugWithFields("extracted records", map[string]interface{}{
		"target":  e.target.Name,
		"keyword": keyword,
		"page":    pageNumber,
		"records": len(records),
	})

	return records, nil
}

// textOf returns the trimmed text of the first match of selector inside
// sel, or the trimmed text of sel itself when selector is empty.
func textOf(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return strings.TrimSpace(sel.Text())
	}
	return strings.TrimSpace(sel.Find(selector).First().Text())
}

// recordURL finds the record's link and resolves it against the page URL
func recordURL(sel *goquery.Selection, base *url.URL) string {
	href, ok := sel.Attr("href")
	if !ok {
		href, ok = sel.Find("a[href]").First().Attr("href")
	}
	if !ok || href == "" {
		return ""
	}

	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
