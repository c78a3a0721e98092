package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"adscraper/pkg/models"
)

// csvHeader is the column order for CSV and XLSX output
var csvHeader = []string{
	"title", "price", "clean_price", "url", "location",
	"category", "keyword", "page_number", "target", "scraped_at",
}

// CSVExporter writes records as UTF-8 CSV. A byte order mark is prepended
// so spreadsheet applications detect the encoding.
type CSVExporter struct{}

func (e *CSVExporter) Extension() string { return "csv" }

func (e *CSVExporter) Export(path string, records []models.Record, _ *models.SessionStats) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.Title,
			r.Price,
			strconv.FormatFloat(r.CleanPrice, 'f', -1, 64),
			r.URL,
			r.Location,
			r.Category,
			r.Keyword,
			strconv.Itoa(r.PageNumber),
			r.Target,
			r.ScrapedAt.Format("2006-01-02 15:04:05"),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
