package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"adscraper/pkg/config"
	"adscraper/pkg/logger"
	"adscraper/pkg/models"
)

func sampleRecords() []models.Record {
	scraped := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	return []models.Record{
		{
			Title:      "Mountain bike",
			Price:      "450 €",
			CleanPrice: 450,
			URL:        "https://www.example.com/ad/123",
			Location:   "Lyon 69003",
			Keyword:    "bike",
			PageNumber: 1,
			Target:     "example",
			ScrapedAt:  scraped,
		},
		{
			Title:      "City bike, \"as new\"",
			Price:      "Free",
			CleanPrice: 0,
			URL:        "https://www.example.com/ad/456",
			Location:   "Paris 75011",
			Keyword:    "bike",
			PageNumber: 2,
			Target:     "example",
			ScrapedAt:  scraped,
		},
	}
}

func sampleStats() *models.SessionStats {
	return &models.SessionStats{
		StartTime:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		TotalRecords:    2,
		SuccessfulPages: 3,
		FailedPages:     1,
	}
}

func TestJSONExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, (&JSONExporter{}).Export(path, sampleRecords(), sampleStats()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var envelope struct {
		Count   int                  `json:"count"`
		Stats   *models.SessionStats `json:"stats"`
		Records []models.Record      `json:"records"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, 2, envelope.Count)
	require.NotNil(t, envelope.Stats)
	assert.Equal(t, 3, envelope.Stats.SuccessfulPages)
	require.Len(t, envelope.Records, 2)
	assert.Equal(t, "Mountain bike", envelope.Records[0].Title)
}

func TestJSONExporterEmptyRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, (&JSONExporter{}).Export(path, nil, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"records": []`, "nil records serialise as an empty array")
}

func TestCSVExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, (&CSVExporter{}).Export(path, sampleRecords(), nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}), "file starts with a UTF-8 BOM")

	rows, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "Mountain bike", rows[1][0])
	assert.Equal(t, "450", rows[1][2])
	assert.Equal(t, `City bike, "as new"`, rows[2][0], "quoting survives the round trip")
}

func TestXLSXExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, (&XLSXExporter{}).Export(path, sampleRecords(), sampleStats()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Records")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "title", rows[0][0])
	assert.Equal(t, "Mountain bike", rows[1][0])

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.NotEmpty(t, summary)
}

func TestManagerWritesAllFormats(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(config.ExportConfig{
		OutputDirectory: dir,
		BaseName:        "results",
		Formats:         []string{"json", "csv", "xlsx"},
	}, logger.NewTestLogger())
	require.NoError(t, err)

	paths, err := m.WriteAll(context.Background(), sampleRecords(), sampleStats())
	require.NoError(t, err)
	require.Len(t, paths, 3)

	extensions := make(map[string]bool)
	for _, p := range paths {
		_, statErr := os.Stat(p)
		assert.NoError(t, statErr, "exported file exists: %s", p)
		assert.True(t, strings.HasPrefix(filepath.Base(p), "results_"))
		extensions[filepath.Ext(p)] = true
	}
	assert.True(t, extensions[".json"] && extensions[".csv"] && extensions[".xlsx"])
}

func TestManagerRejectsUnknownFormat(t *testing.T) {
	_, err := NewManager(config.ExportConfig{
		OutputDirectory: t.TempDir(),
		BaseName:        "results",
		Formats:         []string{"parquet"},
	}, logger.NewTestLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parquet")
}

func TestManagerRequiresAFormat(t *testing.T) {
	_, err := NewManager(config.ExportConfig{
		OutputDirectory: t.TempDir(),
		BaseName:        "results",
	}, logger.NewTestLogger())
	assert.Error(t, err)
}
