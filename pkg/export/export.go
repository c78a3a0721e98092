// Package export writes collected records to disk in the configured
// formats. Each run produces timestamped files so repeated runs never
// overwrite earlier results.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"adscraper/pkg/config"
	"adscraper/pkg/logger"
	"adscraper/pkg/models"
)

// Exporter writes records in one output format
type Exporter interface {
	// Export writes records and run statistics to path
	Export(path string, records []models.Record, stats *models.SessionStats) error
	// Extension returns the file extension without the dot
	Extension() string
}

// Manager fans records out to every configured format
type Manager struct {
	cfg       config.ExportConfig
	exporters []Exporter
	log       logger.Logger
}

// NewManager builds a manager for the configured formats. Unknown format
// names are an error.
func NewManager(cfg config.ExportConfig, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	var exporters []Exporter
	for _, format := range cfg.Formats {
		switch format {
		case "json":
			exporters = append(exporters, &JSONExporter{})
		case "csv":
			exporters = append(exporters, &CSVExporter{})
		case "xlsx":
			exporters = append(exporters, &XLSXExporter{})
		default:
			return nil, fmt.Errorf("unknown export format: %s", format)
		}
	}
	if len(exporters) == 0 {
		return nil, fmt.Errorf("no export formats configured")
	}

	return &Manager{
		cfg:       cfg,
		exporters: exporters,
		log:       log,
	}, nil
}

// WriteAll writes the records in every format concurrently and returns
// the paths of the files produced.
func (m *Manager) WriteAll(ctx context.Context, records []models.Record, stats *models.SessionStats) ([]string, error) {
	if err := os.MkdirAll(m.cfg.OutputDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	paths := make([]string, len(m.exporters))

	g, _ := errgroup.WithContext(ctx)
	for i, exp := range m.exporters {
		i, exp := i, exp
		path := filepath.Join(m.cfg.OutputDirectory,
			fmt.Sprintf("%s_%s.%s", m.cfg.BaseName, stamp, exp.Extension()))
		paths[i] = path

		g.Go(func() error {
			if err := exp.Export(path, records, stats); err != nil {
				return fmt.Errorf("exporting %s: %w", exp.Extension(), err)
			}
			m.log.InfoWithFields("export written", map[string]interface{}{
				"format":  exp.Extension(),
				"path":    path,
				"records": len(records),
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// jsonEnvelope is the JSON file layout: metadata first, then the records
type jsonEnvelope struct {
	ExportedAt time.Time            `json:"exported_at"`
	Count      int                  `json:"count"`
	Stats      *models.SessionStats `json:"stats,omitempty"`
	Records    []models.Record      `json:"records"`
}

// JSONExporter writes an indented JSON envelope
type JSONExporter struct{}

func (e *JSONExporter) Extension() string { return "json" }

func (e *JSONExporter) Export(path string, records []models.Record, stats *models.SessionStats) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if records == nil {
		records = []models.Record{}
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonEnvelope{
		ExportedAt: time.Now(),
		Count:      len(records),
		Stats:      stats,
		Records:    records,
	})
}
