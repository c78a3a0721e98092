package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"adscraper/pkg/models"
)

// XLSXExporter writes a workbook with a Records sheet and, when run
// statistics are available, a Summary sheet.
type XLSXExporter struct{}

func (e *XLSXExporter) Extension() string { return "xlsx" }

func (e *XLSXExporter) Export(path string, records []models.Record, stats *models.SessionStats) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Records"
	f.SetSheetName("Sheet1", sheet)

	for col, name := range csvHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to compute header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		end, _ := excelize.CoordinatesToCellName(len(csvHeader), 1)
		f.SetCellStyle(sheet, "A1", end, headerStyle)
	}

	for i, r := range records {
		row := i + 2
		values := []interface{}{
			r.Title,
			r.Price,
			r.CleanPrice,
			r.URL,
			r.Location,
			r.Category,
			r.Keyword,
			r.PageNumber,
			r.Target,
			r.ScrapedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("failed to compute cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
	}

	if stats != nil {
		if err := writeSummarySheet(f, stats); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, stats *models.SessionStats) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	rows := [][2]interface{}{
		{"Started", stats.StartTime.Format("2006-01-02 15:04:05")},
		{"Finished", stats.EndTime.Format("2006-01-02 15:04:05")},
		{"Duration", stats.Duration().Round(time.Second).String()},
		{"Total records", stats.TotalRecords},
		{"Successful pages", stats.SuccessfulPages},
		{"Failed pages", stats.FailedPages},
		{"Success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate())},
		{"CAPTCHA encounters", stats.CaptchaEncounters},
		{"Challenges resolved", stats.ChallengesResolved},
		{"Targets aborted", stats.TargetsAborted},
	}

	for i, row := range rows {
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", i+1), row[0]); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", i+1), row[1]); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	return nil
}
