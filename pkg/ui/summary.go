package ui

import (
	"fmt"
	"time"

	"adscraper/pkg/models"
)

// PrintRunSummary prints the end-of-run statistics block
func PrintRunSummary(stats *models.SessionStats, paths []string) {
	fmt.Println()
	PrintHighlight("── Run summary ──")
	PrintInfo("Duration", stats.Duration().Round(time.Second).String())
	PrintInfo("Records collected", fmt.Sprintf("%d", stats.TotalRecords))
	PrintInfo("Pages", fmt.Sprintf("%d ok / %d failed (%.1f%%)",
		stats.SuccessfulPages, stats.FailedPages, stats.SuccessRate()))

	if stats.CaptchaEncounters > 0 {
		PrintWarning(fmt.Sprintf("CAPTCHA encounters: %d (%d resolved)",
			stats.CaptchaEncounters, stats.ChallengesResolved))
	}
	if stats.TargetsAborted > 0 {
		PrintError(fmt.Sprintf("Targets aborted: %d", stats.TargetsAborted))
	}

	for _, p := range paths {
		PrintInfo("Exported", p)
	}
}
