package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"adscraper/pkg/challenge"
	"adscraper/pkg/config"
	"adscraper/pkg/export"
	"adscraper/pkg/logger"
	"adscraper/pkg/scraper"
	"adscraper/pkg/solver"
	"adscraper/pkg/ui"
)

var (
	// Scrape command flags
	outputDir  string
	workers    int
	maxPages   int
	solverMode string
	resumeRun  bool
	dryRun     bool
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape all configured targets and export the results",
	Long: `Run the fetch loops for every target in the configuration.

Each target is paced independently: the delay between requests grows
exponentially while the site throttles or blocks, and decays back after
sustained successes. When a CAPTCHA is detected the run pauses that target
and resolves the challenge either interactively (manual mode) or through
an external solving service.`,
	Example: `  # Scrape with the default configuration file
  adscraper scrape

  # Scrape into a specific directory with more workers
  adscraper scrape --output ./out --workers 5

  # Resume an interrupted run from the persisted sessions
  adscraper scrape --resume

  # Use an external solving service for CAPTCHAs
  adscraper scrape --solver service`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScrape()
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for exports")
	scrapeCmd.Flags().IntVar(&workers, "workers", 0, "concurrent target limit")
	scrapeCmd.Flags().IntVar(&maxPages, "max-pages", 0, "pages per keyword")
	scrapeCmd.Flags().StringVar(&solverMode, "solver", "", "challenge solver (manual, service)")
	scrapeCmd.Flags().BoolVar(&resumeRun, "resume", false, "resume from the persisted sessions")
	scrapeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate configuration and list targets without fetching")
}

func runScrape() error {
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if workers > 0 {
		flags["workers"] = workers
	}
	if maxPages > 0 {
		flags["max-pages"] = maxPages
	}
	if solverMode != "" {
		flags["solver"] = solverMode
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.InfoWithFields("adscraper starting", map[string]interface{}{
		"version": version,
		"targets": len(cfg.Targets),
	})

	if dryRun {
		ui.PrintSuccess("Configuration valid")
		for _, target := range cfg.Targets {
			ui.PrintInfo("Target", fmt.Sprintf("%s (%s, %d keywords)",
				target.Name, target.URL, len(target.Keywords)))
		}
		return nil
	}

	chSolver, err := buildSolver(cfg, log)
	if err != nil {
		ui.PrintError("Failed to initialize solver", err.Error())
		os.Exit(1)
	}

	exporter, err := export.NewManager(cfg.Export, log)
	if err != nil {
		ui.PrintError("Failed to initialize exports", err.Error())
		os.Exit(1)
	}

	s := scraper.NewDefault(cfg, chSolver, log)
	s.Resume = resumeRun

	// SIGINT flushes what was collected instead of dropping it
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := s.Run(ctx)
	if runErr != nil {
		log.ErrorWithFields("run ended with errors", map[string]interface{}{
			"error": runErr.Error(),
		})
		ui.PrintWarning("Run ended with errors", runErr.Error())
	}

	var paths []string
	if len(result.Records) > 0 {
		paths, err = exporter.WriteAll(context.Background(), result.Records, result.Stats)
		if err != nil {
			ui.PrintError("Export failed", err.Error())
			os.Exit(1)
		}
	} else {
		ui.PrintWarning("No records collected; nothing to export")
	}

	ui.PrintRunSummary(result.Stats, paths)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}
	return nil
}

// buildSolver creates the challenge solver named by the configuration
func buildSolver(cfg *config.Config, log logger.Logger) (challenge.Solver, error) {
	switch cfg.Challenge.SolverMode {
	case "service":
		apiKey := os.Getenv("ADSCRAPER_SOLVER_API_KEY")
		if apiKey == "" {
			store, err := solver.NewKeyStore()
			if err != nil {
				return nil, fmt.Errorf("no ADSCRAPER_SOLVER_API_KEY and no key store: %w", err)
			}
			apiKey, err = store.Get()
			if err != nil {
				return nil, fmt.Errorf("solving service needs an API key (run 'adscraper solver set-key'): %w", err)
			}
		}
		return solver.NewServiceSolver(cfg.Challenge.ServiceURL, apiKey, log), nil
	default:
		return solver.NewManualSolver(log), nil
	}
}
