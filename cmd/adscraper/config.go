package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"adscraper/pkg/config"
	"adscraper/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage adscraper configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'adscraper.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the merged configuration from all sources:
  - Command line flags
  - Environment variables
  - Configuration file
  - Default values`,
	Run: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Target URLs and selectors
  - Pacing and challenge parameter ranges
  - Export formats`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = "adscraper.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	exampleConfig := `# adscraper configuration file
#
# You can also use environment variables prefixed with ADSCRAPER_
# For example: ADSCRAPER_LOG_LEVEL, ADSCRAPER_SOLVER_API_KEY

# Scrape targets. Each target pages through its search URL per keyword
# and category, extracting records with the given CSS selectors.
targets:
  - name: "bikes"
    url: "https://www.example.com/recherche"
    keywords: ["vélo", "vtt"]
    categories: ["velos"]
    selectors:
      record: "a[data-qa-id=aditem_container]"
      title: "[data-qa-id=aditem_title]"
      price: "[data-qa-id=aditem_price]"
      location: "[data-qa-id=aditem_location]"

# General scraping behaviour
scraping:
  max_pages: 5
  workers: 3
  request_timeout: 30s
  user_agent: ""

# Adaptive pacing. The delay before each request is
# base_interval * 2^backoff_level, capped at max_delay, with jitter.
pacing:
  base_interval: 1s
  min_interval: 500ms
  max_delay: 2m
  max_backoff_level: 6
  jitter_fraction: 0.2
  success_reset_threshold: 3
  requests_per_second: 2.0
  burst: 4

# CAPTCHA handling
challenge:
  resolution_deadline: 5m
  max_resolution_retries: 3
  max_encounters: 5
  # "manual" prompts the operator; "service" uses an external solver
  solver_mode: "manual"
  service_url: ""
  cooldown_base: 30s
  cooldown_spread: 20s

# Failure limits and run policy
limits:
  max_network_retries: 3
  # true aborts the whole run when one target fails; false skips it
  abort_on_failure: false

# Export settings
export:
  output_directory: "./results"
  base_name: "scraping_results"
  formats: ["json", "csv", "xlsx"]

# Logging
logging:
  level: "info"
  file: ""
`

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		ui.PrintError("Failed to write configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the file and define your targets")
	fmt.Println("  2. Run 'adscraper config validate' to check it")
	fmt.Println("  3. Run 'adscraper scrape' to start")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		ui.PrintError("Failed to render configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current configuration:")
	fmt.Println(string(out))
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration invalid", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration valid")
	ui.PrintInfo("Targets", fmt.Sprintf("%d", len(cfg.Targets)))
	ui.PrintInfo("Workers", fmt.Sprintf("%d", cfg.Scraping.Workers))
	ui.PrintInfo("Solver", cfg.Challenge.SolverMode)
	ui.PrintInfo("Export formats", fmt.Sprintf("%v", cfg.Export.Formats))
}
