// Package logger provides a structured logging interface for the scraper.
//
// It wraps the zerolog library to provide a clean, easy-to-use API with support for:
// - Multiple log levels (Debug, Info, Warn, Error, Fatal)
// - Structured logging with fields
// - Pretty console output with colors
// - File output
// - Global logger instance for easy access
//
// Basic Usage:
//
//	import "adscraper/pkg/logger"
//
//	// Initialize the global logger
//	cfg := &config.LoggingConfig{
//	    Level: "info",
//	    File: "/var/log/adscraper.log",
//	}
//	err := logger.Initialize(cfg)
//
//	// Use the global logger
//	logger.Info("Scrape started")
//	logger.WithField("host", "www.example.com").Info("Target registered")
//	logger.WithError(err).Error("Failed to fetch page")
//
// Advanced Usage:
//
//	// Create a logger instance with fields
//	log := logger.GetLogger().
//	    WithField("component", "pacing").
//	    WithField("host", "www.example.com")
//
//	// Use structured logging
//	log.InfoWithFields("backoff level changed", map[string]interface{}{
//	    "level":   3,
//	    "outcome": "blocked",
//	    "delay":   8 * time.Second,
//	})
package logger
