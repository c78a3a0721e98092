package logger

// LogOutcome logs a classified response outcome for a target host
func LogOutcome(host, outcome string, backoffLevel, page int) {
	fields := map[string]interface{}{
		"host":          host,
		"outcome":       outcome,
		"backoff_level": backoffLevel,
		"page":          page,
	}

	logger := GetLogger().WithFields(fields)

	switch outcome {
	case "success":
		logger.Debug("Outcome recorded")
	case "network_error":
		logger.Warn("Network error recorded")
	default:
		logger.Warn("Blocking outcome recorded")
	}
}
