package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	Debug       bool
	Timeout     time.Duration
	Pretty      bool
	ShowVersion bool
	ShowHelp    bool
	Validate    bool
	Endpoints   []string
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("FETCHKIT_CONFIG", "configs/example.json"),
		"Path to configuration file (env: FETCHKIT_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("FETCHKIT_CONFIG", "configs/example.json"),
		"Path to configuration file (env: FETCHKIT_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("FETCHKIT_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: FETCHKIT_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("FETCHKIT_LOG_FORMAT", "json"),
		"Log format: json, text (env: FETCHKIT_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("FETCHKIT_DEBUG", false),
		"Enable debug mode (env: FETCHKIT_DEBUG)")

	flag.DurationVar(&cfg.Timeout, "timeout",
		getEnvDuration("FETCHKIT_TIMEOUT", 2*time.Minute),
		"Overall deadline for all fetches (env: FETCHKIT_TIMEOUT)")

	flag.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print JSON output")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()
	cfg.Endpoints = flag.Args()

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %s", cfg.Timeout)
	}

	if !cfg.Validate && len(cfg.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint argument is required")
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Resilient HTTP JSON fetcher

Usage: %s [options] ENDPOINT [ENDPOINT...]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Fetch one endpoint
  %s --config=config.json /api/summary

  # Fetch several endpoints concurrently with debug logging
  %s --log-level=debug --log-format=text /api/users /api/orders

  # Run with environment variables
  export FETCHKIT_CONFIG=/etc/fetchkit/config.yaml
  %s /api/summary

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
