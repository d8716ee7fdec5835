// Package config provides centralized configuration for the to-do list browser harness.
// It loads configuration from environment variables and CLI flags, validates required
// fields, and provides the defaults the suite was written against.
//
// Environment variables set the baseline; CLI flags registered with RegisterFlags
// override them when explicitly set.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	DriverPlaywright = "playwright"
	DriverRod        = "rod"

	defaultPagePath       = "web/ToDoList.html"
	defaultRegion         = "auto"
	defaultReportPath     = "report.html"
	defaultReportPrefix   = "reports"
	defaultViewportWidth  = 1920
	defaultViewportHeight = 1080
)

// DefaultBrowserArgs are the Chromium switches for non-interactive CI execution.
var DefaultBrowserArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--window-size=1920,1080",
}

// Config holds all harness configuration.
type Config struct {
	// Page under test
	PagePath string // local file, navigated via file:// URL

	// Browser session
	Driver         string // "playwright" or "rod"
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	BrowserArgs    []string

	// Waits
	DefaultTimeout time.Duration // bounded-wait default for every expectation
	AlertTimeout   time.Duration // how long the empty-task case waits for the alert
	SubmitSpacing  time.Duration // pause between submissions in the multi-task case
	PollInterval   time.Duration
	CaseFilter     string // regexp over case names, like go test -run

	// Reporting
	ReportPath     string
	ReportJSONPath string
	LogLevel       string

	// Run history (SQLite, optionally SQLCipher-encrypted)
	HistoryPath string
	HistoryKey  string // 64 hex characters (32 bytes); empty = unencrypted

	// Report publication to S3-compatible storage
	Publish            bool
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	AWSPublicURL       string // S3_PUBLIC_URL
	ReportPrefix       string // REPORT_PREFIX
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Flags holds CLI flag values. Zero values mean "not set on the command line".
type Flags struct {
	PagePath    string
	Driver      string
	Headed      bool
	CaseFilter  string
	ReportPath  string
	JSONPath    string
	HistoryPath string
	Publish     bool
	LogLevel    string
}

// RegisterFlags registers the run flags on fs.
func RegisterFlags(fs *pflag.FlagSet, f *Flags) {
	fs.StringVar(&f.PagePath, "page", "", "Path to the to-do page (overrides TODO_PAGE_PATH)")
	fs.StringVar(&f.Driver, "driver", "", "Browser backend: playwright or rod (overrides BROWSER_DRIVER)")
	fs.BoolVar(&f.Headed, "headed", false, "Show the browser window")
	fs.StringVar(&f.CaseFilter, "run", "", "Only run cases whose name matches this regexp")
	fs.StringVar(&f.ReportPath, "report", "", "HTML report output path (overrides REPORT_PATH)")
	fs.StringVar(&f.JSONPath, "json", "", "JSON report output path (overrides REPORT_JSON_PATH)")
	fs.StringVar(&f.HistoryPath, "history", "", "Run history database (overrides HISTORY_PATH)")
	fs.BoolVar(&f.Publish, "publish", false, "Upload the report to S3-compatible storage")
	fs.StringVar(&f.LogLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
}

// LoadConfig loads configuration from environment variables and CLI flag values.
func LoadConfig(f Flags) (*Config, error) {
	cfg := &Config{}

	// Page under test
	cfg.PagePath = getEnvOrDefault("TODO_PAGE_PATH", defaultPagePath)
	if f.PagePath != "" {
		cfg.PagePath = f.PagePath
	}

	// Browser session
	cfg.Driver = strings.ToLower(getEnvOrDefault("BROWSER_DRIVER", DriverPlaywright))
	if f.Driver != "" {
		cfg.Driver = strings.ToLower(f.Driver)
	}
	cfg.Headless = parseBoolOrDefault("HEADLESS", true)
	if f.Headed {
		cfg.Headless = false
	}
	cfg.ViewportWidth = parseIntOrDefault("VIEWPORT_WIDTH", defaultViewportWidth)
	cfg.ViewportHeight = parseIntOrDefault("VIEWPORT_HEIGHT", defaultViewportHeight)
	cfg.BrowserArgs = browserArgs(cfg.ViewportWidth, cfg.ViewportHeight)

	// Waits
	cfg.DefaultTimeout = parseDurationOrDefault("WAIT_TIMEOUT", 10*time.Second)
	cfg.AlertTimeout = parseDurationOrDefault("ALERT_TIMEOUT", 3*time.Second)
	cfg.SubmitSpacing = parseDurationOrDefault("SUBMIT_SPACING", 500*time.Millisecond)
	cfg.PollInterval = parseDurationOrDefault("POLL_INTERVAL", 100*time.Millisecond)
	cfg.CaseFilter = f.CaseFilter

	// Reporting
	cfg.ReportPath = getEnvOrDefault("REPORT_PATH", defaultReportPath)
	if f.ReportPath != "" {
		cfg.ReportPath = f.ReportPath
	}
	cfg.ReportJSONPath = strings.TrimSpace(os.Getenv("REPORT_JSON_PATH"))
	if f.JSONPath != "" {
		cfg.ReportJSONPath = f.JSONPath
	}
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	// Run history
	cfg.HistoryPath = strings.TrimSpace(os.Getenv("HISTORY_PATH"))
	if f.HistoryPath != "" {
		cfg.HistoryPath = f.HistoryPath
	}
	cfg.HistoryKey = strings.TrimSpace(os.Getenv("HISTORY_KEY"))

	// S3 publication (same AWS_ env vars the storage SDK reads)
	cfg.Publish = f.Publish || parseBoolOrDefault("PUBLISH_REPORT", false)
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultRegion)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.AWSBucketName = strings.TrimSpace(os.Getenv("BUCKET_NAME"))
	cfg.AWSPublicURL = strings.TrimSpace(os.Getenv("S3_PUBLIC_URL"))
	if cfg.AWSPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.AWSBucketName != "" {
		cfg.AWSPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.AWSBucketName
	}
	cfg.ReportPrefix = getEnvOrDefault("REPORT_PREFIX", defaultReportPrefix)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.PagePath) == "" {
		errs = append(errs, "TODO_PAGE_PATH must not be empty")
	} else if info, err := os.Stat(c.PagePath); err != nil {
		errs = append(errs, fmt.Sprintf("page %q is not readable: %v", c.PagePath, err))
	} else if info.IsDir() {
		errs = append(errs, fmt.Sprintf("page %q is a directory", c.PagePath))
	}

	switch c.Driver {
	case DriverPlaywright, DriverRod:
	default:
		errs = append(errs, fmt.Sprintf("BROWSER_DRIVER must be %q or %q, got %q", DriverPlaywright, DriverRod, c.Driver))
	}

	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		errs = append(errs, "VIEWPORT_WIDTH and VIEWPORT_HEIGHT must be positive")
	}
	if c.DefaultTimeout <= 0 {
		errs = append(errs, "WAIT_TIMEOUT must be positive")
	}
	if c.AlertTimeout <= 0 {
		errs = append(errs, "ALERT_TIMEOUT must be positive")
	}
	if c.SubmitSpacing < 0 {
		errs = append(errs, "SUBMIT_SPACING must not be negative")
	}
	if c.PollInterval <= 0 {
		errs = append(errs, "POLL_INTERVAL must be positive")
	} else if c.DefaultTimeout > 0 && c.PollInterval > c.DefaultTimeout {
		errs = append(errs, "POLL_INTERVAL must not exceed WAIT_TIMEOUT")
	}
	if strings.TrimSpace(c.ReportPath) == "" {
		errs = append(errs, "REPORT_PATH must not be empty")
	}

	if c.HistoryKey != "" {
		if c.HistoryPath == "" {
			errs = append(errs, "HISTORY_KEY is set but HISTORY_PATH is empty")
		}
		if _, err := hex.DecodeString(c.HistoryKey); err != nil || len(c.HistoryKey) != 64 {
			errs = append(errs, "HISTORY_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
		}
	}

	if c.Publish {
		if c.AWSBucketName == "" {
			errs = append(errs, "BUCKET_NAME is required with --publish")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required with --publish")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required with --publish")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// PageAbsPath returns the absolute path of the page under test.
func (c *Config) PageAbsPath() (string, error) {
	abs, err := filepath.Abs(c.PagePath)
	if err != nil {
		return "", fmt.Errorf("resolve page path %q: %w", c.PagePath, err)
	}
	return abs, nil
}

// PrintStartupSummary prints a human-readable summary of the configuration to stderr.
func (c *Config) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "todo-e2e starting...")
	fmt.Fprintf(os.Stderr, "  Page:    %s\n", c.PagePath)
	if c.Headless {
		fmt.Fprintf(os.Stderr, "  Browser: %s (headless, %dx%d)\n", c.Driver, c.ViewportWidth, c.ViewportHeight)
	} else {
		fmt.Fprintf(os.Stderr, "  Browser: %s (headed, %dx%d)\n", c.Driver, c.ViewportWidth, c.ViewportHeight)
	}
	fmt.Fprintf(os.Stderr, "  Waits:   default %s, alert %s, spacing %s\n", c.DefaultTimeout, c.AlertTimeout, c.SubmitSpacing)
	fmt.Fprintf(os.Stderr, "  Report:  %s\n", c.ReportPath)
	if c.HistoryPath != "" {
		if c.HistoryKey != "" {
			fmt.Fprintf(os.Stderr, "  History: %s (encrypted)\n", c.HistoryPath)
		} else {
			fmt.Fprintf(os.Stderr, "  History: %s\n", c.HistoryPath)
		}
	}
	if c.Publish {
		fmt.Fprintf(os.Stderr, "  Publish: s3://%s/%s\n", c.AWSBucketName, c.ReportPrefix)
	}
	fmt.Fprintln(os.Stderr, "")
}

func browserArgs(width, height int) []string {
	args := make([]string, 0, len(DefaultBrowserArgs))
	for _, arg := range DefaultBrowserArgs {
		if strings.HasPrefix(arg, "--window-size=") {
			arg = fmt.Sprintf("--window-size=%d,%d", width, height)
		}
		args = append(args, arg)
	}
	return args
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
