package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ahrdadan/verq/internal/harness"
)

const (
	// Version is the current version of Verq
	Version = "1"
	// AppName is the application name
	AppName = "Verq"
)

// Config holds all configuration options for the Verq harness and server.
type Config struct {
	// Target under test
	TargetHost        string
	TargetPort        int
	ConnectRetries    int
	ConnectRetryDelay time.Duration
	ActionTimeout     time.Duration
	PollInterval      time.Duration
	ArtifactDir       string
	ScenarioPath      string // empty runs the built-in fixture

	// Browser
	BrowserBin      string
	BrowserRemote   string // attach to an external CDP endpoint
	Headed          bool
	InstallBrowser  bool
	BrowserRevision int

	// Server (serve mode)
	Serve   bool
	Host    string
	Port    int
	BaseURL string // Full base URL for API responses (e.g., http://localhost:8000)

	// Queue (NATS JetStream)
	WithNats   bool
	NatsURL    string
	NatsStore  string
	NatsAutoDL bool
	NatsBin    string

	// Security
	RateLimitRequests int           // requests per window
	RateLimitWindow   time.Duration // time window for rate limiting
	IdempotencyTTL    time.Duration // TTL for idempotency keys
	MaxRetries        int           // Maximum retries per run

	// Flags
	ShowVersion bool
	ShowHelp    bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		TargetHost:        harness.DefaultTargetHost,
		TargetPort:        harness.DefaultTargetPort,
		ConnectRetries:    harness.DefaultConnectRetries,
		ConnectRetryDelay: harness.DefaultConnectRetryDelay,
		ActionTimeout:     harness.DefaultActionTimeout,
		PollInterval:      harness.DefaultPollInterval,
		ArtifactDir:       harness.DefaultArtifactDir,
		ScenarioPath:      "",
		BrowserBin:        "",
		BrowserRemote:     "",
		Headed:            false,
		InstallBrowser:    false,
		BrowserRevision:   0,
		Serve:             false,
		Host:              "0.0.0.0",
		Port:              8000,
		BaseURL:           "", // Will be auto-generated if empty
		WithNats:          true,
		NatsURL:           "nats://127.0.0.1:4222",
		NatsStore:         "./data/nats",
		NatsAutoDL:        true,
		NatsBin:           "./bin/nats-server",
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		IdempotencyTTL:    24 * time.Hour,
		MaxRetries:        5,
		ShowVersion:       false,
		ShowHelp:          false,
	}
}

// RunConfig returns the harness run configuration derived from the flags.
func (c *Config) RunConfig() harness.RunConfig {
	return harness.RunConfig{
		TargetHost:        c.TargetHost,
		TargetPort:        c.TargetPort,
		ConnectRetries:    c.ConnectRetries,
		ConnectRetryDelay: c.ConnectRetryDelay,
		ActionTimeout:     c.ActionTimeout,
		PollInterval:      c.PollInterval,
		ArtifactDir:       c.ArtifactDir,
	}
}

// ParseFlags parses command line flags and returns the config.
func ParseFlags() *Config {
	cfg := DefaultConfig()

	// Target flags
	flag.StringVar(&cfg.TargetHost, "target-host", cfg.TargetHost, "Host of the application under test")
	flag.IntVar(&cfg.TargetPort, "target-port", cfg.TargetPort, "Port of the application under test")
	flag.IntVar(&cfg.ConnectRetries, "connect-retries", cfg.ConnectRetries, "Connection attempts before giving up")
	flag.DurationVar(&cfg.ConnectRetryDelay, "connect-retry-delay", cfg.ConnectRetryDelay, "Delay between connection attempts")
	flag.DurationVar(&cfg.ActionTimeout, "action-timeout", cfg.ActionTimeout, "Timeout per interaction step")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "DOM polling interval for waits")
	flag.StringVar(&cfg.ArtifactDir, "artifact-dir", cfg.ArtifactDir, "Directory for screenshot artifacts")
	flag.StringVar(&cfg.ScenarioPath, "scenario", cfg.ScenarioPath, "Scenario JSON file (built-in fixture if empty)")

	// Browser flags
	flag.StringVar(&cfg.BrowserBin, "browser-bin", cfg.BrowserBin, "Chromium binary path (auto-resolved if empty)")
	flag.StringVar(&cfg.BrowserRemote, "browser-remote", cfg.BrowserRemote, "Attach to an external CDP endpoint instead of launching")
	flag.BoolVar(&cfg.Headed, "headed", cfg.Headed, "Run the browser with a visible window")
	flag.BoolVar(&cfg.InstallBrowser, "install-browser", cfg.InstallBrowser, "Download Chromium and its OS dependencies first")
	flag.IntVar(&cfg.BrowserRevision, "browser-revision", cfg.BrowserRevision, "Chromium revision to download (0 uses default)")

	// Server flags
	flag.BoolVar(&cfg.Serve, "serve", cfg.Serve, "Run as a verification service instead of a one-shot harness")
	flag.StringVar(&cfg.Host, "host", cfg.Host, "Host address to bind the server")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Port number for the server")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Base URL for API responses (e.g., http://localhost:8000)")

	// NATS flags
	flag.BoolVar(&cfg.WithNats, "with-nats", cfg.WithNats, "Enable NATS JetStream for the run queue")
	flag.StringVar(&cfg.NatsURL, "nats-url", cfg.NatsURL, "NATS server URL")
	flag.StringVar(&cfg.NatsStore, "nats-store", cfg.NatsStore, "NATS JetStream storage directory")
	flag.BoolVar(&cfg.NatsAutoDL, "nats-autodl", cfg.NatsAutoDL, "Auto-download NATS server binary")
	flag.StringVar(&cfg.NatsBin, "nats-bin", cfg.NatsBin, "Path to NATS server binary")

	// Security flags
	flag.IntVar(&cfg.RateLimitRequests, "rate-limit", cfg.RateLimitRequests, "Rate limit requests per minute")
	flag.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Maximum retries per run (1-10)")

	// Other flags
	flag.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", cfg.ShowHelp, "Show help message")

	flag.Usage = func() {
		PrintHelp()
	}

	flag.Parse()

	// Auto-generate BaseURL if not provided
	if cfg.BaseURL == "" {
		host := cfg.Host
		if host == "0.0.0.0" {
			host = "localhost"
		}
		cfg.BaseURL = fmt.Sprintf("http://%s:%d", host, cfg.Port)
	}

	// Validate
	if cfg.ConnectRetries < 1 {
		cfg.ConnectRetries = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.MaxRetries > 10 {
		cfg.MaxRetries = 10
	}
	if cfg.RateLimitRequests < 1 {
		cfg.RateLimitRequests = 100
	}

	return cfg
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("%s v%s\n", AppName, Version)
}

// PrintHelp prints help information.
func PrintHelp() {
	fmt.Printf(`%s v%s (UI verification harness)

Usage:
  ./verq [flags]                one-shot verification run
  ./verq --serve [flags]        verification service with run queue

Target under test:
  --target-host          %s
  --target-port          %d
  --connect-retries      %d
  --connect-retry-delay  %s
  --action-timeout       %s
  --poll-interval        %s
  --artifact-dir         %s
  --scenario             scenario JSON file (built-in fixture if empty)

Browser:
  --browser-bin          chromium binary (auto-resolved if empty)
  --browser-remote       attach to external CDP endpoint
  --headed               %v
  --install-browser      %v
  --browser-revision     %d

Server:
  --serve                %v
  --host                 %s
  --port                 %d
  --base-url             %s (auto-generated if empty)

Queue (NATS JetStream):
  --with-nats            %v
  --nats-url             %s
  --nats-store           %s
  --nats-autodl          %v
  --nats-bin             %s

Security:
  --rate-limit           %d (requests per minute)
  --max-retries          %d (max retries per run)

Other:
  --version              show version
  --help                 show this help

`, AppName, Version,
		harness.DefaultTargetHost, harness.DefaultTargetPort, harness.DefaultConnectRetries,
		harness.DefaultConnectRetryDelay, harness.DefaultActionTimeout, harness.DefaultPollInterval,
		harness.DefaultArtifactDir,
		false, false, 0,
		false, "0.0.0.0", 8000, "http://localhost:8000",
		true, "nats://127.0.0.1:4222", "./data/nats", true, "./bin/nats-server",
		100, 5)
}

// HandleFlags handles version and help flags, exits if needed.
func HandleFlags(cfg *Config) {
	if cfg.ShowVersion {
		PrintVersion()
		os.Exit(0)
	}

	if cfg.ShowHelp {
		PrintHelp()
		os.Exit(0)
	}
}
