package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahrdadan/verq/internal/api"
	"github.com/ahrdadan/verq/internal/browser"
	"github.com/ahrdadan/verq/internal/config"
	"github.com/ahrdadan/verq/internal/harness"
	"github.com/ahrdadan/verq/internal/nats"
	"github.com/ahrdadan/verq/internal/queue"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	// Parse CLI flags
	cfg := config.ParseFlags()

	// Handle --version and --help
	config.HandleFlags(cfg)

	browserBin := cfg.BrowserBin
	if cfg.InstallBrowser {
		bin, err := browser.Install(context.Background(), cfg.BrowserRevision)
		if err != nil {
			log.Fatalf("Failed to install browser: %v", err)
		}
		browserBin = bin
	}

	opts := browser.Options{
		BinPath:   browserBin,
		RemoteURL: cfg.BrowserRemote,
		Headed:    cfg.Headed,
	}

	if cfg.Serve {
		serve(cfg, opts)
		return
	}

	runOnce(cfg, opts)
}

// runOnce drives a single scenario against the target and exits nonzero
// when the run fails.
func runOnce(cfg *config.Config, opts browser.Options) {
	log.Printf("Starting %s v%s (one-shot verification)", config.AppName, config.Version)

	scenario, err := loadScenario(cfg.ScenarioPath)
	if err != nil {
		log.Fatalf("Failed to load scenario: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := browser.NewManager(opts)
	controller := harness.NewController(manager, cfg.RunConfig())
	controller.OnStateChange(func(state harness.State) {
		log.Printf("Session state: %s", state)
	})

	report := controller.Run(ctx, scenario)
	printReport(report)

	if report.Failed() {
		os.Exit(1)
	}
}

func loadScenario(path string) (harness.Scenario, error) {
	if path == "" {
		return harness.SheetMusicScenario(), nil
	}
	return harness.LoadScenario(path)
}

func printReport(report *harness.Report) {
	log.Printf("Scenario %q finished in state %s after %d connection attempt(s)",
		report.Scenario, report.State, report.ConnectAttempts)

	for _, step := range report.Steps {
		if step.Error != "" {
			log.Printf("  step %d (%s): %s", step.Index, step.Action, step.Error)
			continue
		}
		if step.Wait != nil && !step.Wait.Satisfied {
			log.Printf("  step %d (%s): condition not met after %dms", step.Index, step.Action, step.Wait.ElapsedMs)
		}
	}

	for _, capture := range report.Captures {
		switch {
		case capture.Skipped:
			log.Printf("  capture %s: skipped", capture.Path)
		case capture.Error != "":
			log.Printf("  capture %s: %s", capture.Path, capture.Error)
		default:
			log.Printf("  capture %s: %d bytes", capture.Path, capture.Bytes)
		}
	}

	if report.Error != "" {
		log.Printf("Verification failed: %s", report.Error)
	}
}

// serve runs the verification service: a shared browser process, the run
// queue on NATS JetStream, and the HTTP API.
func serve(cfg *config.Config, opts browser.Options) {
	log.Printf("Starting %s v%s (verification service)", config.AppName, config.Version)

	browserManager := browser.NewManager(opts)
	if err := browserManager.Start(); err != nil {
		log.Fatalf("Failed to start browser: %v", err)
	}
	defer func() {
		if err := browserManager.Stop(); err != nil {
			log.Printf("Failed to stop browser: %v", err)
		}
	}()

	// Queued runs share the browser process but open their own page
	processor := queue.NewVerifyProcessor(func() harness.Browser {
		return browserManager.Session()
	}, cfg.RunConfig(), cfg.BaseURL)

	// NATS + JetStream setup
	var natsServer *nats.Server
	var queueManager *queue.Manager

	if cfg.WithNats {
		log.Printf("Setting up NATS JetStream...")

		var err error
		natsServer, err = nats.NewServer(nats.ServerConfig{
			BinPath:  cfg.NatsBin,
			StoreDir: cfg.NatsStore,
			URL:      cfg.NatsURL,
			AutoDL:   cfg.NatsAutoDL,
		})
		if err != nil {
			log.Fatalf("Failed to create NATS server: %v", err)
		}

		if err := natsServer.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start NATS server: %v", err)
		}
		defer func() { _ = natsServer.Stop() }()

		queueManager, err = queue.NewManager(natsServer.GetJetStream())
		if err != nil {
			log.Fatalf("Failed to create queue manager: %v", err)
		}

		if err := queueManager.Start(processor); err != nil {
			log.Fatalf("Failed to start queue processor: %v", err)
		}
		defer queueManager.Stop()
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      config.AppName,
		ErrorHandler: api.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	// Setup routes
	api.SetupRoutes(app, browserManager, processor, cfg.ArtifactDir)

	if queueManager != nil {
		routeConfig := api.RouteConfig{
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
			IdempotencyTTL:    cfg.IdempotencyTTL,
			MaxRetries:        cfg.MaxRetries,
		}
		api.SetupRunRoutesWithConfig(app, queueManager, routeConfig)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Printf("Starting server on %s", addr)

	if endpoint := browserManager.GetEndpoint(); endpoint != "" {
		log.Printf("Browser CDP endpoint: %s", endpoint)
	}
	if cfg.WithNats {
		log.Printf("NATS JetStream enabled at %s", cfg.NatsURL)
	}

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
