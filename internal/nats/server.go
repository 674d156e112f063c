package nats

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Server manages the embedded NATS server process that backs the run
// queue. If a NATS server is already listening at the configured URL the
// manager attaches to it instead of spawning its own process.
type Server struct {
	binPath   string
	storeDir  string
	url       string
	owned     bool
	cmd       *exec.Cmd
	nc        *nats.Conn
	js        jetstream.JetStream
	mu        sync.Mutex
	isRunning bool
}

// ServerConfig holds configuration for the NATS server
type ServerConfig struct {
	BinPath  string
	StoreDir string
	URL      string
	AutoDL   bool
}

// NewServer creates a new NATS server manager
func NewServer(cfg ServerConfig) (*Server, error) {
	binPath, err := EnsureServerBinary(cfg.BinPath, cfg.AutoDL)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure NATS binary: %w", err)
	}

	return &Server{
		binPath:  binPath,
		storeDir: cfg.StoreDir,
		url:      cfg.URL,
	}, nil
}

// Start starts the NATS server if not already running
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	// Attach to an external server when one is already listening
	if s.isReachable() {
		log.Printf("NATS server already running at %s", s.url)
		if err := s.connect(); err != nil {
			return err
		}
		s.isRunning = true
		return nil
	}

	absStoreDir, err := filepath.Abs(s.storeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve store dir: %w", err)
	}

	if err := os.MkdirAll(absStoreDir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	host, port, err := parseNatsURL(s.url)
	if err != nil {
		return fmt.Errorf("failed to parse NATS URL: %w", err)
	}

	// JetStream is required for the work-queue stream
	s.cmd = exec.CommandContext(ctx, s.binPath,
		"-js",
		"-sd", absStoreDir,
		"-a", host,
		"-p", port,
	)
	s.cmd.Stdout = os.Stdout
	s.cmd.Stderr = os.Stderr

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start NATS server: %w", err)
	}
	s.owned = true

	if err := s.waitReady(ctx, 10*time.Second); err != nil {
		_ = s.stopLocked()
		return err
	}

	if err := s.connect(); err != nil {
		_ = s.stopLocked()
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s.isRunning = true
	log.Printf("NATS server started at %s with JetStream enabled", s.url)
	return nil
}

// waitReady polls the listen address until the server accepts connections.
func (s *Server) waitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.isReachable() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("NATS server did not become ready at %s within %s", s.url, timeout)
}

// Stop stops the NATS server
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	return s.stopLocked()
}

func (s *Server) stopLocked() error {
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}

	// Only kill the process we spawned, never an external server
	if s.owned && s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil {
			log.Printf("Warning: failed to kill NATS process: %v", err)
		}
		if err := s.cmd.Wait(); err != nil {
			log.Printf("Warning: failed to wait for NATS process: %v", err)
		}
	}

	s.cmd = nil
	s.js = nil
	s.owned = false
	s.isRunning = false

	log.Println("NATS server stopped")
	return nil
}

// IsRunning returns true if NATS server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// GetConnection returns the NATS connection
func (s *Server) GetConnection() *nats.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nc
}

// GetJetStream returns the JetStream context
func (s *Server) GetJetStream() jetstream.JetStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.js
}

func (s *Server) isReachable() bool {
	host, port, err := parseNatsURL(s.url)
	if err != nil {
		return false
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (s *Server) connect() error {
	nc, err := nats.Connect(s.url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	s.nc = nc
	s.js = js
	return nil
}

func parseNatsURL(natsURL string) (host, port string, err error) {
	trimmed := strings.TrimPrefix(natsURL, "nats://")

	host, port, err = net.SplitHostPort(trimmed)
	if err != nil {
		return "", "", fmt.Errorf("invalid NATS URL format: %s", natsURL)
	}
	return host, port, nil
}
