package nats

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ServerVersion is the nats-server release fetched by auto-download
const ServerVersion = "2.10.24"

// EnsureServerBinary ensures the nats-server binary is available at
// binPath, downloading the release archive when allowed.
func EnsureServerBinary(binPath string, autoDL bool) (string, error) {
	if _, err := os.Stat(binPath); err == nil {
		log.Printf("NATS server binary found at %s", binPath)
		return binPath, nil
	}

	if !autoDL {
		return "", fmt.Errorf("NATS server binary not found at %s and auto-download is disabled", binPath)
	}

	url, err := downloadURL()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(binPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create binary directory: %w", err)
	}

	archive, err := fetchArchive(url)
	if err != nil {
		return "", err
	}
	defer os.Remove(archive)

	if err := extractServerBinary(archive, binPath); err != nil {
		return "", fmt.Errorf("failed to extract NATS server: %w", err)
	}

	if err := os.Chmod(binPath, 0755); err != nil {
		return "", fmt.Errorf("failed to make NATS server executable: %w", err)
	}

	log.Printf("NATS server downloaded and installed at %s", binPath)
	return binPath, nil
}

func downloadURL() (string, error) {
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
	default:
		return "", fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}

	switch runtime.GOARCH {
	case "amd64", "arm64":
	default:
		return "", fmt.Errorf("unsupported architecture: %s", runtime.GOARCH)
	}

	return fmt.Sprintf(
		"https://github.com/nats-io/nats-server/releases/download/v%s/nats-server-v%s-%s-%s.zip",
		ServerVersion, ServerVersion, runtime.GOOS, runtime.GOARCH,
	), nil
}

func fetchArchive(url string) (string, error) {
	tmpFile, err := os.CreateTemp("", "nats-server-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tmpFile.Close()

	log.Printf("Downloading NATS server from %s", url)

	resp, err := http.Get(url)
	if err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to download NATS server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to download NATS server: HTTP %d", resp.StatusCode)
	}

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to save NATS server: %w", err)
	}

	return tmpFile.Name(), nil
}

func extractServerBinary(zipPath, destPath string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	binaryName := "nats-server"
	if runtime.GOOS == "windows" {
		binaryName = "nats-server.exe"
	}

	for _, f := range r.File {
		if !strings.HasSuffix(f.Name, binaryName) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open file in zip: %w", err)
		}
		defer rc.Close()

		out, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer out.Close()

		if _, err := io.Copy(out, rc); err != nil {
			return fmt.Errorf("failed to copy binary: %w", err)
		}
		return nil
	}

	return fmt.Errorf("%s not found in archive", binaryName)
}
