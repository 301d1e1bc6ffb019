package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// WorkerBackend selects which workerapi.Worker implementation bridgectl wires up.
type WorkerBackend string

const (
	BackendFake   WorkerBackend = "fake"
	BackendWebRTC WorkerBackend = "webrtc"
)

// Config holds settings for the demo bridge host.
type Config struct {
	ListenAddr    string
	WorkerBackend WorkerBackend
	LogLevel      string
	LogFormat     string
	// QPM bounds the supervisor's reconnect queue (queries/commands per minute).
	QPM float64
}

// Load reads configuration from a .env-style file.
func Load(envPath string) (*Config, error) {
	file, err := os.Open(envPath)
	if err != nil {
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			decodedValue = value
		}

		switch key {
		case "listen_addr":
			cfg.ListenAddr = decodedValue
		case "worker_backend":
			cfg.WorkerBackend = WorkerBackend(decodedValue)
		case "log_level":
			cfg.LogLevel = decodedValue
		case "log_format":
			cfg.LogFormat = decodedValue
		case "qpm":
			if qpm, err := strconv.ParseFloat(decodedValue, 64); err == nil {
				cfg.QPM = qpm
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan env file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the baseline configuration used when no .env file is present.
func Default() *Config {
	return &Config{
		ListenAddr:    ":8088",
		WorkerBackend: BackendFake,
		LogLevel:      "info",
		LogFormat:     "text",
		QPM:           600,
	}
}

// Validate checks that configuration fields hold acceptable values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("missing listen_addr")
	}
	switch c.WorkerBackend {
	case BackendFake, BackendWebRTC:
	default:
		return fmt.Errorf("invalid worker_backend: %s (must be fake or webrtc)", c.WorkerBackend)
	}
	if c.QPM <= 0 {
		return fmt.Errorf("qpm must be positive, got %v", c.QPM)
	}
	return nil
}
