// Package config loads service configuration from the environment, with an
// optional .env file loaded first.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime settings of the classification service.
type Config struct {
	ListenAddr     string
	ModelPath      string
	DatabasePath   string
	ERPNextURL     string
	ERPNextKey     string
	ERPNextSecret  string
	JWTSecret      string
	AdminUser      string
	AdminPassword  string
	OCRLanguages   []string
	TopKeywords    int
	MaxConnections int
	LoadTimeout    time.Duration
	SimulationSeed int64
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (Config, error) {
	// Missing .env is not an error, only a malformed one is.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		ListenAddr:     envString("ARKDOC_LISTEN_ADDR", ":8000"),
		ModelPath:      envString("ARKDOC_MODEL_PATH", "models/classifier.json"),
		DatabasePath:   envString("ARKDOC_DB_PATH", "arkdoc.db"),
		ERPNextURL:     strings.TrimRight(envString("ERPNEXT_URL", ""), "/"),
		ERPNextKey:     envString("ERPNEXT_API_KEY", ""),
		ERPNextSecret:  envString("ERPNEXT_API_SECRET", ""),
		JWTSecret:      envString("ARKDOC_JWT_SECRET", ""),
		AdminUser:      envString("ARKDOC_ADMIN_USER", "admin"),
		AdminPassword:  envString("ARKDOC_ADMIN_PASSWORD", ""),
		OCRLanguages:   splitList(envString("ARKDOC_OCR_LANGUAGES", "fra,eng")),
		TopKeywords:    5,
		MaxConnections: 256,
		LoadTimeout:    60 * time.Second,
	}

	var err error
	if cfg.TopKeywords, err = envInt("ARKDOC_TOP_KEYWORDS", cfg.TopKeywords); err != nil {
		return Config{}, err
	}
	if cfg.MaxConnections, err = envInt("ARKDOC_MAX_CONNECTIONS", cfg.MaxConnections); err != nil {
		return Config{}, err
	}
	if cfg.LoadTimeout, err = envDuration("ARKDOC_LOAD_TIMEOUT", cfg.LoadTimeout); err != nil {
		return Config{}, err
	}
	if seed := os.Getenv("ARKDOC_SIMULATION_SEED"); seed != "" {
		cfg.SimulationSeed, err = strconv.ParseInt(seed, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse ARKDOC_SIMULATION_SEED: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("ARKDOC_JWT_SECRET must be set")
	}
	if c.AdminPassword == "" {
		return errors.New("ARKDOC_ADMIN_PASSWORD must be set")
	}
	if c.TopKeywords <= 0 {
		return errors.New("ARKDOC_TOP_KEYWORDS must be positive")
	}
	if c.MaxConnections <= 0 {
		return errors.New("ARKDOC_MAX_CONNECTIONS must be positive")
	}
	// Key and secret travel together in the ERPNext token header.
	if c.ERPNextURL != "" && (c.ERPNextKey == "" || c.ERPNextSecret == "") {
		return errors.New("ERPNEXT_API_KEY and ERPNEXT_API_SECRET must be set when ERPNEXT_URL is set")
	}
	return nil
}

// ERPEnabled reports whether an ERPNext backend is configured.
func (c Config) ERPEnabled() bool {
	return c.ERPNextURL != ""
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
