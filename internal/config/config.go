// Package config loads the pipeline's process configuration from the
// environment. The result is an immutable struct handed to constructors so
// tests can inject distinct configurations per case.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"trailvision/internal/variant"
)

// Config is the recognized configuration surface.
type Config struct {
	// Enabled gates the whole pipeline. When false the caller should skip
	// processing entirely; the source asset workflow continues regardless.
	Enabled bool
	AppEnv  string
	// SignedURLTTL is the validity window for signed references.
	SignedURLTTL time.Duration
	// StorageTimeout bounds individual object-store calls.
	StorageTimeout time.Duration
	// Variants are the specs to generate, defaults overridden per name from
	// the environment. Names are a closed set.
	Variants []variant.Spec
}

// Load reads .env files when present, then the process environment.
func Load() (Config, error) {
	// Not an error if the files are absent.
	_ = godotenv.Load(".env", ".env.local")

	c := Config{
		Enabled: true,
		AppEnv:  getenv("APP_ENV", "development"),
	}
	if v := os.Getenv("TRAILVISION_ENABLED"); v != "" {
		c.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	ttl, err := getduration("TRAILVISION_SIGNED_URL_TTL", 7*24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	c.SignedURLTTL = ttl

	timeout, err := getduration("TRAILVISION_STORAGE_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	c.StorageTimeout = timeout

	specs := variant.DefaultSpecs()
	for i := range specs {
		prefix := "TRAILVISION_VARIANT_" + strings.ToUpper(specs[i].Name)
		dim, err := getint(prefix+"_MAX_DIMENSION", specs[i].MaxDimension)
		if err != nil {
			return Config{}, err
		}
		quality, err := getint(prefix+"_QUALITY", specs[i].Quality)
		if err != nil {
			return Config{}, err
		}
		if dim <= 0 {
			return Config{}, fmt.Errorf("%s_MAX_DIMENSION must be positive", prefix)
		}
		if quality < 1 || quality > 100 {
			return Config{}, fmt.Errorf("%s_QUALITY must be in 1..100", prefix)
		}
		specs[i].MaxDimension = dim
		specs[i].Quality = quality
	}
	c.Variants = specs
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getduration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", k)
	}
	return d, nil
}
