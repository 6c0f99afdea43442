package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/akotlyarov/lingua/internal/logger"
)

const (
	defaultListenAddr    = "localhost:4000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 30 * 24 * time.Hour
	defaultCookieName    = "lingua_refresh"
	defaultCookieSame    = "lax"
	defaultRatePerMinute = 120

	minSecretLen = 16
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment (dev, prod)
	Environment string

	// Address on which the lingua service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Signing secrets, one per token class. Must differ: compromise of the
	// access secret must not allow minting refresh tokens
	AccessSecret  string
	RefreshSecret string

	// Token lifetimes
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Refresh cookie contract
	CookieName     string
	CookieSecure   bool
	CookieSameSite string

	// API rate limit per client IP, requests per minute
	RatePerMinute int
}

func NewConfig() *Config {
	return &Config{
		LogLevel:       defaultLoggingLevel,
		Environment:    defaultEnvironment,
		ListenAddr:     defaultListenAddr,
		AccessTTL:      defaultAccessTTL,
		RefreshTTL:     defaultRefreshTTL,
		CookieName:     defaultCookieName,
		CookieSameSite: defaultCookieSame,
		RatePerMinute:  defaultRatePerMinute,
	}
}

// Load variables from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if d, err := time.ParseDuration(value); err == nil {
				*o = d
			}
		}
	}
	setBool := func(o *bool) func(value string) {
		return func(value string) {
			if b, err := strconv.ParseBool(value); err == nil {
				*o = b
			}
		}
	}
	setInt := func(o *int) func(value string) {
		return func(value string) {
			if n, err := strconv.Atoi(value); err == nil {
				*o = n
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":             setString(&c.ListenAddr),
		"DATABASE_URI":            setString(&c.DatabaseDSN),
		"JWT_ACCESS_SECRET":       setString(&c.AccessSecret),
		"JWT_REFRESH_SECRET":      setString(&c.RefreshSecret),
		"JWT_ACCESS_TTL":          setDuration(&c.AccessTTL),
		"JWT_REFRESH_TTL":         setDuration(&c.RefreshTTL),
		"REFRESH_COOKIE_NAME":     setString(&c.CookieName),
		"REFRESH_COOKIE_SECURE":   setBool(&c.CookieSecure),
		"REFRESH_COOKIE_SAMESITE": setString(&c.CookieSameSite),
		"RATE_PER_MINUTE":         setInt(&c.RatePerMinute),
		"LOG_LEVEL":               setString(&c.LogLevel),
		"ENVIRONMENT":             setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("lingua", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.AccessSecret, "access-secret", c.AccessSecret, "Secret to sign access tokens")
	fs.StringVar(&c.RefreshSecret, "refresh-secret", c.RefreshSecret, "Secret to sign refresh tokens")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.StringVar(&c.CookieName, "cookie-name", c.CookieName, "Refresh cookie name")
	fs.BoolVar(&c.CookieSecure, "cookie-secure", c.CookieSecure, "Set Secure flag on the refresh cookie")
	fs.StringVar(&c.CookieSameSite, "cookie-samesite", c.CookieSameSite, "Refresh cookie SameSite policy (lax, strict, none)")
	fs.IntVar(&c.RatePerMinute, "rate-per-minute", c.RatePerMinute, "API rate limit per client IP")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

// Validate checks the options that have no safe fallback
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("database DSN must be set")
	}
	if len(c.AccessSecret) < minSecretLen {
		return fmt.Errorf("access secret must be at least %d bytes", minSecretLen)
	}
	if len(c.RefreshSecret) < minSecretLen {
		return fmt.Errorf("refresh secret must be at least %d bytes", minSecretLen)
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}
	if _, err := parseSameSite(c.CookieSameSite); err != nil {
		return err
	}

	return nil
}

func parseSameSite(value string) (http.SameSite, error) {
	switch value {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("unknown SameSite policy %q", value)
	}
}
