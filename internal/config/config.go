package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	ServerPort string `yaml:"server_port"`
	GinMode    string `yaml:"gin_mode"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string `yaml:"allowed_origins"`

	FenixAPIURL  string        `yaml:"fenix_api_url"`
	FenixBaseURL string        `yaml:"fenix_base_url"`
	Lang         string        `yaml:"lang"`
	Term         string        `yaml:"term"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	// UnknownPeriodPolicy is one of reject, pass, pass_when_empty.
	UnknownPeriodPolicy string `yaml:"unknown_period_policy"`

	PreferencesBackend string `yaml:"preferences_backend"`
	PreferencesPath    string `yaml:"preferences_path"`
	PreferencesProfile string `yaml:"preferences_profile"`

	DatabaseURL      string        `yaml:"database_url"`
	MaxDBConns       int32         `yaml:"max_db_conns"`
	RedisURL         string        `yaml:"redis_url"`
	OfferingCacheTTL time.Duration `yaml:"offering_cache_ttl"`

	ControlPasswordHash string        `yaml:"control_password_hash"`
	JWTSecret           string        `yaml:"jwt_secret"`
	JWTExpiry           time.Duration `yaml:"jwt_expiry"`
	BcryptCost          int           `yaml:"bcrypt_cost"`

	PortalUsername string `yaml:"portal_username"`
	PortalPassword string `yaml:"-"`

	Run     RunConfig     `yaml:"run"`
	Window  WindowConfig  `yaml:"window"`
	Browser BrowserConfig `yaml:"browser"`
}

// RunConfig bounds one enrollment run.
type RunConfig struct {
	Deadline      time.Duration `yaml:"deadline"`
	RetryWindow   time.Duration `yaml:"attempt_retry_window"`
	RetryInterval time.Duration `yaml:"attempt_retry_interval"`
	PassPause     time.Duration `yaml:"pass_pause"`
}

// WindowConfig tunes the registration window monitor.
type WindowConfig struct {
	MaxWait         time.Duration `yaml:"max_wait"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	FailedPollSleep time.Duration `yaml:"failed_poll_sleep"`
	MaxSleepStep    time.Duration `yaml:"max_sleep_step"`
	MinSleepStep    time.Duration `yaml:"min_sleep_step"`
}

// BrowserConfig configures the portal browser session.
type BrowserConfig struct {
	Headless        bool          `yaml:"headless"`
	ChromeBin       string        `yaml:"chrome_bin"`
	Timeout         time.Duration `yaml:"timeout"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout"`
	InitRetries     int           `yaml:"init_retries"`
	LoginRetries    int           `yaml:"login_retries"`
	CaptureDir      string        `yaml:"capture_dir"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		ServerPort:          "8080",
		GinMode:             "debug",
		LogLevel:            "info",
		LogFormat:           "pretty",
		FenixAPIURL:         "https://fenix.tecnico.ulisboa.pt/api/fenix/v1",
		FenixBaseURL:        "https://fenix.tecnico.ulisboa.pt",
		Lang:                "pt-PT",
		Term:                "2025/2026",
		HTTPTimeout:         10 * time.Second,
		UnknownPeriodPolicy: "pass_when_empty",
		PreferencesBackend:  "file",
		PreferencesPath:     "config.json",
		PreferencesProfile:  "default",
		MaxDBConns:          5,
		OfferingCacheTTL:    12 * time.Hour,
		JWTSecret:           "change-this-to-a-secure-random-string",
		JWTExpiry:           12 * time.Hour,
		BcryptCost:          12,
		Run: RunConfig{
			Deadline:      20 * time.Minute,
			RetryWindow:   60 * time.Second,
			RetryInterval: 10 * time.Second,
			PassPause:     2 * time.Second,
		},
		Window: WindowConfig{
			MaxWait:         10 * time.Minute,
			PollInterval:    2 * time.Second,
			FailedPollSleep: 30 * time.Second,
			MaxSleepStep:    30 * time.Second,
			MinSleepStep:    time.Second,
		},
		Browser: BrowserConfig{
			Headless:        true,
			Timeout:         20 * time.Second,
			PageLoadTimeout: 30 * time.Second,
			InitRetries:     5,
			LoginRetries:    5,
			CaptureDir:      "logs",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file
// (CONFIG_FILE, default config.yaml), a .env file if present, and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := Defaults()
	path := getEnv("CONFIG_FILE", "config.yaml")
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.GinMode = getEnv("GIN_MODE", c.GinMode)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		c.AllowedOrigins = parseOrigins(raw)
	}

	c.FenixAPIURL = getEnv("FENIX_API_URL", c.FenixAPIURL)
	c.FenixBaseURL = getEnv("FENIX_BASE_URL", c.FenixBaseURL)
	c.Lang = getEnv("FENIX_LANG", c.Lang)
	c.Term = getEnv("FENIX_TERM", c.Term)
	c.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.UnknownPeriodPolicy = getEnv("UNKNOWN_PERIOD_POLICY", c.UnknownPeriodPolicy)

	c.PreferencesBackend = getEnv("PREFERENCES_BACKEND", c.PreferencesBackend)
	c.PreferencesPath = getEnv("PREFERENCES_PATH", c.PreferencesPath)
	c.PreferencesProfile = getEnv("PREFERENCES_PROFILE", c.PreferencesProfile)

	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.MaxDBConns = int32(getEnvInt("MAX_DB_CONNS", int(c.MaxDBConns)))
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.OfferingCacheTTL = getEnvDuration("OFFERING_CACHE_TTL", c.OfferingCacheTTL)

	c.ControlPasswordHash = getEnv("CONTROL_PASSWORD_HASH", c.ControlPasswordHash)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTExpiry = getEnvDuration("JWT_EXPIRY", c.JWTExpiry)
	c.BcryptCost = getEnvInt("BCRYPT_COST", c.BcryptCost)

	c.PortalUsername = getEnv("PORTAL_USERNAME", c.PortalUsername)
	c.PortalPassword = getEnv("PORTAL_PASSWORD", c.PortalPassword)

	c.Run.Deadline = getEnvDuration("RUN_DEADLINE", c.Run.Deadline)
	c.Run.RetryWindow = getEnvDuration("ATTEMPT_RETRY_WINDOW", c.Run.RetryWindow)
	c.Run.RetryInterval = getEnvDuration("ATTEMPT_RETRY_INTERVAL", c.Run.RetryInterval)
	c.Run.PassPause = getEnvDuration("PASS_PAUSE", c.Run.PassPause)

	c.Window.MaxWait = getEnvDuration("WINDOW_MAX_WAIT", c.Window.MaxWait)
	c.Window.PollInterval = getEnvDuration("WINDOW_POLL_INTERVAL", c.Window.PollInterval)
	c.Window.FailedPollSleep = getEnvDuration("WINDOW_FAILED_POLL_SLEEP", c.Window.FailedPollSleep)
	c.Window.MaxSleepStep = getEnvDuration("WINDOW_MAX_SLEEP_STEP", c.Window.MaxSleepStep)
	c.Window.MinSleepStep = getEnvDuration("WINDOW_MIN_SLEEP_STEP", c.Window.MinSleepStep)

	c.Browser.Headless = getEnvBool("BROWSER_HEADLESS", c.Browser.Headless)
	c.Browser.ChromeBin = getEnv("CHROME_BIN", c.Browser.ChromeBin)
	c.Browser.Timeout = getEnvDuration("BROWSER_TIMEOUT", c.Browser.Timeout)
	c.Browser.PageLoadTimeout = getEnvDuration("PAGE_LOAD_TIMEOUT", c.Browser.PageLoadTimeout)
	c.Browser.InitRetries = getEnvInt("BROWSER_INIT_RETRIES", c.Browser.InitRetries)
	c.Browser.LoginRetries = getEnvInt("LOGIN_RETRIES", c.Browser.LoginRetries)
	c.Browser.CaptureDir = getEnv("CAPTURE_DIR", c.Browser.CaptureDir)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.PreferencesBackend {
	case "file":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres preferences backend")
		}
	default:
		return fmt.Errorf("unknown preferences backend %q", c.PreferencesBackend)
	}
	if strings.TrimSpace(c.Term) == "" {
		return errors.New("academic term must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"run deadline":         c.Run.Deadline,
		"attempt retry window": c.Run.RetryWindow,
		"window max wait":      c.Window.MaxWait,
		"window poll interval": c.Window.PollInterval,
		"window max sleep":     c.Window.MaxSleepStep,
		"window min sleep":     c.Window.MinSleepStep,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Window.MinSleepStep > c.Window.MaxSleepStep {
		return errors.New("window min sleep must not exceed max sleep")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
