package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// ErrInvalid marks configuration values that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Port        string
	Store       string
	DatabaseURL string
	EnvFile     string
	Once        bool

	SendGridAPIKey  string
	AlertEmail      string
	AlertFromName   string
	SlackWebhookURL string

	JWTSecret    string
	SystemUserID string

	AvailabilitySchedule string
	SSLSchedule          string
	DomainSchedule       string

	ProbeTimeout     time.Duration
	ProbeAttempts    int
	ProbeBackoff     time.Duration
	TLSTimeout       time.Duration
	WhoisServer      string
	WhoisTimeout     time.Duration
	WhoisReferrals   int
	ReAlertInterval  time.Duration
	SweepConcurrency int
	RefreshRecords   bool
	ShutdownTimeout  time.Duration

	LogLevel slog.Level
	Features Features
}

type envReader struct {
	errs []error
}

func (r *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%w: %s=%q is not a positive duration", ErrInvalid, key, v))
		return def
	}
	return d
}

func (r *envReader) integer(key string, def, least int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < least {
		r.errs = append(r.errs, fmt.Errorf("%w: %s=%q must be an integer of at least %d", ErrInvalid, key, v, least))
		return def
	}
	return n
}

func (r *envReader) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, v))
		return def
	}
	return b
}

func (r *envReader) level(key string) slog.Level {
	var l slog.Level
	v := os.Getenv(key)
	if v == "" {
		return slog.LevelInfo
	}
	if err := l.UnmarshalText([]byte(v)); err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %s=%q is not a log level", ErrInvalid, key, v))
		return slog.LevelInfo
	}
	return l
}

// Load reads the configuration from an optional .env file, the environment
// and the command line, in increasing order of precedence. args excludes the
// program name.
func Load(args []string) (Config, error) {
	flags := pflag.NewFlagSet("uptimedock", pflag.ContinueOnError)

	port := flags.StringP("port", "p", "", "HTTP listen port")
	envFile := flags.String("env-file", ".env", "Path to a .env file")
	store := flags.String("store", "", "Storage backend: memory or postgres")
	once := flags.BoolP("once", "1", false, "Run every sweep once and exit")

	if err := flags.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := godotenv.Load(*envFile); err != nil {
		if flags.Changed("env-file") || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: load %s: %v", ErrInvalid, *envFile, err)
		}
	}

	r := &envReader{}
	cfg := Config{
		Port:        r.str("PORT", "8080"),
		Store:       r.str("STORE", ""),
		DatabaseURL: r.str("DATABASE_URL", ""),
		EnvFile:     *envFile,
		Once:        *once,

		SendGridAPIKey:  r.str("SENDGRID_API_KEY", ""),
		AlertEmail:      r.str("ALERT_EMAIL", ""),
		AlertFromName:   r.str("ALERT_FROM_NAME", "UpTimeDock"),
		SlackWebhookURL: r.str("SLACK_WEBHOOK_URL", ""),

		JWTSecret:    r.str("JWT_SECRET", ""),
		SystemUserID: r.str("SYSTEM_USER_ID", "system"),

		AvailabilitySchedule: r.str("AVAILABILITY_SCHEDULE", "@every 1m"),
		SSLSchedule:          r.str("SSL_SCHEDULE", "@every 1h"),
		DomainSchedule:       r.str("DOMAIN_SCHEDULE", "@every 1h"),

		ProbeTimeout:     r.duration("PROBE_TIMEOUT", 30*time.Second),
		ProbeAttempts:    r.integer("PROBE_ATTEMPTS", 5, 1),
		ProbeBackoff:     r.duration("PROBE_BACKOFF", 5*time.Second),
		TLSTimeout:       r.duration("TLS_TIMEOUT", 10*time.Second),
		WhoisServer:      r.str("WHOIS_SERVER", "whois.iana.org"),
		WhoisTimeout:     r.duration("WHOIS_TIMEOUT", 10*time.Second),
		WhoisReferrals:   r.integer("WHOIS_REFERRALS", 3, 0),
		ReAlertInterval:  r.duration("REALERT_INTERVAL", 3*time.Hour),
		SweepConcurrency: r.integer("SWEEP_CONCURRENCY", 8, 1),
		RefreshRecords:   r.boolean("REFRESH_EXPIRY_RECORDS", true),
		ShutdownTimeout:  r.duration("SHUTDOWN_TIMEOUT", 30*time.Second),

		LogLevel: r.level("LOG_LEVEL"),
		Features: LoadFeatures(),
	}

	if *port != "" {
		cfg.Port = *port
	}
	if *store != "" {
		cfg.Store = *store
	}

	if cfg.Store == "" {
		cfg.Store = StoreMemory
		if cfg.DatabaseURL != "" {
			cfg.Store = StorePostgres
		}
	}
	cfg.Store = strings.ToLower(cfg.Store)

	if err := cfg.validate(); err != nil {
		r.errs = append(r.errs, err)
	}
	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres store", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalid, c.Store)
	}

	if c.Features.AuthEnabled && c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET is required when AUTH_ENABLED=true", ErrInvalid)
	}
	if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("%w: invalid port %q", ErrInvalid, c.Port)
	}
	return nil
}
