package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// EnvAPIBase overrides every other source of the controller base URL.
const EnvAPIBase = "OZONE_API_BASE"

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"

	BackendSQLite = "sqlite"
	BackendFile   = "file"

	devAPIBase  = "http://localhost:9090"
	prodAPIBase = "/backend"
)

type Config struct {
	ConfigFile   string
	LogLevel     zerolog.Level
	LogFile      string
	DBPath       string
	StateBackend string
	StateFile    string

	// BaseURL is the resolved controller address, without trailing slash.
	BaseURL string `json:"-"`

	Mode    string `json:"mode"`
	APIBase string `json:"api_base"`
	Origin  string `json:"origin"`
	Locale  string `json:"locale"`

	ListenPort     int      `json:"listen_port"`
	AllowedOrigins []string `json:"allowed_origins"`

	PollIntervalMs        int `json:"poll_interval_ms"`
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`
	DefaultPulseMs        int `json:"default_pulse_ms"`
	CommandLogKeep        int `json:"command_log_keep"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	NtfyServer string `json:"ntfy_server"`
	NtfyTopic  string `json:"ntfy_topic"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to monitor config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFile, "log-file", "", "Append logs to this file instead of the console")
	flag.StringVar(&cfg.DBPath, "db-path", "data/ozone.db", "Path to the SQLite database file")
	flag.StringVar(&cfg.StateBackend, "state-backend", BackendSQLite, "Cycle state storage (sqlite, file)")
	flag.StringVar(&cfg.StateFile, "state-file", "data/state.json", "Path to the cycle state file for the file backend")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := Decode(file, &cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.ApplyDefaults()
	cfg.validate()

	base, err := ResolveBaseURL(os.Getenv(EnvAPIBase), cfg.APIBase, cfg.Mode, cfg.Origin)
	if err != nil {
		panic("Failed to resolve controller base URL: " + err.Error())
	}
	cfg.BaseURL = base
	return cfg
}

// Decode reads the JSON part of the configuration into cfg.
func Decode(r io.Reader, cfg *Config) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

func (cfg *Config) ApplyDefaults() {
	if cfg.Mode == "" {
		cfg.Mode = ModeDevelopment
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 8080
	}
	if cfg.PollIntervalMs == 0 {
		cfg.PollIntervalMs = 1000
	}
	if cfg.RequestTimeoutSeconds == 0 {
		cfg.RequestTimeoutSeconds = 5
	}
	if cfg.DefaultPulseMs == 0 {
		cfg.DefaultPulseMs = 400
	}
	if cfg.CommandLogKeep == 0 {
		cfg.CommandLogKeep = 500
	}
	if cfg.DDAgentAddr == "" {
		cfg.DDAgentAddr = "127.0.0.1:8125"
	}
	if cfg.DDNamespace == "" {
		cfg.DDNamespace = "ozone."
	}
	if cfg.StateBackend == "" {
		cfg.StateBackend = BackendSQLite
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var problems []string

	switch cfg.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		problems = append(problems, fmt.Sprintf("mode must be %q or %q, got %q", ModeDevelopment, ModeProduction, cfg.Mode))
	}
	if cfg.DBPath == "" {
		problems = append(problems, "db path is required")
	}
	switch cfg.StateBackend {
	case BackendSQLite:
	case BackendFile:
		if cfg.StateFile == "" {
			problems = append(problems, "state file is required for the file backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown state backend %q", cfg.StateBackend))
	}
	if cfg.ListenPort < 1 || cfg.ListenPort > 65535 {
		problems = append(problems, fmt.Sprintf("listen_port %d out of range", cfg.ListenPort))
	}
	if cfg.PollIntervalMs < 100 {
		problems = append(problems, fmt.Sprintf("poll_interval_ms %d below 100", cfg.PollIntervalMs))
	}
	if cfg.RequestTimeoutSeconds < 0 {
		problems = append(problems, "request_timeout_seconds must not be negative")
	}
	if cfg.DefaultPulseMs < 0 {
		problems = append(problems, "default_pulse_ms must not be negative")
	}
	if cfg.CommandLogKeep < 0 {
		problems = append(problems, "command_log_keep must not be negative")
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}

// ResolveBaseURL picks the controller base URL: the environment override,
// then the configured api_base, then the default of mode. Relative values
// are resolved against origin. Trailing slashes are removed.
func ResolveBaseURL(envBase, apiBase, mode, origin string) (string, error) {
	raw := strings.TrimSpace(envBase)
	if raw == "" {
		raw = strings.TrimSpace(apiBase)
	}
	if raw == "" {
		if mode == ModeProduction {
			raw = prodAPIBase
		} else {
			raw = devAPIBase
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", raw, err)
	}
	if !u.IsAbs() {
		if origin == "" {
			return "", fmt.Errorf("relative base %q needs an origin", raw)
		}
		o, err := url.Parse(strings.TrimSpace(origin))
		if err != nil || !o.IsAbs() {
			return "", fmt.Errorf("invalid origin %q", origin)
		}
		u = o.ResolveReference(u)
	}

	return strings.TrimRight(u.String(), "/"), nil
}
