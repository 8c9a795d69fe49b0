package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding an optional YAML config
// file. Its values are defaults; environment variables and flags override
// them.
const FileEnv = "KOLONY_CONFIG"

type Config struct {
	KolonyBaseURL    string        `yaml:"kolony_base_url"`
	AccessToken      string        `yaml:"access_token"`
	UpstreamProxyURL string        `yaml:"upstream_proxy_url"`
	ListenAddr       string        `yaml:"listen_addr"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	// A2A
	A2AEnabled bool   `yaml:"a2a_enabled"`
	A2APort    int    `yaml:"a2a_port"`
	AgentName  string `yaml:"agent_name"`
	AgentDesc  string `yaml:"agent_desc"`
	// Observability
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogOutput     string `yaml:"log_output"`
	TraceExporter string `yaml:"trace_exporter"`
	// Gateway rate limiting, per credential. Zero disables it.
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
	RateLimitBurst  int `yaml:"rate_limit_burst"`
	// TrustForwardedFor keys anonymous callers on X-Forwarded-For. Enable it
	// only behind a proxy that overwrites the header.
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
}

func defaults() Config {
	return Config{
		KolonyBaseURL:   "http://localhost:54321",
		ListenAddr:      ":8080",
		RequestTimeout:  120 * time.Second,
		A2APort:         8000,
		AgentName:       "adgen-orchestrator",
		AgentDesc:       "Canadian ad campaign orchestrator exposed via A2A protocol",
		LogLevel:        "info",
		LogFormat:       "text",
		LogOutput:       "stderr",
		TraceExporter:   "noop",
		RateLimitPerMin: 60,
		RateLimitBurst:  10,
	}
}

// Load parses the process flags and environment.
func Load() (*Config, error) {
	return Parse(flag.CommandLine, os.Args[1:])
}

// Parse registers the configuration flags on fs and parses args.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	d := defaults()
	if path := os.Getenv(FileEnv); path != "" {
		if err := loadFile(path, &d); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	fs.StringVar(&cfg.KolonyBaseURL, "base-url", getEnv("KOLONY_BASE_URL", d.KolonyBaseURL), "Kolony project URL or full functions endpoint")
	fs.StringVar(&cfg.AccessToken, "access-token", getEnv("KOLONY_ACCESS_TOKEN", d.AccessToken), "Session access token used when a caller supplies none")
	fs.StringVar(&cfg.UpstreamProxyURL, "upstream-proxy-url", getEnv("KOLONY_PROXY_URL", d.UpstreamProxyURL), "HTTP/HTTPS proxy URL for Kolony requests (e.g. http://proxy:8080)")
	fs.StringVar(&cfg.ListenAddr, "listen-addr", getEnv("LISTEN_ADDR", d.ListenAddr), "Gateway listen address")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", getEnvDuration("REQUEST_TIMEOUT", d.RequestTimeout), "Wait for upstream response headers")

	fs.BoolVar(&cfg.A2AEnabled, "a2a", getEnvBool("A2A_ENABLED", d.A2AEnabled), "Enable A2A server alongside the gateway")
	fs.IntVar(&cfg.A2APort, "a2a-port", getEnvInt("A2A_PORT", d.A2APort), "A2A server listen port")
	fs.StringVar(&cfg.AgentName, "agent-name", getEnv("AGENT_NAME", d.AgentName), "A2A AgentCard name")
	fs.StringVar(&cfg.AgentDesc, "agent-desc", getEnv("AGENT_DESC", d.AgentDesc), "A2A AgentCard description")

	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", d.LogLevel), "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", d.LogFormat), "text or json")
	fs.StringVar(&cfg.LogOutput, "log-output", getEnv("LOG_OUTPUT", d.LogOutput), "stderr, stdout or a file path")
	fs.StringVar(&cfg.TraceExporter, "trace-exporter", getEnv("TRACE_EXPORTER", d.TraceExporter), "noop or stdout")

	fs.IntVar(&cfg.RateLimitPerMin, "rate-limit", getEnvInt("RATE_LIMIT_PER_MIN", d.RateLimitPerMin), "Requests per minute per credential (0 disables)")
	fs.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", getEnvInt("RATE_LIMIT_BURST", d.RateLimitBurst), "Rate limiter burst size")
	fs.BoolVar(&cfg.TrustForwardedFor, "trust-forwarded-for", getEnvBool("TRUST_FORWARDED_FOR", d.TrustForwardedFor), "Rate limit anonymous callers by X-Forwarded-For (only behind a trusted proxy)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.KolonyBaseURL == "" {
		return errors.New("config: base URL is required")
	}
	u, err := url.Parse(c.KolonyBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid base URL %q", c.KolonyBaseURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.RateLimitPerMin < 0 || c.RateLimitBurst < 0 {
		return errors.New("config: rate limits must not be negative")
	}
	if c.A2AEnabled && (c.A2APort <= 0 || c.A2APort > 65535) {
		return fmt.Errorf("config: invalid A2A port %d", c.A2APort)
	}
	return nil
}

func loadFile(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
