package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPollMaxAttempts is the number of poll requests issued before giving up.
	DefaultPollMaxAttempts = 30
	// DefaultPollInterval is the fixed wait between two poll requests.
	DefaultPollInterval = 2 * time.Second
	// DefaultSettleAttempts bounds the wait for the session marker after navigation.
	DefaultSettleAttempts = 3
	// DefaultSettleInterval is the wait between two session marker checks.
	DefaultSettleInterval = 2 * time.Second
	// DefaultConfirmDelay is the pause between the session check and the confirmation action.
	DefaultConfirmDelay = 2 * time.Second

	// DefaultVerificationAttempts is the per-stage round budget of the verification solver.
	DefaultVerificationAttempts = 2
	// DefaultVerificationStages is the number of verification stages per exchange. The system
	// browser cannot report page markers, so stages are opt-in.
	DefaultVerificationStages = 0
)

// Config is the root configuration loaded from config.yaml.
type Config struct {
	SDKConfig `yaml:",inline"`

	// LoginBaseURL is the base of the browser login page (loginDeepControl lives below it).
	LoginBaseURL string `yaml:"login-base-url" json:"login-base-url"`

	// APIBaseURL is the base of the backend poll endpoint (auth/poll lives below it).
	APIBaseURL string `yaml:"api-base-url" json:"api-base-url"`

	// AuthDir is the directory used by the file credential store.
	AuthDir string `yaml:"auth-dir" json:"auth-dir"`

	// Debug enables debug level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile switches logging from stdout to a rotating file under the log directory.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogsMaxTotalSizeMB caps the size of the log directory. <= 0 disables the cleaner.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb" json:"logs-max-total-size-mb"`

	Poll         PollConfig         `yaml:"poll" json:"poll"`
	Verification VerificationConfig `yaml:"verification" json:"verification"`
	Markers      MarkerConfig       `yaml:"markers" json:"markers"`
	Store        StoreConfig        `yaml:"store" json:"store"`
}

// PollConfig controls the backend poll loop and the post-navigation settle wait.
// IntervalSeconds and ConfirmDelayMillis accept an explicit 0; leaving them out
// selects the default.
type PollConfig struct {
	MaxAttempts           int  `yaml:"max-attempts" json:"max-attempts"`
	IntervalSeconds       *int `yaml:"interval-seconds,omitempty" json:"interval-seconds,omitempty"`
	SettleAttempts        int  `yaml:"settle-attempts" json:"settle-attempts"`
	SettleIntervalSeconds int  `yaml:"settle-interval-seconds" json:"settle-interval-seconds"`
	ConfirmDelayMillis    *int `yaml:"confirm-delay-ms,omitempty" json:"confirm-delay-ms,omitempty"`
}

// VerificationConfig controls the interactive verification rounds.
// Delays are in milliseconds; a zero range disables the corresponding wait.
type VerificationConfig struct {
	Attempts          int `yaml:"attempts" json:"attempts"`
	Stages            int `yaml:"stages" json:"stages"`
	ActivateDelayMin  int `yaml:"activate-delay-min-ms" json:"activate-delay-min-ms"`
	ActivateDelayMax  int `yaml:"activate-delay-max-ms" json:"activate-delay-max-ms"`
	RetryDelayMin     int `yaml:"retry-delay-min-ms" json:"retry-delay-min-ms"`
	RetryDelayMax     int `yaml:"retry-delay-max-ms" json:"retry-delay-max-ms"`
	SettleDelayMillis int `yaml:"settle-ms" json:"settle-ms"`
}

// MarkerConfig names the page markers the UI collaborator evaluates for each
// verification state. Empty entries fall back to the built-in marker names.
type MarkerConfig struct {
	SignUp          string `yaml:"sign-up" json:"sign-up"`
	Password        string `yaml:"password" json:"password"`
	Captcha         string `yaml:"captcha" json:"captcha"`
	AccountSettings string `yaml:"account-settings" json:"account-settings"`
	SessionActive   string `yaml:"session-active" json:"session-active"`
}

// StoreConfig selects where successful credentials are persisted.
type StoreConfig struct {
	// Type is one of "file" (default), "postgres" or "object".
	Type string `yaml:"type" json:"type"`

	PostgresDSN    string `yaml:"postgres-dsn" json:"postgres-dsn"`
	PostgresSchema string `yaml:"postgres-schema" json:"postgres-schema"`
	PostgresTable  string `yaml:"postgres-table" json:"postgres-table"`

	ObjectEndpoint  string `yaml:"object-endpoint" json:"object-endpoint"`
	ObjectBucket    string `yaml:"object-bucket" json:"object-bucket"`
	ObjectAccessKey string `yaml:"object-access-key" json:"object-access-key"`
	ObjectSecretKey string `yaml:"object-secret-key" json:"object-secret-key"`
	ObjectPrefix    string `yaml:"object-prefix" json:"object-prefix"`
	ObjectUseSSL    bool   `yaml:"object-use-ssl" json:"object-use-ssl"`
}

// LoadConfig reads and parses the YAML configuration file at configFile.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional reads the configuration file. When optional is true a missing
// or empty file yields the default configuration instead of an error.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg := &Config{}
	path := strings.TrimSpace(configFile)
	if path == "" {
		if !optional {
			return nil, fmt.Errorf("config: file path is required")
		}
		cfg.SanitizeDefaults()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			cfg.SanitizeDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	if len(strings.TrimSpace(string(data))) > 0 {
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse config file: %w", err)
		}
	}

	cfg.SanitizeDefaults()
	return cfg, nil
}

// SanitizeDefaults fills zero values with the built-in defaults and trims URLs.
func (cfg *Config) SanitizeDefaults() {
	if cfg == nil {
		return
	}
	cfg.LoginBaseURL = strings.TrimRight(strings.TrimSpace(cfg.LoginBaseURL), "/")
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.ProxyURL = strings.TrimSpace(cfg.ProxyURL)
	if strings.TrimSpace(cfg.AuthDir) == "" {
		cfg.AuthDir = "~/.loginbridge"
	}

	if cfg.Poll.MaxAttempts <= 0 {
		cfg.Poll.MaxAttempts = DefaultPollMaxAttempts
	}
	if cfg.Poll.IntervalSeconds == nil || *cfg.Poll.IntervalSeconds < 0 {
		cfg.Poll.IntervalSeconds = intPtr(int(DefaultPollInterval / time.Second))
	}
	if cfg.Poll.ConfirmDelayMillis == nil || *cfg.Poll.ConfirmDelayMillis < 0 {
		cfg.Poll.ConfirmDelayMillis = intPtr(int(DefaultConfirmDelay / time.Millisecond))
	}
	if cfg.Poll.SettleAttempts <= 0 {
		cfg.Poll.SettleAttempts = DefaultSettleAttempts
	}
	if cfg.Poll.SettleIntervalSeconds <= 0 {
		cfg.Poll.SettleIntervalSeconds = int(DefaultSettleInterval / time.Second)
	}

	v := &cfg.Verification
	if v.Attempts <= 0 {
		v.Attempts = DefaultVerificationAttempts
	}
	if v.Stages < 0 {
		v.Stages = DefaultVerificationStages
	}
	if v.ActivateDelayMin <= 0 && v.ActivateDelayMax <= 0 {
		v.ActivateDelayMin, v.ActivateDelayMax = 1000, 3000
	}
	if v.RetryDelayMin <= 0 && v.RetryDelayMax <= 0 {
		v.RetryDelayMin, v.RetryDelayMax = 1000, 2000
	}
	if v.ActivateDelayMax < v.ActivateDelayMin {
		v.ActivateDelayMax = v.ActivateDelayMin
	}
	if v.RetryDelayMax < v.RetryDelayMin {
		v.RetryDelayMax = v.RetryDelayMin
	}
	if v.SettleDelayMillis <= 0 {
		v.SettleDelayMillis = 2000
	}

	cfg.Store.Type = strings.ToLower(strings.TrimSpace(cfg.Store.Type))
	if cfg.Store.Type == "" {
		cfg.Store.Type = "file"
	}
}

// Validate reports configuration that makes an exchange impossible.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config: configuration is nil")
	}
	if cfg.LoginBaseURL == "" {
		return fmt.Errorf("config: login-base-url is required")
	}
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("config: api-base-url is required")
	}
	switch cfg.Store.Type {
	case "file", "postgres", "object":
	default:
		return fmt.Errorf("config: unsupported store type %q", cfg.Store.Type)
	}
	return nil
}

// PollInterval returns the configured interval between poll requests.
func (p PollConfig) PollInterval() time.Duration {
	if p.IntervalSeconds == nil {
		return DefaultPollInterval
	}
	return time.Duration(*p.IntervalSeconds) * time.Second
}

// ConfirmDelay returns the configured pause before the confirmation action.
func (p PollConfig) ConfirmDelay() time.Duration {
	if p.ConfirmDelayMillis == nil {
		return DefaultConfirmDelay
	}
	return time.Duration(*p.ConfirmDelayMillis) * time.Millisecond
}

func intPtr(v int) *int { return &v }

// SettleInterval returns the configured interval between session marker checks.
func (p PollConfig) SettleInterval() time.Duration {
	return time.Duration(p.SettleIntervalSeconds) * time.Second
}
