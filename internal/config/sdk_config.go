// Package config provides configuration management for loginbridge.
// It handles loading and parsing YAML configuration files, and provides structured
// access to the exchange endpoints, poll and verification budgets, page markers,
// logging settings and credential store selection.
package config

// SDKConfig holds the settings shared by every outbound HTTP client.
type SDKConfig struct {
	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	// Supported schemes are http, https and socks5.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// RequestTimeoutSeconds bounds a single poll request. <= 0 uses the default of 30 seconds.
	RequestTimeoutSeconds int `yaml:"request-timeout-seconds,omitempty" json:"request-timeout-seconds,omitempty"`
}
