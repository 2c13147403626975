// Package config handles Wayfarer configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/wayfarer/config.yaml, /etc/wayfarer/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "wayfarer", "config.yaml"))
	}

	paths = append(paths, "/etc/wayfarer/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Wayfarer configuration.
type Config struct {
	Listen    ListenConfig   `yaml:"listen"`
	Models    ModelsConfig   `yaml:"models"`
	Amadeus   AmadeusConfig  `yaml:"amadeus"`
	Calendar  CalendarConfig `yaml:"calendar"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	Session   SessionConfig  `yaml:"session"`
	Update    UpdateConfig   `yaml:"update"`
	DataDir   string         `yaml:"data_dir"`
	LogLevel  string         `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`

	// PublicURL is the externally reachable base URL, used for share
	// links and QR codes. Defaults to http://localhost:<port>.
	PublicURL string `yaml:"public_url"`
}

// ModelsConfig defines the reasoning backend settings.
//
// The backend is any OpenAI-compatible chat-completions endpoint. Two API
// keys may be configured: APIKey is used for every request, and
// FallbackAPIKey (when set) is tried exactly once if the primary key hits
// a rate limit mid-turn.
type ModelsConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	FallbackAPIKey string  `yaml:"fallback_api_key"`
	Default        string  `yaml:"default"`
	Temperature    float64 `yaml:"temperature"`
}

// AmadeusConfig defines Amadeus self-service API credentials.
type AmadeusConfig struct {
	BaseURL      string `yaml:"base_url"` // default: https://test.api.amadeus.com
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// CalendarConfig selects the calendar backend for event creation.
//
// Backend "google" creates events through the Google Calendar API using the
// per-user capability token supplied with each turn. Backend "caldav" writes
// events to a self-hosted CalDAV collection instead and needs no per-user
// token.
type CalendarConfig struct {
	Backend string `yaml:"backend"` // "google" (default) or "caldav"

	// CalDAV settings, used only when Backend is "caldav".
	CalDAVURL      string `yaml:"caldav_url"`
	CalDAVUsername string `yaml:"caldav_username"`
	CalDAVPassword string `yaml:"caldav_password"`
}

// MQTTConfig defines the optional turn-event bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g. mqtt://localhost:1883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"` // default: wayfarer
	TLSInsecure bool   `yaml:"tls_insecure"`
}

// SessionConfig defines HTTP session settings.
type SessionConfig struct {
	// SecretKey seals session cookies. Must be a 64-char hex string
	// (32 bytes). Generated on first run if unset and persisted next
	// to the database.
	SecretKey string `yaml:"secret_key"`
	// TTLHours is how long a sealed session token stays valid.
	TTLHours int `yaml:"ttl_hours"`
}

// UpdateConfig controls the startup release check.
type UpdateConfig struct {
	// Disabled turns off the GitHub latest-release check at startup.
	Disabled bool `yaml:"disabled"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Models: ModelsConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Default:     "llama-3.3-70b-versatile",
			Temperature: 0.3,
		},
		Amadeus: AmadeusConfig{
			BaseURL: "https://test.api.amadeus.com",
		},
		Calendar: CalendarConfig{Backend: "google"},
		MQTT:     MQTTConfig{TopicPrefix: "wayfarer"},
		Session:  SessionConfig{TTLHours: 24 * 7},
		DataDir:  "data",
	}
}
