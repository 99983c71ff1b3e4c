// Package config loads and validates the Miharu configuration file.
//
// The configuration is a YAML document validated against an embedded JSON
// schema before it is decoded into typed structs.  Credentials (the Matrix
// access token and the Icinga API password) may be supplied via environment
// variables instead of the file, which keeps them out of config files checked
// into version control.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/ansato/Miharu/common/environment"
)

//go:embed schema.json
var schemaJSON string

// DefaultConversationTimeout is how long an unfinished dialogue is kept
// before it expires.
const DefaultConversationTimeout = 15 * time.Minute

// Matrix holds the chat transport settings.
type Matrix struct {
	Homeserver   string   `yaml:"homeserver"`
	UserID       string   `yaml:"user_id"`
	AccessToken  string   `yaml:"access_token"`
	Rooms        []string `yaml:"rooms"`
	AllowedUsers []string `yaml:"allowed_users"`
}

// Icinga holds the monitoring API settings.
type Icinga struct {
	APIURL      string `yaml:"api_url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	InsecureTLS bool   `yaml:"insecure_tls"`
	WebURL      string `yaml:"web_url"`

	// Filter is AND-ed onto every object query, restricting which part of
	// the monitored environment this bot may see and act on.
	Filter string `yaml:"filter"`
	// Timeout bounds a single API call, as a Go duration string.
	Timeout string `yaml:"timeout"`
	// MaxResults caps how many objects a single query returns.
	MaxResults int `yaml:"max_results"`
}

// APITimeout returns the configured per-call timeout, or zero when unset
// so the client falls back to its default.
func (i *Icinga) APITimeout() time.Duration {
	if i.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(i.Timeout)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// Bot holds settings for the bot itself.
type Bot struct {
	Name                string `yaml:"name"`
	DBPath              string `yaml:"db_path"`
	ConversationTimeout string `yaml:"conversation_timeout"`
}

// Config is the full Miharu configuration.
type Config struct {
	Matrix Matrix `yaml:"matrix"`
	Icinga Icinga `yaml:"icinga"`
	Bot    Bot    `yaml:"bot"`
}

// Load reads, validates, and decodes the configuration file at path, then
// applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes a YAML configuration document and applies
// environment variable overrides.
func Parse(data []byte) (*Config, error) {
	// Schema validation runs on the generic YAML document so that unknown or
	// mistyped keys are reported with their JSON pointer instead of being
	// silently dropped by the struct decoder.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to load config schema: %w", err)
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile config schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.Matrix.AccessToken == "" {
		return nil, fmt.Errorf("matrix access token is not set (config matrix.access_token or MIHARU_MATRIX_ACCESS_TOKEN)")
	}
	if cfg.Icinga.Password == "" {
		return nil, fmt.Errorf("icinga password is not set (config icinga.password or MIHARU_ICINGA_PASSWORD)")
	}

	return &cfg, nil
}

// applyEnv overlays environment variables on top of the file values.
// Environment variables win so that deployments can keep credentials out of
// the config file entirely.
func (c *Config) applyEnv() {
	if v, ok := environment.String("MIHARU_MATRIX_ACCESS_TOKEN"); ok && v != "" {
		c.Matrix.AccessToken = v
	}
	if v, ok := environment.String("MIHARU_ICINGA_PASSWORD"); ok && v != "" {
		c.Icinga.Password = v
	}
	c.Bot.DBPath = environment.StringOr("MIHARU_DB_PATH", c.Bot.DBPath)
}

func (c *Config) applyDefaults() {
	if c.Bot.Name == "" {
		c.Bot.Name = "Miharu"
	}
	if c.Bot.DBPath == "" {
		c.Bot.DBPath = "miharu.db"
	}
}

// Timeout returns the configured conversation timeout, falling back to the
// default when unset or unparseable.
func (c *Config) Timeout() time.Duration {
	if c.Bot.ConversationTimeout == "" {
		return DefaultConversationTimeout
	}
	d, err := time.ParseDuration(c.Bot.ConversationTimeout)
	if err != nil || d <= 0 {
		return DefaultConversationTimeout
	}
	return d
}

// UserAllowed reports whether the given Matrix user may issue commands.
// An empty allow list permits everyone in the configured rooms.
func (c *Config) UserAllowed(userID string) bool {
	if len(c.Matrix.AllowedUsers) == 0 {
		return true
	}
	for _, u := range c.Matrix.AllowedUsers {
		if u == userID {
			return true
		}
	}
	return false
}
