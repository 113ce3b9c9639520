package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/mechanic-dash/internal/gauge"
	"github.com/shaunagostinho/mechanic-dash/internal/logger"
)

// DefaultPath is where the config lives on an installed dash.
const DefaultPath = "/etc/mechanicdash/config.yaml"

// Config holds all dashboard configuration.
type Config struct {
	mu sync.RWMutex

	// Telemetry link
	Link LinkConfig `yaml:"link" json:"link"`

	// Needle animation
	Animation AnimationConfig `yaml:"animation" json:"animation"`

	// Gauges, one per telemetry channel
	Channels []gauge.Spec `yaml:"channels" json:"channels"`

	// Display preferences
	Display DisplayConfig `yaml:"display" json:"display"`

	// HTTP / websocket presentation
	Server ServerConfig `yaml:"server" json:"server"`

	// Logging
	Logging logger.Config `yaml:"logging" json:"logging"`

	// Optional sample fan-out
	Redis RedisConfig `yaml:"redis" json:"redis"`

	path string // file path for save/load
}

type LinkConfig struct {
	Peer          string     `yaml:"peer" json:"peer"`           // /dev/rfcomm0, tcp://host:port, ws://…, or "demo"
	BaudRate      int        `yaml:"baud_rate" json:"baudRate"`  // serial peers only
	BackoffMs     int        `yaml:"backoff_ms" json:"backoffMs"` // wait after a failed open
	ReadTimeoutMs int        `yaml:"read_timeout_ms" json:"readTimeoutMs"`
	DialTimeoutMs int        `yaml:"dial_timeout_ms" json:"dialTimeoutMs"`
	SkipTLSVerify bool       `yaml:"skip_tls_verify" json:"skipTlsVerify"` // wss:// peers
	Demo          DemoConfig `yaml:"demo" json:"demo"`
}

type DemoConfig struct {
	IntervalMs   int `yaml:"interval_ms" json:"intervalMs"`
	DropEvery    int `yaml:"drop_every" json:"dropEvery"`       // records per simulated episode, 0 = never
	GarbageEvery int `yaml:"garbage_every" json:"garbageEvery"` // malformed line period, 0 = never
}

type AnimationConfig struct {
	PeriodMs int `yaml:"period_ms" json:"periodMs"`
}

type DisplayConfig struct {
	Title string `yaml:"title" json:"title"`
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr" json:"listenAddr"`
	BroadcastHz int    `yaml:"broadcast_hz" json:"broadcastHz"`
	Metrics     bool   `yaml:"metrics" json:"metrics"` // expose /metrics
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Channel  string `yaml:"channel" json:"channel"`
	Buffer   int    `yaml:"buffer" json:"buffer"` // queued messages before dropping
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Link: LinkConfig{
			Peer:          "/dev/rfcomm0",
			BaudRate:      115200,
			BackoffMs:     1000,
			ReadTimeoutMs: 200,
			DialTimeoutMs: 5000,
			Demo: DemoConfig{
				IntervalMs:   50,
				DropEvery:    600,
				GarbageEvery: 97,
			},
		},
		Animation: AnimationConfig{
			PeriodMs: 20,
		},
		Channels: gauge.DefaultSpecs(),
		Display: DisplayConfig{
			Title: "Mechanic",
		},
		Server: ServerConfig{
			ListenAddr:  ":8080",
			BroadcastHz: 20,
			Metrics:     true,
		},
		Logging: logger.Config{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			Channel: "mechanicdash:telemetry",
			Buffer:  256,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string, log logrus.FieldLogger) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Infof("no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Warnf("error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Infof("loaded config from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		loadEnvFile(ep, log)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string, log logrus.FieldLogger) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Infof("loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		// Real env takes precedence
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: LINK_PEER, LINK_BAUD, LINK_BACKOFF_MS, ANIMATION_PERIOD_MS,
// LISTEN_ADDR, LOG_LEVEL, LOG_FORMAT, LOG_OUTPUT, REDIS_ENABLED, REDIS_ADDR,
// REDIS_PASSWORD, REDIS_CHANNEL
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LINK_PEER"); v != "" {
		c.Link.Peer = v
	}
	if v := os.Getenv("LINK_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Link.BaudRate = n
		}
	}
	if v := os.Getenv("LINK_BACKOFF_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Link.BackoffMs = n
		}
	}
	if v := os.Getenv("ANIMATION_PERIOD_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Animation.PeriodMs = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	// Logging
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	// Redis
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		c.Redis.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_CHANNEL"); v != "" {
		c.Redis.Channel = v
	}
}

// Backoff is the fixed wait after a failed open.
func (c *Config) Backoff() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Link.BackoffMs) * time.Millisecond
}

// AnimationPeriod is the tick period of the animation driver.
func (c *Config) AnimationPeriod() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Animation.PeriodMs) * time.Millisecond
}

// ServerSettings returns a copy of the server section, safe to call while
// UpdateFromJSON runs.
func (c *Config) ServerSettings() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// SetListenAddr overrides the listen address.
func (c *Config) SetListenAddr(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server.ListenAddr = addr
}

// Title returns the display title.
func (c *Config) Title() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Display.Title == "" {
		return "Mechanic"
	}
	return c.Display.Title
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	path := c.path
	if path == "" {
		path = DefaultPath
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved. Channel changes are validated but take effect
// on the next start, since live bounds belong to the running cluster.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Marshal current config to a generic map
	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}

	// Decode into a scratch value first so a bad patch leaves c untouched.
	next := DefaultConfig()
	next.Channels = nil
	if err := json.Unmarshal(merged, next); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	if _, err := gauge.NewCluster(next.Channels); err != nil {
		return fmt.Errorf("channels: %w", err)
	}

	password := c.Redis.Password
	c.Link = next.Link
	c.Animation = next.Animation
	c.Channels = next.Channels
	c.Display = next.Display
	c.Server = next.Server
	c.Logging = next.Logging
	c.Redis = next.Redis
	c.Redis.Password = password
	return nil
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
