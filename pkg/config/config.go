package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/utils"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "JANUS_GO_"

// Config holds the settings of one extension, read from <package>.yaml in
// the gateway configuration directory.
type Config struct {
	InstanceID string `yaml:"instance_id"` // auto-generated if not set
	LogLevel   string `yaml:"log_level"`   // empty follows the gateway

	Echo    EchoConfig    `yaml:"echo"`
	Journal JournalConfig `yaml:"journal"`

	mu   sync.Mutex `yaml:"-"`
	file string     `yaml:"-"`
}

// EchoConfig configures the echo plugin.
type EchoConfig struct {
	MaxBitrate uint32 `yaml:"max_bitrate"` // bps, 0 disables the cap
	QueueSize  int    `yaml:"queue_size"`
	Notify     bool   `yaml:"notify"`
}

// JournalConfig configures the journal event handler.
type JournalConfig struct {
	Events     string `yaml:"events"`    // mask names, see eventhandler.ParseMask
	DBPath     string `yaml:"db_path"`   // "none" disables the storage sink
	Retention  int    `yaml:"retention"` // rows kept, 0 keeps everything
	QueueSize  int    `yaml:"queue_size"`
	ForwardURL string `yaml:"forward_url"`
	ForwardKey string `yaml:"forward_key"`
	APIAddr    string `yaml:"api_addr"` // empty disables the query API
	APIKey     string `yaml:"api_key"`
}

// File returns the path the configuration is saved to.
func (c *Config) File() string {
	return c.file
}

// Level returns the configured log level, if any.
func (c *Config) Level() (logger.Level, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LogLevel == "" {
		return 0, false
	}
	return logger.ParseLevel(c.LogLevel)
}

// Save writes the current configuration back to the file
func (c *Config) Save() error {
	if c.file == "" {
		return fmt.Errorf("config file path is not set")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.file, data, 0o644)
}

// EnsureDefaults applies environment overrides and fills missing fields.
// The file is rewritten only when a default was filled in and save is set.
func (c *Config) EnsureDefaults(save bool) error {
	changed := false
	c.mu.Lock()

	// Env overrides
	if id := utils.Env(EnvPrefix+"INSTANCE_ID", ""); id != "" {
		c.InstanceID = id
	}
	if level := utils.Env(EnvPrefix+"LOG_LEVEL", ""); level != "" {
		c.LogLevel = level
	}
	c.Echo.MaxBitrate = utils.EnvUint32(EnvPrefix+"ECHO_MAX_BITRATE", c.Echo.MaxBitrate)
	c.Echo.Notify = utils.EnvBool(EnvPrefix+"ECHO_NOTIFY", c.Echo.Notify)
	if events := utils.Env(EnvPrefix+"EVENTS", ""); events != "" {
		c.Journal.Events = events
	}
	if url := utils.Env(EnvPrefix+"FORWARD_URL", ""); url != "" {
		c.Journal.ForwardURL = url
	}
	if key := utils.Env(EnvPrefix+"FORWARD_KEY", ""); key != "" {
		c.Journal.ForwardKey = key
	}
	if addr := utils.Env(EnvPrefix+"API_ADDR", ""); addr != "" {
		c.Journal.APIAddr = addr
	}
	if key := utils.Env(EnvPrefix+"API_KEY", ""); key != "" {
		c.Journal.APIKey = key
	}

	// Create defaults
	if c.InstanceID == "" {
		id, err := utils.NewInstanceID()
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to generate instance id: %w", err)
		}
		c.InstanceID = id
		changed = true
	}

	if c.Echo.QueueSize <= 0 {
		c.Echo.QueueSize = 64
		changed = true
	}

	if c.Journal.QueueSize <= 0 {
		c.Journal.QueueSize = 1024
		changed = true
	}

	if c.Journal.Events == "" {
		c.Journal.Events = "all"
		changed = true
	}

	if c.Journal.DBPath == "" && c.file != "" {
		base := strings.TrimSuffix(filepath.Base(c.file), filepath.Ext(c.file))
		c.Journal.DBPath = filepath.Join(filepath.Dir(c.file), base+".db")
		changed = true
	}

	c.mu.Unlock()

	if changed && save {
		return c.Save()
	}
	return nil
}

// Load reads <dir>/<pkg>.yaml and <dir>/.env, applies JANUS_GO_* overrides
// and writes the defaults back. A missing or empty file is created.
func Load(dir, pkg string) (*Config, error) {
	if dir == "" {
		return nil, errors.New("config directory is not set")
	}
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg := &Config{file: filepath.Join(dir, pkg+".yaml")}

	if info, err := os.Stat(cfg.file); err == nil && info.Size() > 0 {
		yamlFeeder := feeder.Yaml{Path: cfg.file}
		if err := config.New().AddFeeder(yamlFeeder).AddStruct(cfg).Feed(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", cfg.file, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := cfg.EnsureDefaults(true); err != nil {
		return nil, err
	}
	return cfg, nil
}
