package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chartforge/render-engine/internal/common/configtypes"
	"github.com/chartforge/render-engine/internal/common/yamlutil"
	"github.com/chartforge/render-engine/pkg/types"
)

// RSConfig is the render service's process-scope configuration.
type RSConfig struct {
	Server  RSServerConfig            `yaml:"server"`
	Browser BrowserYAMLConfig         `yaml:"browser"`
	Permits int                       `yaml:"permits"`
	Log     configtypes.LogConfig     `yaml:"log"`
	Metrics configtypes.MetricsConfig `yaml:"metrics"`
}

// RSServerConfig is the environment-driven server identity: env selects
// between a file-backed and server-supplied configuration source, host/port
// are the bind address, and prefix optionally mounts the API under a path.
type RSServerConfig struct {
	Env    string `yaml:"env"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Prefix string `yaml:"prefix"`
}

// Listen returns the host:port bind address derived from Host/Port.
func (s RSServerConfig) Listen() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BrowserYAMLConfig mirrors browser.Config's shape for YAML decoding; the
// render service constructs a browser.Config from this at startup.
type BrowserYAMLConfig struct {
	MinSize             string         `yaml:"min_size"`
	MaxSize             string         `yaml:"max_size"`
	Warmup              WarmupConfig   `yaml:"warmup"`
	ShutdownTimeout     types.Duration `yaml:"shutdown_timeout"`
	ScaleUsageThreshold float64        `yaml:"scale_usage_threshold"`
	Render              RSRenderConfig `yaml:"render"`
}

// WarmupConfig configures the post-spawn warmup navigation.
type WarmupConfig struct {
	URL     string         `yaml:"url"`
	Timeout types.Duration `yaml:"timeout"`
}

const (
	// SafetyMargin is the buffer added to max_timeout for the HTTP server's
	// own read/write/idle timeouts.
	SafetyMargin = 10 * time.Second

	defaultPermits             = 20
	defaultScaleUsageThreshold = 0.8
	defaultShutdownTimeout     = 30 * time.Second
)

// RSRenderConfig carries max_timeout, which only sizes the HTTP server's
// timeouts (see CalculateServerTimeout). The executor does not read it, and a
// request's timeout_ms is not capped by it.
type RSRenderConfig struct {
	MaxTimeout types.Duration `yaml:"max_timeout"`
}

// CalculateServerTimeout returns the fasthttp server timeout.
func (r *RSRenderConfig) CalculateServerTimeout() time.Duration {
	return time.Duration(r.MaxTimeout) + SafetyMargin
}

// RSConfigManager loads and holds the render service's configuration.
type RSConfigManager struct {
	config     *RSConfig
	configPath string
	logger     *zap.Logger
}

// NewRSConfigManager creates a new config manager and loads its file.
func NewRSConfigManager(configPath string, logger *zap.Logger) (*RSConfigManager, error) {
	cm := &RSConfigManager{
		configPath: configPath,
		logger:     logger,
	}

	if err := cm.LoadConfig(); err != nil {
		return nil, err
	}

	return cm, nil
}

// LoadConfig loads configuration from file.
func (cm *RSConfigManager) LoadConfig() error {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var cfg RSConfig
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	cm.config = &cfg
	cm.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

// GetConfig returns the current configuration.
func (cm *RSConfigManager) GetConfig() *RSConfig {
	return cm.config
}

func (cm *RSConfigManager) applyDefaults() {
	cm.config.applyDefaults()
}

func (cfg *RSConfig) applyDefaults() {
	if cfg.Server.Env == "" {
		cfg.Server.Env = "file"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}

	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}

	if cfg.Permits == 0 {
		cfg.Permits = defaultPermits
	}
	if cfg.Browser.ScaleUsageThreshold == 0 {
		cfg.Browser.ScaleUsageThreshold = defaultScaleUsageThreshold
	}
	if cfg.Browser.ShutdownTimeout == 0 {
		cfg.Browser.ShutdownTimeout = types.Duration(defaultShutdownTimeout)
	}
	if cfg.Browser.Warmup.URL == "" {
		cfg.Browser.Warmup.URL = "about:blank"
	}
	if cfg.Browser.Warmup.Timeout == 0 {
		cfg.Browser.Warmup.Timeout = types.Duration(10 * time.Second)
	}
}

// Validate checks configuration validity.
func (cfg *RSConfig) Validate() error {
	switch cfg.Server.Env {
	case "file", "server":
	default:
		return fmt.Errorf("server.env must be 'file' or 'server', got %q", cfg.Server.Env)
	}
	if cfg.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if err := configtypes.ValidateListenAddress(cfg.Server.Listen()); err != nil {
		return fmt.Errorf("invalid server host/port: %w", err)
	}
	if cfg.Server.Prefix != "" && !strings.HasPrefix(cfg.Server.Prefix, "/") {
		return fmt.Errorf("server.prefix must start with /")
	}

	if cfg.Browser.MinSize != "auto" && cfg.Browser.MinSize != "" {
		if v, err := strconv.Atoi(cfg.Browser.MinSize); err != nil || v <= 0 {
			return fmt.Errorf("browser.min_size must be 'auto' or a positive integer")
		}
	}
	if cfg.Browser.MaxSize != "auto" && cfg.Browser.MaxSize != "" {
		if v, err := strconv.Atoi(cfg.Browser.MaxSize); err != nil || v <= 0 {
			return fmt.Errorf("browser.max_size must be 'auto' or a positive integer")
		}
	}
	if cfg.Browser.Warmup.URL == "" {
		return fmt.Errorf("browser.warmup.url is required")
	}
	if cfg.Browser.Warmup.Timeout <= 0 {
		return fmt.Errorf("browser.warmup.timeout must be positive")
	}
	if cfg.Browser.ShutdownTimeout <= 0 {
		return fmt.Errorf("browser.shutdown_timeout must be positive")
	}
	if cfg.Browser.ScaleUsageThreshold <= 0 || cfg.Browser.ScaleUsageThreshold > 1 {
		return fmt.Errorf("browser.scale_usage_threshold must be in (0, 1]")
	}
	if cfg.Browser.Render.MaxTimeout <= 0 {
		return fmt.Errorf("browser.render.max_timeout must be positive")
	}

	if cfg.Permits <= 0 {
		return fmt.Errorf("permits must be positive")
	}

	validLogLevels := map[string]bool{
		configtypes.LogLevelDebug:  true,
		configtypes.LogLevelInfo:   true,
		configtypes.LogLevelWarn:   true,
		configtypes.LogLevelError:  true,
		configtypes.LogLevelDPanic: true,
		configtypes.LogLevelPanic:  true,
		configtypes.LogLevelFatal:  true,
	}
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, error, dpanic, panic, or fatal)", cfg.Log.Level)
	}

	validConsoleFormats := map[string]bool{
		configtypes.LogFormatJSON:    true,
		configtypes.LogFormatConsole: true,
	}
	if cfg.Log.Console.Enabled && cfg.Log.Console.Format != "" && !validConsoleFormats[cfg.Log.Console.Format] {
		return fmt.Errorf("invalid log.console.format: %s (must be json or console)", cfg.Log.Console.Format)
	}

	if cfg.Log.File.Enabled {
		if cfg.Log.File.Path == "" {
			return fmt.Errorf("log.file.path must be specified when file logging is enabled")
		}
		validFileFormats := map[string]bool{
			configtypes.LogFormatJSON: true,
			configtypes.LogFormatText: true,
		}
		if cfg.Log.File.Format != "" && !validFileFormats[cfg.Log.File.Format] {
			return fmt.Errorf("invalid log.file.format: %s (must be json or text)", cfg.Log.File.Format)
		}
		if cfg.Log.File.Rotation.MaxSize < 0 {
			return fmt.Errorf("log.file.rotation.max_size must be >= 0, got %d", cfg.Log.File.Rotation.MaxSize)
		}
		if cfg.Log.File.Rotation.MaxAge < 0 {
			return fmt.Errorf("log.file.rotation.max_age must be >= 0, got %d", cfg.Log.File.Rotation.MaxAge)
		}
		if cfg.Log.File.Rotation.MaxBackups < 0 {
			return fmt.Errorf("log.file.rotation.max_backups must be >= 0, got %d", cfg.Log.File.Rotation.MaxBackups)
		}
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("metrics.listen is required when metrics enabled")
		} else if err := configtypes.ValidateListenAddress(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}

		metricsPort, err1 := configtypes.GetPortFromListen(cfg.Metrics.Listen)
		if err1 == nil && metricsPort == cfg.Server.Port {
			return fmt.Errorf("metrics.listen port (%d) must differ from server.port (%d) when metrics enabled", metricsPort, cfg.Server.Port)
		}
	}

	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", cfg.Metrics.Path)
	}

	if cfg.Metrics.Namespace != "" {
		if matched, _ := regexp.MatchString(`^[a-zA-Z_][a-zA-Z0-9_]*$`, cfg.Metrics.Namespace); !matched {
			return fmt.Errorf("invalid metrics.namespace: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", cfg.Metrics.Namespace)
		}
	}

	return nil
}

// LoadRSConfig loads RS configuration from a file.
func LoadRSConfig(configPath string) (*RSConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg RSConfig
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// GetConfigPath resolves the config file path.
func GetConfigPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}

	return absPath, nil
}
