// Package config loads the configuration of the courier command.
//
// Configuration is loaded from a single YAML file named by the COURIER_CONFIG
// environment variable or the --config flag. Values missing from the file keep
// their defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/courier/format"
	"github.com/arloliu/courier/internal/collision"
	"github.com/arloliu/courier/internal/logging"
	"github.com/arloliu/courier/payload"
	"github.com/arloliu/courier/schema"
	"github.com/arloliu/courier/transport"
)

// EnvVar names the environment variable holding the configuration path.
const EnvVar = "COURIER_CONFIG"

// Config is the configuration of a courier peer.
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Store        StoreConfig        `yaml:"store"`
	Transmission TransmissionConfig `yaml:"transmission"`
	HTTP         HTTPConfig         `yaml:"http"`

	// Correspondents are added to the store on startup unless already known.
	Correspondents []CorrespondentConfig `yaml:"correspondents"`
	// Models are registered on startup.
	Models []schema.Descriptor `yaml:"models"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is a logrus level name. Default: info
	Level string `yaml:"level"`
	// JSON switches to JSON output.
	JSON bool `yaml:"json"`
}

// StoreConfig configures transmission storage.
type StoreConfig struct {
	// Path is the bbolt database file. Empty keeps everything in memory.
	// ${HOME} and ${VAR:-default} are expanded.
	Path string `yaml:"path"`
}

// TransmissionConfig configures the transmission controller and payload codec.
type TransmissionConfig struct {
	// ResendTimeout is a Go duration. Default: 10m
	ResendTimeout string `yaml:"resend_timeout"`
	// SweepInterval is a Go duration. Default: 1m
	SweepInterval string `yaml:"sweep_interval"`
	// MaxResendRequests bounds resend requests per transmission. Default: 3
	MaxResendRequests int `yaml:"max_resend_requests"`
	// Lossless selects full-precision record values. Default: true
	Lossless bool `yaml:"lossless"`
	// Compression forces a records compression (None, Deflate, Zstd, LZ4).
	// Empty picks the smallest output.
	Compression string `yaml:"compression"`
	// Factoring sends constant columns once per payload. Default: true
	Factoring bool `yaml:"factoring"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	// Listen is the address the part receiver listens on. Default: :8640
	Listen string `yaml:"listen"`
	// Address is this peer's own URL, announced to receivers.
	Address string `yaml:"address"`
	// Limits are the part limits. Default: 1 part of 1 MiB
	Limits transport.Limits `yaml:"limits"`
}

// CorrespondentConfig declares a known peer.
type CorrespondentConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	// Kind is a transport kind name: Loopback, BinarySMS or HTTP.
	Kind string `yaml:"kind"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Transmission: TransmissionConfig{
			ResendTimeout:     "10m",
			SweepInterval:     "1m",
			MaxResendRequests: 3,
			Lossless:          true,
			Factoring:         true,
		},
		HTTP: HTTPConfig{
			Listen: ":8640",
			Limits: transport.HTTPLimits,
		},
	}
}

// Load loads the file named by COURIER_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; set it to the path of your courier.yaml or use --config", EnvVar)
	}

	return LoadFile(path)
}

// LoadFile loads and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes YAML configuration over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	cfg.Store.Path = expandVars(cfg.Store.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}

		return parts[2]
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errList []error

	if _, err := logging.LevelFromString(c.Log.Level); err != nil {
		errList = append(errList, fmt.Errorf("log.level: %w", err))
	}
	if d, err := time.ParseDuration(c.Transmission.ResendTimeout); err != nil || d <= 0 {
		errList = append(errList, fmt.Errorf("transmission.resend_timeout: invalid duration %q", c.Transmission.ResendTimeout))
	}
	if d, err := time.ParseDuration(c.Transmission.SweepInterval); err != nil || d <= 0 {
		errList = append(errList, fmt.Errorf("transmission.sweep_interval: invalid duration %q", c.Transmission.SweepInterval))
	}
	if c.Transmission.MaxResendRequests < 0 {
		errList = append(errList, fmt.Errorf("transmission.max_resend_requests: %d is negative", c.Transmission.MaxResendRequests))
	}
	if c.Transmission.Compression != "" {
		ct, ok := format.ParseCompression(c.Transmission.Compression)
		if !ok || !ct.IsWire() {
			errList = append(errList, fmt.Errorf("transmission.compression: unsupported %q", c.Transmission.Compression))
		}
	}
	if err := c.HTTP.Limits.Validate(); err != nil {
		errList = append(errList, fmt.Errorf("http.limits: %w", err))
	}
	peers := collision.NewTracker("correspondent")
	for i, corr := range c.Correspondents {
		if _, ok := format.ParseTransportKind(corr.Kind); !ok {
			errList = append(errList, fmt.Errorf("correspondents[%d]: unknown transport kind %q", i, corr.Kind))
		}
		if corr.Address == "" {
			errList = append(errList, fmt.Errorf("correspondents[%d]: address is required", i))
			continue
		}
		if err := peers.Track(corr.Kind + " " + corr.Address); err != nil {
			errList = append(errList, fmt.Errorf("correspondents[%d]: %w", i, err))
		}
	}
	models := collision.NewTracker("model")
	for i, d := range c.Models {
		if err := models.Track(fmt.Sprintf("%s v%d", d.Name, d.Version)); err != nil {
			errList = append(errList, fmt.Errorf("models[%d]: %w", i, err))
		}
	}

	return errors.Join(errList...)
}

// ResendTimeout returns the parsed resend timeout. Call after Validate.
func (c *Config) ResendTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Transmission.ResendTimeout)
	return d
}

// SweepInterval returns the parsed sweep interval. Call after Validate.
func (c *Config) SweepInterval() time.Duration {
	d, _ := time.ParseDuration(c.Transmission.SweepInterval)
	return d
}

// CodecOptions returns the payload codec options selected by the configuration.
func (c *Config) CodecOptions() []payload.CodecOption {
	opts := []payload.CodecOption{
		payload.WithLossless(c.Transmission.Lossless),
		payload.WithFactoring(c.Transmission.Factoring),
	}
	if ct, ok := format.ParseCompression(c.Transmission.Compression); ok {
		opts = append(opts, payload.WithCompression(ct))
	}

	return opts
}

// Registry builds a registry holding the configured models.
func (c *Config) Registry() (*schema.Registry, error) {
	reg, err := schema.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, d := range c.Models {
		m, err := schema.FromDescriptor(d)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
