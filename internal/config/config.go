package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/slatelisp/slate/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "slate.json"

	// DefaultHost is the default server bind host.
	DefaultHost = "127.0.0.1"

	// DefaultChunkSize is the default per-read buffer size.
	DefaultChunkSize = 1024

	// DefaultShutdownTimeout bounds sidecar shutdown.
	DefaultShutdownTimeout = 5 * time.Second
)

// Config represents the complete slate.json configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty"`

	// Version is the project version.
	Version string `json:"version,omitempty"`

	// Log contains logging configuration.
	Log LogConfig `json:"log,omitempty"`

	// Server contains evaluation server configuration.
	Server ServerConfig `json:"server,omitempty"`

	// Transcripts contains session transcript upload configuration.
	Transcripts TranscriptsConfig `json:"transcripts,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string `json:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty"`
}

// ServerConfig contains evaluation server settings.
type ServerConfig struct {
	// Host is the interface to bind.
	Host string `json:"host,omitempty"`

	// Port is the TCP port. 0 asks the OS for an ephemeral port.
	Port int `json:"port,omitempty"`

	// PortFile is a path the bound port is written to on startup.
	PortFile string `json:"portFile,omitempty"`

	// ChunkSize is the per-read buffer size on each connection.
	ChunkSize int `json:"chunkSize,omitempty"`

	// HTTPAddr, when set, serves /healthz, /metrics and a websocket
	// transport on this address.
	HTTPAddr string `json:"httpAddr,omitempty"`

	// ShutdownTimeout is a duration string bounding sidecar shutdown,
	// e.g. "5s".
	ShutdownTimeout string `json:"shutdownTimeout,omitempty"`
}

// TranscriptsConfig contains session transcript settings. When Bucket
// is empty no transcripts are recorded.
type TranscriptsConfig struct {
	// Bucket is the S3 bucket receiving session transcripts.
	Bucket string `json:"bucket,omitempty"`

	// Prefix is the key prefix within the bucket.
	Prefix string `json:"prefix,omitempty"`

	// Region overrides the AWS region from the environment.
	Region string `json:"region,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Version: "0.1.0",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            0,
			ChunkSize:       DefaultChunkSize,
			ShutdownTimeout: "5s",
		},
		Transcripts: TranscriptsConfig{
			Prefix: "transcripts/",
		},
	}
}

// Load reads configuration from the specified directory. It looks for
// slate.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E101").
				WithDetail("No slate.json found at " + path).
				WithSuggestion("Create slate.json or run with --port to skip the config file")
		}
		return nil, errors.New("E104").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E102").
			WithDetail("Failed to parse " + path + ": " + err.Error()).
			WithSuggestion("Check that slate.json is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E104").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("E104").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.ChunkSize == 0 {
		c.Server.ChunkSize = DefaultChunkSize
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "5s"
	}
	if c.Transcripts.Bucket != "" && c.Transcripts.Prefix == "" {
		c.Transcripts.Prefix = "transcripts/"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("E103").
			WithDetail("server.port must be between 0 and 65535, got " + strconv.Itoa(c.Server.Port))
	}
	if c.Server.ChunkSize < 0 {
		return errors.New("E103").
			WithDetail("server.chunkSize must be positive, got " + strconv.Itoa(c.Server.ChunkSize))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("E103").
			WithDetail("log.level must be one of debug, info, warn, error; got " + strconv.Quote(c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New("E103").
			WithDetail("log.format must be text or json, got " + strconv.Quote(c.Log.Format))
	}
	if _, err := c.ShutdownTimeout(); err != nil {
		return errors.New("E103").
			WithDetail("server.shutdownTimeout is not a valid duration: " + err.Error())
	}
	return nil
}

// Addr returns the address string for the evaluation server.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// ShutdownTimeout parses the configured shutdown timeout.
func (c *Config) ShutdownTimeout() (time.Duration, error) {
	if c.Server.ShutdownTimeout == "" {
		return DefaultShutdownTimeout, nil
	}
	return time.ParseDuration(c.Server.ShutdownTimeout)
}

// HasTranscripts reports whether transcript upload is configured.
func (c *Config) HasTranscripts() bool {
	return c.Transcripts.Bucket != ""
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing slate.json, or an error if not
// found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E101").
				WithDetail("No slate.json found in " + startDir + " or any parent directory").
				WithSuggestion("Create slate.json at the project root")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the nearest project root
// above the current working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
