// Package config provides configuration management for gsu and gsfake.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the harness configuration.
type Config struct {
	Tool    ToolConfig    `mapstructure:"tool"`
	Bucket  BucketConfig  `mapstructure:"bucket"`
	Harness HarnessConfig `mapstructure:"harness"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ToolConfig overrides the resolved storage tool settings.
type ToolConfig struct {
	Path   string `mapstructure:"path"`
	DryRun bool   `mapstructure:"dry_run"`
}

// BucketConfig names the remote test folder.
type BucketConfig struct {
	Prefix     string `mapstructure:"prefix"`
	Name       string `mapstructure:"name"`
	Folder     string `mapstructure:"folder"`
	BuildCount int    `mapstructure:"build_count"`
}

// HarnessConfig holds fixture lifecycle settings.
type HarnessConfig struct {
	CleanupOnTeardown bool          `mapstructure:"cleanup_on_teardown"`
	UniqueFolder      bool          `mapstructure:"unique_folder"`
	LockDir           string        `mapstructure:"lock_dir"`
	LockTimeout       time.Duration `mapstructure:"lock_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FakeConfig holds the gsfake tool configuration.
type FakeConfig struct {
	Backend string        `mapstructure:"backend"`
	Storage StorageConfig `mapstructure:"storage"`
	S3      S3Config      `mapstructure:"s3"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StorageConfig holds local backend settings.
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	MetadataDB string `mapstructure:"metadata_db"`
}

// S3Config holds S3 backend settings.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Backend names accepted by gsfake.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// MetadataPath returns the sqlite database location, which defaults to a
// file inside the data directory.
func (c StorageConfig) MetadataPath() string {
	if c.MetadataDB != "" {
		return c.MetadataDB
	}
	return filepath.Join(c.DataDir, "metadata.db")
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Bucket: BucketConfig{
			Prefix:     "gs://",
			Name:       "dart-editor-archive-testing",
			Folder:     "unit-testing",
			BuildCount: 3,
		},
		Harness: HarnessConfig{
			LockDir:     os.TempDir(),
			LockTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultFakeConfig returns a FakeConfig with default values.
func DefaultFakeConfig() *FakeConfig {
	return &FakeConfig{
		Backend: BackendLocal,
		Storage: StorageConfig{
			DataDir: filepath.Join(os.TempDir(), "gsfake"),
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load reads the harness configuration from environment variables and an
// optional config file.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	v := newViper("GSU", "gsu")
	setDefaults(v, map[string]any{
		"tool.path":                   cfg.Tool.Path,
		"tool.dry_run":                cfg.Tool.DryRun,
		"bucket.prefix":               cfg.Bucket.Prefix,
		"bucket.name":                 cfg.Bucket.Name,
		"bucket.folder":               cfg.Bucket.Folder,
		"bucket.build_count":          cfg.Bucket.BuildCount,
		"harness.cleanup_on_teardown": cfg.Harness.CleanupOnTeardown,
		"harness.unique_folder":       cfg.Harness.UniqueFolder,
		"harness.lock_dir":            cfg.Harness.LockDir,
		"harness.lock_timeout":        cfg.Harness.LockTimeout,
		"logging.level":               cfg.Logging.Level,
		"logging.format":              cfg.Logging.Format,
	})

	if err := readOptional(v); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads the harness configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFake reads the gsfake configuration from environment variables and
// an optional config file.
func LoadFake() (*FakeConfig, error) {
	cfg := DefaultFakeConfig()
	v := newViper("GSFAKE", "gsfake")
	setDefaults(v, map[string]any{
		"backend":             cfg.Backend,
		"storage.data_dir":    cfg.Storage.DataDir,
		"storage.metadata_db": cfg.Storage.MetadataDB,
		"s3.endpoint":         cfg.S3.Endpoint,
		"s3.region":           cfg.S3.Region,
		"s3.access_key":       cfg.S3.AccessKey,
		"s3.secret_key":       cfg.S3.SecretKey,
		"logging.level":       cfg.Logging.Level,
		"logging.format":      cfg.Logging.Format,
	})

	if err := readOptional(v); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFakeFromFile reads the gsfake configuration from a specific file.
func LoadFakeFromFile(path string) (*FakeConfig, error) {
	cfg := DefaultFakeConfig()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper(envPrefix, name string) *viper.Viper {
	v := viper.New()

	// Enable environment variables
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/" + name)
	v.AddConfigPath("$HOME/." + name)
	return v
}

func setDefaults(v *viper.Viper, defaults map[string]any) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func readOptional(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

func loadFile(path string, out any) error {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.Unmarshal(out)
}
