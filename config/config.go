package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Palflow   PalflowConfig   `yaml:"palflow"`
	Decoder   DecoderConfig   `yaml:"decoder"`
	Processor ProcessorConfig `yaml:"processor"`
	Marker    MarkerConfig    `yaml:"marker"`
	Writer    WriterConfig    `yaml:"writer"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type PalflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// DecoderConfig controls the decode stage. Individual files decode on a
// single goroutine (each row depends on the previous one), but distinct
// files share nothing and run on parallel workers.
type DecoderConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// ProcessorConfig controls the flatten stage that turns decoded
// recordings into bounded sample batches.
type ProcessorConfig struct {
	MaxWorkers int `yaml:"max_workers"`
	BatchSize  int `yaml:"batch_size"`
}

// MarkerConfig tunes the nearest-peak search and names the marks CSV.
type MarkerConfig struct {
	ZoneWidth int     `yaml:"zone_width"`
	MinSwing  float64 `yaml:"min_swing"`
	Output    string  `yaml:"output"`
}

type WriterConfig struct {
	MaxWorkers       int                `yaml:"max_workers"`
	FlushInterval    time.Duration      `yaml:"flush_interval"`
	UploadsPerSecond float64            `yaml:"uploads_per_second"`
	LocalDir         string             `yaml:"local_dir"`
	Compression      string             `yaml:"compression"`
	Partitioning     PartitioningConfig `yaml:"partitioning"`
}

type PartitioningConfig struct {
	TimeFormat     string   `yaml:"time_format"`
	AdditionalKeys []string `yaml:"additional_keys"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Decoder:   DecoderConfig{MaxWorkers: 2},
		Processor: ProcessorConfig{MaxWorkers: 1, BatchSize: 50000},
		Marker:    MarkerConfig{ZoneWidth: 1200, MinSwing: 0.25},
		Writer: WriterConfig{
			MaxWorkers:    1,
			FlushInterval: 30 * time.Second,
			Compression:   "snappy",
			Partitioning: PartitioningConfig{
				TimeFormat:     "{year}/{month}/{day}",
				AdditionalKeys: []string{"device"},
			},
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel(),
			Format: "json",
			Output: "stdout",
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// defaultLogLevel keeps development chatty and production-like
// deployments at info.
func defaultLogLevel() string {
	if IsProductionLike(AppEnvironment()) {
		return "info"
	}
	return "debug"
}

func validateConfig(cfg *Config) error {
	if cfg.Palflow.Name == "" {
		return fmt.Errorf("palflow.name is required")
	}
	if cfg.Palflow.Version == "" {
		return fmt.Errorf("palflow.version is required")
	}

	if cfg.Decoder.MaxWorkers <= 0 {
		return fmt.Errorf("decoder.max_workers must be greater than 0")
	}

	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}
	if cfg.Processor.BatchSize <= 0 {
		return fmt.Errorf("processor.batch_size must be greater than 0")
	}

	if cfg.Marker.ZoneWidth <= 0 {
		return fmt.Errorf("marker.zone_width must be greater than 0")
	}
	if cfg.Marker.MinSwing <= 0 {
		return fmt.Errorf("marker.min_swing must be greater than 0")
	}

	if cfg.Writer.MaxWorkers <= 0 {
		return fmt.Errorf("writer.max_workers must be greater than 0")
	}
	if cfg.Writer.FlushInterval <= 0 {
		return fmt.Errorf("writer.flush_interval must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	} else if cfg.Writer.LocalDir == "" {
		return fmt.Errorf("writer.local_dir is required when S3 is disabled")
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
