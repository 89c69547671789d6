package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openagua/go-evaluator/platform/env"
)

// Config locates the bucket that holds project files read by expressions.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
	// FilesPath is the key prefix under which relative locators are resolved.
	FilesPath string `yaml:"files_path"`
}

// DefaultConfig is the configuration used when nothing is set. Credentials have no
// default.
func DefaultConfig() Config {
	return Config{
		Endpoint: "localhost:9000",
		Region:   "us-east-1",
		Bucket:   "openagua",
	}
}

func ConfigFromEnv() (Config, error) {
	return ApplyEnv(DefaultConfig())
}

// ApplyEnv overrides the fields of cfg that have an environment variable set.
func ApplyEnv(cfg Config) (Config, error) {
	useSSL, err := env.Bool("MINIO_USE_SSL", cfg.UseSSL)
	if err != nil {
		return Config{}, err
	}
	cfg.UseSSL = useSSL
	cfg.Endpoint = env.String("MINIO_ENDPOINT", cfg.Endpoint)
	cfg.AccessKey = env.String("MINIO_ACCESS_KEY", cfg.AccessKey)
	cfg.SecretKey = env.String("MINIO_SECRET_KEY", cfg.SecretKey)
	cfg.Region = env.String("MINIO_REGION", cfg.Region)
	cfg.Bucket = env.String("MINIO_BUCKET", cfg.Bucket)
	cfg.FilesPath = env.String("MINIO_FILES_PATH", cfg.FilesPath)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
