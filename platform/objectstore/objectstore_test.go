package objectstore

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openagua/go-evaluator/tabular"
)

func validConfig() Config {
	return Config{
		Endpoint:  "localhost:9000",
		AccessKey: "key",
		SecretKey: "secret",
		Region:    "us-east-1",
		Bucket:    "openagua",
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, validConfig().Validate())

	tests := map[string]func(*Config){
		"endpoint":   func(c *Config) { c.Endpoint = "" },
		"access key": func(c *Config) { c.AccessKey = " " },
		"secret key": func(c *Config) { c.SecretKey = "" },
		"region":     func(c *Config) { c.Region = "" },
		"bucket":     func(c *Config) { c.Bucket = "" },
		"scheme":     func(c *Config) { c.Endpoint = "http://localhost:9000" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_ACCESS_KEY", "a")
	t.Setenv("MINIO_SECRET_KEY", "b")
	t.Setenv("MINIO_BUCKET", "files")
	t.Setenv("MINIO_FILES_PATH", "project-1")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "minio:9000", cfg.Endpoint)
	assert.Equal(t, "files", cfg.Bucket)
	assert.Equal(t, "project-1", cfg.FilesPath)

	t.Setenv("MINIO_USE_SSL", "sometimes")
	_, err = ConfigFromEnv()
	require.Error(t, err)
}

func TestNewSource(t *testing.T) {
	t.Parallel()
	src, err := NewSource(validConfig())
	require.NoError(t, err)
	require.NotNil(t, src)

	_, err = NewSourceWithClient(nil, "b")
	require.Error(t, err)
}

func TestMapError(t *testing.T) {
	t.Parallel()
	missing := minio.ErrorResponse{Code: "NoSuchKey", Message: "gone"}
	require.ErrorIs(t, mapError("a.csv", missing), tabular.ErrNotFound)

	other := errors.New("connection refused")
	err := mapError("a.csv", other)
	require.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, tabular.ErrNotFound)
}
