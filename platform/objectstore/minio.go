// Package objectstore serves tables to read_csv from a MinIO or S3 bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/openagua/go-evaluator/tabular"
)

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Source is a tabular.Source over one bucket.
type Source struct {
	client *minio.Client
	bucket string
}

// NewSource connects to the bucket of cfg.
func NewSource(cfg Config) (*Source, error) {
	client, err := NewMinIOClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewSourceWithClient(client, cfg.Bucket)
}

func NewSourceWithClient(client *minio.Client, bucket string) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &Source{client: client, bucket: bucket}, nil
}

// Open reads the object stored under key.
func (s *Source) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("minio source not initialized")
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapError(key, err)
	}
	return obj, nil
}

func mapError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s", tabular.ErrNotFound, key)
	}
	return errors.Join(fmt.Errorf("read object %s", key), err)
}
