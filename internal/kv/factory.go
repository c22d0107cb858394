package kv

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"cms-go/internal/cms"
	"cms-go/internal/config"
)

// NewStoreFromConfig opens the raw backend named by backend, which must
// already be resolved (see config.Config.ResolveBackend). Sealing and the
// error policy are layered on by the caller.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig, backend string, baseDir string, clock cms.Clock, logger cms.Logger) (cms.Store, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nil

	case "remote":
		if !cfg.RemoteConfigured() {
			return nil, fmt.Errorf("remote store requires read url, write url and write token")
		}
		opts := []RemoteOption{WithRequestRate(cfg.RemoteRPS, 1)}
		if cfg.RemoteTimeoutSeconds > 0 {
			opts = append(opts, WithTimeout(time.Duration(cfg.RemoteTimeoutSeconds)*time.Second))
		}
		return NewRemoteStore(cfg.RemoteReadURL, cfg.RemoteReadToken, cfg.RemoteWriteURL, cfg.RemoteWriteToken, opts...), nil

	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis store requires redis_addr to be set")
		}
		s := NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), cfg.RedisPrefix)
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil

	case "sqlite":
		dir := cfg.SQLiteDataDir
		if dir == "" {
			dir = filepath.Join(baseDir, "db")
		}
		return NewSQLiteStoreInDir(dir, clock)

	case "badger":
		dir := cfg.BadgerDir
		if dir == "" {
			dir = filepath.Join(baseDir, "badger")
		}
		return OpenBadgerStore(DefaultBadgerConfig(dir), logger)

	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 store requires s3_bucket to be set")
		}
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix), nil

	default:
		return nil, fmt.Errorf("unknown store type: %s", backend)
	}
}

func newS3Client(ctx context.Context, cfg config.StoreConfig) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
