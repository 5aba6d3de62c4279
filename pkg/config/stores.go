package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/blobgc/pkg/blobstore"
	blobfs "github.com/marmos91/blobgc/pkg/blobstore/fs"
	blobs3 "github.com/marmos91/blobgc/pkg/blobstore/s3"
	"github.com/marmos91/blobgc/pkg/catalog/postgres"
	"github.com/marmos91/blobgc/pkg/gc"
	"github.com/marmos91/blobgc/pkg/metrics"
)

// NewCatalog opens the PostgreSQL catalog described by cfg.Database.
func NewCatalog(ctx context.Context, cfg *Config) (*postgres.Store, error) {
	dbCfg := cfg.Database
	store, err := postgres.New(ctx, &dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return store, nil
}

// NewBlobStore builds the composite blob store. The local tree always comes
// first and is the primary backend; the remote replica follows when enabled.
// m may be nil.
func NewBlobStore(ctx context.Context, cfg *Config, m metrics.BackendMetrics) (*blobstore.Store, error) {
	local, err := createLocalBackend(cfg.Storage.Local)
	if err != nil {
		return nil, err
	}

	backends := []blobstore.Backend{local}

	if cfg.Storage.Remote.Enabled {
		remote, err := createRemoteBackend(ctx, cfg.Storage.Remote, m)
		if err != nil {
			return nil, errors.Join(err, local.Close())
		}
		backends = append(backends, remote)
	}

	return blobstore.NewStore(backends...), nil
}

// createLocalBackend creates the filesystem backend.
func createLocalBackend(cfg LocalStorageConfig) (*blobfs.Store, error) {
	store, err := blobfs.New(blobfs.Config{
		Root:       cfg.Root,
		IgnoreDirs: cfg.IgnoreDirs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create local backend: %w", err)
	}
	return store, nil
}

// createRemoteBackend creates the S3 backend with range sharding.
func createRemoteBackend(ctx context.Context, cfg RemoteStorageConfig, m metrics.BackendMetrics) (*blobs3.Store, error) {
	sharder, err := blobstore.NewRangeSharder(cfg.ContainerPrefix, cfg.ContainerSize)
	if err != nil {
		return nil, fmt.Errorf("invalid remote sharding: %w", err)
	}

	store, err := blobs3.NewFromConfig(ctx, blobs3.Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		ForcePathStyle:  cfg.ForcePathStyle,
		Sharder:         sharder,
	}, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote backend: %w", err)
	}
	return store, nil
}

// CollectorOptions returns the collector options implied by cfg. m may be
// nil when metrics are disabled.
func CollectorOptions(cfg *Config, m metrics.GCMetrics) []gc.Option {
	opts := []gc.Option{gc.WithUpstreamMirror(cfg.Storage.UpstreamMirror)}
	if m != nil {
		opts = append(opts, gc.WithMetrics(m))
	}
	return opts
}
