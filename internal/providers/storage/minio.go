// Package storage adapts the external object store to the delivery signer
// contract.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/fabworks/cbbstore/internal/config"
	deliverydomain "github.com/fabworks/cbbstore/internal/delivery/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MinioSigner issues presigned GET URLs for purchased artifacts. The bucket
// itself is populated by the out-of-scope ingestion pipeline; this side only
// ever signs reads.
type MinioSigner struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
	log    *zap.Logger
}

func NewMinioSigner(cfg config.Config, log *zap.Logger) (*MinioSigner, error) {
	client, err := minio.New(cfg.StorageEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		Secure: cfg.StorageUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	ttl := time.Duration(cfg.AccessTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &MinioSigner{
		client: client,
		bucket: cfg.StorageBucket,
		ttl:    ttl,
		log:    log.Named("storage.minio"),
	}, nil
}

func (m *MinioSigner) SignedURL(ctx context.Context, objectKey string) (string, time.Time, error) {
	expiresAt := time.Now().UTC().Add(m.ttl)
	url, err := m.client.PresignedGetObject(ctx, m.bucket, objectKey, m.ttl, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign %s: %w", objectKey, err)
	}
	return url.String(), expiresAt, nil
}

// Module wires the object-store signer.
var Module = fx.Module("providers.storage",
	fx.Provide(
		NewMinioSigner,
		func(s *MinioSigner) deliverydomain.Signer { return s },
	),
)
