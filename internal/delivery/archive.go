package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"leadflow_backend/platform/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive stores the full request/response document of a delivery attempt
// for audit and replay. Optional; a nil Archive disables archiving.
type Archive interface {
	Store(ctx context.Context, key string, doc []byte) error
}

// ArchiveDocument is what gets written per attempt.
type ArchiveDocument struct {
	DeliveryID uuid.UUID         `json:"deliveryId"`
	LeadID     uuid.UUID         `json:"leadId"`
	PartnerID  uuid.UUID         `json:"partnerId"`
	Attempt    int               `json:"attempt"`
	Endpoint   string            `json:"endpoint"`
	Payload    json.RawMessage   `json:"payload"`
	Response   *ArchivedResponse `json:"response,omitempty"`
	Error      string            `json:"error,omitempty"`
	ArchivedAt time.Time         `json:"archivedAt"`
}

// ArchivedResponse is the partner response portion of an archive document.
type ArchivedResponse struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// MinioArchive writes archive documents to an S3-compatible bucket.
type MinioArchive struct {
	client *minio.Client
	bucket string
}

// NewMinioArchive connects to the configured object store and ensures the
// bucket exists. Returns nil when archiving is disabled.
func NewMinioArchive(ctx context.Context, cfg config.ArchiveConfig) (*MinioArchive, error) {
	if !cfg.IsArchiveEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to archive store: %w", err)
	}

	bucket := cfg.GetArchiveBucket()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("checking archive bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating archive bucket: %w", err)
		}
	}

	return &MinioArchive{client: client, bucket: bucket}, nil
}

// Store uploads one archive document.
func (a *MinioArchive) Store(ctx context.Context, key string, doc []byte) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(doc), int64(len(doc)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

// ArchiveKey builds the object key for one attempt.
func ArchiveKey(leadID, deliveryID uuid.UUID, attemptedAt time.Time) string {
	return fmt.Sprintf("deliveries/%s/%s/%s.json",
		attemptedAt.UTC().Format("2006/01/02"), leadID, deliveryID)
}
