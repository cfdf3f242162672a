package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Archiver uploads a finalized session envelope to long-term object storage.
type Archiver interface {
	ArchiveEnvelope(ctx context.Context, rec *FlushRecord, sessionData []byte) (uri string, err error)
}

// S3Archiver writes one JSON object per flushed session to:
//
//	s3://<bucket>/<prefix>/sessions/YYYY/MM/DD/<session_id>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Archiver builds an S3Archiver using the default AWS credential chain
// (environment, shared config, EC2/ECS role). bucket must be non-empty;
// prefix may be "".
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("audit: s3 bucket required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

type archivedSession struct {
	SessionID       string          `json:"session_id"`
	CustomerKey     string          `json:"customer_key"`
	EventCount      int             `json:"event_count"`
	FirstSeenMicros int64           `json:"first_seen_micros"`
	SessionData     json.RawMessage `json:"session_data"`
}

// ArchiveEnvelope uploads sessionData (the opaque JoinTarget output) under a
// date-partitioned key derived from rec, and returns the resulting S3 URI.
func (a *S3Archiver) ArchiveEnvelope(ctx context.Context, rec *FlushRecord, sessionData []byte) (string, error) {
	body, err := json.Marshal(archivedSession{
		SessionID:       rec.SessionID,
		CustomerKey:     rec.CustomerKey,
		EventCount:      rec.EventCount,
		FirstSeenMicros: rec.FirstSeenMicros,
		SessionData:     json.RawMessage(quoteIfNotJSON(sessionData)),
	})
	if err != nil {
		return "", fmt.Errorf("audit: marshal envelope: %w", err)
	}

	now := time.Now().UTC()
	year, month, day := now.Date()

	key := path.Join(a.prefix, "sessions",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s.json", rec.SessionID),
	)

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("audit: s3 upload: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// quoteIfNotJSON wraps raw opaque session_data bytes as a JSON string unless
// they already parse as JSON, so arbitrary JoinTarget output (binary tallies,
// protobuf, whatever) never breaks the surrounding envelope document.
func quoteIfNotJSON(b []byte) []byte {
	if json.Valid(b) {
		return b
	}

	quoted, err := json.Marshal(string(b))
	if err != nil {
		return []byte(`""`)
	}

	return quoted
}
