package storage

import (
	"context"
	"fmt"

	"github.com/Sternrassler/catalog-harvester/pkg/harvest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob" // Azure Blob Storage driver
	_ "gocloud.dev/blob/gcsblob"   // GCS driver
	_ "gocloud.dev/blob/memblob"   // in-memory driver
	_ "gocloud.dev/blob/s3blob"    // S3 driver
)

// Mirror copies merged artifacts to an external bucket. It implements
// harvest.Publisher.
type Mirror struct {
	bucket *blob.Bucket
	prefix string
	logger zerolog.Logger
}

// OpenMirror opens the bucket at a gocloud URL such as
// azblob://movies, s3://movies?region=eu-west-1 or file:///tmp/mirror.
func OpenMirror(ctx context.Context, bucketURL, prefix string) (*Mirror, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open mirror bucket %s: %w", bucketURL, err)
	}
	return NewMirror(bucket, prefix), nil
}

// NewMirror mirrors into bucket. The mirror owns the bucket.
func NewMirror(bucket *blob.Bucket, prefix string) *Mirror {
	return &Mirror{
		bucket: bucket,
		prefix: prefix,
		logger: log.With().Str("component", "mirror").Logger(),
	}
}

func (m *Mirror) Name() string { return "mirror" }

// Publish uploads the merged records of a partition, overwriting any
// previous upload.
func (m *Mirror) Publish(ctx context.Context, merged harvest.Merged) error {
	data, err := EncodeRecords(merged.Records)
	if err != nil {
		return err
	}
	return m.Upload(ctx, merged.Partition, data)
}

// Upload stores an already encoded merged parquet object for p.
func (m *Mirror) Upload(ctx context.Context, p harvest.Partition, data []byte) error {
	key := MirrorKey(m.prefix, p)
	if err := writeObject(ctx, m.bucket, key, data); err != nil {
		return fmt.Errorf("%w: %w", harvest.ErrSinkWriteFailed, err)
	}
	bytesWritten.WithLabelValues("mirror").Add(float64(len(data)))

	m.logger.Info().
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Merged artifact mirrored")
	return nil
}

// Close releases the bucket.
func (m *Mirror) Close() error {
	return m.bucket.Close()
}
