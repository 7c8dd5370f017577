package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/Sternrassler/catalog-harvester/pkg/harvest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

const parquetContentType = "application/vnd.apache.parquet"

// ErrNotFound is returned when an artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

var bytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "harvest_artifact_bytes_written_total",
	Help: "Parquet bytes written by artifact kind (page, merged, mirror)",
}, []string{"kind"})

// ArtifactStore implements harvest.PageSink and harvest.MergedSink.
type ArtifactStore struct {
	bucket *blob.Bucket
	logger zerolog.Logger
}

// NewArtifactStore stores artifacts in bucket. The store owns the bucket.
func NewArtifactStore(bucket *blob.Bucket) *ArtifactStore {
	return &ArtifactStore{
		bucket: bucket,
		logger: log.With().Str("component", "artifact-store").Logger(),
	}
}

// OpenLocal stores artifacts under dir, creating it when needed.
func OpenLocal(dir string) (*ArtifactStore, error) {
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("open local bucket %s: %w", dir, err)
	}
	return NewArtifactStore(bucket), nil
}

// OpenURL stores artifacts in the bucket at a gocloud URL.
func OpenURL(ctx context.Context, bucketURL string) (*ArtifactStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return NewArtifactStore(bucket), nil
}

// WritePage persists one page artifact.
func (s *ArtifactStore) WritePage(ctx context.Context, a harvest.Artifact) error {
	data, err := EncodeRecords(a.Records)
	if err != nil {
		return err
	}

	key := PageKey(a.Unit.Partition, a.Unit.Page)
	if err := writeObject(ctx, s.bucket, key, data); err != nil {
		return err
	}
	bytesWritten.WithLabelValues("page").Add(float64(len(data)))

	s.logger.Debug().
		Str("key", key).
		Int("records", len(a.Records)).
		Int("bytes", len(data)).
		Msg("Page artifact written")
	return nil
}

// ReadPages loads page artifacts of p in ascending page order. A nil pages
// slice loads every stored page.
func (s *ArtifactStore) ReadPages(ctx context.Context, p harvest.Partition, pages []int) ([]harvest.Artifact, error) {
	if pages == nil {
		var err error
		if pages, err = s.StoredPages(ctx, p); err != nil {
			return nil, err
		}
	} else {
		pages = slices.Clone(pages)
		slices.Sort(pages)
	}

	out := make([]harvest.Artifact, 0, len(pages))
	for _, page := range pages {
		records, err := s.readRecords(ctx, PageKey(p, page))
		if err != nil {
			return nil, err
		}
		out = append(out, harvest.Artifact{
			Unit:    harvest.FetchUnit{Partition: p, Page: page},
			Records: records,
		})
	}
	return out, nil
}

// StoredPages lists the page numbers stored for p in ascending order.
func (s *ArtifactStore) StoredPages(ctx context.Context, p harvest.Partition) ([]int, error) {
	iter := s.bucket.List(&blob.ListOptions{Prefix: PartitionDir(p) + "/"})

	pages := []int{}
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", PartitionDir(p), err)
		}
		if page, ok := pageFromKey(p, obj.Key); ok {
			pages = append(pages, page)
		}
	}
	slices.Sort(pages)
	return pages, nil
}

// WriteMerged persists the merged artifact.
func (s *ArtifactStore) WriteMerged(ctx context.Context, m harvest.Merged) error {
	data, err := EncodeRecords(m.Records)
	if err != nil {
		return err
	}

	key := MergedKey(m.Partition)
	if err := writeObject(ctx, s.bucket, key, data); err != nil {
		return err
	}
	bytesWritten.WithLabelValues("merged").Add(float64(len(data)))

	s.logger.Info().
		Str("key", key).
		Int("records", len(m.Records)).
		Int("bytes", len(data)).
		Msg("Merged artifact written")
	return nil
}

// ReadMerged loads the merged artifact of p.
func (s *ArtifactStore) ReadMerged(ctx context.Context, p harvest.Partition) (harvest.Merged, error) {
	records, err := s.readRecords(ctx, MergedKey(p))
	if err != nil {
		return harvest.Merged{}, err
	}
	return harvest.Merged{Partition: p, Records: records}, nil
}

// ReadMergedBytes returns the raw merged parquet object of p.
func (s *ArtifactStore) ReadMergedBytes(ctx context.Context, p harvest.Partition) ([]byte, error) {
	return readObject(ctx, s.bucket, MergedKey(p))
}

// Close releases the bucket.
func (s *ArtifactStore) Close() error {
	return s.bucket.Close()
}

func (s *ArtifactStore) readRecords(ctx context.Context, key string) ([]harvest.Record, error) {
	data, err := readObject(ctx, s.bucket, key)
	if err != nil {
		return nil, err
	}
	records, err := DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return records, nil
}

func writeObject(ctx context.Context, bucket *blob.Bucket, key string, data []byte) error {
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: parquetContentType})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

func readObject(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	data, err := bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}
