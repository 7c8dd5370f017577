package harvest

import (
	"context"
)

// PageSink persists per-page artifacts. WritePage overwrites, so rewriting a
// page is idempotent.
type PageSink interface {
	WritePage(ctx context.Context, a Artifact) error

	// ReadPages returns the stored artifacts of p in ascending page order.
	// A nil pages slice means every stored page.
	ReadPages(ctx context.Context, p Partition, pages []int) ([]Artifact, error)
}

// MergedSink persists merged partition artifacts.
type MergedSink interface {
	WriteMerged(ctx context.Context, m Merged) error
}

// Publisher ships a merged artifact to an external system after a successful
// merge.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, m Merged) error
}
