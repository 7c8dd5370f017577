package storage

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/Sternrassler/catalog-harvester/pkg/harvest"
	"gocloud.dev/blob/memblob"
)

var usPartition = harvest.Partition{Region: "US", Year: 1999}

func newMemStore(t *testing.T) *ArtifactStore {
	t.Helper()
	s := NewArtifactStore(memblob.OpenBucket(nil))
	t.Cleanup(func() { s.Close() })
	return s
}

func pageArtifact(p harvest.Partition, page int, ids ...int64) harvest.Artifact {
	records := make([]harvest.Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, harvest.Record{
			ID:        id,
			Title:     "movie",
			Overview:  harvest.NoOverview,
			Directors: []harvest.Credit{},
			Cast:      []harvest.Credit{},
			Genres:    []harvest.Genre{},
			Countries: []harvest.Country{},
			Companies: []harvest.Company{},
			Financial: harvest.Financial{Revenue: id * 10},
		})
	}
	return harvest.Artifact{Unit: harvest.FetchUnit{Partition: p, Page: page}, Records: records}
}

func TestArtifactStore_PageRoundTrip(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	for _, page := range []int{10, 2, 1} {
		if err := s.WritePage(ctx, pageArtifact(usPartition, page, int64(page))); err != nil {
			t.Fatalf("WritePage(%d) error = %v", page, err)
		}
	}
	// other partitions and the merged object must not show up as pages
	if err := s.WritePage(ctx, pageArtifact(harvest.Partition{Region: "US", Year: 2000}, 1, 99)); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteMerged(ctx, harvest.Merged{Partition: usPartition}); err != nil {
		t.Fatal(err)
	}

	stored, err := s.StoredPages(ctx, usPartition)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(stored, []int{1, 2, 10}) {
		t.Errorf("StoredPages() = %v, want numeric order", stored)
	}

	all, err := s.ReadPages(ctx, usPartition, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[2].Unit.Page != 10 || all[2].Records[0].ID != 10 {
		t.Errorf("ReadPages(nil) = %+v", all)
	}

	some, err := s.ReadPages(ctx, usPartition, []int{2, 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(some) != 2 || some[0].Unit.Page != 1 {
		t.Errorf("ReadPages([2 1]) not ascending: %+v", some)
	}
}

func TestArtifactStore_ReadMissingPage(t *testing.T) {
	s := newMemStore(t)

	_, err := s.ReadPages(context.Background(), usPartition, []int{1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestArtifactStore_OverwriteIsIdempotent(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	a := pageArtifact(usPartition, 1, 1, 2)
	for i := 0; i < 2; i++ {
		if err := s.WritePage(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.ReadPages(ctx, usPartition, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || len(got[0].Records) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestArtifactStore_MergeTwiceByteIdentical(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	for page, ids := range map[int][]int64{1: {1, 2, 3}, 2: {3, 4, 5}} {
		if err := s.WritePage(ctx, pageArtifact(usPartition, page, ids...)); err != nil {
			t.Fatal(err)
		}
	}

	engine := harvest.NewMergeEngine(s, s)
	state := harvest.NewPartitionState(usPartition, 2)

	if _, err := engine.Merge(ctx, state); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	first, err := s.ReadMergedBytes(ctx, usPartition)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Merge(ctx, state); err != nil {
		t.Fatalf("second merge: %v", err)
	}
	second, err := s.ReadMergedBytes(ctx, usPartition)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, second) {
		t.Error("merging the same inputs twice produced different bytes")
	}

	merged, err := s.ReadMerged(ctx, usPartition)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]int64, len(merged.Records))
	for i, r := range merged.Records {
		got[i] = r.ID
	}
	if !slices.Equal(got, []int64{5, 4, 3, 2, 1}) {
		t.Errorf("merged ids = %v", got)
	}
}

func TestOpenLocal(t *testing.T) {
	dir := t.TempDir() + "/artifacts"
	s, err := OpenLocal(dir)
	if err != nil {
		t.Fatalf("OpenLocal() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.WritePage(ctx, pageArtifact(usPartition, 1, 7)); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadPages(ctx, usPartition, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Records[0].ID != 7 {
		t.Errorf("got %+v", got)
	}
}

func TestArtifactStore_MergeStoredWithoutPages(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	empty := harvest.Partition{Region: "ZZ", Year: 1850}

	_, err := harvest.NewMergeEngine(s, s).MergeStored(ctx, empty)
	if !errors.Is(err, harvest.ErrNoStoredPages) {
		t.Fatalf("expected ErrNoStoredPages, got %v", err)
	}
	if _, err := s.ReadMerged(ctx, empty); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadMerged() error = %v, want ErrNotFound", err)
	}
}
