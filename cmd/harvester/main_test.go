package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/catalog-harvester/internal/testutil"
	"github.com/Sternrassler/catalog-harvester/pkg/harvest"
	"github.com/Sternrassler/catalog-harvester/pkg/storage"
)

// writeConfig writes a minimal config file pointing storage at dir.
func writeConfig(t *testing.T, dir, baseURL string) string {
	t.Helper()

	body := fmt.Sprintf(`catalog:
  base_url: %s
  api_key: test-key
  retry:
    max_attempts: 1
storage:
  local_dir: %s
logging:
  level: error
`, baseURL, dir)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "harvester version dev") {
		t.Errorf("output = %q", out)
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"pages", "fetch", "run", "merge", "upload", "load", "version"}
	root := newRootCommand()
	for _, name := range want {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestPartitionFlags_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		in      partitionFlags
		want    partitionFlags
		wantErr bool
	}{
		{"single year", partitionFlags{region: "us", start: 1999}, partitionFlags{region: "US", start: 1999, end: 1999}, false},
		{"range", partitionFlags{region: " fr ", start: 2000, end: 2002}, partitionFlags{region: "FR", start: 2000, end: 2002}, false},
		{"reversed", partitionFlags{region: "US", start: 2002, end: 2000}, partitionFlags{}, true},
		{"no region", partitionFlags{start: 2000}, partitionFlags{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			err := got.normalize()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("normalize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMergeCommand_MergesStoredPages(t *testing.T) {
	dir := t.TempDir()
	part := harvest.Partition{Region: "US", Year: 1999}

	s, err := storage.OpenLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	pages := map[int][]harvest.Record{
		1: {{ID: 1, Financial: harvest.Financial{Revenue: 10}}, {ID: 2, Financial: harvest.Financial{Revenue: 30}}},
		2: {{ID: 2, Financial: harvest.Financial{Revenue: 30}}, {ID: 3, Financial: harvest.Financial{Revenue: 20}}},
	}
	for page, records := range pages {
		a := harvest.Artifact{Unit: harvest.FetchUnit{Partition: part, Page: page}, Records: records}
		if err := s.WritePage(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	s.Close()

	out, err := execute(t, "merge", "--config", writeConfig(t, dir, "http://catalog.test/3"), "--region", "us", "--start", "1999")
	if err != nil {
		t.Fatalf("merge error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "US/1999: merged, 3 records") {
		t.Errorf("output = %q", out)
	}

	s, err = storage.OpenLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	merged, err := s.ReadMerged(ctx, part)
	if err != nil {
		t.Fatalf("ReadMerged() error = %v", err)
	}
	if len(merged.Records) != 3 || merged.Records[0].ID != 2 {
		t.Errorf("merged = %+v", merged.Records)
	}
}

func TestPagesCommand_PrintsPartitionTable(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetPages("US", 1999, map[int][]testutil.MockMovie{
		1: testutil.MoviesRange(1, 20),
		2: testutil.MoviesRange(21, 25),
	})

	out, err := execute(t, "pages", "--config", writeConfig(t, t.TempDir(), mock.BaseURL()), "--region", "US", "--start", "1999", "--end", "2000")
	if err != nil {
		t.Fatalf("pages error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "US/1999") || !strings.Contains(out, "25") {
		t.Errorf("missing US/1999 row:\n%s", out)
	}
	if !strings.Contains(out, "US/2000") {
		t.Errorf("missing empty US/2000 row:\n%s", out)
	}
}

func TestUploadCommand_RequiresMirror(t *testing.T) {
	_, err := execute(t, "upload", "--config", writeConfig(t, t.TempDir(), "http://catalog.test/3"), "--region", "US", "--start", "1999")
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Errorf("err = %v, want not configured", err)
	}
}

func TestJoinInts(t *testing.T) {
	if got := joinInts(nil); got != "-" {
		t.Errorf("joinInts(nil) = %q", got)
	}
	if got := joinInts([]int{3, 7}); got != "3,7" {
		t.Errorf("joinInts = %q", got)
	}
}

func TestRenderReport_ShowsTruncation(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, &harvest.RunReport{
		RunID: "r1",
		Partitions: []harvest.PartitionReport{
			{Partition: "US/1999", Status: harvest.MergeCompleted, ExpectedPages: 500, ReportedPages: 612, Truncated: true},
			{Partition: "US/2000", Status: harvest.MergeCompleted, ExpectedPages: 3, ReportedPages: 3},
		},
	})

	if !strings.Contains(buf.String(), "500 of 612") {
		t.Errorf("truncated page count missing:\n%s", buf.String())
	}
}
