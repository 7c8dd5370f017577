package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-harvester/pkg/config"
	"github.com/alicebob/miniredis/v2"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Catalog: config.CatalogConfig{
			BaseURL:    "http://catalog.test/3",
			APIKey:     "k",
			UserAgent:  "test",
			Timeout:    time.Second,
			MinRuntime: 40,
			MemoSize:   16,
		},
		Harvest: config.HarvestConfig{
			Workers:              3,
			PartitionConcurrency: 2,
			UnitTimeout:          time.Minute,
			ReconcilePasses:      2,
			MaxPages:             100,
		},
		Storage:  config.StorageConfig{LocalDir: t.TempDir()},
		Logging:  config.LoggingConfig{Level: "error"},
		Database: config.DatabaseConfig{Migrate: true},
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Harvest.Workers = 0

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestApp_OptionalComponentsNotConfigured(t *testing.T) {
	app, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if _, err := app.Mirror(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Mirror() error = %v, want ErrNotConfigured", err)
	}
	if _, err := app.Store(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Store() error = %v, want ErrNotConfigured", err)
	}
	if _, err := app.Pipeline(context.Background(), PipelineOptions{Load: true}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Pipeline(Load) error = %v, want ErrNotConfigured", err)
	}
}

func TestApp_PipelineWithMirrorAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	cfg.Storage.MirrorURL = "mem://"
	cfg.Storage.MirrorPrefix = "public/"

	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	p, err := app.Pipeline(context.Background(), PipelineOptions{Upload: true})
	if err != nil {
		t.Fatalf("Pipeline() error = %v", err)
	}

	pubs := p.Publishers()
	if len(pubs) != 1 || pubs[0].Name() != "mirror" {
		t.Errorf("publishers = %v", pubs)
	}

	again, err := app.Catalog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	first, _ := app.Catalog(context.Background())
	if again != first {
		t.Error("Catalog() should reuse the service")
	}
}

func TestApp_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"

	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	if _, err := app.Catalog(context.Background()); err == nil {
		t.Error("expected redis connection error")
	}
}

func TestApp_HarvestOptions(t *testing.T) {
	app, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	opts := app.HarvestOptions()
	if opts.Workers != 3 || opts.PartitionConcurrency != 2 || opts.ReconcilePasses != 2 || opts.MaxPages != 100 || opts.UnitTimeout != time.Minute {
		t.Errorf("options = %+v", opts)
	}
}
