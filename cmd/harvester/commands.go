package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-harvester/internal/bootstrap"
	"github.com/Sternrassler/catalog-harvester/pkg/harvest"
	"github.com/Sternrassler/catalog-harvester/pkg/metrics"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newPagesCommand(flags *globalFlags) *cobra.Command {
	var pf partitionFlags
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Print the page count of each partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pf.normalize(); err != nil {
				return err
			}
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				p, err := app.Pipeline(ctx, bootstrap.PipelineOptions{})
				if err != nil {
					return err
				}

				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Partition", "Pages", "Results"})
				var failed error
				for _, part := range (harvest.RunRequest{Region: pf.region, YearStart: pf.start, YearEnd: pf.end}).Partitions() {
					enum, err := p.Enumerator().Enumerate(ctx, part)
					if err != nil {
						failed = errors.Join(failed, err)
						t.AppendRow(table.Row{part.String(), "error", err.Error()})
						continue
					}
					pages := strconv.Itoa(len(enum.Pages))
					if enum.Truncated {
						pages = fmt.Sprintf("%d of %d", len(enum.Pages), enum.ReportedPages)
					}
					t.AppendRow(table.Row{part.String(), pages, enum.TotalResults})
				}
				t.Render()
				return failed
			})
		},
	}
	pf.register(cmd)
	return cmd
}

func newFetchCommand(flags *globalFlags) *cobra.Command {
	var sp singlePartitionFlags
	var page int
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and store a single discover page",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sp.normalize(); err != nil {
				return err
			}
			if page <= 0 {
				return fmt.Errorf("invalid page %d", page)
			}
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				p, err := app.Pipeline(ctx, bootstrap.PipelineOptions{})
				if err != nil {
					return err
				}
				unit := harvest.FetchUnit{Partition: harvest.Partition{Region: sp.region, Year: sp.year}, Page: page}
				a, err := p.FetchPage(ctx, unit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records\n", unit, len(a.Records))
				return nil
			})
		},
	}
	sp.register(cmd)
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	return cmd
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	var (
		pf          partitionFlags
		upload      bool
		load        bool
		reportPath  string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest, reconcile, merge and publish a range of partitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pf.normalize(); err != nil {
				return err
			}
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				if metricsAddr == "" {
					metricsAddr = app.Config.Metrics.Addr
				}
				if metricsAddr != "" {
					srv := metrics.NewServer(metricsAddr)
					srv.Start()
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						_ = srv.Shutdown(shutdownCtx)
					}()
				}

				p, err := app.Pipeline(ctx, bootstrap.PipelineOptions{Upload: upload, Load: load})
				if err != nil {
					return err
				}

				report, err := p.Run(ctx, harvest.RunRequest{Region: pf.region, YearStart: pf.start, YearEnd: pf.end})
				if err != nil {
					return err
				}
				report.Log(app.Logger)
				renderReport(cmd.OutOrStdout(), report)

				if reportPath != "" {
					if err := writeReport(reportPath, report); err != nil {
						return err
					}
				}

				if !report.Complete() {
					counts := report.Counts()
					return fmt.Errorf("%d of %d partitions incomplete",
						counts[harvest.MergeSkipped]+counts[harvest.MergeFailed], len(report.Partitions))
				}
				return nil
			})
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&upload, "upload", false, "copy merged partitions to the mirror bucket")
	cmd.Flags().BoolVar(&load, "load", false, "load merged partitions into the database")
	cmd.Flags().StringVar(&reportPath, "report", "", "write the run report as YAML to this file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address while running")
	return cmd
}

func newMergeCommand(flags *globalFlags) *cobra.Command {
	var pf partitionFlags
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge every stored page of each partition",
		Long:  `Merge every stored page of each partition, regardless of completeness.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pf.normalize(); err != nil {
				return err
			}
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				merger := harvest.NewMergeEngine(app.Artifacts(), app.Artifacts())
				return forEachPartition(ctx, pf, func(part harvest.Partition) error {
					res, err := merger.MergeStored(ctx, part)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %d records\n", part, res.Status, len(res.Merged.Records))
					return nil
				})
			})
		},
	}
	pf.register(cmd)
	return cmd
}

func newUploadCommand(flags *globalFlags) *cobra.Command {
	var pf partitionFlags
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Copy merged partitions to the mirror bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pf.normalize(); err != nil {
				return err
			}
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				mirror, err := app.Mirror(ctx)
				if err != nil {
					return err
				}
				return forEachPartition(ctx, pf, func(part harvest.Partition) error {
					data, err := app.Artifacts().ReadMergedBytes(ctx, part)
					if err != nil {
						return err
					}
					if err := mirror.Upload(ctx, part, data); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: uploaded %d bytes\n", part, len(data))
					return nil
				})
			})
		},
	}
	pf.register(cmd)
	return cmd
}

func newLoadCommand(flags *globalFlags) *cobra.Command {
	var pf partitionFlags
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load merged partitions into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pf.normalize(); err != nil {
				return err
			}
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				st, err := app.Store(ctx)
				if err != nil {
					return err
				}
				return forEachPartition(ctx, pf, func(part harvest.Partition) error {
					merged, err := app.Artifacts().ReadMerged(ctx, part)
					if err != nil {
						return err
					}
					if err := st.Publish(ctx, merged); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: loaded %d records\n", part, len(merged.Records))
					return nil
				})
			})
		},
	}
	pf.register(cmd)
	return cmd
}

// withApp opens the application for the duration of fn.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(context.Context, *bootstrap.App) error) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, flags)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			app.Logger.Warn().Err(cerr).Msg("Close failed")
		}
	}()
	return fn(ctx, app)
}

// forEachPartition calls fn for every partition in range. Failures are
// collected so one bad partition does not stop the others.
func forEachPartition(ctx context.Context, pf partitionFlags, fn func(harvest.Partition) error) error {
	var errs []error
	for _, part := range (harvest.RunRequest{Region: pf.region, YearStart: pf.start, YearEnd: pf.end}).Partitions() {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := fn(part); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", part, err))
		}
	}
	return errors.Join(errs...)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// renderReport prints one row per partition.
func renderReport(w io.Writer, r *harvest.RunReport) {
	t := newTable(w)
	t.SetTitle("run " + r.RunID)
	t.AppendHeader(table.Row{"Partition", "Status", "Pages", "Recovered", "Missing", "Records", "Duration"})
	for _, p := range r.Partitions {
		t.AppendRow(table.Row{
			p.Partition,
			p.Status,
			pageCount(p),
			joinInts(p.PagesRecovered),
			joinInts(p.PagesMissing),
			p.Records,
			p.Duration.Round(time.Millisecond),
		})
	}
	counts := r.Counts()
	t.AppendFooter(table.Row{
		"total",
		fmt.Sprintf("%d merged", counts[harvest.MergeCompleted]),
		"", "", "", "",
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
	})
	t.Render()
}

// pageCount shows the harvested page count, with the upstream total when
// the partition was truncated.
func pageCount(p harvest.PartitionReport) string {
	if p.Truncated {
		return fmt.Sprintf("%d of %d", p.ExpectedPages, p.ReportedPages)
	}
	return strconv.Itoa(p.ExpectedPages)
}

func writeReport(path string, r *harvest.RunReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := r.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func joinInts(vals []int) string {
	if len(vals) == 0 {
		return "-"
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
