package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/catalog-harvester/internal/bootstrap"
	"github.com/Sternrassler/catalog-harvester/pkg/config"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	debug      bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "harvester",
		Short:         "Harvest and reconcile movie catalog partitions",
		Long:          `Harvest discover pages per region and release year, recover missing pages and publish merged partitions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default is ./config.yaml or ./config/config.yaml)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newPagesCommand(flags),
		newFetchCommand(flags),
		newRunCommand(flags),
		newMergeCommand(flags),
		newUploadCommand(flags),
		newLoadCommand(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "harvester version %s\n", version)
			},
		},
	)
	return root
}

// openApp loads configuration and builds the application.
func openApp(ctx context.Context, flags *globalFlags) (*bootstrap.App, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, err
	}
	if flags.debug {
		cfg.Logging.Level = "debug"
	}
	return bootstrap.New(ctx, cfg)
}

// partitionFlags selects one region and a year range.
type partitionFlags struct {
	region string
	start  int
	end    int
}

func (p *partitionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.region, "region", "", "ISO 3166-1 region code, e.g. US")
	cmd.Flags().IntVar(&p.start, "start", 0, "first release year")
	cmd.Flags().IntVar(&p.end, "end", 0, "last release year (defaults to --start)")
	_ = cmd.MarkFlagRequired("region")
	_ = cmd.MarkFlagRequired("start")
}

func (p *partitionFlags) normalize() error {
	p.region = strings.ToUpper(strings.TrimSpace(p.region))
	if p.region == "" {
		return fmt.Errorf("region is required")
	}
	if p.end == 0 {
		p.end = p.start
	}
	if p.start <= 0 || p.end < p.start {
		return fmt.Errorf("invalid year range %d-%d", p.start, p.end)
	}
	return nil
}

// singlePartitionFlags selects exactly one region and year.
type singlePartitionFlags struct {
	region string
	year   int
}

func (p *singlePartitionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.region, "region", "", "ISO 3166-1 region code, e.g. US")
	cmd.Flags().IntVar(&p.year, "year", 0, "release year")
	_ = cmd.MarkFlagRequired("region")
	_ = cmd.MarkFlagRequired("year")
}

func (p *singlePartitionFlags) normalize() error {
	p.region = strings.ToUpper(strings.TrimSpace(p.region))
	if p.region == "" {
		return fmt.Errorf("region is required")
	}
	if p.year <= 0 {
		return fmt.Errorf("invalid year %d", p.year)
	}
	return nil
}
