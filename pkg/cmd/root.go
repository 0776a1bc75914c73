package cmd

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/pkgfetch/pkgfetch/pkg/config"
	"github.com/pkgfetch/pkgfetch/pkg/fetcher"
	"github.com/pkgfetch/pkgfetch/pkg/resolver"
)

var (
	flagVerbose  bool
	flagCacheDir string
	flagRegistry string
	flagParallel int
	flagTimeout  time.Duration

	// Cfg holds the resolved configuration, available to all subcommands
	// after PersistentPreRunE completes.
	Cfg    *config.Config
	logger *log.Logger
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pkgfetch",
		Short: "Package resolver and fetcher",
		Long:  "pkgfetch resolves version constraints against registries, git repositories, and local paths, and fetches the pinned packages into a shared on-disk cache.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Overrides{
				CacheDir:    flagCacheDir,
				RegistryURL: flagRegistry,
				Parallelism: flagParallel,
				Timeout:     flagTimeout,
			})
			if err != nil {
				return err
			}
			Cfg = cfg

			level := log.InfoLevel
			if flagVerbose {
				level = log.DebugLevel
			}
			logger = log.NewWithOptions(os.Stderr, log.Options{Level: level})
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "", "package cache directory (default ~/.pkgfetch/cache)")
	root.PersistentFlags().StringVar(&flagRegistry, "registry", "", "registry index URL (default crates.io)")
	root.PersistentFlags().IntVar(&flagParallel, "parallel", 0, "max concurrent fetches")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "per-fetch timeout (e.g. 30s)")

	root.AddCommand(newResolveCmd())
	root.AddCommand(newFetchCmd())
	root.AddCommand(newCacheCmd())

	return root
}

func newFetcher(gitPolicy resolver.GitConstraintPolicy) (*fetcher.Fetcher, error) {
	return fetcher.New(fetcher.Config{
		CacheDir:  Cfg.CacheDir,
		Logger:    logger,
		GitPolicy: gitPolicy,
	})
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
