package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pkgfetch/pkgfetch/pkg/fetcher"
	"github.com/pkgfetch/pkgfetch/pkg/resolver"
	"github.com/pkgfetch/pkgfetch/pkg/source"
)

func newFetchCmd() *cobra.Command {
	var (
		srcFlags     sourceFlags
		flagFailFast bool
	)

	fetchCmd := &cobra.Command{
		Use:   "fetch <name[@constraint]>...",
		Short: "Fetch packages into the cache",
		Long: `Resolves each spec and materializes the pinned packages into the shared
cache, printing the on-disk root of every package fetched. Specs sharing
a pinned package share one cache entry.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := srcFlags.validateRef(); err != nil {
				return err
			}
			src, err := srcFlags.source()
			if err != nil {
				return err
			}

			reqs := make([]fetcher.Request, 0, len(args))
			for _, arg := range args {
				name, con, err := parseSpec(arg)
				if err != nil {
					return err
				}
				reqs = append(reqs, fetcher.QueryRequest(source.Query{Name: name, Constraint: con, Source: src}))
			}

			f, err := newFetcher(resolver.GitConstraintEnforce)
			if err != nil {
				return err
			}

			report, err := f.FetchMany(cmd.Context(), reqs, fetcher.Options{
				FailFast:    flagFailFast,
				MaxParallel: Cfg.Parallelism,
				Timeout:     Cfg.Timeout,
			})
			if err != nil {
				return err
			}

			printRoots(cmd, report)
			if report.Failed() {
				return fmt.Errorf("%d of %d fetches failed", len(report.Failures), len(reqs))
			}
			return nil
		},
	}

	srcFlags.register(fetchCmd)
	fetchCmd.Flags().BoolVar(&flagFailFast, "fail-fast", false, "cancel remaining fetches after the first failure")

	return fetchCmd
}

func printRoots(cmd *cobra.Command, report *fetcher.Report) {
	lines := make([]string, 0, len(report.Roots))
	for id, root := range report.Roots {
		lines = append(lines, fmt.Sprintf("%s %s", id, root))
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
}
