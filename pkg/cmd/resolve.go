package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkgfetch/pkgfetch/pkg/resolver"
	"github.com/pkgfetch/pkgfetch/pkg/source"
)

func newResolveCmd() *cobra.Command {
	var (
		srcFlags            sourceFlags
		flagIgnoreGitSemver bool
	)

	resolveCmd := &cobra.Command{
		Use:   "resolve <name[@constraint]>",
		Short: "Pin a package without fetching it",
		Long: `Resolves a name and version constraint to a concrete package version.

Registry sources pick the highest version satisfying the constraint. Git
sources pin the reference to a commit. Path sources report the version
declared on disk.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := srcFlags.validateRef(); err != nil {
				return err
			}
			name, con, err := parseSpec(args[0])
			if err != nil {
				return err
			}
			src, err := srcFlags.source()
			if err != nil {
				return err
			}

			policy := resolver.GitConstraintEnforce
			if flagIgnoreGitSemver {
				policy = resolver.GitConstraintIgnore
			}
			f, err := newFetcher(policy)
			if err != nil {
				return err
			}

			pkg, err := f.Resolve(cmd.Context(), source.Query{Name: name, Constraint: con, Source: src})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", pkg.Name, pkg.Version)
			if pkg.Commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "commit %s\n", pkg.Commit)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "source %s\n", pkg.Source)
			return nil
		},
	}

	srcFlags.register(resolveCmd)
	resolveCmd.Flags().BoolVar(&flagIgnoreGitSemver, "ignore-git-semver", false, "pin git commits even when the manifest version misses the constraint")

	return resolveCmd
}
