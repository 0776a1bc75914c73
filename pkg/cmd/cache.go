package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/pkgfetch/pkgfetch/pkg/resolver"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the package cache",
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), Cfg.CacheDir)
			return nil
		},
	}

	var flagYes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flagYes {
				var confirmed bool
				err := huh.NewForm(
					huh.NewGroup(
						huh.NewConfirm().
							Title(fmt.Sprintf("Remove all cached packages under %s?", Cfg.CacheDir)).
							Value(&confirmed),
					),
				).Run()
				if err != nil {
					return fmt.Errorf("confirmation prompt failed: %w", err)
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			f, err := newFetcher(resolver.GitConstraintEnforce)
			if err != nil {
				return err
			}
			if err := f.ClearCache(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		},
	}
	clearCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "skip the confirmation prompt")

	cacheCmd.AddCommand(pathCmd)
	cacheCmd.AddCommand(clearCmd)

	return cacheCmd
}
