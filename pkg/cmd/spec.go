package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkgfetch/pkgfetch/pkg/source"
	"github.com/pkgfetch/pkgfetch/pkg/version"
)

// parseSpec splits a "name[@constraint]" argument. A bare name matches any
// version.
func parseSpec(s string) (string, version.Constraint, error) {
	name, raw, found := strings.Cut(s, "@")
	if name == "" {
		return "", version.Constraint{}, fmt.Errorf("invalid package spec %q", s)
	}
	if !found {
		return name, version.Any(), nil
	}
	con, err := version.ParseConstraint(raw)
	if err != nil {
		return "", version.Constraint{}, err
	}
	return name, con, nil
}

// sourceFlags selects where a package comes from. At most one of git,
// path, and local-registry may be set; none of them means the configured
// registry.
type sourceFlags struct {
	git           string
	ref           string
	path          string
	localRegistry string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.git, "git", "", "fetch from a git repository URL")
	cmd.Flags().StringVar(&f.ref, "ref", "", "git reference (branch name, tag=NAME, rev=SHA)")
	cmd.Flags().StringVar(&f.path, "path", "", "use a package directory in place")
	cmd.Flags().StringVar(&f.localRegistry, "local-registry", "", "fetch from a directory-backed registry")
}

func (f *sourceFlags) source() (source.Source, error) {
	set := 0
	for _, v := range []string{f.git, f.path, f.localRegistry} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return source.Source{}, fmt.Errorf("--git, --path, and --local-registry are mutually exclusive")
	}

	switch {
	case f.git != "":
		ref, err := source.ParseRef(f.ref)
		if err != nil {
			return source.Source{}, err
		}
		return source.Git(f.git, ref)
	case f.path != "":
		return source.Path(f.path)
	case f.localRegistry != "":
		return source.LocalRegistry(f.localRegistry)
	case Cfg.RegistryURL != "":
		return source.Registry(Cfg.RegistryURL)
	default:
		return source.CratesIO(), nil
	}
}

func (f *sourceFlags) validateRef() error {
	if f.ref != "" && f.git == "" {
		return fmt.Errorf("--ref requires --git")
	}
	return nil
}
