package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/reglet-dev/netgate/internal/application/ports"
	"github.com/reglet-dev/netgate/internal/domain/manifest"
	"github.com/reglet-dev/netgate/internal/version"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect security manifests",
}

var manifestCheckCmd = &cobra.Command{
	Use:   "check <manifest.yaml>",
	Short: "Validate a manifest and print its canonical form",
	Args:  cobra.ExactArgs(1),
	RunE: withContainer(func(c *CommandContext, cmd *cobra.Command, args []string) error {
		opts, err := c.Container.SystemConfig().ManifestOptions(version.Version)
		if err != nil {
			return err
		}
		return checkManifest(cmd.OutOrStdout(), c.Container.ManifestLoader(), opts, args[0])
	}),
}

func init() {
	manifestCmd.AddCommand(manifestCheckCmd)
	rootCmd.AddCommand(manifestCmd)
}

// checkManifest loads and canonicalizes path and writes the canonical form.
func checkManifest(w io.Writer, loader ports.ManifestLoader, opts manifest.Options, path string) error {
	raw, err := loader.LoadManifest(path)
	if err != nil {
		return err
	}
	canonical, err := manifest.Parse(raw, opts)
	if err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	out, err := yaml.Marshal(canonical.Manifest())
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
