package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/netgate/internal/version"
)

var versionJSON bool

// versionCmd implements the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of netgate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := version.Get()
		if !versionJSON {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "netgate version %s\n", info.Full())
			return err
		}
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print build information as JSON")
	rootCmd.AddCommand(versionCmd)
}
