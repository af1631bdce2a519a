package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/reglet-dev/netgate/internal/application/dto"
)

var (
	execManifest string
	execStream   bool
)

var execCmd = &cobra.Command{
	Use:   "exec --manifest <file> <module.submodule.method> [params]",
	Short: "Run one call under a manifest",
	Long: `Exec opens a session for the manifest, runs a single call and prints every
response as a JSON line. params is a JSON (or YAML flow) array.

Examples:
  netgate exec -m manifest.yaml system.info.getOS
  netgate exec -m manifest.yaml --stream tools.ping.start '[{"host":"127.0.0.1","port":22}]'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: withContainer(runExec),
}

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().StringVarP(&execManifest, "manifest", "m", "", "security manifest file (YAML or JSON)")
	execCmd.Flags().BoolVar(&execStream, "stream", false, "request multi-response delivery")
	_ = execCmd.MarkFlagRequired("manifest")
}

func runExec(c *CommandContext, cmd *cobra.Command, args []string) error {
	raw, err := c.Container.ManifestLoader().LoadManifest(execManifest)
	if err != nil {
		return err
	}
	sb, err := c.Container.Sessions().Open(raw)
	if err != nil {
		return err
	}
	defer func() {
		_ = sb.Close()
	}()

	req, err := buildRequest(args)
	if err != nil {
		return err
	}
	req.MultiResponse = execStream

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	var failed *dto.ErrorDetail
	for resp := range c.Container.Dispatcher().Exec(ctx, sb, req) {
		if err := printResponse(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
		if resp.Final {
			failed = resp.Error
		}
	}
	if failed != nil {
		return failed
	}
	return nil
}

// buildRequest turns "module.submodule.method" and an optional params array
// into a request.
func buildRequest(args []string) (dto.CallRequest, error) {
	parts := strings.Split(args[0], ".")
	if len(parts) != 3 {
		return dto.CallRequest{}, fmt.Errorf("call must be module.submodule.method, got %q", args[0])
	}
	req := dto.CallRequest{Module: parts[0], Submodule: parts[1], Method: parts[2], ID: 1}

	if len(args) == 2 {
		var params []any
		if err := yaml.Unmarshal([]byte(args[1]), &params); err != nil {
			return dto.CallRequest{}, fmt.Errorf("params must be an array: %w", err)
		}
		req.Params = params
	}
	return req, req.Validate()
}

func printResponse(w io.Writer, resp dto.CallResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
