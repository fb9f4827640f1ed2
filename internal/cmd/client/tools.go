package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rzbill/forgeq/internal/service"
	"github.com/rzbill/forgeq/internal/tools"
)

// newToolsCommand constructs the `tools` subcommand.
func newToolsCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the procedures available to `forgeq call`",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := tools.NewDispatcher(nil).Tools()
			return s.print(cmd, list, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				for _, t := range list {
					fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
				}
				_ = tw.Flush()
			})
		},
	}
}

// newCallCommand constructs the `call` subcommand. Output is always JSON.
func newCallCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-args]",
		Short: "Call a tool with JSON arguments and print its JSON result",
		Example: `  forgeq call feature_get_ready '{"limit": 3}'
  forgeq call feature_claim_and_get '{"feature_id": 12}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw json.RawMessage
			if len(args) == 2 {
				raw = json.RawMessage(args[1])
			}
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				d := tools.NewDispatcher(svc)
				res, err := d.Invoke(ctx, args[0], raw)
				if err != nil {
					res = tools.ToErrorResult(err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if eerr := enc.Encode(res); eerr != nil {
					return eerr
				}
				if err != nil {
					return ErrReported
				}
				return nil
			})
		},
	}
}
