package client

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/service"
	"github.com/rzbill/forgeq/internal/ui"
)

// transitionCommand builds a `<verb> <id>` command that runs one status
// transition and prints the resulting feature.
func transitionCommand(s *settings, use, short, verb string, run func(ctx context.Context, svc *service.Service, id int64) (feature.Feature, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				f, err := run(ctx, svc, id)
				if err != nil {
					return err
				}
				return s.print(cmd, f, func(w io.Writer) { fmt.Fprintf(w, "%s #%d %s\n", verb, f.ID, f.Name) })
			})
		},
	}
}

// newClaimCommand constructs the `claim` subcommand.
func newClaimCommand(s *settings) *cobra.Command {
	claimCmd := &cobra.Command{
		Use:   "claim <id>",
		Short: "Claim a feature for exclusive work",
		Long: `Claim a feature for exclusive work. Exactly one of several concurrent
claimers wins; the others fail with a conflict. With --get an existing
claim is not an error, which lets a worker resume its own claim.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			get, _ := cmd.Flags().GetBool("get")
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				if !get {
					f, err := svc.Claim(ctx, id)
					if err != nil {
						return err
					}
					return s.print(cmd, f, func(w io.Writer) { fmt.Fprintf(w, "claimed #%d %s\n", f.ID, f.Name) })
				}
				f, already, err := svc.ClaimAndGet(ctx, id)
				if err != nil {
					return err
				}
				out := struct {
					feature.Feature
					AlreadyClaimed bool `json:"already_claimed"`
				}{f, already}
				return s.print(cmd, out, func(w io.Writer) {
					if already {
						fmt.Fprintf(w, "%s #%d %s\n", ui.Yellow("already claimed"), f.ID, f.Name)
						return
					}
					fmt.Fprintf(w, "claimed #%d %s\n", f.ID, f.Name)
				})
			})
		},
	}
	claimCmd.Flags().Bool("get", false, "Treat an existing claim as success")
	return claimCmd
}

// newPassCommand constructs the `pass` subcommand.
func newPassCommand(s *settings) *cobra.Command {
	return transitionCommand(s, "pass", "Mark a feature as passing", ui.Green("passing"),
		func(ctx context.Context, svc *service.Service, id int64) (feature.Feature, error) {
			return svc.MarkPassing(ctx, id)
		})
}

// newFailCommand constructs the `fail` subcommand.
func newFailCommand(s *settings) *cobra.Command {
	return transitionCommand(s, "fail", "Mark a feature as failing", ui.Red("failing"),
		func(ctx context.Context, svc *service.Service, id int64) (feature.Feature, error) {
			return svc.MarkFailing(ctx, id)
		})
}

// newReleaseCommand constructs the `release` subcommand.
func newReleaseCommand(s *settings) *cobra.Command {
	return transitionCommand(s, "release", "Release the claim on a feature", "released",
		func(ctx context.Context, svc *service.Service, id int64) (feature.Feature, error) {
			return svc.ClearInProgress(ctx, id)
		})
}

// newSkipCommand constructs the `skip` subcommand.
func newSkipCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "skip <id>",
		Short: "Move a feature to the end of the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				res, err := svc.Skip(ctx, id)
				if err != nil {
					return err
				}
				return s.print(cmd, res, func(w io.Writer) {
					fmt.Fprintf(w, "skipped #%d %s: priority %d -> %d\n", res.Feature.ID, res.Feature.Name, res.OldPriority, res.NewPriority)
				})
			})
		},
	}
}

// newDeleteCommand constructs the `delete` subcommand.
func newDeleteCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a feature and every dependency on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				if err := svc.Delete(ctx, id); err != nil {
					return err
				}
				out := map[string]any{"success": true, "feature_id": id}
				return s.print(cmd, out, func(w io.Writer) { fmt.Fprintf(w, "deleted #%d\n", id) })
			})
		},
	}
}

// newResolveCommand constructs the `resolve` subcommand.
func newResolveCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print features in dependency order and report cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				res, err := svc.Resolve(ctx)
				if err != nil {
					return err
				}
				return s.print(cmd, res, func(w io.Writer) {
					for i, f := range res.Ordered {
						fmt.Fprintf(w, "%3d. #%d %s\n", i+1, f.ID, f.Name)
					}
					for _, c := range res.Circular {
						fmt.Fprintf(w, "%s %v\n", ui.BoldRed("cycle:"), c)
					}
				})
			})
		},
	}
}

// newRegressionCommand constructs the `regression` subcommand.
func newRegressionCommand(s *settings) *cobra.Command {
	regCmd := &cobra.Command{
		Use:   "regression",
		Short: "Pick random passing features to re-verify",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				res, err := svc.Regression(ctx, limit)
				if err != nil {
					return err
				}
				return s.print(cmd, res, func(w io.Writer) { writeFeatures(w, res.Features, nil) })
			})
		},
	}
	regCmd.Flags().Int("limit", service.DefaultRegressionLimit, fmt.Sprintf("Maximum features (1-%d)", service.MaxRegressionLimit))
	return regCmd
}
