package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/service"
)

// newStatsCommand constructs the `stats` subcommand.
func newStatsCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show completion, ready and blocked counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				ov, err := svc.Overview(ctx)
				if err != nil {
					return err
				}
				return s.print(cmd, ov, func(w io.Writer) { writeOverview(w, ov) })
			})
		},
	}
}

// newListCommand constructs the `list` subcommand.
func newListCommand(s *settings) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List features in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			expr, _ := cmd.Flags().GetString("filter")
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				listed, err := svc.List(ctx, expr)
				if err != nil {
					return err
				}
				fs := make([]feature.Feature, len(listed))
				statuses := make(map[int64]feature.Status, len(listed))
				for i, l := range listed {
					fs[i] = l.Feature
					statuses[l.ID] = l.Status
				}
				return s.print(cmd, listed, func(w io.Writer) { writeFeatures(w, fs, statuses) })
			})
		},
	}
	listCmd.Flags().String("filter", "", `CEL filter, e.g. 'category == "auth" && status == "pending"'`)
	return listCmd
}

// newReadyCommand constructs the `ready` subcommand.
func newReadyCommand(s *settings) *cobra.Command {
	readyCmd := &cobra.Command{
		Use:   "ready",
		Short: "List claimable features, most unblocking first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			expr, _ := cmd.Flags().GetString("filter")
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				res, err := svc.Ready(ctx, limit, expr)
				if err != nil {
					return err
				}
				return s.print(cmd, res, func(w io.Writer) {
					writeFeatures(w, res.Features, nil)
					fmt.Fprintf(w, "%d of %d ready\n", res.Count, res.TotalReady)
				})
			})
		},
	}
	readyCmd.Flags().Int("limit", service.DefaultReadyLimit, fmt.Sprintf("Maximum features (1-%d)", service.MaxReadyLimit))
	readyCmd.Flags().String("filter", "", "CEL filter expression")
	return readyCmd
}

// newBlockedCommand constructs the `blocked` subcommand.
func newBlockedCommand(s *settings) *cobra.Command {
	blockedCmd := &cobra.Command{
		Use:   "blocked",
		Short: "List features waiting on dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				res, err := svc.Blocked(ctx, limit)
				if err != nil {
					return err
				}
				return s.print(cmd, res, func(w io.Writer) { writeBlocked(w, res) })
			})
		},
	}
	blockedCmd.Flags().Int("limit", service.DefaultBlockedLimit, fmt.Sprintf("Maximum features (1-%d)", service.MaxBlockedLimit))
	return blockedCmd
}

// newGraphCommand constructs the `graph` subcommand.
func newGraphCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				view, err := svc.Graph(ctx)
				if err != nil {
					return err
				}
				return s.print(cmd, view, func(w io.Writer) { writeGraph(w, view) })
			})
		},
	}
}

// newShowCommand constructs the `show` subcommand.
func newShowCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one feature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				f, err := svc.Get(ctx, id)
				if err != nil {
					return err
				}
				return s.print(cmd, f, func(w io.Writer) { writeFeature(w, f) })
			})
		},
	}
}

// newCreateCommand constructs the `create` subcommand.
func newCreateCommand(s *settings) *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a feature at the end of the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var spec feature.Spec
			spec.Category, _ = cmd.Flags().GetString("category")
			spec.Name, _ = cmd.Flags().GetString("name")
			spec.Description, _ = cmd.Flags().GetString("description")
			spec.Steps, _ = cmd.Flags().GetStringArray("step")
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				f, err := svc.Create(ctx, spec)
				if err != nil {
					return err
				}
				return s.print(cmd, f, func(w io.Writer) { fmt.Fprintf(w, "created #%d %s\n", f.ID, f.Name) })
			})
		},
	}
	createCmd.Flags().String("category", "", "Category")
	createCmd.Flags().String("name", "", "Feature name")
	createCmd.Flags().String("description", "", "What the feature does")
	createCmd.Flags().StringArray("step", nil, "Verification step (repeatable)")
	return createCmd
}

// newImportCommand constructs the `import` subcommand.
func newImportCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create features in bulk from a JSON or YAML file",
		Long: `Create features in bulk. The file holds a list of features, or an
object with a "features" list. depends_on_indices refers to earlier
entries of the same file, starting at 0. The import is all or nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := readSpecs(args[0])
			if err != nil {
				return err
			}
			return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				res, err := svc.CreateBulk(ctx, specs)
				if err != nil {
					return err
				}
				return s.print(cmd, res, func(w io.Writer) {
					fmt.Fprintf(w, "created %d features (%d with dependencies)\n", res.Created, res.WithDependencies)
				})
			})
		},
	}
}

// readSpecs decodes a bulk file by extension; .yaml and .yml are YAML,
// anything else JSON.
func readSpecs(path string) ([]feature.Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	unmarshal := json.Unmarshal
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		unmarshal = yaml.Unmarshal
	}
	var list []feature.Spec
	if err := unmarshal(b, &list); err == nil {
		return list, nil
	}
	var doc struct {
		Features []feature.Spec `json:"features" yaml:"features"`
	}
	if err := unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc.Features, nil
}

// newDepCommand constructs the `dep` command group.
func newDepCommand(s *settings) *cobra.Command {
	depCmd := &cobra.Command{Use: "dep", Short: "Edit dependencies"}
	edit := func(use, short string, nargs cobra.PositionalArgs, run func(ctx context.Context, svc *service.Service, id int64, ids []int64) ([]int64, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  nargs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ids := make([]int64, 0, len(args))
				for _, a := range args {
					id, err := parseID(a)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}
				return s.withService(cmd, func(ctx context.Context, svc *service.Service) error {
					deps, err := run(ctx, svc, ids[0], ids[1:])
					if err != nil {
						return err
					}
					if deps == nil {
						deps = []int64{}
					}
					out := map[string]any{"feature_id": ids[0], "dependencies": deps}
					return s.print(cmd, out, func(w io.Writer) { fmt.Fprintf(w, "#%d depends on %v\n", ids[0], deps) })
				})
			},
		}
	}
	depCmd.AddCommand(
		edit("add <feature> <dependency>", "Make a feature depend on another", cobra.ExactArgs(2),
			func(ctx context.Context, svc *service.Service, id int64, ids []int64) ([]int64, error) {
				return svc.AddDependency(ctx, id, ids[0])
			}),
		edit("rm <feature> <dependency>", "Remove a dependency", cobra.ExactArgs(2),
			func(ctx context.Context, svc *service.Service, id int64, ids []int64) ([]int64, error) {
				return svc.RemoveDependency(ctx, id, ids[0])
			}),
		edit("set <feature> [dependency...]", "Replace every dependency of a feature", cobra.MinimumNArgs(1),
			func(ctx context.Context, svc *service.Service, id int64, ids []int64) ([]int64, error) {
				return svc.SetDependencies(ctx, id, ids)
			}),
	)
	return depCmd
}
