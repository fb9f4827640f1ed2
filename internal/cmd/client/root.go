package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/forgeq/internal/config"
	"github.com/rzbill/forgeq/internal/metrics"
	"github.com/rzbill/forgeq/internal/runtime"
	"github.com/rzbill/forgeq/internal/service"
	logpkg "github.com/rzbill/forgeq/pkg/log"
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// ErrReported is returned by commands that already printed their failure.
var ErrReported = errors.New("failure already reported")

// settings holds the global flags.
type settings struct {
	configPath string
	backend    string
	dataDir    string
	project    string
	output     string
	logLevel   string
}

// config resolves file, environment and flags, in increasing precedence.
func (s *settings) config() (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(s.configPath)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if s.backend != "" {
		cfg.Backend = s.backend
	}
	if s.dataDir != "" {
		cfg.DataDir = s.dataDir
	}
	if s.project != "" {
		cfg.Project = s.project
	}
	if s.logLevel != "" {
		cfg.Log.Level = s.logLevel
	}
	return cfg, cfg.Validate()
}

// withService opens the configured store for the duration of fn.
func (s *settings) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) error) error {
	cfg, err := s.config()
	if err != nil {
		return err
	}
	logger, err := logpkg.ApplyConfig(cfg.Log)
	if err != nil {
		return err
	}
	logpkg.RedirectStdLog(logger)

	var m *metrics.Metrics
	if cfg.MetricsFile != "" {
		m = metrics.New()
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger, Metrics: m})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	err = fn(ctx, service.New(rt))
	if werr := m.WriteTextfile(cfg.MetricsFile); werr != nil {
		logger.Warn("metrics dump failed", logpkg.Str("path", cfg.MetricsFile), logpkg.Err(werr))
	}
	return err
}

// print writes v as indented JSON, or calls text when the output is text.
func (s *settings) print(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if s.output == OutputJSON || text == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// NewRoot constructs the forgeq command tree.
func NewRoot() *cobra.Command {
	s := &settings{}
	root := &cobra.Command{
		Use:   "forgeq",
		Short: "Feature dependency graph and work queue",
		Long: `forgeq keeps a backlog of features whose dependencies form a DAG.

Workers ask for ready features (every dependency passing), claim one,
and mark it passing or failing. Claims are exclusive across processes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch s.output {
			case OutputText, OutputJSON:
				return nil
			default:
				return fmt.Errorf("invalid --output %q; use text|json", s.output)
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&s.configPath, "config", "", "Config file (JSON or YAML)")
	pf.StringVar(&s.backend, "backend", "", "Store backend: sqlite|pebble")
	pf.StringVar(&s.dataDir, "data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	pf.StringVarP(&s.project, "project", "p", "", "Project name")
	pf.StringVarP(&s.output, "output", "o", OutputText, "Output format: text|json")
	pf.StringVar(&s.logLevel, "log-level", "", "Log level: debug|info|warn|error")

	root.AddCommand(
		newStatsCommand(s),
		newListCommand(s),
		newReadyCommand(s),
		newBlockedCommand(s),
		newGraphCommand(s),
		newShowCommand(s),
		newCreateCommand(s),
		newImportCommand(s),
		newDepCommand(s),
		newClaimCommand(s),
		newPassCommand(s),
		newFailCommand(s),
		newReleaseCommand(s),
		newSkipCommand(s),
		newDeleteCommand(s),
		newResolveCommand(s),
		newRegressionCommand(s),
		newToolsCommand(s),
		newCallCommand(s),
	)
	return root
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid feature id %q", s)
	}
	return id, nil
}
