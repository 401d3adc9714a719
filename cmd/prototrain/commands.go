package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/prototrain/pkg/config"
	"github.com/ajitpratap0/prototrain/pkg/configerrors"
	"github.com/ajitpratap0/prototrain/pkg/logger"
	"github.com/ajitpratap0/prototrain/pkg/metrics"
	"github.com/ajitpratap0/prototrain/pkg/observability"
)

// cliFlags are shared by every command that loads a parameter file.
type cliFlags struct {
	logLevel     string
	logFormat    string
	unknownKeys  string
	envOverrides bool
	envPrefix    string
	printMetrics bool
	trace        bool
}

type app struct {
	flags    cliFlags
	registry *prometheus.Registry
	metrics  *metrics.LoaderMetrics
	shutdown observability.ShutdownFunc
}

// execute runs the command line and then flushes spans and metrics. It runs
// after failed commands too, where cobra skips its post-run hooks.
func execute(args []string, stdout, stderr io.Writer) error {
	root, a := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	a.finish(stderr)
	return err
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{registry: prometheus.NewRegistry()}
	a.metrics = metrics.NewLoaderMetrics(a.registry)

	root := &cobra.Command{
		Use:   "prototrain",
		Short: "prototrain - experiment configuration for prototype-based classifiers",
		Long: `prototrain loads and checks the parameter files of ProtoTree and ProtoPNet
experiments. Every problem in a file is reported at once, so a run never starts
from a configuration that would fail halfway through training.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.Config{
				Level:       a.flags.logLevel,
				Encoding:    a.flags.logFormat,
				OutputPaths: []string{"stderr"},
			}); err != nil {
				return err
			}

			tracing := observability.DefaultTracingConfig()
			tracing.ServiceVersion = version
			if a.flags.trace {
				tracing.ExporterType = observability.ExporterStdout
				tracing.Writer = cmd.ErrOrStderr()
			}
			shutdown, err := observability.InitTracing(tracing)
			if err != nil {
				return err
			}
			a.shutdown = shutdown
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&a.flags.logFormat, "log-format", "console", "Log encoding (console, json)")
	pf.StringVar(&a.flags.unknownKeys, "unknown-keys", "reject", "What to do with unrecognized keys (reject, warn)")
	pf.BoolVar(&a.flags.envOverrides, "env-overrides", false, "Let <PREFIX>_<KEY> environment variables override file values")
	pf.StringVar(&a.flags.envPrefix, "env-prefix", config.DefaultEnvPrefix, "Prefix of override environment variables")
	pf.BoolVar(&a.flags.printMetrics, "metrics", false, "Print load metrics in Prometheus text format to stderr on exit")
	pf.BoolVar(&a.flags.trace, "trace", false, "Print OpenTelemetry spans to stderr on exit")

	root.AddCommand(
		a.validateCmd(),
		a.showCmd(),
		a.planCmd(),
		keysCmd(),
		versionCmd(),
	)
	return root, a
}

func (a *app) finish(stderr io.Writer) {
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil {
			logger.Get().Warn("failed to flush traces", zap.Error(err))
		}
	}
	if a.flags.printMetrics {
		if err := a.writeMetrics(stderr); err != nil {
			logger.Get().Warn("failed to write metrics", zap.Error(err))
		}
	}
	_ = logger.Sync()
}

func (a *app) loadOptions() ([]config.LoadOption, error) {
	opts := []config.LoadOption{config.WithMetrics(a.metrics)}

	switch strings.ToLower(a.flags.unknownKeys) {
	case "reject":
		opts = append(opts, config.WithUnknownKeys(config.UnknownKeysReject))
	case "warn":
		opts = append(opts, config.WithUnknownKeys(config.UnknownKeysWarn))
	default:
		return nil, fmt.Errorf("invalid --unknown-keys %q: expected reject or warn", a.flags.unknownKeys)
	}

	if a.flags.envOverrides {
		opts = append(opts, config.WithEnvOverrides(a.flags.envPrefix))
	}
	return opts, nil
}

func (a *app) load(ctx context.Context, path string) (*config.ExperimentConfig, error) {
	opts, err := a.loadOptions()
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, logger.ConfigPathKey, path)
	opts = append(opts, config.WithLogger(logger.WithContext(ctx)))
	return config.LoadFile(ctx, path, opts...)
}

func (a *app) writeMetrics(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check one or more parameter files",
		Long: `Check one or more parameter files and list every problem found.

Example:
  prototrain validate params/cub_prototree.yml params/cars_protopnet.yml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			rejected := 0
			for _, path := range args {
				cfg, err := a.load(cmd.Context(), path)
				if err != nil {
					rejected++
					fmt.Fprintf(out, "FAIL %s\n", path)
					printProblems(out, err)
					continue
				}
				fmt.Fprintf(out, "OK   %s (%s, %s, %s, %d epochs)\n", path,
					cfg.ModelType(), cfg.Dataset().Dataset, cfg.Model().Backbone, cfg.Epochs())
			}
			log := logger.With(zap.Int("files", len(args)), zap.Int("rejected", rejected))
			log.Info("validation finished")
			if rejected > 0 {
				return fmt.Errorf("%d of %d parameter files rejected", rejected, len(args))
			}
			return nil
		},
	}
}

// printProblems lists each entry of a *configerrors.List on its own line.
func printProblems(w io.Writer, err error) {
	var list *configerrors.List
	if !errors.As(err, &list) {
		fmt.Fprintf(w, "  - %v\n", err)
		return
	}
	for _, e := range list.Errors() {
		fmt.Fprintf(w, "  - %v\n", e)
	}
}

func (a *app) showCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Print the normalized parameter file, defaults included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var data []byte
			switch strings.ToLower(format) {
			case "yaml", "yml":
				data, err = cfg.Marshal()
			case "json":
				if data, err = json.MarshalIndent(cfg, "", "  "); err == nil {
					data = append(data, '\n')
				}
			default:
				return fmt.Errorf("invalid --output %q: expected yaml or json", format)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format (yaml, json)")
	return cmd
}

func (a *app) planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan FILE",
		Short: "Print the training schedule derived from a parameter file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func printPlan(w io.Writer, cfg *config.ExperimentConfig) {
	s := cfg.Schedule()
	t := cfg.Training()

	fmt.Fprintf(w, "Model:       %s (%s backbone %s)\n", cfg.ModelType(), cfg.Model().Backbone.Family(), cfg.Model().Backbone)
	fmt.Fprintf(w, "Dataset:     %s, %d classes, %dx%d\n", cfg.Dataset().Dataset, cfg.Dataset().Dataset.NumClasses(),
		cfg.Dataset().ImgSize.Height, cfg.Dataset().ImgSize.Width)
	fmt.Fprintf(w, "Prototypes:  %d of %dx%dx%d\n", s.NumPrototypes(),
		cfg.Prototype().NumFeatures, cfg.Prototype().H1, cfg.Prototype().W1)
	if cfg.ModelType() == config.ModelTypeProtoTree {
		fmt.Fprintf(w, "Tree:        depth %d, %d leaves, %s sampling\n", cfg.Tree().Depth, s.NumLeaves(), cfg.Tree().SamplingStrategy)
	}

	fmt.Fprintf(w, "Epochs:      %d\n", t.Epochs)
	if t.FreezeEpochs > 0 {
		fmt.Fprintf(w, "Frozen:      epochs 0-%d\n", t.FreezeEpochs-1)
	} else {
		fmt.Fprintln(w, "Frozen:      never")
	}
	if from, ok := t.ProjectFromEpoch.Get(); ok {
		fmt.Fprintf(w, "Projection:  from epoch %d\n", from)
	} else {
		fmt.Fprintln(w, "Projection:  disabled")
	}

	fmt.Fprintf(w, "Optimizer:   %s\n", t.Optimizer)
	starts := append([]int{0}, t.Milestones...)
	for _, e := range starts {
		fmt.Fprintf(w, "  epoch %-4d lr_main=%g lr_backbone=%g\n", e,
			s.LearningRate(config.GroupMain, e), s.LearningRate(config.GroupBackbone, e))
	}

	checkpoints := s.CheckpointEpochs()
	fmt.Fprintf(w, "Checkpoints: %d (every %d epochs, keep top %d)\n", len(checkpoints), t.EveryNEpochs, t.SaveTopK)
}

func keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the recognized parameter file keys",
		Run: func(cmd *cobra.Command, args []string) {
			for _, k := range config.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "prototrain v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
