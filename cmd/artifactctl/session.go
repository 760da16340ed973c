package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/GoCodeAlone/artifactkit/artifact"
	"github.com/GoCodeAlone/artifactkit/config"
	"github.com/GoCodeAlone/artifactkit/metrics"
	"github.com/GoCodeAlone/artifactkit/observability/tracing"
)

// Process handles, replaced in tests.
var (
	stdout    io.Writer = os.Stdout
	stderr    io.Writer = os.Stderr
	lookupEnv           = os.LookupEnv
)

// globalFlags are accepted by every command.
type globalFlags struct {
	configFile  string
	envFile     string
	logLevel    string
	metricsFile string
	metricsPush string
}

func addGlobalFlags(fs *pflag.FlagSet) *globalFlags {
	g := &globalFlags{}
	fs.StringVar(&g.configFile, "config", "", "YAML configuration file")
	fs.StringVar(&g.envFile, "env-file", ".env", "dotenv file read before the environment")
	fs.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.StringVar(&g.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")
	fs.StringVar(&g.metricsPush, "metrics-push", "", "push Prometheus metrics to this Pushgateway URL on exit")
	return g
}

// findFlags select a run other than the current one.
type findFlags struct {
	owner string
	repo  string
	runID string
}

func addFindFlags(fs *pflag.FlagSet) *findFlags {
	f := &findFlags{}
	fs.StringVar(&f.owner, "owner", "", "repository owner of the run to read from")
	fs.StringVar(&f.repo, "repo", "", "repository of the run to read from")
	fs.StringVar(&f.runID, "run-id", "", "workflow run id to read from")
	return f
}

func (f *findFlags) options() (artifact.FindOptions, error) {
	if f.owner == "" && f.repo == "" && f.runID == "" {
		return artifact.FindOptions{}, nil
	}
	if f.repo == "" || f.runID == "" {
		return artifact.FindOptions{}, fmt.Errorf("--repo and --run-id are required together")
	}
	return artifact.FindOptions{FindBy: &artifact.Scope{Owner: f.owner, Repository: f.repo, RunID: f.runID}}, nil
}

// session is a configured client for one command invocation.
type session struct {
	client      *artifact.Client
	metrics     *metrics.Collector
	metricsFile string
	metricsPush string
	tracer      *tracing.Provider
}

func (g *globalFlags) open(ctx context.Context) (*session, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", g.logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(config.LoadOptions{
		File:      g.configFile,
		EnvFile:   g.envFile,
		LookupEnv: lookupEnv,
	})
	if err != nil {
		return nil, err
	}
	s, err := cfg.OpenStore(ctx)
	if err != nil {
		return nil, err
	}

	// An incomplete scope only fails the operations that need it.
	scope, err := cfg.Scope()
	if err != nil {
		logger.Debug("Run scope unavailable", "error", err)
	}

	tcfg, err := tracing.ConfigFromEnv("artifactctl", lookupEnv)
	if err != nil {
		return nil, err
	}
	var tp *tracing.Provider
	if tcfg.Enabled() {
		tcfg.ServiceVersion = version
		if tp, err = tracing.NewProvider(ctx, tcfg); err != nil {
			return nil, err
		}
		logger.Debug("Exporting traces", "endpoint", tcfg.Endpoint)
	}

	m := metrics.New()
	opts := append(cfg.ClientOptions(), artifact.WithLogger(logger), artifact.WithMetrics(m))
	return &session{
		client:      artifact.NewClient(s, scope, opts...),
		metrics:     m,
		metricsFile: g.metricsFile,
		metricsPush: g.metricsPush,
		tracer:      tp,
	}, nil
}

func (s *session) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.tracer.Shutdown(ctx); err != nil {
		return fmt.Errorf("flush traces: %w", err)
	}
	if s.metricsFile != "" {
		if err := s.metrics.WriteTextfile(s.metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	if s.metricsPush != "" {
		if err := s.metrics.Push(ctx, s.metricsPush, "artifactctl"); err != nil {
			return err
		}
	}
	return nil
}

// run opens a session, calls fn and closes the session, keeping the first
// error.
func (g *globalFlags) run(ctx context.Context, fn func(*session) error) (err error) {
	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// parseFlags reports false when the command should stop, with a nil error
// after -h.
func parseFlags(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func newFlagSet(name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "%s\nOptions:\n", strings.TrimSpace(usage)+"\n")
		fs.PrintDefaults()
	}
	return fs
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
