package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sleepstars/deepbridge/internal/config"
	"github.com/sleepstars/deepbridge/internal/gateway"
	"github.com/sleepstars/deepbridge/internal/logger"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

type options struct {
	configPath    string
	listen        string
	modelPolicy   string
	logLevel      string
	metricsListen string
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: load .env: %v\n", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "deepbridge",
		Short: "OpenAI-compatible gateway for a fixed chat completion upstream",
		Long: "deepbridge serves GET /v1/models and POST /v1/chat/completions and relays\n" +
			"chat requests to a single upstream endpoint, streaming the answer back.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, opts)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML or TOML configuration file")
	flags.StringVar(&opts.listen, "listen", "", "Override the listen address (e.g. :8000)")
	flags.StringVar(&opts.modelPolicy, "model-policy", "", "Model policy: passthrough or mapping")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error, fatal)")
	flags.StringVar(&opts.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")

	root.AddCommand(&cobra.Command{
		Use:   "models",
		Short: "Print the model catalog and the model policy in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, opts)
			if err != nil {
				return err
			}
			printModels(cmd.OutOrStdout(), cfg)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the deepbridge version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deepbridge %s\n", version)
		},
	})

	return root
}

// buildConfig layers defaults, the config file, DEEPBRIDGE_* variables and flags, in that order
func buildConfig(cmd *cobra.Command, opts *options) (*config.GatewayConfig, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Server.Listen = opts.listen
	}
	if flags.Changed("model-policy") {
		cfg.Models.Policy = config.NormalizePolicy(opts.modelPolicy)
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("metrics-listen") {
		cfg.Server.MetricsListen = opts.metricsListen
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(cfg *config.GatewayConfig) error {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.InitLogger(level, "deepbridge")
	log := logger.GetLogger()

	srv, err := gateway.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("Server exited")
	return nil
}

func printModels(w io.Writer, cfg *config.GatewayConfig) {
	fmt.Fprintf(w, "policy: %s\n", cfg.Models.Policy)
	fmt.Fprintln(w, "catalog:")
	for _, id := range cfg.Models.Catalog {
		fmt.Fprintf(w, "  %s (owned_by %s)\n", id, cfg.Models.OwnedBy)
	}
	if cfg.Models.Policy != config.PolicyMapping {
		return
	}
	fmt.Fprintln(w, "mapping:")
	for _, m := range cfg.Models.Mapping {
		fmt.Fprintf(w, "  %s -> %s\n", m.Model, m.Upstream)
	}
}
