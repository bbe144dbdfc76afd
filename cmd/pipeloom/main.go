package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipeloom/pipeloom/pkg/config"
	"github.com/pipeloom/pipeloom/pkg/export"
	"github.com/pipeloom/pipeloom/pkg/generate"
	"github.com/pipeloom/pipeloom/pkg/llm"
	"github.com/pipeloom/pipeloom/pkg/pipeline"
	"github.com/pipeloom/pipeloom/pkg/server"
	"github.com/pipeloom/pipeloom/pkg/store"
	"github.com/pipeloom/pipeloom/pkg/store/postgres"

	// Register all LLM providers via their init() functions.
	_ "github.com/pipeloom/pipeloom/pkg/llm/providers"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		logLevel  string
		logFormat string
	)

	root := &cobra.Command{
		Use:   "pipeloom",
		Short: "Pipeloom — describe a data pipeline, get a runnable one",
		Long: `Pipeloom turns natural-language workflow descriptions into pipeline
definitions: a dependency graph of steps, a container image spec, and a
requirements list.

The serve command hosts the browser studio with the interactive graph view;
the other commands work on pipeline files (.json, .dot, .hcl) directly.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initLogger(logLevel, logFormat)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(serveCmd())
	root.AddCommand(generateCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(renderCmd())
	root.AddCommand(simulateCmd())
	root.AddCommand(exportCmd())
	return root
}

// ─── serve ────────────────────────────────────────────────────────────────────

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		modelID    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the pipeline studio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("model") {
				cfg.Model.ID = modelID
			}

			st, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			var gen *generate.Generator
			client, err := llm.NewClient(cfg.Model.ID)
			if err != nil {
				slog.Warn("model unavailable, design endpoints disabled", "model", cfg.Model.ID, "error", err)
			} else {
				gen = generate.NewGenerator(client)
			}

			srv, err := server.New(cfg, st, gen)
			if err != nil {
				return err
			}

			ctx := signalContext(cmd.Context())
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Listen() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				slog.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&modelID, "model", "", "LLM model (provider:model-id)")
	return cmd
}

// openStore picks Postgres when a DSN is configured, in-memory otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.Store.PostgresDSN == "" {
		slog.Info("using in-memory store; definitions are lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}
	pg, err := postgres.Connect(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pg, pg.Close, nil
}

// ─── generate ─────────────────────────────────────────────────────────────────

func generateCmd() *cobra.Command {
	var (
		modelID string
		format  string
		out     string
	)

	cmd := &cobra.Command{
		Use:   "generate <description...>",
		Short: "Design a pipeline from a natural-language description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := llm.NewClient(modelID)
			if err != nil {
				return err
			}
			gen := generate.NewGenerator(client)

			ctx := signalContext(cmd.Context())
			p, err := gen.Generate(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			for _, f := range pipeline.Lint(p) {
				fmt.Fprintln(os.Stderr, f.Error())
			}
			return writePipeline(p, format, out)
		},
	}

	cmd.Flags().StringVar(&modelID, "model", "anthropic:claude-sonnet-4-5", "LLM model (provider:model-id)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json, dot, hcl, or bundle")
	cmd.Flags().StringVar(&out, "out", "", "output file (stdout if empty; bundle requires --out)")
	return cmd
}

// ─── lint ─────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint <pipeline-file>",
		Short: "Validate a pipeline file without serving or running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := loadPipelineFile(args[0])
			if err != nil {
				return err
			}
			findings := pipeline.Lint(p)
			for _, f := range findings {
				fmt.Println(f.Error())
			}
			if pipeline.HasErrors(findings) {
				return fmt.Errorf("pipeline %q has errors", p.Name)
			}
			deps := 0
			for _, s := range p.Steps {
				deps += len(s.DependsOn)
			}
			fmt.Printf("OK: pipeline %q is valid (%d steps, %d dependencies)\n", p.Name, len(p.Steps), deps)
			return nil
		},
	}
	return cmd
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// initLogger installs the process-wide slog handler.
func initLogger(level, format string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// writePipeline renders p in the requested format to out, or stdout when out
// is empty.
func writePipeline(p *pipeline.Pipeline, format, out string) error {
	var data []byte
	switch strings.ToLower(format) {
	case "json", "":
		encoded, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Errorf("encode pipeline: %w", err)
		}
		data = append(encoded, '\n')
	case "dot":
		data = []byte(pipeline.ExportDOT(p))
	case "hcl":
		data = pipeline.ExportHCL(p)
	case "bundle":
		if out == "" {
			return fmt.Errorf("bundle output requires --out")
		}
		bundle, err := export.Bundle(p)
		if err != nil {
			return err
		}
		data = bundle
	default:
		return fmt.Errorf("unknown format %q: use json, dot, hcl, or bundle", format)
	}

	if out == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[pipeloom] interrupted")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
