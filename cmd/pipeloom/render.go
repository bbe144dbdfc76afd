package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pipeloom/pipeloom/pkg/export"
	"github.com/pipeloom/pipeloom/pkg/graphview"
	"github.com/pipeloom/pipeloom/pkg/pipeline"
	"github.com/pipeloom/pipeloom/pkg/simulate"
	"github.com/pipeloom/pipeloom/pkg/tui"
)

// ─── render ───────────────────────────────────────────────────────────────────

func renderCmd() *cobra.Command {
	var (
		themeName string
		width     float64
		out       string
	)

	cmd := &cobra.Command{
		Use:   "render <pipeline-file>",
		Short: "Render a pipeline file as an SVG graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := loadPipelineFile(args[0])
			if err != nil {
				return err
			}
			theme, err := graphview.ThemeByName(themeName)
			if err != nil {
				return err
			}

			scene := graphview.NewScene(theme)
			scene.SetPipeline(p, nil)
			if err := scene.Handle(graphview.Event{Kind: graphview.EventResize, Width: width}); err != nil {
				return err
			}

			svg := scene.Render()
			if out == "" {
				_, err := fmt.Println(svg)
				return err
			}
			if err := os.WriteFile(out, []byte(svg), 0o644); err != nil {
				return fmt.Errorf("write svg: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&themeName, "theme", "dark", "color theme: dark or light")
	cmd.Flags().Float64Var(&width, "width", graphview.DefaultWidth, "canvas width in pixels")
	cmd.Flags().StringVar(&out, "out", "", "output file (stdout if empty)")
	return cmd
}

// ─── export ───────────────────────────────────────────────────────────────────

func exportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export <pipeline-file>",
		Short: "Write a runnable bundle (definition, Dockerfile, requirements) as a zip",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := loadPipelineFile(args[0])
			if err != nil {
				return err
			}
			data, err := export.Bundle(p)
			if err != nil {
				return err
			}

			path := out
			if path == "" {
				name := p.Name
				if name == "" {
					name = "pipeline"
				}
				path = name + ".zip"
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("write bundle: %w", err)
			}
			fmt.Printf("wrote %s (%d bytes)\n", path, len(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "bundle path (defaults to <name>.zip)")
	return cmd
}

// ─── simulate ─────────────────────────────────────────────────────────────────

func simulateCmd() *cobra.Command {
	var (
		step   time.Duration
		failAt string
		plain  bool
	)

	cmd := &cobra.Command{
		Use:   "simulate <pipeline-file>",
		Short: "Dry-run a pipeline file, animating step status wave by wave",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPipelineFile(args[0])
			if err != nil {
				return err
			}
			if findings := pipeline.Lint(p); pipeline.HasErrors(findings) {
				for _, f := range findings {
					fmt.Fprintln(os.Stderr, f.Error())
				}
				return fmt.Errorf("pipeline %q has errors", p.Name)
			}

			runner := simulate.NewRunner(step)
			runner.FailAt = failAt

			ctx, cancel := context.WithCancel(signalContext(cmd.Context()))
			defer cancel()
			events, err := runner.Run(ctx, p)
			if err != nil {
				return err
			}

			if plain {
				return consumePlain(p, events)
			}
			prog := tea.NewProgram(tui.NewRunView(p, events, cancel))
			if _, err := prog.Run(); err != nil {
				return fmt.Errorf("run view: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&step, "step", 600*time.Millisecond, "simulated duration of each step")
	cmd.Flags().StringVar(&failAt, "fail-at", "", "step ID that should fail, halting its downstream")
	cmd.Flags().BoolVar(&plain, "plain", false, "print events as lines instead of the live view")
	return cmd
}

// consumePlain drains the event stream as one line per event.
func consumePlain(p *pipeline.Pipeline, events <-chan simulate.Event) error {
	var failed error
	for ev := range events {
		simulate.Apply(p, ev)
		switch ev.Kind {
		case simulate.EventRunStarted:
			fmt.Printf("run started: %s (%d steps)\n", p.Name, len(p.Steps))
		case simulate.EventStepStarted:
			fmt.Printf("  running   %s\n", ev.StepID)
		case simulate.EventStepCompleted:
			fmt.Printf("  completed %s\n", ev.StepID)
		case simulate.EventStepErrored:
			fmt.Printf("  errored   %s: %v\n", ev.StepID, ev.Err)
		case simulate.EventRunCompleted:
			fmt.Println("run completed")
		case simulate.EventRunFailed:
			failed = ev.Err
			fmt.Printf("run failed: %v\n", ev.Err)
		}
	}
	return failed
}

// loadPipelineFile reads a pipeline definition, inferring the format from the
// file extension.
func loadPipelineFile(path string) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}

	var p *pipeline.Pipeline
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		p = &pipeline.Pipeline{}
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".dot", ".gv":
		if p, err = pipeline.ParseDOT(string(data)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".hcl":
		if p, err = pipeline.ParseHCL(data, filepath.Base(path)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unknown pipeline format %q: use .json, .dot, or .hcl", ext)
	}
	return p, nil
}
