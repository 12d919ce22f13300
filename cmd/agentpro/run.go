package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amin-amout/agentpro/internal/bus"
	"github.com/amin-amout/agentpro/internal/gateway"
	"github.com/amin-amout/agentpro/internal/pipeline"
	"github.com/amin-amout/agentpro/internal/prompt"
	"github.com/amin-amout/agentpro/internal/report"
	"github.com/amin-amout/agentpro/internal/runlog"
	"github.com/amin-amout/agentpro/internal/stage"
	"github.com/amin-amout/agentpro/internal/stages"
	"github.com/amin-amout/agentpro/internal/tui"
)

var (
	inputText string
	inputFile string
	forceRun  bool
)

var runCmd = &cobra.Command{
	Use:   "run <project>",
	Short: "Run the full pipeline for a project",
	Long: `Run executes every stage of the pipeline in dependency order.
Stages the project already completed are reused unless --force is given.
The project description comes from --input, --input-file, or an
interactive prompt when neither is set and a root stage needs to run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executePipeline(args[0], nil)
	},
}

var stageCmd = &cobra.Command{
	Use:   "stage <project> <stage>",
	Short: "Re-run one stage and its dependents",
	Long: `Stage re-executes the named stage plus every stage downstream of
it, since their inputs go stale. Upstream stages must already be
completed; their stored artifacts feed the re-run.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executePipeline(args[0], []string{args[1]})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, stageCmd} {
		cmd.Flags().StringVar(&inputText, "input", "", "project description text")
		cmd.Flags().StringVar(&inputFile, "input-file", "", "file containing the project description")
		cmd.Flags().BoolVar(&forceRun, "force", false, "re-run stages that already completed")
	}
}

func executePipeline(project string, targets []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.ValidateGeneration(); err != nil {
		return err
	}
	userInput, err := resolveInput(project, targets)
	if err != nil {
		return err
	}

	backend, err := gateway.NewHTTPClient(gateway.Config{
		APIURL:      a.cfg.Generation.APIURL,
		APIKey:      a.cfg.Generation.APIKey,
		Model:       a.cfg.Generation.Model,
		Temperature: a.cfg.Generation.Temperature,
		MaxTokens:   a.cfg.Generation.MaxTokens,
		MaxRetries:  a.cfg.Generation.MaxRetries,
		BackoffBase: a.cfg.Generation.BackoffBase.Std(),
		Timeout:     a.cfg.Generation.Timeout.Std(),
	}, gateway.WithLogger(a.logger))
	if err != nil {
		return err
	}

	registry := stage.NewRegistry()
	stages.RegisterBuiltins(registry)
	graph, err := pipeline.BuildGraph(registry, stages.Names, stage.Deps{
		Gateway: backend,
		Prompts: prompt.NewFileProvider(a.cfg.Paths.Prompts),
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}

	eventBus := bus.New(bus.WithLogger(a.logger))
	defer eventBus.Close()
	progress, err := runlog.New(a.cfg.Paths.Projects, project)
	if err != nil {
		return err
	}
	logSub := eventBus.SubscribeFunc(runlogHandler(progress))
	defer logSub.Close()

	opts := []pipeline.SchedulerOption{
		pipeline.WithBus(eventBus),
		pipeline.WithLogger(a.logger),
	}
	if a.cfg.Run.MaxParallel > 0 {
		opts = append(opts, pipeline.WithMaxParallel(a.cfg.Run.MaxParallel))
	}
	scheduler, err := pipeline.NewScheduler(graph, a.artifacts, a.states, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := scheduler.Run(ctx, pipeline.RunOptions{
		Project:   project,
		UserInput: userInput,
		Targets:   targets,
		Force:     forceRun,
	})
	fmt.Println(report.Run(summary))
	if err != nil {
		return err
	}
	if summary.Failed() {
		return fmt.Errorf("run %s finished with failures", summary.RunID)
	}
	return nil
}

// resolveInput picks the project description: explicit flag, file, or the
// interactive prompt. Targeted re-runs of non-root stages work without
// fresh input since they consume stored artifacts.
func resolveInput(project string, targets []string) (string, error) {
	if inputText != "" && inputFile != "" {
		return "", fmt.Errorf("--input and --input-file are mutually exclusive")
	}
	if inputText != "" {
		return inputText, nil
	}
	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return "", fmt.Errorf("read input file: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", fmt.Errorf("input file %s is empty", inputFile)
		}
		return text, nil
	}
	if !needsUserInput(targets) {
		return "", nil
	}
	return tui.Prompt(
		fmt.Sprintf("Describe the project %q", project),
		"A web application that...",
	)
}

// needsUserInput reports whether a root stage will run: only those consume
// the raw description.
func needsUserInput(targets []string) bool {
	if len(targets) == 0 {
		return true
	}
	for _, target := range targets {
		if target == "business" {
			return true
		}
	}
	return false
}

// runlogHandler translates bus events into run.log lines.
func runlogHandler(progress *runlog.Log) bus.Handler {
	return func(event bus.Event) {
		switch event.Kind {
		case bus.KindStageStarted:
			progress.Info("%s started", event.Source)
		case bus.KindStageCompleted:
			progress.Info("%s completed · %v", event.Source, event.Payload["summary"])
		case bus.KindStageFailed:
			progress.Error("%s failed · %v", event.Source, event.Payload["error"])
		case bus.KindStageSkipped:
			progress.Warn("%s skipped · %v", event.Source, event.Payload["reason"])
		case bus.KindRunFinished:
			progress.Info("run %v finished · %v completed, %v failed, %v skipped",
				event.Payload["run_id"],
				event.Payload["completed"],
				event.Payload["failed"],
				event.Payload["skipped"])
		case bus.KindProgress:
			progress.Info("%s · %v", event.Source, event.Payload["message"])
		}
	}
}
