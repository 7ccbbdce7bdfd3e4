package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/martinemde/reactor/completion"
	"github.com/martinemde/reactor/reactloop"
)

// runCmd executes a single task with the agent loop.
var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run one task through the agent loop",
	Long: `Runs the ReAct loop for a single task and prints the final result to
stdout. Events are logged to stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		verbose, _ := cmd.Flags().GetBool("verbose")

		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}

		logger := newLogger(verbose)

		provider, err := completion.NewGollmProvider(cfg.Provider,
			completion.WithModel(cfg.Model),
		)
		if err != nil {
			return err
		}
		retrying := completion.WithRetry(provider, completion.DefaultRetryPolicy())

		env := reactloop.NewLocalEnvironment(cfg.WorkDir)

		agentCfg := reactloop.DefaultConfig()
		agentCfg.Markers = reactloop.Markers{
			Begin: cfg.Markers.Begin,
			End:   cfg.Markers.End,
			Arg:   cfg.Markers.Arg,
			Val:   cfg.Markers.Val,
		}
		agentCfg.Instructions = reactloop.DefaultInstructions + "\n\n" + reactloop.BuildEnvironmentContext(env)
		if cfg.RequirePatch {
			agentCfg.FinishGuard = reactloop.PatchFinishGuard(env)
		}

		agent := reactloop.New(retrying, &agentCfg)
		reactloop.RegisterCoreTools(agent.Registry(), env)
		if cfg.RequirePatch {
			agent.Register(reactloop.PatchFinishCapability(env))
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for event := range agent.Events() {
				logEvent(logger, event, verbose)
			}
		}()

		result, err := agent.Run(cmd.Context(), args[0], cfg.MaxSteps)
		<-done
		if err != nil {
			return err
		}

		fmt.Println(result)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// newLogger creates the application logger. It writes to stderr so the
// final result on stdout stays clean.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// logEvent maps run events onto log lines.
func logEvent(logger *slog.Logger, event reactloop.RunEvent, verbose bool) {
	attrs := []any{"run_id", event.RunID}
	for k, v := range event.Data {
		if s, ok := v.(string); ok && len(s) > 200 && !verbose {
			v = s[:200] + "..."
		}
		attrs = append(attrs, k, v)
	}

	switch event.Kind {
	case reactloop.EventError:
		logger.Error(string(event.Kind), attrs...)
	case reactloop.EventWarning, reactloop.EventDecodeError, reactloop.EventFinishRejected, reactloop.EventLoopDetection:
		logger.Warn(string(event.Kind), attrs...)
	case reactloop.EventStepStart, reactloop.EventToolStart, reactloop.EventToolEnd, reactloop.EventCorrective:
		logger.Debug(string(event.Kind), attrs...)
	default:
		logger.Info(string(event.Kind), attrs...)
	}
}
