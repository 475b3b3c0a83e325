package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"nfpwatch/internal/collector"
	"nfpwatch/internal/config"
	"nfpwatch/internal/corpus"
	"nfpwatch/internal/investigator"
	"nfpwatch/internal/llm"
	"nfpwatch/internal/logging"
	"nfpwatch/internal/platform"
	"nfpwatch/internal/scheduler"
	"nfpwatch/internal/store"
	"nfpwatch/internal/transcribe"
)

var showItems bool

var addTargetCmd = &cobra.Command{
	Use:   "add-target [handle]",
	Short: "Start tracking an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		target, err := st.RegisterTarget(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("tracking @%s (case %s)\n", target.Handle, target.CaseID)
		return nil
	},
}

var listTargetsCmd = &cobra.Command{
	Use:   "list-targets",
	Short: "Show tracked accounts and their capture state",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		targets, err := st.ListTargets(cmd.Context())
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			fmt.Println("no tracked targets")
			return nil
		}

		for _, t := range targets {
			fmt.Printf("@%-24s case %s  updated %s\n",
				t.Handle, t.CaseID, t.UpdatedAt.Local().Format(time.RFC3339))
			if !showItems {
				continue
			}
			items, err := st.ListItems(cmd.Context(), t.ID)
			if err != nil {
				return err
			}
			for _, item := range items {
				state := "pending"
				if item.Analyzed() {
					state = item.Summary
				} else if item.Kind == store.KindImage {
					state = "captured"
				}
				fmt.Printf("  %-8s %-24s %s\n", item.Kind, item.NativeID, state)
			}
		}
		return nil
	},
}

var collectCmd = &cobra.Command{
	Use:   "collect [handle]",
	Short: "Run an acquisition pass now, for all targets or just one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.KeyPlatformLogin, config.KeyPlatformAppID); err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()
		col := buildCollector(st, sweepPacer())

		if len(args) == 1 {
			target, ok, err := st.FindTarget(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("target %q is not tracked, add it first", args[0])
			}
			out, err := col.AcquireFor(ctx, target)
			if err != nil {
				return err
			}
			printOutcome(out)
			return nil
		}

		outcomes, err := col.RunSweep(ctx)
		if err != nil {
			return err
		}
		for _, out := range outcomes {
			printOutcome(out)
		}
		return nil
	},
}

var investigateCmd = &cobra.Command{
	Use:   "investigate [handle]",
	Short: "Analyze pending video captures, for all targets or just one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.KeyGeminiAPIKey); err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		inv, err := buildInvestigator(ctx, st)
		if err != nil {
			return err
		}

		var analyzed int
		if len(args) == 1 {
			target, ok, err := st.FindTarget(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("target %q is not tracked, add it first", args[0])
			}
			analyzed, err = inv.RunSweepForTarget(ctx, target.ID)
			if err != nil {
				return err
			}
		} else {
			analyzed, err = inv.RunSweep(ctx)
			if err != nil {
				return err
			}
		}
		fmt.Printf("analyzed %d item(s)\n", analyzed)
		return nil
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the acquisition and analysis loops until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := cfg.Validate(config.KeyPlatformLogin, config.KeyPlatformAppID, config.KeyGeminiAPIKey)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		d, err := buildDaemon(ctx, st, sweepPacer())
		if err != nil {
			return err
		}
		if err := d.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [handle]",
	Short: "Acquire one target's feed now and analyze it synchronously",
	Long: `Runs the full pipeline for a single tracked target and returns when
its pending items are analyzed. Unlike the daemon's sweeps this path does
not pace between items; it is meant for interactive use on one target.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := cfg.Validate(config.KeyPlatformLogin, config.KeyPlatformAppID, config.KeyGeminiAPIKey)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		d, err := buildDaemon(ctx, st, platform.NopPacer{})
		if err != nil {
			return err
		}
		out, analyzed, err := d.RunOnce(ctx, args[0])
		if err != nil {
			return err
		}
		printOutcome(out)
		fmt.Printf("analyzed %d item(s)\n", analyzed)
		return nil
	},
}

func openStore() (*store.Store, error) {
	return store.Open(cfg.DatabasePath, logging.Named(logger, "store"))
}

func buildCollector(st *store.Store, pacer platform.Pacer) *collector.Collector {
	timeout := config.Duration(cfg.Platform.Timeout, 30*time.Second)

	sessions := platform.NewSessionManager(platform.SessionConfig{
		Username:  cfg.Platform.Username,
		Password:  cfg.Platform.Password,
		BaseURL:   cfg.Platform.BaseURL,
		UserAgent: cfg.Platform.UserAgent,
		Headless:  cfg.Platform.Headless,
		Timeout:   timeout,
		AuthFile:  cfg.AuthFile,
	}, logging.Named(logger, "session"))

	feed := platform.NewFeedClient(platform.FeedConfig{
		APIBaseURL: cfg.Platform.APIBaseURL,
		AppID:      cfg.Platform.AppID,
		UserAgent:  cfg.Platform.UserAgent,
		Timeout:    timeout,
	}, logging.Named(logger, "feed"))

	return collector.New(st, sessions, feed, pacer, logging.Named(logger, "collector"))
}

// sweepPacer is the jittered pacing used by sweeps; the on-demand run path
// passes a NopPacer instead.
func sweepPacer() platform.Pacer {
	return platform.NewJitterPacer(
		config.Duration(cfg.Collector.PacingMin, 2*time.Second),
		config.Duration(cfg.Collector.PacingMax, 3500*time.Millisecond))
}

// buildDaemon wires the full pipeline behind the scheduler, for both the
// long-lived daemon and the one-shot run command.
func buildDaemon(ctx context.Context, st *store.Store, pacer platform.Pacer) (*scheduler.Daemon, error) {
	col := buildCollector(st, pacer)
	inv, err := buildInvestigator(ctx, st)
	if err != nil {
		return nil, err
	}
	return scheduler.New(col, inv, st,
		config.Duration(cfg.Scheduler.CollectEvery, 6*time.Hour),
		config.Duration(cfg.Scheduler.AnalysisOffset, 5*time.Minute),
		logging.Named(logger, "daemon")), nil
}

func buildInvestigator(ctx context.Context, st *store.Store) (*investigator.Investigator, error) {
	legal, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		return nil, err
	}

	client, err := llm.Connect(ctx, cfg.LLM.APIKey)
	if err != nil {
		return nil, err
	}
	reasoner := llm.NewGeminiClient(client, cfg.LLM.Model)
	transcriber := newTranscriber(client)

	return investigator.New(st, transcriber, reasoner, legal,
		logging.Named(logger, "investigator")), nil
}

func newTranscriber(client *genai.Client) transcribe.Transcriber {
	return transcribe.NewGeminiTranscriber(client, cfg.LLM.TranscriptionModel,
		logging.Named(logger, "transcribe"))
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printOutcome(out collector.Outcome) {
	fmt.Printf("@%s: %d found, %d saved, %d already known\n",
		out.Handle, out.Found, out.Saved, out.Skipped)
}
