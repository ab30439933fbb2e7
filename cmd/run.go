package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/agora/config"
	"github.com/mohammad-safakhou/agora/internal/debate/core"
	"github.com/mohammad-safakhou/agora/internal/debate/telemetry"
	"github.com/mohammad-safakhou/agora/internal/store"
)

func runCMD() *cobra.Command {
	var cfgPath string
	var topic, proPosition, contraPosition string
	var rounds, timeoutMinutes int

	var run = &cobra.Command{
		Use:   "run",
		Short: "Run a single debate and print the verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			llm, err := core.NewLLMProvider(cfg.LLM)
			if err != nil {
				return err
			}
			searcher, err := core.NewSearcher(cfg.Search)
			if err != nil {
				return err
			}
			tele := telemetry.NewTelemetry(cfg.Telemetry)
			go func() { _ = tele.ServeMetrics() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var opts []core.Option
			if cfg.Storage.Redis.Host != "" {
				checkpoints, err := store.NewRedisCheckpointStore(ctx, cfg.Storage.Redis)
				if err != nil {
					return err
				}
				opts = append(opts, core.WithCheckpointStore(checkpoints))
			}
			if dsn, err := cfg.Storage.Postgres.DSN(); err == nil {
				archive, err := store.NewPostgresArchive(ctx, dsn)
				if err != nil {
					return err
				}
				opts = append(opts, core.WithArchiveStore(archive))
			}

			orch := core.NewOrchestrator(cfg, llm, searcher, tele, nil, opts...)
			state := orch.RunDebate(ctx, core.DebateConfig{
				Topic:          topic,
				ProPosition:    proPosition,
				ContraPosition: contraPosition,
				MaxRounds:      rounds,
				TimeoutMinutes: timeoutMinutes,
			})

			fmt.Println(state.DebateSummary)
			fmt.Printf("\nGanador: %s\n", state.Winner)
			for k, v := range state.FinalScores {
				fmt.Printf("  %s: %.3f\n", k, v)
			}
			if tele != nil {
				fmt.Printf("Coste estimado: $%.4f\n", tele.TotalCostUSD())
			}
			if state.Winner == core.WinnerError {
				return fmt.Errorf("debate failed: %v", state.Errors)
			}
			return nil
		},
	}
	run.Flags().StringVar(&topic, "topic", "", "debate topic")
	run.Flags().StringVar(&proPosition, "pro", "", "PRO team position")
	run.Flags().StringVar(&contraPosition, "contra", "", "CONTRA team position")
	run.Flags().IntVar(&rounds, "rounds", 0, "maximum rounds (default from config)")
	run.Flags().IntVar(&timeoutMinutes, "timeout", 0, "debate timeout in minutes (default from config)")
	run.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	_ = run.MarkFlagRequired("topic")
	_ = run.MarkFlagRequired("pro")
	_ = run.MarkFlagRequired("contra")

	return run
}
