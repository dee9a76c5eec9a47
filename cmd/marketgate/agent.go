package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/marketgate/pkg/agent"
	"github.com/aretw0/marketgate/pkg/decider"
	"github.com/aretw0/marketgate/pkg/ports"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Start a compute agent",
	Long: `Starts a compute agent that connects to the bridge, receives market
updates and answers with trade decisions.

Supported strategies:
- rules (default): deterministic threshold strategy, no external calls.
- openai: delegates each decision to a chat model (requires OPENAI_API_KEY).`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, err := setup(cmd)
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}

		strategy, _ := cmd.Flags().GetString("strategy")

		var d ports.Decider
		switch strategy {
		case "rules":
			d = decider.NewRules()
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				logger.Error("agent: OPENAI_API_KEY is required for the openai strategy")
				os.Exit(1)
			}
			clientOpts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
			if cfg.OpenAIBaseURL != "" {
				clientOpts = append(clientOpts, option.WithBaseURL(cfg.OpenAIBaseURL))
			}
			oc := openaisdk.NewClient(clientOpts...)
			d = decider.NewOpenAI(&oc, cfg.OpenAIModel)
			logger.Info("agent: using model strategy", "model", cfg.OpenAIModel)
		default:
			logger.Error("agent: unknown strategy", "strategy", strategy)
			os.Exit(1)
		}

		a := agent.New(cfg.BridgeURL, d, agent.WithLogger(logger))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("agent: starting", "bridge", cfg.BridgeURL, "strategy", strategy)
		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("agent: run failed", "error", err)
			os.Exit(1)
		}
		logger.Info("agent: stopped")
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)

	agentCmd.Flags().String("strategy", "rules", "Decision strategy: 'rules' or 'openai'")
}
