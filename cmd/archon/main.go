// Package main is the entry point for the Archon CLI application.
// Archon is a conversational agent backend that routes turns through a
// bounded decide/act/respond loop over multiple LLM providers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/archon/internal/bus"
	"github.com/normanking/archon/internal/capability"
	"github.com/normanking/archon/internal/capability/builtin"
	"github.com/normanking/archon/internal/config"
	"github.com/normanking/archon/internal/dispatch"
	"github.com/normanking/archon/internal/llm"
	"github.com/normanking/archon/internal/logging"
	"github.com/normanking/archon/internal/orchestrator"
	"github.com/normanking/archon/internal/prompt"
	"github.com/normanking/archon/internal/schema"
	"github.com/normanking/archon/internal/server"
	"github.com/normanking/archon/internal/state"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "archon",
		Short: "Archon - multi-provider conversational agent backend",
		Long: `Archon runs conversational turns through a bounded decision loop:
the model decides which capabilities to invoke, Archon executes them
concurrently, and a final structured answer is composed for the caller.

Start the HTTP server:   archon serve
One-shot question:       archon ask "weather in Lisbon?"
Configuration:           archon config show`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.archon/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Archon v%s\n", version)
		},
	})

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the verbose override.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// runtime bundles the wired components behind a single cleanup.
type runtime struct {
	cfg    *config.Config
	turns  *orchestrator.Orchestrator
	events *bus.Bus
	states *state.Store
}

func (rt *runtime) close() {
	if rt.states != nil {
		if err := rt.states.Close(); err != nil {
			log.Warn().Err(err).Msg("state store close")
		}
	}
	if rt.events != nil {
		rt.events.Close()
	}
}

// buildRuntime wires providers, capabilities and the orchestrator from config.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)

	providerConfigs := make(map[llm.Kind]*llm.ProviderConfig, len(cfg.LLM.Providers))
	for name, pc := range cfg.LLM.Providers {
		kind := llm.Kind(name)
		base := llm.DefaultConfig(name)
		if pc.Endpoint != "" {
			base.Endpoint = pc.Endpoint
		}
		if pc.Model != "" {
			base.Model = pc.Model
		}
		if pc.TimeoutSec > 0 {
			base.Timeout = time.Duration(pc.TimeoutSec) * time.Second
		}
		base.APIKey = pc.APIKey
		providerConfigs[kind] = base
	}

	router, err := llm.NewRouter(providerConfigs)
	if err != nil {
		return nil, fmt.Errorf("build provider router: %w", err)
	}

	normalizer, err := schema.NewNormalizer()
	if err != nil {
		return nil, fmt.Errorf("build normalizer: %w", err)
	}

	descriptors := []*capability.Descriptor{
		builtin.NewWeatherClient().Descriptor(),
		builtin.NewSearchClient(cfg.Search.Endpoint).Descriptor(),
	}
	if cfg.Home.BridgeURL != "" {
		descriptors = append(descriptors, builtin.NewHomeClient(cfg.Home.BridgeURL, cfg.Home.Token).Descriptors()...)
	}
	registry, err := capability.NewRegistry(descriptors...)
	if err != nil {
		return nil, fmt.Errorf("build capability registry: %w", err)
	}

	prompts, err := prompt.NewService()
	if err != nil {
		return nil, fmt.Errorf("build prompt service: %w", err)
	}

	states, err := state.NewStore(cfg.State.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	events := bus.NewBus()

	turns, err := orchestrator.New(orchestrator.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		DefaultModel:  cfg.LLM.DefaultModel,
	}, orchestrator.Deps{
		Resolver:   router,
		Normalizer: normalizer,
		Registry:   registry,
		Dispatcher: dispatch.NewCoordinator(registry, events),
		Prompts:    prompts,
		States:     states,
		Events:     events,
	})
	if err != nil {
		states.Close()
		events.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	return &runtime{cfg: cfg, turns: turns, events: events, states: states}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			srv := server.New(server.Config{
				Addr:         cfg.Server.Addr,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}, rt.turns, rt.events, rt.states)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigChan:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			log.Info().Msg("server stopped")
			return nil
		},
	}
}

func askCmd() *cobra.Command {
	var (
		model  string
		format string
		userID string
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask Archon a question (one-shot turn)",
		Long: `Run a single turn from the command line.

Examples:
  archon ask "What's the weather in Lisbon?"
  archon ask --format voice "Turn on the living room lights"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			answer, err := rt.turns.RunTurn(ctx, &orchestrator.TurnRequest{
				Messages: []llm.Message{{Role: "user", Content: question}},
				Model:    model,
				Format:   capability.ResponseFormat(format),
				UserID:   userID,
			})
			if err != nil {
				return fmt.Errorf("turn failed: %w", err)
			}

			fmt.Println(answer.Answer.Content.Text)
			if verbose {
				fmt.Fprintf(os.Stderr, "\n--- trace ---\n%s\n", answer.TraceSummary)
				fmt.Fprintf(os.Stderr, "tokens: %d in / %d out\n",
					answer.Usage.InputTokens, answer.Usage.OutputTokens)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model override (default from config)")
	cmd.Flags().StringVar(&format, "format", "text", "response format (text, voice, dashboard, widget)")
	cmd.Flags().StringVar(&userID, "user", "", "user id for personalized context")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// redact keys before printing
			redacted := *cfg
			redacted.LLM.Providers = make(map[string]config.ProviderConfig, len(cfg.LLM.Providers))
			for name, pc := range cfg.LLM.Providers {
				if pc.APIKey != "" {
					pc.APIKey = "***"
				}
				redacted.LLM.Providers[name] = pc
			}
			out, err := json.MarshalIndent(redacted, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(c *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = home + "/.archon/config.yaml"
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := config.Default().SaveToPath(path); err != nil {
				return err
			}
			fmt.Printf("Wrote default config to %s\n", path)
			return nil
		},
	})

	return cmd
}
