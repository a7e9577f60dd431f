package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signalbridge/internal/agent"
	"signalbridge/internal/audio"
	"signalbridge/internal/bridge"
	"signalbridge/internal/config"
	"signalbridge/internal/gateway"
	"signalbridge/internal/signalcli"
	"signalbridge/internal/transcribe"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "signalbridge",
		Short:   "Bridge between a signal-cli daemon and an HTTP agent",
		Long:    "signalbridge supervises a signal-cli daemon, forwards incoming Signal messages to an HTTP agent, and delivers the agent's replies with Signal text styling.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.signalbridge/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			logger.Info("edit the config to set signal.account and signal.allowedNumbers, then run 'signalbridge run'")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the daemon and the bridge loop",
		Long:  "Starts the signal-cli daemon, waits for it to become ready, and processes incoming messages until interrupted. Press Ctrl+C to stop.",
		RunE:  runBridge,
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err = setupLogger(cfg.General)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisor := signalcli.NewSupervisor(signalcli.SupervisorConfig{
		Account:      cfg.Signal.Account,
		HTTPAddr:     cfg.Signal.HTTPAddr,
		BinPath:      cfg.Signal.CLIPath,
		ReadyTimeout: time.Duration(cfg.Signal.StartupTimeoutSeconds) * time.Second,
		Logger:       logger,
	})
	if err := supervisor.Start(); err != nil {
		return err
	}
	// Stop must run on every exit path so no daemon is orphaned.
	defer supervisor.Stop()

	if err := supervisor.WaitReady(ctx); err != nil {
		return err
	}

	signalClient := signalcli.NewClient(signalcli.ClientConfig{
		BaseURL: "http://" + cfg.Signal.HTTPAddr,
		IDs:     signalcli.NewRequestIDs(),
		Logger:  logger,
	})

	agentClient := agent.NewClient(agent.Config{
		URL:     cfg.Agent.URL,
		Timeout: time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})

	var transcriber *transcribe.Client
	if cfg.Transcription.APIKey != "" {
		transcriber = transcribe.NewClient(transcribe.Config{
			APIBase:       cfg.Transcription.APIBase,
			APIKey:        cfg.Transcription.APIKey,
			Model:         cfg.Transcription.Model,
			Language:      cfg.Transcription.Language,
			AcceptedTypes: cfg.Transcription.AcceptedTypes,
			Logger:        logger,
		})
		logger.Info("voice note transcription enabled", "model", cfg.Transcription.Model)
	} else if cfg.Agent.ForwardAudio {
		logger.Info("voice notes will be forwarded to the agent as audio")
	} else {
		logger.Info("voice notes will be ignored (no transcription API key, forwardAudio off)")
	}

	if cfg.Gateway.Enabled {
		gw := gateway.NewServer(gateway.Config{
			Host:           cfg.Gateway.Host,
			Port:           cfg.Gateway.Port,
			AllowedNumbers: cfg.Signal.AllowedNumbers,
			Signal:         signalClient,
			Logger:         logger,
		})
		go func() {
			if err := gw.Start(ctx); err != nil {
				logger.Error("outbound gateway error", "err", err)
			}
		}()
	}

	processor := bridge.NewProcessor(bridge.ProcessorConfig{
		AllowedNumbers: cfg.Signal.AllowedNumbers,
		ReplyMode:      cfg.Signal.ReplyMode,
		ForwardAudio:   cfg.Agent.ForwardAudio,
		AttachmentsDir: cfg.Signal.AttachmentsDir,
		Agent:          agentClient,
		Signal:         signalClient,
		Transcriber:    transcriber,
		Transcoder:     audio.NewTranscoder(audio.TranscoderConfig{Logger: logger}),
		Logger:         logger,
	})

	logger.Info("bridge started", "account", cfg.Signal.Account, "reply_mode", cfg.Signal.ReplyMode)

	err = signalClient.Listen(ctx, func(env signalcli.Envelope) {
		processor.Handle(ctx, env)
	})
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

// setupLogger builds the process logger from config: level, and an
// optional log file in addition to stderr.
func setupLogger(cfg config.GeneralConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. signal.replyMode)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. signal.replyMode agent)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
