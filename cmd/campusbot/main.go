package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hession/campusbot/internal/cli"
	"github.com/hession/campusbot/internal/config"
	"github.com/hession/campusbot/internal/journal"
	"github.com/hession/campusbot/internal/logger"
	"github.com/hession/campusbot/internal/matrix"
	"github.com/hession/campusbot/internal/telegram"
)

var version = cli.Version

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "campusbot",
		Short: "CampusBot - a study assistant for group chats",
		Long: `CampusBot answers students in Telegram and Matrix chats.

It can:
  • Hold a conversation that remembers earlier messages
  • Analyse GitHub repositories from a link
  • Summarise web pages
  • Search the web on request`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configDir != "" {
				config.SetConfigDir(configDir)
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ./config)")

	rootCmd.AddCommand(newRunCmd(), newConsoleCmd(), newStatsCmd(), newConfigCmd(), newVersionCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the enabled chat platforms and answer messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, prompts, err := setup(true)
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, prompts)
		},
	}
}

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Talk to the bot in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, prompts, err := setup(false)
			if err != nil {
				return err
			}
			defer logger.Close()

			a, err := newApp(cfg, prompts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cli.NewConsole(a.bot, a.bot.Name(), currentUser(), os.Stdout).Run(ctx)
		},
	}
}

func newStatsCmd() *cobra.Command {
	var (
		since  time.Duration
		recent int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cfg.Journal.Enabled {
				return fmt.Errorf("the journal is disabled in %s", configPath())
			}
			store, err := journal.NewSQLiteStore(cfg.Journal.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer store.Close()

			st, err := store.Stats(time.Now().Add(-since))
			if err != nil {
				return err
			}
			journal.RenderStats(cmd.OutOrStdout(), st)

			if recent > 0 {
				exchanges, err := store.RecentExchanges(recent)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout())
				journal.RenderRecent(cmd.OutOrStdout(), exchanges)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to aggregate")
	cmd.Flags().IntVar(&recent, "recent", 0, "also list the N newest exchanges")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cfg.String())
			fmt.Fprintf(out, "\nConfig file path: %s\n", configPath())
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "CampusBot v%s\n", version)
		},
	}
}

// setup loads and validates configuration and prompts and starts the logger
func setup(consoleLog bool) (*config.Config, config.LanguagePrompts, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.LanguagePrompts{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, config.LanguagePrompts{}, err
	}
	promptCfg, err := config.LoadPromptConfig()
	if err != nil {
		return nil, config.LanguagePrompts{}, err
	}

	if err := logger.Init(logger.Config{
		LogDir:     config.LogDir(),
		Level:      logger.ParseLevel(cfg.Log.Level),
		MaxDays:    cfg.Log.MaxDays,
		ConsoleOut: consoleLog && cfg.Log.Console,
	}); err != nil {
		return nil, config.LanguagePrompts{}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logConfigInfo(cfg)

	if !cfg.IsAPIKeyConfigured() {
		logger.Warn("No model API key configured; set LLM_API_KEY in %s", secretsPath())
	}
	return cfg, promptCfg.GetPrompts(), nil
}

// serve runs every enabled transport and the metrics endpoint until ctx is
// cancelled or one of them fails
func serve(ctx context.Context, cfg *config.Config, prompts config.LanguagePrompts) error {
	if !cfg.Telegram.Enabled && !cfg.Matrix.Enabled {
		return fmt.Errorf("no chat platform is enabled; enable telegram or matrix in %s, or use \"campusbot console\"", configPath())
	}

	a, err := newApp(cfg, prompts)
	if err != nil {
		return err
	}
	defer a.Close()

	var runners []func(context.Context) error
	if cfg.Telegram.Enabled {
		tg, err := telegram.New(cfg.Telegram, a.bot)
		if err != nil {
			return err
		}
		if cfg.Bot.Username == "" {
			a.bot.SetUsername(tg.Username())
		}
		runners = append(runners, tg.Run)
	}
	if cfg.Matrix.Enabled {
		mx, err := matrix.New(cfg.Matrix, a.bot, a.journalDB())
		if err != nil {
			return err
		}
		runners = append(runners, mx.Run)
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.metrics != nil {
		g.Go(func() error {
			logger.Info("Metrics listening on %s", cfg.Metrics.Addr)
			return a.metrics.Serve(gctx, cfg.Metrics.Addr)
		})
	}
	for _, run := range runners {
		g.Go(func() error { return run(gctx) })
	}

	logger.Info("CampusBot v%s started", version)
	err = g.Wait()
	logger.Info("CampusBot stopped")
	return err
}

func logConfigInfo(cfg *config.Config) {
	logger.Info("Model: %s at %s", cfg.Model.Model, cfg.Model.BaseURL)
	logger.Info("Platforms: telegram=%v matrix=%v", cfg.Telegram.Enabled, cfg.Matrix.Enabled)
	logger.Info("Memory: max %d tokens, compact at %.0f%%, %d entries per user",
		cfg.Memory.MaxHistoryTokens, cfg.Memory.CompactThreshold*100, cfg.Memory.HistoryLimit)
	logger.Info("Enrichment: enabled=%v search=%s", cfg.Enrichment.Enabled, cfg.WebSearch.Provider)
}

func configPath() string {
	path, err := config.ConfigPath()
	if err != nil {
		return "config.yaml"
	}
	return path
}

func secretsPath() string {
	path, err := config.SecretsPath()
	if err != nil {
		return ".secrets"
	}
	return path
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}
