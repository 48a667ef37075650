package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"LegalMind/internal/chatbot"
	"LegalMind/internal/config"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type flags struct {
	configPath string
	baseURL    string
	language   string
	dataDir    string
	logDir     string
	debug      bool
	plain      bool
	serialize  bool
}

// loadConfig reads the config file and lets explicitly set flags win.
func (f *flags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}

	pf := cmd.Flags()
	if pf.Changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if pf.Changed("language") {
		cfg.Language = f.language
	}
	if pf.Changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if pf.Changed("log-dir") {
		cfg.LogDir = f.logDir
	}
	if pf.Changed("debug") {
		cfg.Debug = f.debug
	}
	if pf.Changed("plain") {
		cfg.Plain = f.plain
	}
	if pf.Changed("serialize") {
		cfg.Serialize = f.serialize
	}

	if !config.ValidLanguage(cfg.Language) {
		return cfg, errors.Errorf("unsupported language %q", cfg.Language)
	}
	return cfg, cfg.Validate()
}

func (f *flags) withBot(cmd *cobra.Command, fn func(ctx context.Context, bot *chatbot.ChatBot) error) error {
	cfg, err := f.loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	bot, err := chatbot.NewChatBot(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to initialize chatbot")
	}
	defer bot.Close()

	return fn(ctx, bot)
}

func newRootCommand() *cobra.Command {
	f := &flags{}

	chat := func(cmd *cobra.Command, args []string) error {
		return f.withBot(cmd, func(ctx context.Context, bot *chatbot.ChatBot) error {
			return bot.Run(ctx)
		})
	}

	rootCmd := &cobra.Command{
		Use:           "legalmind",
		Short:         "Chat with the LegalMind legal assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          chat,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&f.baseURL, "base-url", config.DefaultBaseURL, "LegalMind backend URL")
	pf.StringVar(&f.language, "language", config.DefaultLanguage, "Answer language (it|en|uk|ru|ro|ar)")
	pf.StringVar(&f.dataDir, "data-dir", ".legalmind", "Directory for the local session database")
	pf.StringVar(&f.logDir, "log-dir", "logs", "Directory for log, trace and metric files")
	pf.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&f.plain, "plain", false, "Disable markdown and styled output")
	pf.BoolVar(&f.serialize, "serialize", false, "Finish each message before sending the next")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation (default)",
		RunE:  chat,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check whether the backend is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.withBot(cmd, func(ctx context.Context, bot *chatbot.ChatBot) error {
				if !bot.Health(ctx) {
					return errors.New("backend is offline")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Backend is online")
				return nil
			})
		},
	})

	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Show or clear the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.withBot(cmd, func(ctx context.Context, bot *chatbot.ChatBot) error {
				fmt.Fprintln(cmd.OutOrStdout(), bot.SessionID())
				return nil
			})
		},
	}
	sessionCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.withBot(cmd, func(ctx context.Context, bot *chatbot.ChatBot) error {
				bot.ClearSession()
				fmt.Fprintln(cmd.OutOrStdout(), "Session cleared")
				return nil
			})
		},
	})
	rootCmd.AddCommand(sessionCmd)

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
