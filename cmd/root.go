package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/apexion-ai/parley/internal/config"
	"github.com/apexion-ai/parley/internal/provider"
	"github.com/apexion-ai/parley/internal/session"
)

var (
	cfgFile      string
	modelFlag    string
	providerFlag string
	storeDirFlag string
	useTUI       bool
	noColor      bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "Terminal chat client for LLM providers",
		Long:  "parley is a terminal chat client that keeps every conversation on disk and lets you switch, rename, rate and summarize them.",
		// Running parley with no subcommand starts chat mode.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			stdoutTTY := term.IsTerminal(int(os.Stdout.Fd()))
			if !cmd.Root().PersistentFlags().Changed("no-color") && !stdoutTTY {
				noColor = true
			}
			// .env in the working directory supplies API keys; a missing file is fine.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context())
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/parley/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider")
	rootCmd.PersistentFlags().StringVar(&storeDirFlag, "store-dir", "", "conversation storage directory")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output (default: off when stdout is not a terminal)")
	rootCmd.Flags().BoolVar(&useTUI, "tui", false, "use the full-screen bubbletea interface")

	// Subcommands
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newChatsCmd())
	rootCmd.AddCommand(newSummarizeCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// errReported marks failures the UI has already shown.
var errReported = errors.New("reported")

// displayVersion returns a formatted version string for the TUI welcome page,
// e.g. "v0.1.0 (abc1234)".
func displayVersion() string {
	v := "v" + appVersion
	if appCommit != "" && appCommit != "none" {
		v += " (" + appCommit + ")"
	}
	return v
}

func newVersionCmd(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "parley %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	// CLI flags override config values
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if storeDirFlag != "" {
		cfg.Storage.Dir = storeDirFlag
	}
	return cfg, nil
}

// buildProvider creates a Provider instance based on configuration.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)

	apiKey := pc.APIKey
	if apiKey == "" && name != "ollama" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY (or a .env file)\n"+
				"  - run: parley init",
			name, name,
		)
	}

	// Determine model: CLI flag > config file > provider defaults YAML
	model := cfg.Model
	if model == "" {
		model = pc.Model
	}
	if model == "" {
		model = config.KnownProviderModels[name]
	}

	headers := make(map[string]string)
	for k, v := range config.KnownProviderHeaders[name] {
		headers[k] = v
	}
	for k, v := range pc.Headers {
		headers[k] = v
	}

	baseURL := pc.BaseURL
	if baseURL == "" {
		baseURL = config.KnownProviderBaseURLs[name]
	}

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(apiKey, baseURL, model, headers), nil
	default:
		// All other providers use the OpenAI-compatible API.
		if baseURL == "" {
			return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
		}
		return provider.NewOpenAIProvider(apiKey, baseURL, model, headers), nil
	}
}

// app bundles what every command that touches conversations needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    session.Store
	provider provider.Provider // nil unless requested

	logFile io.Closer
}

// openApp loads config, opens the log file and the conversation store and,
// when withProvider is set, builds the provider.
func openApp(withProvider bool) (*app, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	logger, logFile, err := cfg.OpenLogger()
	if err != nil {
		// Logging is best effort; carry on without a file.
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		logger = slog.New(slog.DiscardHandler)
	} else {
		a.logFile = logFile
	}
	a.logger = logger

	if withProvider {
		if a.provider, err = buildProvider(cfg); err != nil {
			a.Close()
			return nil, err
		}
		if cfg.Model == "" {
			cfg.Model = a.provider.DefaultModel()
		}
	}

	dir, err := cfg.StorageDir()
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.store, err = session.Open(cfg.Storage.Backend, dir, logger); err != nil {
		a.Close()
		return nil, fmt.Errorf("open conversation store: %w", err)
	}
	logger.Debug("store opened", "backend", cfg.Storage.Backend, "dir", dir)
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", "error", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
