package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pders01/moji/internal/config"
	"github.com/pders01/moji/internal/debuglog"
	"github.com/pders01/moji/internal/tui"
)

// Version is the version of the application, set at build time
var Version = "dev"

var (
	configPath string
	logLevel   string
	dbPath     string
	sourceName string
)

var rootCmd = &cobra.Command{
	Use:   "moji [keyword]",
	Short: "Browse image search results as a scrolling grid",
	Long: `moji searches an image endpoint for a keyword and shows the results as a
virtualised grid: only visible rows are downloaded, failures are batched into
error reports and every search is remembered for suggestions.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := newDeps(cfg, true)
		if err != nil {
			return err
		}
		defer d.Close()

		opts := []tui.Option{tui.WithHistory(d.history)}
		if len(args) == 1 {
			opts = append(opts, tui.WithInitialSearch(args[0]))
		}
		app := tui.NewApp(cfg, d.searcher, d.scheduler, opts...)
		defer app.Close()

		p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running ui: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, off)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to history database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&sourceName, "source", "", "Search source (container, feed)")
}

// loadConfig applies flag overrides, validates and starts logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if sourceName != "" {
		cfg.Search.Source = sourceName
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := debuglog.Setup(debuglog.ParseLogLevel(cfg.Log.Level), cfg.Log.File); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	debuglog.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
