package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pders01/moji/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear the keyword history",
}

var historyListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List recent keywords, or suggestions for a prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, svc, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			return printSuggestions(cmd.OutOrStdout(), svc, args[0], historyLimit)
		}
		return printRecent(cmd.OutOrStdout(), svc, historyLimit)
	},
}

var historyForgetCmd = &cobra.Command{
	Use:   "forget <keyword>",
	Short: "Remove one keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, svc, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := svc.Forget(args[0]); err != nil {
			return fmt.Errorf("forgetting %q: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Forgot %q\n", args[0])
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every keyword",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, svc, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := svc.Clear(); err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries")
	historyCmd.AddCommand(historyListCmd, historyForgetCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func printRecent(out io.Writer, svc *history.Service, limit int) error {
	entries, err := svc.Recent(limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No search history yet")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%-24s %4d searches %5d results  %s\n",
			e.Keyword, e.Count, e.Results, e.LastSearched.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func printSuggestions(out io.Writer, svc *history.Service, prefix string, limit int) error {
	sugg, err := svc.Suggest(prefix, limit)
	if err != nil {
		return err
	}
	for _, s := range sugg {
		fmt.Fprintf(out, "%-24s %4d searches  score %.2f\n", s.Keyword, s.Count, s.Score)
	}
	return nil
}
