package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pders01/moji/internal/debuglog"
	"github.com/pders01/moji/internal/grid"
	"github.com/pders01/moji/internal/media"
)

var (
	searchPage    int
	searchVariant string
)

var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Print the image URLs of one result page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		variant, err := media.ParseVariant(searchVariant)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := newDeps(cfg, false)
		if err != nil {
			return err
		}
		defer d.Close()

		n, err := runSearch(cmd.Context(), d.searcher, args[0], searchPage, variant, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "No results for %q on page %d\n", args[0], searchPage)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "Result page (1-based)")
	searchCmd.Flags().StringVar(&searchVariant, "variant", "display", "URL size variant (thumbnail, display, copy, original)")
	rootCmd.AddCommand(searchCmd)
}

// runSearch prints one URL per line, rewritten to variant, and returns how
// many it printed.
func runSearch(ctx context.Context, s grid.Searcher, keyword string, page int, variant media.Variant, out io.Writer) (int, error) {
	if page < 1 {
		return 0, fmt.Errorf("page must be at least 1, got %d", page)
	}
	res, err := s.Search(ctx, keyword, page)
	if err != nil {
		return 0, fmt.Errorf("searching %q: %w", keyword, err)
	}
	for _, u := range res.URLs {
		fmt.Fprintln(out, media.VariantURL(u, variant))
	}
	debuglog.WithFields(debuglog.Fields{"component": "cli", "source": res.Source}).
		Infof("search %q page %d: %d urls (cached=%t skipped=%d)", keyword, page, len(res.URLs), res.Cached, res.Skipped)
	return len(res.URLs), nil
}
