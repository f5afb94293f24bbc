package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/moji/internal/aggregate"
	"github.com/pders01/moji/internal/config"
	"github.com/pders01/moji/internal/debuglog"
	"github.com/pders01/moji/internal/fault"
	"github.com/pders01/moji/internal/grid"
	"github.com/pders01/moji/internal/media"
	"github.com/pders01/moji/internal/window"
)

type grabOptions struct {
	rows    int
	pages   int
	timeout time.Duration
}

var (
	grabOpts    grabOptions
	grabVerbose bool
)

var grabCmd = &cobra.Command{
	Use:   "grab <keyword>",
	Short: "Run the grid pipeline without a terminal UI and report each image",
	Long: `grab drives the same controller the UI uses: it searches, materialises the
first --rows rows, downloads them through the scheduler and byte cache and
prints one line per image plus the batched error reports.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if grabVerbose {
			debuglog.SetOutput(debuglog.LevelDebug, os.Stderr)
		}
		d, err := newDeps(cfg, true)
		if err != nil {
			return err
		}
		defer d.Close()

		sum, err := runGrab(cmd.Context(), cfg, d, args[0], grabOpts, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sum)
		return nil
	},
}

func init() {
	grabCmd.Flags().IntVar(&grabOpts.rows, "rows", 3, "Grid rows to materialise")
	grabCmd.Flags().IntVar(&grabOpts.pages, "pages", 1, "Result pages to load")
	grabCmd.Flags().DurationVar(&grabOpts.timeout, "timeout", time.Minute, "Give up after this long")
	grabCmd.Flags().BoolVarP(&grabVerbose, "verbose", "v", false, "Log to stderr at debug level")
	rootCmd.AddCommand(grabCmd)
}

// lineRenderer prints controller callbacks as text.
type lineRenderer struct {
	out     io.Writer
	ready   int
	failed  int
	batches int
	last    grid.Status
}

func (r *lineRenderer) VisibleSlice(start int, urls []string) {
	if len(urls) > 0 {
		fmt.Fprintf(r.out, "window [%d, %d)\n", start, start+len(urls))
	}
}

func (r *lineRenderer) ImageReady(index int, data []byte, animated bool) {
	r.ready++
	kind := string(media.Sniff(data))
	if kind == "" {
		kind = "?"
	}
	if animated {
		kind += "*"
	}
	fmt.Fprintf(r.out, "%4d  ok    %-5s %9d B\n", index, kind, len(data))
}

func (r *lineRenderer) ImageFailed(index int, err *fault.Error) {
	r.failed++
	fmt.Fprintf(r.out, "%4d  fail  %-10s %v\n", index, err.Code(), err)
}

func (r *lineRenderer) ErrorBatch(rep aggregate.Report) {
	r.batches++
	parts := make([]string, 0, len(rep.Summaries))
	for _, s := range rep.Summaries {
		parts = append(parts, fmt.Sprintf("%s×%d %v", s.Code, s.Count, s.Indices))
	}
	fmt.Fprintf(r.out, "errors: %s\n", strings.Join(parts, ", "))
}

func (r *lineRenderer) StatusChanged(st grid.Status) {
	r.last = st
	if st.Text != "" {
		fmt.Fprintf(r.out, "status: %s\n", st.Text)
	}
}

type grabSummary struct {
	urls     int
	ready    int
	failed   int
	batches  int
	status   grid.Status
	searches int64
	fetches  int64
	cache    string
}

func (s grabSummary) String() string {
	return fmt.Sprintf("%d urls • %d loaded • %d failed • %d error batches • %d search requests • %d image requests • cache %s",
		s.urls, s.ready, s.failed, s.batches, s.searches, s.fetches, s.cache)
}

// runGrab searches keyword, waits until every materialised slot settled and
// pages are loaded, then flushes the pending error batch.
func runGrab(ctx context.Context, cfg *config.Config, d *deps, keyword string, opts grabOptions, out io.Writer) (grabSummary, error) {
	if opts.rows < 1 {
		opts.rows = 1
	}
	if opts.pages < 1 {
		opts.pages = 1
	}
	if opts.timeout <= 0 {
		opts.timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	win := window.New(cfg.Window)
	r := &lineRenderer{out: out}
	gridOpts := []grid.Option{
		grid.WithViewport(opts.rows * win.RowHeight),
		// No ticker: non-severe failures are reported in one batch at the end.
		grid.WithErrorReports(0, cfg.Errors.SampleSize),
	}
	if d.history != nil {
		gridOpts = append(gridOpts, grid.WithSearchRecorder(func(kw string, urls []string) {
			if err := d.history.Record(kw, urls); err != nil {
				debuglog.Warnf("recording %q: %v", kw, err)
			}
		}))
	}
	ctrl := grid.New(d.searcher, d.scheduler, r, win, gridOpts...)
	defer ctrl.Close()

	ctrl.Search(keyword)
	if ctrl.Keyword() == "" {
		return grabSummary{}, fmt.Errorf("keyword is empty")
	}

	for {
		select {
		case <-ctrl.Mailbox().Notify():
			ctrl.Dispatch()
		case <-ctx.Done():
			return grabSummary{}, fmt.Errorf("grab %q: %w", keyword, ctx.Err())
		}
		if !ctrl.Settled() {
			continue
		}
		st := ctrl.Status()
		if st.Kind == grid.StatusReady && st.Page < opts.pages && !ctrl.Exhausted() {
			ctrl.Scroll(win.MaxScroll(ctrl.Len(), ctrl.Viewport()))
			ctrl.LoadMore()
			continue
		}
		break
	}

	ctrl.FlushErrors()
	ctrl.Dispatch()

	stats := d.images.Stats()
	return grabSummary{
		urls:     ctrl.Len(),
		ready:    r.ready,
		failed:   r.failed,
		batches:  r.batches,
		status:   r.last,
		searches: d.searcher.Requests(),
		fetches:  d.scheduler.Requests(),
		cache:    fmt.Sprintf("%d entries / %d B, %.0f%% hits", stats.Entries, stats.Bytes, stats.HitRate()*100),
	}, nil
}
