package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cwygoda/papers/internal/adapter/fetch"
	httpAdapter "github.com/cwygoda/papers/internal/adapter/http"
	"github.com/cwygoda/papers/internal/adapter/progress"
	"github.com/cwygoda/papers/internal/adapter/sqlite"
	"github.com/cwygoda/papers/internal/config"
	"github.com/cwygoda/papers/internal/domain"
	"github.com/cwygoda/papers/internal/worker"
)

const lockFileName = ".papers.lock"

type fetchFlags struct {
	from       string
	group      string
	indexURL   string
	statusAddr string
	noHistory  bool
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	flags := &fetchFlags{}

	cmd := &cobra.Command{
		Use:   "fetch DEST",
		Short: "Download every paper for the selected years into DEST/<label>/",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, ctx, flags, args[0])
		},
	}

	cmd.Flags().StringVar(&flags.from, "from", "", fmt.Sprintf("First calendar year to fetch (%d-%d, default %d)", domain.FirstYear, domain.EndYear-1, domain.DefaultStartYear))
	cmd.Flags().StringVarP(&flags.group, "group", "g", "", "Paper group: y1 or y2")
	cmd.Flags().StringVar(&flags.indexURL, "index-url", "", "Base URL of the paper index")
	cmd.Flags().StringVar(&flags.statusAddr, "status-addr", "", "Serve run status over HTTP on this address")
	cmd.Flags().BoolVar(&flags.noHistory, "no-history", false, "Do not record this run in the history database")

	return cmd
}

func runFetch(cmd *cobra.Command, ctx *commandContext, flags *fetchFlags, destArg string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	start := domain.Year(cfg.Fetch.From)
	if flags.from != "" {
		if start, err = domain.ParseYear(flags.from); err != nil {
			return err
		}
	}

	group := cfg.Fetch.Group
	if flags.group != "" {
		group = flags.group
	}
	if group == "" {
		return errors.New("a paper group is required: pass --group y1 or --group y2")
	}
	category, err := domain.ParseCategory(group)
	if err != nil {
		return err
	}

	indexBase := cfg.Fetch.IndexURL
	if flags.indexURL != "" {
		indexBase = flags.indexURL
	}
	statusAddr := cfg.Status.Addr
	if flags.statusAddr != "" {
		statusAddr = flags.statusAddr
	}

	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	dest, err := config.ExpandPath(destArg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return &domain.IOError{Op: "create destination", Path: dest, Err: err}
	}

	lock := flock.New(filepath.Join(dest, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", dest, err)
	}
	if !locked {
		return fmt.Errorf("another papers process is already writing to %s", dest)
	}
	defer lock.Unlock()

	sink, logOut := selectSink(cmd.ErrOrStderr())
	logger, err := ctx.logger(logOut)
	if err != nil {
		return err
	}
	if sink == nil {
		sink = progress.NewLogSink(logger)
	}
	board := progress.NewBoard(sink)

	var history *domain.HistoryService
	if cfg.History.Enabled && !flags.noHistory {
		repo, err := sqlite.New(cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer repo.Close()
		history = domain.NewHistoryService(repo)

		if recovered, err := history.RecoverStale(cmd.Context(), destLocked(dest)); err != nil {
			logger.Warn("recover stale runs", "error", err)
		} else if recovered > 0 {
			logger.Info("marked interrupted runs", "count", recovered)
		}
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if statusAddr != "" {
		srv := httpAdapter.NewServer(history, board, statusAddr, logger)
		go func() {
			logger.Info("status server listening", "addr", srv.Addr())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("status server shutdown", "error", err)
			}
		}()
	}

	client := fetch.NewClient(
		fetch.Credentials{Username: cfg.Credentials.Username, Password: cfg.Credentials.Password},
		fetch.Options{Timeout: cfg.Timeout(), UserAgent: cfg.Fetch.UserAgent},
	)
	orch := worker.New(fetch.NewDiscoverer(client), fetch.NewDownloader(client), board, worker.Options{
		Category:  category,
		IndexBase: indexBase,
		Dest:      dest,
		History:   history,
		Logger:    logger,
	})

	years := domain.YearRange(start)
	logger.Info("fetching papers",
		"group", category,
		"from", start,
		"to", domain.EndYear-1,
		"dest", dest,
	)

	board.Start()
	result := orch.Run(runCtx, years)
	board.Stop()

	logSummary(logger, result)
	if result.Failed() {
		return result.Err
	}
	return nil
}

// destLocked treats a running run as live while another process holds the
// lock on its destination. This process holds the lock on own, so runs there
// are stale.
func destLocked(own string) domain.RunLiveness {
	return func(run domain.Run) bool {
		if filepath.Clean(run.Dest) == filepath.Clean(own) {
			return false
		}
		lock := flock.New(filepath.Join(run.Dest, lockFileName))
		locked, err := lock.TryLock()
		if err != nil {
			return false
		}
		if locked {
			lock.Unlock()
			return false
		}
		return true
	}
}

// selectSink draws trackers when out is a terminal. Otherwise it returns a
// nil sink so the caller falls back to log lines.
func selectSink(out io.Writer) (progress.Sink, io.Writer) {
	f, ok := out.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return nil, out
	}
	ts := progress.NewTerminalSink(f)
	return ts, ts.LogWriter()
}

func logSummary(logger *slog.Logger, result worker.RunResult) {
	var files, failed int
	var bytes int64
	for _, y := range result.Years {
		files += y.Files
		bytes += y.Bytes
		if y.State == domain.StateFailed {
			failed++
		}
	}
	attrs := []any{
		"years", len(result.Years),
		"failed", failed,
		"files", files,
		"size", humanize.Bytes(uint64(bytes)),
	}
	if result.RunID != "" {
		attrs = append(attrs, "run_id", result.RunID)
	}
	if result.Failed() {
		logger.Error("fetch finished with errors", attrs...)
		return
	}
	logger.Info("fetch finished", attrs...)
}
