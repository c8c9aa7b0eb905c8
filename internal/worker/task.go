package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/cwygoda/papers/internal/domain"
)

// Task discovers and downloads one year's papers, strictly in sequence.
type Task struct {
	Year     domain.Year
	IndexURL string
	Prefix   string
	Dir      string

	discoverer domain.LinkDiscoverer
	downloader domain.Downloader
	progress   domain.ProgressReporter
	logger     *slog.Logger
}

// NewTask creates a task for year writing into dest/<label>.
func NewTask(year domain.Year, category domain.Category, indexBase, dest string,
	discoverer domain.LinkDiscoverer, downloader domain.Downloader,
	progress domain.ProgressReporter, logger *slog.Logger) *Task {
	return &Task{
		Year:       year,
		IndexURL:   year.IndexURL(indexBase),
		Prefix:     domain.PrefixFor(year, category),
		Dir:        filepath.Join(dest, year.Label()),
		discoverer: discoverer,
		downloader: downloader,
		progress:   progress,
		logger:     logger.With("year", int(year)),
	}
}

// Run executes the task to a terminal state. The returned error, if any, is
// a *domain.YearError.
func (t *Task) Run(ctx context.Context) (domain.YearResult, error) {
	res := domain.YearResult{Year: t.Year, Label: t.Year.Label(), State: domain.StatePending}

	t.progress.SetState(domain.StateDiscovering)
	t.progress.SetMessage("waiting...")

	links, err := t.discoverer.Discover(ctx, t.IndexURL, t.Prefix)
	if err != nil {
		return t.fail(res, t.IndexURL, err)
	}
	t.logger.Debug("discovered links", "url", t.IndexURL, "prefix", t.Prefix, "count", len(links))

	t.progress.SetState(domain.StateDownloading)
	for i, link := range links {
		t.progress.SetStep(i+1, len(links))

		n, err := t.downloader.Download(ctx, link, t.Dir, t.progress)
		res.Bytes += n
		if err != nil {
			return t.fail(res, link, err)
		}
		res.Files++
		t.logger.Debug("downloaded", "url", link, "bytes", n)

		t.progress.Reset()
	}

	res.State = domain.StateDone
	t.progress.Finish(fmt.Sprintf("done: %d file(s), %s", res.Files, humanize.Bytes(uint64(res.Bytes))))
	return res, nil
}

func (t *Task) fail(res domain.YearResult, url string, err error) (domain.YearResult, error) {
	yerr := &domain.YearError{Year: t.Year, URL: url, Err: err}
	res.State = domain.StateFailed
	res.URL = url
	res.Error = err.Error()
	t.progress.Fail(yerr)
	return res, yerr
}
