package main

import (
	"context"
	"fmt"
	"io"
	"iter"
	"regexp"

	"go.uber.org/zap"

	"github.com/ligustah/dars/internal/catalog"
	"github.com/ligustah/dars/internal/downloader"
	darshttp "github.com/ligustah/dars/internal/http"
	"github.com/ligustah/dars/internal/metrics"
	"github.com/ligustah/dars/internal/progress"
	"github.com/ligustah/dars/internal/store"
)

// filter returns the link filter configured with --filter.
func (a *app) filter() catalog.Filter {
	if a.cfg.Filter == "" {
		return nil
	}
	// Validate already compiled it once.
	return catalog.Regexp(regexp.MustCompile(a.cfg.Filter))
}

// openStore opens the configured bucket, or returns nil when uploads are off.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	if a.cfg.Bucket == "" {
		return nil, nil
	}
	st, err := store.Open(ctx, a.cfg.Bucket, a.cfg.ObjectStorePrefix)
	if err != nil {
		return nil, exitWith(ExitStorageError, err)
	}
	return st, nil
}

// batch is one set of links to fetch. Total is zero when the number of links
// is not known up front.
type batch struct {
	links  iter.Seq[string]
	source string
	total  int
}

// fetchAll downloads every link and reports the outcome through the exit code.
// Progress output, when enabled, goes to progressOut.
func (a *app) fetchAll(ctx context.Context, client *darshttp.Client, b batch, progressOut io.Writer) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	m := metrics.New("dars")

	var reporter *progress.Reporter
	if a.cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalFiles: b.total,
			Workers:    a.cfg.Workers,
			Output:     progressOut,
			Source:     b.source,
		})
		reporter.Start()
	}

	f := downloader.NewFetcher(client, downloader.Options{
		DownloadDir: a.cfg.DownloadDir,
		Store:       st,
		Progress:    reporter,
		Metrics:     m,
		Logger:      a.logger,
	})

	summary := f.Dispatch(ctx, b.links, a.cfg.Workers)

	if reporter != nil {
		reporter.Stop()
	}

	a.logger.Info("session complete",
		zap.Int("stored", summary.Stored),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", len(summary.Failed)),
	)

	if a.metricsFile != "" {
		if err := m.WriteFile(a.metricsFile); err != nil {
			a.logger.Warn("cannot write metrics", zap.Error(err))
		}
	}

	if ctx.Err() != nil {
		return exitWith(ExitGeneralError, fmt.Errorf("interrupted: %w", ctx.Err()))
	}
	if n := len(summary.Failed); n > 0 {
		return exitWith(ExitFetchFailed, fmt.Errorf("%d of %d links failed, first: %s: %w",
			n, n+summary.Stored+summary.Skipped, summary.Failed[0].URL, summary.Failed[0].Err))
	}
	return nil
}
