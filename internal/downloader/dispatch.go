package downloader

import (
	"context"
	"fmt"
	"iter"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FailedLink records a link whose fetch returned an error.
type FailedLink struct {
	URL string
	Err error
}

// Summary collects the outcome of a Dispatch.
type Summary struct {
	Stored  int // links that reached DONE with a file in place
	Skipped int // links skipped: no filename, or already in the object store
	Failed  []FailedLink
	Results []*Result
}

// Dispatch fetches every link, using up to workers concurrent fetches. One
// link failing never stops the others. With workers <= 1 links are fetched
// one after another on the calling goroutine. Once ctx is done no new links
// are started.
func (f *Fetcher) Dispatch(ctx context.Context, links iter.Seq[string], workers int) *Summary {
	var (
		mu      sync.Mutex
		summary = &Summary{}
	)

	run := func(link string) {
		res, err := f.safeFetch(ctx, link)

		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			f.logger.Error("fetch failed", zap.String("url", link), zap.Error(err))
			summary.Failed = append(summary.Failed, FailedLink{URL: link, Err: err})
		case res == nil || res.SkippedRemote:
			summary.Skipped++
		default:
			summary.Stored++
		}
		if res != nil {
			summary.Results = append(summary.Results, res)
		}
	}

	if workers <= 1 {
		for link := range links {
			if ctx.Err() != nil {
				break
			}
			run(link)
		}
		return summary
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for link := range links {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			run(link)
			return nil
		})
	}
	g.Wait()

	return summary
}

// safeFetch turns a panic in one fetch into an error for that link.
func (f *Fetcher) safeFetch(ctx context.Context, link string) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("panic in fetch",
				zap.String("url", link),
				zap.Any("recover", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return f.Fetch(ctx, link)
}
