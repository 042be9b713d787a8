package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ligustah/dars/internal/dedup"
	darshttp "github.com/ligustah/dars/internal/http"
	"github.com/ligustah/dars/internal/metrics"
	"github.com/ligustah/dars/internal/progress"
	"github.com/ligustah/dars/internal/store"
)

// State is a step of fetching one link.
type State int

const (
	StateResolvingName State = iota
	StateDeduplicating
	StateCheckRemoteExists
	StateCheckLocalExists
	StateDownloading
	StateUploading
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateResolvingName:     "RESOLVING_NAME",
	StateDeduplicating:     "DEDUPLICATING",
	StateCheckRemoteExists: "CHECK_REMOTE_EXISTS",
	StateCheckLocalExists:  "CHECK_LOCAL_EXISTS",
	StateDownloading:       "DOWNLOADING",
	StateUploading:         "UPLOADING",
	StateDone:              "DONE",
	StateAborted:           "ABORTED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// ErrNoFilename is returned when a Content-Disposition header carries no
// usable filename.
var ErrNoFilename = errors.New("downloader: no filename in Content-Disposition")

// Options configures the fetcher.
type Options struct {
	// DownloadDir is where archives are written. Created on demand.
	// Default: current directory
	DownloadDir string

	// Store enables uploads. Nil keeps files local only.
	Store *store.Store

	// Index deduplicates filenames. Nil creates a new one for this fetcher.
	Index *dedup.Index

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Metrics is optional.
	Metrics *metrics.Metrics

	Logger *zap.Logger
}

// Result describes a link that reached DONE.
type Result struct {
	URL  string
	Name string // deduplicated filename
	Path string // local path
	Key  string // object key, empty without a store
	Size int64

	Downloaded    bool // fetched over the network in this run
	Uploaded      bool // written to the object store in this run
	SkippedRemote bool // object already existed, nothing was done
}

// Dest is where the file ended up: the object key when uploading, else the
// local path.
func (r *Result) Dest() string {
	if r.Key != "" {
		return r.Key
	}
	return r.Path
}

// Fetcher downloads archive links and optionally stores them in object
// storage. It is safe for concurrent use.
type Fetcher struct {
	client *darshttp.Client
	opts   Options
	index  *dedup.Index
	logger *zap.Logger
}

// NewFetcher creates a fetcher that issues requests through client.
func NewFetcher(client *darshttp.Client, opts Options) *Fetcher {
	if opts.DownloadDir == "" {
		opts.DownloadDir = "."
	}
	index := opts.Index
	if index == nil {
		index = dedup.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		client: client,
		opts:   opts,
		index:  index,
		logger: logger.Named("downloader"),
	}
}

// Index returns the filename index shared by every Fetch of this fetcher.
func (f *Fetcher) Index() *dedup.Index {
	return f.index
}

// Fetch runs one link to completion. It returns (nil, nil) when the link is
// skipped because its name cannot be resolved. Transport failures and
// unexpected statuses on download are returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, link string) (*Result, error) {
	done := f.opts.Metrics.Start()
	defer done()

	if f.opts.Progress != nil {
		f.opts.Progress.FileStarted()
	}

	res, err := f.fetch(ctx, link)

	switch {
	case err != nil:
		f.opts.Metrics.File(metrics.OutcomeFailed)
		if f.opts.Progress != nil {
			f.opts.Progress.FileFailed()
		}
	case res == nil:
		f.opts.Metrics.File(metrics.OutcomeSkippedName)
		if f.opts.Progress != nil {
			f.opts.Progress.FileSkipped()
		}
	case res.SkippedRemote:
		f.opts.Metrics.File(metrics.OutcomeSkippedRemote)
		if f.opts.Progress != nil {
			f.opts.Progress.FileSkipped()
		}
	default:
		f.opts.Metrics.File(metrics.OutcomeStored)
		if f.opts.Progress != nil {
			f.opts.Progress.FileCompleted(res.Size)
		}
	}

	return res, err
}

func (f *Fetcher) fetch(ctx context.Context, link string) (*Result, error) {
	log := f.logger.With(zap.String("url", link))
	state := StateResolvingName

	abort := func(err error) (*Result, error) {
		log.Debug("fetch aborted", zap.Stringer("state", state), zap.Error(err))
		return nil, err
	}

	head, err := f.client.Head(ctx, link)
	if err != nil {
		return abort(fmt.Errorf("resolve name: %w", err))
	}
	if err := darshttp.CheckStatus(head, http.StatusOK); err != nil {
		log.Error("cannot resolve filename", zap.Stringer("state", StateAborted), zap.Error(err))
		return nil, nil
	}
	filename, err := FilenameFromHeader(head.Header.Get("Content-Disposition"))
	if err != nil {
		log.Error("cannot resolve filename", zap.Stringer("state", StateAborted), zap.Error(err))
		return nil, nil
	}

	state = StateDeduplicating
	name := f.index.Resolve(filename)
	res := &Result{
		URL:  link,
		Name: name,
		Path: filepath.Join(f.opts.DownloadDir, name),
	}
	if f.opts.Store != nil {
		res.Key = f.opts.Store.Key(name)
	}
	log = log.With(zap.String("name", name))

	if f.opts.Store != nil {
		state = StateCheckRemoteExists
		exists, err := f.opts.Store.Exists(ctx, res.Key)
		if err != nil {
			return abort(err)
		}
		if exists {
			log.Info("already stored", zap.String("dest", res.Key))
			res.SkippedRemote = true
			return res, nil
		}
	}

	state = StateCheckLocalExists
	info, err := os.Stat(res.Path)
	switch {
	case err == nil:
		log.Debug("local copy exists, not downloading", zap.String("path", res.Path))
		res.Size = info.Size()
	case errors.Is(err, os.ErrNotExist):
		state = StateDownloading
		n, err := f.download(ctx, link, res.Path)
		if err != nil {
			return abort(err)
		}
		res.Size = n
		res.Downloaded = true
		f.opts.Metrics.Downloaded(n)
	default:
		return abort(fmt.Errorf("stat %s: %w", res.Path, err))
	}

	if f.opts.Store != nil {
		state = StateUploading
		n, err := f.opts.Store.UploadFile(ctx, res.Key, res.Path)
		if err != nil {
			return abort(err)
		}
		res.Uploaded = true
		f.opts.Metrics.Uploaded(n)
	}

	log.Info("file stored",
		zap.Int64("size", res.Size),
		zap.String("dest", res.Dest()),
		zap.Bool("downloaded", res.Downloaded),
		zap.Bool("uploaded", res.Uploaded),
	)
	return res, nil
}

// download streams link into dest. The body goes to dest.part first, so a
// failed download never leaves a file at dest.
func (f *Fetcher) download(ctx context.Context, link, dest string) (int64, error) {
	resp, err := f.client.Get(ctx, link)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if err := darshttp.CheckStatus(resp, http.StatusOK); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}

	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", part, err)
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return 0, fmt.Errorf("write %s: %w", dest, err)
	}

	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return 0, fmt.Errorf("rename %s: %w", part, err)
	}
	return n, nil
}

// FilenameFromHeader extracts the base filename from a Content-Disposition
// header value. An RFC 2231 filename* parameter takes precedence.
func FilenameFromHeader(cd string) (string, error) {
	if strings.TrimSpace(cd) == "" {
		return "", ErrNoFilename
	}

	var raw string
	if _, params, err := mime.ParseMediaType(cd); err == nil {
		raw = params["filename"]
	} else if raw = looseFilename(cd); raw == "" {
		return "", fmt.Errorf("%w: %v", ErrNoFilename, err)
	}

	name := strings.ReplaceAll(raw, `\`, "/")
	name = path.Base(strings.TrimSpace(name))
	switch name {
	case "", ".", "..", "/":
		return "", ErrNoFilename
	}
	return name, nil
}

// looseFilename scans a malformed header for a plain filename= parameter,
// as sent by servers that do not quote names with spaces.
func looseFilename(cd string) string {
	for _, part := range strings.Split(cd, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "filename") {
			continue
		}
		return strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return ""
}
