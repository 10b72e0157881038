package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/phx/internal/formatter"
	"github.com/desertthunder/phx/internal/metadata"
	"github.com/desertthunder/phx/internal/models"
	"github.com/desertthunder/phx/internal/pacer"
	"github.com/desertthunder/phx/internal/services"
	"github.com/desertthunder/phx/internal/shared"
	"github.com/desertthunder/phx/internal/storage"
)

const (
	filenameWidth = 24
	pathWidth     = 72
)

// photoExts are downloaded even when videos are excluded.
var photoExts = map[string]bool{"png": true, "jpg": true, "jpeg": true}

// Options control a single sync pass.
type Options struct {
	Size           models.Rendition
	Recent         int // only consider the first N items; 0 disables
	UntilFound     int // stop after N consecutive already-present items; 0 disables
	DownloadVideos bool
	ForceSize      bool // never fall back to the original rendition
	AutoDelete     bool
	DryRun         bool
	KeepGoing      bool // record storage errors per item instead of aborting
}

// Validate rejects contradictory traversal modes.
func (o Options) Validate() error {
	if _, err := models.ParseRendition(string(o.Size)); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}
	if o.Recent < 0 || o.UntilFound < 0 {
		return fmt.Errorf("%w: recent and until-found must not be negative", shared.ErrInvalidFlag)
	}
	if o.Recent > 0 && o.UntilFound > 0 {
		return fmt.Errorf("%w: recent and until-found cannot be combined", shared.ErrInvalidFlag)
	}
	return nil
}

// Mode names the traversal mode for run history.
func (o Options) Mode() string {
	switch {
	case o.Recent > 0:
		return fmt.Sprintf("recent:%d", o.Recent)
	case o.UntilFound > 0:
		return fmt.Sprintf("until-found:%d", o.UntilFound)
	default:
		return "all"
	}
}

// RunResult summarizes a pass.
type RunResult struct {
	Total       int // -1 when the collection length is not known up front
	Processed   int
	Transferred int
	Existing    int
	Skipped     int
	Unresolved  int
	Failed      int
	Printed     int
	Deleted     int
	Bytes       int64
	Stopped     bool // ended early by the until-found threshold
}

// Counts converts the result to the persisted run counters.
func (r RunResult) Counts() models.RunCounts {
	return models.RunCounts{
		Total:       r.Total,
		Processed:   r.Processed,
		Transferred: r.Transferred,
		Existing:    r.Existing,
		Skipped:     r.Skipped,
		Unresolved:  r.Unresolved,
		Failed:      r.Failed,
		Deleted:     r.Deleted,
		Bytes:       r.Bytes,
	}
}

// FailureRecorder persists items that could not be processed. Errors are logged and ignored.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, filename, reason string) error
}

// EngineOpts carries the collaborators of a [SyncEngine]. Every field is optional.
type EngineOpts struct {
	Pacer    *pacer.Pacer
	Logger   *log.Logger
	Output   io.Writer // receives one filename per line in dry-run mode
	Recorder FailureRecorder
}

// SyncEngine walks a remote collection and mirrors it into a storage backend.
//
// Processing is strictly sequential: one item is decided and transferred before the next is read.
type SyncEngine struct {
	source   services.Source
	storage  storage.Storage
	pacer    *pacer.Pacer
	logger   *log.Logger
	output   io.Writer
	recorder FailureRecorder
}

// NewSyncEngine wires source and dest together.
func NewSyncEngine(source services.Source, dest storage.Storage, opts EngineOpts) *SyncEngine {
	e := &SyncEngine{
		source:   source,
		storage:  dest,
		pacer:    opts.Pacer,
		logger:   opts.Logger,
		output:   opts.Output,
		recorder: opts.Recorder,
	}
	if e.pacer == nil {
		e.pacer = pacer.New()
	}
	if e.logger == nil {
		e.logger = shared.NewLogger(io.Discard)
	}
	if e.output == nil {
		e.output = io.Discard
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
func (e *SyncEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeExisting
	outcomePrinted
	outcomeTransferred
	outcomeUnresolved
	outcomeFailed
)

// pass is the engine-local state of one run.
type pass struct {
	opts        Options
	result      *RunResult
	progress    chan<- ProgressUpdate
	consecutive int
}

// Run performs one pass over the main collection followed by the optional cleanup pass.
//
// Until-found mode relies on the source yielding items newest first, which [services.Source]
// guarantees. The returned result is never nil, even when an error aborts the run.
func (e *SyncEngine) Run(ctx context.Context, opts Options, progress chan<- ProgressUpdate) (*RunResult, error) {
	result := &RunResult{Total: -1}
	if opts.Size == "" {
		opts.Size = models.Original
	}
	if err := opts.Validate(); err != nil {
		return result, err
	}
	if e.source == nil || e.storage == nil {
		return result, fmt.Errorf("%w: source and storage are required", shared.ErrServiceUnavailable)
	}

	p := &pass{opts: opts, result: result, progress: progress}

	e.sendProgress(progress, enumerateUpdate())
	it, err := e.enumerate(ctx, p)
	if err != nil {
		return result, err
	}
	e.sendProgress(progress, startUpdate(result.Total, opts, e.storage.String()))
	e.logger.Info("starting sync", "total", result.Total, "size", opts.Size, "mode", opts.Mode(), "dest", e.storage)

	if err := e.loop(ctx, p, it); err != nil {
		return result, err
	}

	if opts.AutoDelete && !opts.DryRun {
		if err := e.cleanup(ctx, p); err != nil {
			return result, err
		}
	}

	e.sendProgress(progress, completeUpdate(*result))
	e.logger.Info("sync finished",
		"processed", result.Processed,
		"transferred", result.Transferred,
		"existing", result.Existing,
		"failed", result.Failed,
		"stopped", result.Stopped,
	)
	return result, nil
}

// enumerate resolves the collection and sizes the pass according to the traversal mode.
func (e *SyncEngine) enumerate(ctx context.Context, p *pass) (services.Iterator, error) {
	var coll services.Collection
	err := e.pacer.Call(ctx, "look up photos", func(ctx context.Context) error {
		var err error
		coll, err = e.source.All(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up photos: %w", err)
	}

	it := coll.Iterator()
	if p.opts.UntilFound > 0 {
		return it, nil
	}

	var n int
	err = e.pacer.Call(ctx, "count photos", func(ctx context.Context) error {
		var err error
		n, err = coll.Len(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count photos: %w", err)
	}

	p.result.Total = n
	if p.opts.Recent > 0 {
		p.result.Total = min(n, p.opts.Recent)
		it = services.Limit(it, p.opts.Recent)
	}
	return it, nil
}

func (e *SyncEngine) loop(ctx context.Context, p *pass, it services.Iterator) error {
	for {
		var item *models.RemoteItem
		err := e.pacer.Call(ctx, "list photos", func(ctx context.Context) error {
			var err error
			item, err = it.Next(ctx)
			return err
		})
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list photos: %w", err)
		}

		p.result.Processed++
		if err := e.processItem(ctx, p, item); err != nil {
			return err
		}

		if p.opts.UntilFound > 0 && p.consecutive >= p.opts.UntilFound {
			p.result.Stopped = true
			e.sendProgress(p.progress, stopUpdate(*p.result, p.opts.UntilFound))
			e.logger.Info("stopping early", "consecutive", p.consecutive)
			return nil
		}
	}
}

// processItem runs the per-item decision under the retry envelope and folds its outcome into
// the pass. It only returns an error when the whole run must stop.
func (e *SyncEngine) processItem(ctx context.Context, p *pass, item *models.RemoteItem) error {
	logger := shared.WithLogger(e.logger, "item", item.Filename)

	if !p.opts.DownloadVideos && !photoExts[item.Ext()] {
		p.result.Skipped++
		logger.Debug("skipping non-photo")
		e.sendProgress(p.progress, itemUpdate(*p.result, fmt.Sprintf("Skipping %s, only downloading photos.",
			formatter.TruncateMiddle(item.Filename, filenameWidth))))
		return nil
	}

	var out outcome
	err := e.pacer.Call(ctx, item.Filename, func(ctx context.Context) error {
		var err error
		out, err = e.syncItem(ctx, p, item, p.opts.Size, p.opts.ForceSize)
		return err
	})

	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, storage.ErrStorage) && !p.opts.KeepGoing:
		logger.Error("storage failure", "err", err)
		return err
	case errors.Is(err, shared.ErrSessionExpired):
		return err
	default:
		out = outcomeFailed
		logger.Error("could not process item", "err", err)
		e.sendProgress(p.progress, itemUpdate(*p.result, fmt.Sprintf("Could not process %s! Maybe try again later.", item.Filename)))
		e.recordFailure(ctx, item.Filename, err)
	}

	switch out {
	case outcomeExisting:
		p.result.Existing++
		if p.opts.UntilFound > 0 {
			p.consecutive++
		}
	case outcomePrinted:
		p.result.Printed++
		p.consecutive = 0
	case outcomeTransferred:
		p.result.Transferred++
		p.consecutive = 0
	case outcomeUnresolved:
		p.result.Unresolved++
		p.consecutive = 0
	case outcomeFailed:
		p.result.Failed++
	}
	return nil
}

// syncItem decides and performs the transfer of one item at one rendition. A missing rendition
// recurses once with the original forced, so the fallback never cascades.
func (e *SyncEngine) syncItem(ctx context.Context, p *pass, item *models.RemoteItem, size models.Rendition, force bool) (outcome, error) {
	datePath := formatter.DatePath(item.Created)
	album, err := e.storage.Album(ctx, datePath, !p.opts.DryRun)
	if err != nil && !(p.opts.DryRun && storage.IsNotFound(err)) {
		return outcomeFailed, permanentStorage(err)
	}

	filename := formatter.FilenameWithSize(item.Filename, size)
	shortName := formatter.TruncateMiddle(filename, filenameWidth)
	shortPath := formatter.TruncateMiddle(datePath, pathWidth)
	logger := shared.WithLogger(e.logger, "item", filename, "album", datePath)

	if album == nil {
		return e.print(filename, logger), nil
	}

	md, err := metadata.Extract(item)
	if err != nil {
		logger.Warn("could not decode metadata", "err", err)
	}

	pending := album.CreateItem(storage.ItemFields{
		Filename:    filename,
		Kind:        item.Kind(),
		Created:     item.Created,
		Size:        item.Size,
		Title:       md.Title,
		Description: md.Description,
		Rating:      md.Rating,
		Latitude:    md.Latitude,
		Longitude:   md.Longitude,
	})

	exists, err := pending.Merge(ctx)
	if err != nil {
		return outcomeFailed, permanentStorage(err)
	}
	if exists {
		logger.Debug("already exists")
		e.sendProgress(p.progress, itemUpdate(*p.result, fmt.Sprintf("%s/%s already exists.", shortPath, shortName)))
		return outcomeExisting, nil
	}

	if p.opts.DryRun {
		return e.print(filename, logger), nil
	}

	if !item.HasVersion(size) && !force && size != models.Original {
		logger.Debug("rendition unavailable, falling back to original", "size", size)
		return e.syncItem(ctx, p, item, models.Original, true)
	}

	version, ok := item.TransferVersion(size)
	if !ok || version.URL == "" {
		return e.unresolved(p, item, size, logger), nil
	}

	e.sendProgress(p.progress, itemUpdate(*p.result, fmt.Sprintf("Downloading %s to %s", shortName, shortPath)))
	logger.Debug("downloading", "size", size, "bytes", version.Size)

	var written int64
	err = e.pacer.Call(ctx, "download "+item.Filename, func(ctx context.Context) error {
		rc, err := e.source.Download(ctx, version)
		if err != nil {
			return err
		}
		defer rc.Close()

		cr := &countingReader{r: rc}
		err = pending.SaveContent(ctx, cr)
		written = cr.n
		return permanentStorage(err)
	})

	switch {
	case err == nil:
		p.result.Bytes += written
		logger.Info("downloaded", "bytes", written)
		return outcomeTransferred, nil
	case errors.Is(err, services.ErrNoURL):
		return e.unresolved(p, item, size, logger), nil
	case errors.Is(err, pacer.ErrRetriesExhausted):
		// the inner envelope already retried; the outer one must not start over
		e.sendProgress(p.progress, itemUpdate(*p.result, fmt.Sprintf("Could not download %s! Maybe try again later.", item.Filename)))
		logger.Error("download failed", "err", err)
		e.recordFailure(ctx, item.Filename, err)
		return outcomeFailed, nil
	default:
		return outcomeFailed, err
	}
}

func (e *SyncEngine) print(filename string, logger *log.Logger) outcome {
	fmt.Fprintln(e.output, filename)
	logger.Debug("dry run")
	return outcomePrinted
}

func (e *SyncEngine) unresolved(p *pass, item *models.RemoteItem, size models.Rendition, logger *log.Logger) outcome {
	logger.Warn("no download URL", "size", size)
	e.sendProgress(p.progress, itemUpdate(*p.result, fmt.Sprintf("Could not find URL to download %s for size %s!", item.Filename, size)))
	return outcomeUnresolved
}

func (e *SyncEngine) recordFailure(ctx context.Context, filename string, err error) {
	if e.recorder == nil {
		return
	}
	if rerr := e.recorder.RecordFailure(ctx, filename, err.Error()); rerr != nil {
		e.logger.Debug("could not record failure", "item", filename, "err", rerr)
	}
}

// permanentStorage keeps storage failures out of the retry loop even when the underlying cause
// looks like a network error.
func permanentStorage(err error) error {
	if errors.Is(err, storage.ErrStorage) {
		return pacer.Permanent(err)
	}
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// describe is the one-line summary printed after a pass.
func describe(r RunResult) string {
	parts := []string{
		fmt.Sprintf("%d processed", r.Processed),
		fmt.Sprintf("%d downloaded", r.Transferred),
		fmt.Sprintf("%d already present", r.Existing),
	}
	if r.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", r.Skipped))
	}
	if r.Unresolved > 0 {
		parts = append(parts, fmt.Sprintf("%d without URL", r.Unresolved))
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	if r.Printed > 0 {
		parts = append(parts, fmt.Sprintf("%d listed", r.Printed))
	}
	if r.Deleted > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", r.Deleted))
	}
	return strings.Join(parts, ", ")
}
