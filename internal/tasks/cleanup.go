package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/desertthunder/phx/internal/formatter"
	"github.com/desertthunder/phx/internal/storage"
)

// cleanup deletes previously synced items that now sit in the remote trash.
//
// Albums are resolved without creation, so dates that were never synced are skipped. The pass
// is not retried: a remote failure ends it early and is logged, while storage failures abort
// the run like they do in the main loop.
func (e *SyncEngine) cleanup(ctx context.Context, p *pass) error {
	e.sendProgress(p.progress, cleanupStartUpdate())

	trash, err := e.source.RecentlyDeleted(ctx)
	if err != nil {
		e.logger.Warn("could not open recently deleted", "err", err)
		return nil
	}

	it := trash.Iterator()
	for step := 1; ; step++ {
		item, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("cleanup interrupted", "err", err)
			e.sendProgress(p.progress, cleanupUpdate(step, *p.result, fmt.Sprintf("Cleanup stopped: %v", err)))
			return nil
		}

		datePath := formatter.DatePath(item.Created)
		album, err := e.storage.Album(ctx, datePath, false)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return e.cleanupFailure(p, item.Filename, err)
		}

		filename := formatter.FilenameWithSize(item.Filename, p.opts.Size)
		existing, err := album.Item(ctx, filename)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return e.cleanupFailure(p, filename, err)
		}

		if err := existing.Delete(ctx); err != nil {
			return e.cleanupFailure(p, filename, err)
		}
		p.result.Deleted++
		e.logger.Info("deleted", "item", filename, "album", datePath)
		e.sendProgress(p.progress, cleanupUpdate(step, *p.result, fmt.Sprintf("Deleted %s/%s", datePath,
			formatter.TruncateMiddle(existing.Name(), filenameWidth))))
	}
}

func (e *SyncEngine) cleanupFailure(p *pass, filename string, err error) error {
	if errors.Is(err, storage.ErrStorage) && !p.opts.KeepGoing {
		return err
	}
	e.logger.Warn("could not delete", "item", filename, "err", err)
	return nil
}
