package services

import (
	"context"
	"errors"
	"io"

	"github.com/desertthunder/phx/internal/models"
)

// ErrNoURL is returned by [Source.Download] when a version carries no transfer endpoint.
var ErrNoURL = errors.New("no download URL")

// Source is an authenticated remote media library.
type Source interface {
	// All returns the main library collection, newest-created item first.
	All(ctx context.Context) (Collection, error)

	// RecentlyDeleted returns the trash collection used by destructive cleanup.
	RecentlyDeleted(ctx context.Context) (Collection, error)

	// Download opens a transfer handle for v. The caller closes it.
	Download(ctx context.Context, v models.Version) (io.ReadCloser, error)
}

// Collection is a remote, paginated sequence of items.
type Collection interface {
	Name() string

	// Len reports the number of items in the collection.
	Len(ctx context.Context) (int, error)

	// Iterator starts a fresh traversal from the newest item.
	Iterator() Iterator
}

// Iterator walks a [Collection]. Next returns [io.EOF] once the collection is exhausted.
type Iterator interface {
	Next(ctx context.Context) (*models.RemoteItem, error)
}

// Limit wraps it so that at most n items are yielded.
func Limit(it Iterator, n int) Iterator {
	return &limited{it: it, left: n}
}

type limited struct {
	it   Iterator
	left int
}

func (l *limited) Next(ctx context.Context) (*models.RemoteItem, error) {
	if l.left <= 0 {
		return nil, io.EOF
	}
	item, err := l.it.Next(ctx)
	if err != nil {
		return nil, err
	}
	l.left--
	return item, nil
}
