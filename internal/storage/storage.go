// Package storage defines the destination contract the sync engine writes through.
//
// A [Storage] hands out date-keyed [Album] containers. Albums build [PendingItem] descriptors
// that can check for an existing artifact (Merge) or stream new content (SaveContent), and
// resolve [ExistingItem] handles for deletion.
//
// Implementations live in the filesystem, photostation and objectstore subpackages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/desertthunder/phx/internal/models"
)

var (
	// ErrNotFound is returned when an album or item does not exist and was not to be created.
	ErrNotFound = errors.New("not found")
	// ErrStorage marks every backend persistence failure.
	ErrStorage = errors.New("storage error")
)

// Wrap tags err as a storage failure for op on target.
func Wrap(op, target string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s %s: %w", ErrStorage, op, target, err)
}

// SourceReader remembers the first read error of the transfer handle it wraps, so a backend can
// tell a failed download apart from a failed write. Read errors keep their own classification;
// only write-side failures are tagged with [ErrStorage].
type SourceReader struct {
	r   io.Reader
	err error
}

func NewSourceReader(r io.Reader) *SourceReader {
	return &SourceReader{r: r}
}

func (s *SourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

// Err returns the first non-EOF read error, if any.
func (s *SourceReader) Err() error { return s.err }

// IsNotFound reports whether err means the album or item is absent.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// ItemFields describe a destination item before it is persisted.
type ItemFields struct {
	Filename    string
	Kind        models.Kind
	Created     time.Time
	Modified    *time.Time
	Size        int64
	Title       string
	Description string
	Rating      int
	Latitude    *float64
	Longitude   *float64
}

// Storage is a destination root.
type Storage interface {
	// Album resolves the container at path, creating it when create is true.
	// With create false a missing container yields [ErrNotFound].
	Album(ctx context.Context, path string, create bool) (Album, error)
	// Name identifies the backend in logs and run history.
	Name() string
	String() string
}

// Album is a date-keyed container.
type Album interface {
	Path() string
	// Item looks up a previously synced item by destination filename.
	Item(ctx context.Context, filename string) (ExistingItem, error)
	// CreateItem builds a descriptor without persisting anything.
	CreateItem(fields ItemFields) PendingItem
}

// PendingItem is the sync target for one remote item and rendition.
type PendingItem interface {
	// Merge reports whether the item already exists. It never modifies the destination.
	Merge(ctx context.Context) (bool, error)
	// SaveContent streams r to the destination, then stamps it with the item's creation time.
	SaveContent(ctx context.Context, r io.Reader) error
	Fields() ItemFields
}

// ExistingItem is a previously synced artifact.
type ExistingItem interface {
	// Delete removes the artifact. Deleting an absent artifact is not an error.
	Delete(ctx context.Context) error
	Name() string
}
