// Package filesystem stores synced items as files under a local directory tree.
package filesystem

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/phx/internal/storage"
	"github.com/spf13/afero"
)

// partSuffix marks content still being written. Merge never sees it as present.
const partSuffix = ".part"

// Storage is a [storage.Storage] rooted at a directory of an [afero.Fs].
type Storage struct {
	fs        afero.Fs
	root      string
	converter Converter
	logger    *log.Logger
}

// Option configures a [Storage].
type Option func(*Storage)

// WithConverter runs c on every saved item it accepts.
func WithConverter(c Converter) Option {
	return func(s *Storage) { s.converter = c }
}

// WithLogger sets the logger used for conversion diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(s *Storage) { s.logger = l }
}

// New returns a Storage rooted at root on fsys.
func New(fsys afero.Fs, root string, opts ...Option) *Storage {
	s := &Storage{fs: fsys, root: filepath.Clean(root), logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) Name() string { return "filesystem" }
func (s *Storage) String() string { return s.root }

// Album resolves root/path, creating the directory tree when create is true.
func (s *Storage) Album(_ context.Context, path string, create bool) (storage.Album, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(path))

	info, err := s.fs.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return &Album{store: s, path: dir}, nil
	case err == nil:
		return nil, storage.Wrap("album", dir, errors.New("exists and is not a directory"))
	case !errors.Is(err, fs.ErrNotExist):
		return nil, storage.Wrap("album", dir, err)
	case !create:
		return nil, storage.ErrNotFound
	}

	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, storage.Wrap("create album", dir, err)
	}
	return &Album{store: s, path: dir}, nil
}

// Album is a directory.
type Album struct {
	store *Storage
	path  string
}

func (a *Album) Path() string { return a.path }

// Item returns the regular file named filename.
func (a *Album) Item(_ context.Context, filename string) (storage.ExistingItem, error) {
	p := filepath.Join(a.path, filename)
	ok, err := isFile(a.store.fs, p)
	if err != nil {
		return nil, storage.Wrap("stat", p, err)
	}
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &Item{store: a.store, path: p}, nil
}

func (a *Album) CreateItem(fields storage.ItemFields) storage.PendingItem {
	return &Item{store: a.store, path: filepath.Join(a.path, fields.Filename), fields: fields}
}

// Item is a single file.
type Item struct {
	store  *Storage
	path   string
	fields storage.ItemFields
}

func (i *Item) Name() string { return i.path }
func (i *Item) Fields() storage.ItemFields { return i.fields }

// Merge reports whether a regular file already exists at the item path.
func (i *Item) Merge(_ context.Context) (bool, error) {
	ok, err := isFile(i.store.fs, i.path)
	if err != nil {
		return false, storage.Wrap("stat", i.path, err)
	}
	return ok, nil
}

// SaveContent writes r to a temporary sibling, renames it into place and sets the
// access and modification times to the item creation time.
func (i *Item) SaveContent(ctx context.Context, r io.Reader) error {
	tmp := i.path + partSuffix
	f, err := i.store.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return storage.Wrap("create", tmp, err)
	}

	src := storage.NewSourceReader(r)
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		i.store.fs.Remove(tmp)
		if rerr := src.Err(); rerr != nil {
			return rerr
		}
		return storage.Wrap("write", tmp, err)
	}
	if err := f.Close(); err != nil {
		i.store.fs.Remove(tmp)
		return storage.Wrap("write", tmp, err)
	}

	if err := i.store.fs.Rename(tmp, i.path); err != nil {
		i.store.fs.Remove(tmp)
		return storage.Wrap("rename", i.path, err)
	}

	created := i.fields.Created
	if err := i.store.fs.Chtimes(i.path, created, created); err != nil {
		return storage.Wrap("chtimes", i.path, err)
	}

	i.convert(ctx)
	return nil
}

// convert runs the configured converter. Failures are logged only.
func (i *Item) convert(ctx context.Context) {
	c := i.store.converter
	if c == nil || !c.Accepts(i.path) {
		return
	}
	out, err := c.Convert(ctx, i.path)
	if err != nil {
		i.store.logger.Warn("conversion failed", "item", i.path, "err", err)
		return
	}
	created := i.fields.Created
	if err := i.store.fs.Chtimes(out, created, created); err != nil {
		i.store.logger.Warn("failed to set converted file time", "item", out, "err", err)
	}
	i.store.logger.Debug("converted", "from", i.path, "to", out)
}

// Delete removes the file. A missing file is not an error.
func (i *Item) Delete(_ context.Context) error {
	if err := i.store.fs.Remove(i.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.Wrap("delete", i.path, err)
	}
	return nil
}

func isFile(fsys afero.Fs, p string) (bool, error) {
	info, err := fsys.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
