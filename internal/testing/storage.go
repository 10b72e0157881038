package testing

import (
	"context"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/desertthunder/phx/internal/storage"
)

// AlbumCall records one [storage.Storage.Album] invocation.
type AlbumCall struct {
	Path   string
	Create bool
}

// MemoryStorage is an in-memory [storage.Storage] that records every call.
type MemoryStorage struct {
	mu     sync.Mutex
	albums map[string]map[string][]byte
	fields map[string]storage.ItemFields

	// AlbumErr, when set, is consulted before every album lookup.
	AlbumErr func(p string, create bool) error
	// SaveErr, when set, is consulted before content is stored.
	SaveErr func(key string) error

	AlbumCalls []AlbumCall
	Created    []string
	Merges     []string
	Saves      []string
	Deletes    []string
}

var _ storage.Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		albums: make(map[string]map[string][]byte),
		fields: make(map[string]storage.ItemFields),
	}
}

func (s *MemoryStorage) Name() string   { return "memory" }
func (s *MemoryStorage) String() string { return "memory:" }

// Put seeds an item, creating its album.
func (s *MemoryStorage) Put(albumPath, filename, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.albums[albumPath] == nil {
		s.albums[albumPath] = make(map[string][]byte)
	}
	s.albums[albumPath][filename] = []byte(content)
}

// Has reports whether the album contains filename.
func (s *MemoryStorage) Has(albumPath, filename string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.albums[albumPath][filename]
	return ok
}

// Content returns the stored bytes of an item.
func (s *MemoryStorage) Content(albumPath, filename string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.albums[albumPath][filename])
}

// Fields returns the descriptor an item was saved with.
func (s *MemoryStorage) Fields(albumPath, filename string) storage.ItemFields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields[path.Join(albumPath, filename)]
}

// Albums lists existing album paths in order.
func (s *MemoryStorage) Albums() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.albums))
	for p := range s.albums {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *MemoryStorage) Album(ctx context.Context, p string, create bool) (storage.Album, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.AlbumCalls = append(s.AlbumCalls, AlbumCall{Path: p, Create: create})
	if s.AlbumErr != nil {
		if err := s.AlbumErr(p, create); err != nil {
			return nil, err
		}
	}

	if _, ok := s.albums[p]; !ok {
		if !create {
			return nil, storage.ErrNotFound
		}
		s.albums[p] = make(map[string][]byte)
		s.Created = append(s.Created, p)
	}
	return &memAlbum{s: s, path: p}, nil
}

type memAlbum struct {
	s    *MemoryStorage
	path string
}

func (a *memAlbum) Path() string { return a.path }

func (a *memAlbum) Item(ctx context.Context, filename string) (storage.ExistingItem, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, ok := a.s.albums[a.path][filename]; !ok {
		return nil, storage.ErrNotFound
	}
	return &memExisting{s: a.s, album: a.path, name: filename}, nil
}

func (a *memAlbum) CreateItem(fields storage.ItemFields) storage.PendingItem {
	return &memPending{s: a.s, album: a.path, fields: fields}
}

type memPending struct {
	s      *MemoryStorage
	album  string
	fields storage.ItemFields
}

func (p *memPending) key() string { return path.Join(p.album, p.fields.Filename) }

func (p *memPending) Fields() storage.ItemFields { return p.fields }

func (p *memPending) Merge(ctx context.Context) (bool, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.Merges = append(p.s.Merges, p.key())
	_, ok := p.s.albums[p.album][p.fields.Filename]
	return ok, nil
}

// SaveContent returns read errors unwrapped, like the real backends.
func (p *memPending) SaveContent(ctx context.Context, r io.Reader) error {
	p.s.mu.Lock()
	saveErr := p.s.SaveErr
	p.s.mu.Unlock()
	if saveErr != nil {
		if err := saveErr(p.key()); err != nil {
			return err
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if p.s.albums[p.album] == nil {
		return storage.Wrap("save", p.key(), storage.ErrNotFound)
	}
	p.s.albums[p.album][p.fields.Filename] = data
	p.s.fields[p.key()] = p.fields
	p.s.Saves = append(p.s.Saves, p.key())
	return nil
}

type memExisting struct {
	s     *MemoryStorage
	album string
	name  string
}

func (e *memExisting) Name() string { return e.name }

func (e *memExisting) Delete(ctx context.Context) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.Deletes = append(e.s.Deletes, path.Join(e.album, e.name))
	delete(e.s.albums[e.album], e.name)
	return nil
}

