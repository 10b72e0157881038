package testing

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/phx/internal/models"
	"github.com/desertthunder/phx/internal/services"
)

// MockSource is an in-memory [services.Source]. Items are listed in slice order, so fixtures
// should be ordered newest first.
type MockSource struct {
	mu sync.Mutex

	Items   []*models.RemoteItem
	Deleted []*models.RemoteItem

	// Content overrides the body served for a URL. The default body is "data:" + URL.
	Content map[string]string

	// Stream, when set and returning non-nil, replaces the body served for a download.
	Stream func(call int, v models.Version) io.Reader
	// DownloadErr, when set, is consulted before every download. call counts from 1.
	DownloadErr func(call int, v models.Version) error
	// NextErr, when set, is consulted before every item is yielded from the main collection.
	NextErr func(call int) error
	// DeletedErr, when set, fails the trash iterator at the given item index.
	DeletedErr func(index int) error

	Downloads []string
	NextCalls int
}

var _ services.Source = (*MockSource)(nil)

func (s *MockSource) All(ctx context.Context) (services.Collection, error) {
	return &mockCollection{src: s, name: "All Photos", items: s.Items, main: true}, nil
}

func (s *MockSource) RecentlyDeleted(ctx context.Context) (services.Collection, error) {
	return &mockCollection{src: s, name: "Recently Deleted", items: s.Deleted}, nil
}

func (s *MockSource) Download(ctx context.Context, v models.Version) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Downloads = append(s.Downloads, v.URL)
	if v.URL == "" {
		return nil, services.ErrNoURL
	}
	if s.DownloadErr != nil {
		if err := s.DownloadErr(len(s.Downloads), v); err != nil {
			return nil, err
		}
	}
	if s.Stream != nil {
		if r := s.Stream(len(s.Downloads), v); r != nil {
			return io.NopCloser(r), nil
		}
	}
	body, ok := s.Content[v.URL]
	if !ok {
		body = "data:" + v.URL
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

// DownloadCount returns the number of download calls so far.
func (s *MockSource) DownloadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Downloads)
}

type mockCollection struct {
	src   *MockSource
	name  string
	items []*models.RemoteItem
	main  bool
}

func (c *mockCollection) Name() string { return c.name }

func (c *mockCollection) Len(ctx context.Context) (int, error) { return len(c.items), nil }

func (c *mockCollection) Iterator() services.Iterator { return &mockIterator{coll: c} }

type mockIterator struct {
	coll *mockCollection
	pos  int
}

func (it *mockIterator) Next(ctx context.Context) (*models.RemoteItem, error) {
	src := it.coll.src
	src.mu.Lock()
	defer src.mu.Unlock()

	if it.coll.main {
		src.NextCalls++
		if src.NextErr != nil {
			if err := src.NextErr(src.NextCalls); err != nil {
				return nil, err
			}
		}
	} else if src.DeletedErr != nil {
		if err := src.DeletedErr(it.pos); err != nil {
			return nil, err
		}
	}

	if it.pos >= len(it.coll.items) {
		return nil, io.EOF
	}
	item := it.coll.items[it.pos]
	it.pos++
	return item, nil
}

var itemTypes = map[string]string{
	"jpg":  "public.jpeg",
	"jpeg": "public.jpeg",
	"png":  "public.png",
	"heic": "public.heic",
	"mov":  "com.apple.quicktime-movie",
	"mp4":  "public.mpeg-4",
}

// Item builds a remote item with an original rendition plus any extra renditions listed.
// Each rendition is served from https://photos.test/<rendition>/<name>.
func Item(name string, created time.Time, extra ...models.Rendition) *models.RemoteItem {
	item := &models.RemoteItem{
		ID:       "id-" + name,
		Filename: name,
		Created:  created,
		Size:     int64(len(name)),
		Versions: map[models.Rendition]models.Version{},
	}
	item.ItemType = itemTypes[item.Ext()]
	for _, r := range append([]models.Rendition{models.Original}, extra...) {
		item.Versions[r] = models.Version{
			Filename: name,
			URL:      VersionURL(r, name),
			Size:     item.Size,
			Type:     item.ItemType,
		}
	}
	return item
}

// VersionURL is the URL [Item] assigns to rendition r of name.
func VersionURL(r models.Rendition, name string) string {
	return "https://photos.test/" + string(r) + "/" + name
}
