// Package photostation stores synced items on a Synology Photo Station style server.
//
// Albums map to nested server albums named by path segment. Album and item identifiers
// are derived from hex-encoded paths, so presence checks need no listing.
package photostation

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/phx/internal/models"
	"github.com/desertthunder/phx/internal/shared"
	"github.com/desertthunder/phx/internal/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/patrickmn/go-cache"
)

const sniffLen = 3072

// AlbumID is the server identifier of the album at p.
func AlbumID(p string) string {
	if p == "" {
		return ""
	}
	return "album_" + hex.EncodeToString([]byte(p))
}

// ItemID is the server identifier of filename inside album p.
func ItemID(kind models.Kind, p, filename string) string {
	return kind.String() + "_" + hex.EncodeToString([]byte(p)) + "_" + hex.EncodeToString([]byte(filename))
}

// Storage is a [storage.Storage] on a Photo Station server.
type Storage struct {
	client *Client
	root   string
	known  *cache.Cache
}

// New returns a Storage writing below the root album (empty for the top level).
func New(client *Client, root string) *Storage {
	return &Storage{
		client: client,
		root:   strings.Trim(root, "/"),
		known:  cache.New(30*time.Minute, time.Hour),
	}
}

func (s *Storage) Name() string { return "photostation" }

func (s *Storage) String() string {
	return s.client.baseURL.String() + "#" + s.root
}

// Album resolves the album at p, creating missing ancestors in order when create is true.
func (s *Storage) Album(ctx context.Context, p string, create bool) (storage.Album, error) {
	full := path.Join(s.root, p)

	ok, err := s.albumExists(ctx, full)
	if err != nil {
		return nil, err
	}
	if ok {
		return &Album{store: s, path: full}, nil
	}
	if !create {
		return nil, storage.ErrNotFound
	}

	parent := ""
	for _, name := range strings.Split(full, "/") {
		current := path.Join(parent, name)
		ok, err := s.albumExists(ctx, current)
		if err != nil {
			return nil, err
		}
		if !ok {
			form := url.Values{"id": {AlbumID(parent)}, "name": {name}}
			err := s.client.call(ctx, endpointAlbum, apiAlbum, "create", form, nil)
			if err != nil && !isCode(err, CodeAlreadyExists) {
				return nil, wrap("create album", current, err)
			}
			s.known.SetDefault(current, true)
		}
		parent = current
	}
	return &Album{store: s, path: full}, nil
}

func (s *Storage) albumExists(ctx context.Context, p string) (bool, error) {
	if _, ok := s.known.Get(p); ok {
		return true, nil
	}
	err := s.client.call(ctx, endpointAlbum, apiAlbum, "getinfo", url.Values{"id": {AlbumID(p)}}, nil)
	switch {
	case err == nil:
		s.known.SetDefault(p, true)
		return true, nil
	case isCode(err, CodeNotFound):
		return false, nil
	default:
		return false, wrap("album", p, err)
	}
}

// Album is a server album.
type Album struct {
	store *Storage
	path  string
}

func (a *Album) Path() string { return a.path }

// Item finds filename as a photo first and then as a video.
func (a *Album) Item(ctx context.Context, filename string) (storage.ExistingItem, error) {
	for _, kind := range []models.Kind{models.KindPhoto, models.KindVideo} {
		item := &Item{album: a, fields: storage.ItemFields{Filename: filename, Kind: kind}}
		ok, err := item.Merge(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return item, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (a *Album) CreateItem(fields storage.ItemFields) storage.PendingItem {
	return &Item{album: a, fields: fields}
}

// Item is a photo or video on the server.
type Item struct {
	album  *Album
	fields storage.ItemFields
}

func (i *Item) id() string {
	return ItemID(i.fields.Kind, i.album.path, i.fields.Filename)
}

func (i *Item) Name() string { return path.Join(i.album.path, i.fields.Filename) }

func (i *Item) Fields() storage.ItemFields { return i.fields }

// Merge asks the server for the item's info.
func (i *Item) Merge(ctx context.Context) (bool, error) {
	err := i.album.store.client.call(ctx, endpointPhoto, apiPhoto, "getinfo", url.Values{"id": {i.id()}}, nil)
	switch {
	case err == nil:
		return true, nil
	case isCode(err, CodeNotFound):
		return false, nil
	default:
		return false, wrap("getinfo", i.Name(), err)
	}
}

// SaveContent uploads r as a multipart stream, then applies rating and coordinates.
func (i *Item) SaveContent(ctx context.Context, r io.Reader) error {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return err
	}
	contentType := mimetype.Detect(head).String()

	method := "uploadphoto"
	if i.fields.Kind == models.KindVideo {
		method = "uploadvideo"
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(i.writeUpload(mw, method, contentType, br))
	}()

	client := i.album.store.client
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.endpoint(endpointFile), pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if err := client.send(req, apiFile, method, nil); err != nil {
		pr.CloseWithError(err)
		return wrap("upload", i.Name(), err)
	}
	return i.edit(ctx)
}

func (i *Item) writeUpload(mw *multipart.Writer, method, contentType string, body io.Reader) error {
	f := i.fields
	fields := [][2]string{
		{"api", apiFile},
		{"method", method},
		{"version", "1"},
		{"dest_folder", i.album.path},
		{"filename", f.Filename},
		{"mtime", strconv.FormatInt(f.Created.Unix(), 10)},
		{"title", f.Title},
		{"description", f.Description},
		{"duplicate", "ignore"},
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="original"; filename=%q`, f.Filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

// edit sets the attributes the upload call does not accept.
func (i *Item) edit(ctx context.Context) error {
	f := i.fields
	form := url.Values{"id": {i.id()}}
	if f.Rating > 0 {
		form.Set("rating", strconv.Itoa(f.Rating))
	}
	if f.Latitude != nil && f.Longitude != nil {
		form.Set("gps_lat", strconv.FormatFloat(*f.Latitude, 'f', -1, 64))
		form.Set("gps_lng", strconv.FormatFloat(*f.Longitude, 'f', -1, 64))
	}
	if len(form) == 1 {
		return nil
	}
	if err := i.album.store.client.call(ctx, endpointPhoto, apiPhoto, "edit", form, nil); err != nil {
		return wrap("edit", i.Name(), err)
	}
	return nil
}

// Delete removes the item. A missing item is not an error.
func (i *Item) Delete(ctx context.Context) error {
	err := i.album.store.client.call(ctx, endpointPhoto, apiPhoto, "delete", url.Values{"id": {i.id()}}, nil)
	if err != nil && !isCode(err, CodeNotFound) {
		return wrap("delete", i.Name(), err)
	}
	return nil
}

// wrap marks server-side failures as storage errors and leaves transport errors untouched
// so connection failures stay retryable.
func wrap(op, target string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) || errors.Is(err, shared.ErrAPIRequest) {
		return storage.Wrap(op, target, err)
	}
	return err
}
