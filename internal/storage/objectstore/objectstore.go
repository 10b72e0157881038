// Package objectstore stores synced items as objects in an S3-compatible bucket.
//
// Albums are key prefixes. An album exists once at least one object lives under its prefix.
// Object stores cannot set modification times, so the creation time is stored in the
// "mtime" user metadata entry as Unix seconds.
package objectstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/desertthunder/phx/internal/shared"
	"github.com/desertthunder/phx/internal/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const sniffLen = 3072

// API is the subset of [minio.Client] used here.
type API interface {
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// NewClient builds a minio client from configuration.
func NewClient(cfg shared.ObjectStoreConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: objectstore.endpoint is required", shared.ErrInvalidConfig)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return client, nil
}

// ParseURL splits "s3://bucket/prefix" into its bucket and prefix.
func ParseURL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%w: want s3://bucket[/prefix], got %q", shared.ErrInvalidArgument, raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// IsURL reports whether dest names an object store destination.
func IsURL(dest string) bool {
	return strings.HasPrefix(dest, "s3://")
}

// Storage is a [storage.Storage] backed by one bucket.
type Storage struct {
	api    API
	bucket string
	prefix string
}

// New returns a Storage writing under prefix in bucket.
func New(api API, bucket, prefix string) *Storage {
	return &Storage{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *Storage) Name() string { return "objectstore" }

func (s *Storage) String() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}

// Album returns the prefix for p. With create false the prefix must already hold an object.
func (s *Storage) Album(ctx context.Context, p string, create bool) (storage.Album, error) {
	album := &Album{store: s, prefix: path.Join(s.prefix, p)}
	if create {
		return album, nil
	}

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for obj := range s.api.ListObjects(lctx, s.bucket, minio.ListObjectsOptions{Prefix: album.prefix + "/", MaxKeys: 1}) {
		if obj.Err != nil {
			return nil, storage.Wrap("list", album.prefix, obj.Err)
		}
		return album, nil
	}
	return nil, storage.ErrNotFound
}

// Album is a key prefix.
type Album struct {
	store  *Storage
	prefix string
}

func (a *Album) Path() string { return a.prefix }

func (a *Album) key(filename string) string { return a.prefix + "/" + filename }

// Item stats the object for filename.
func (a *Album) Item(ctx context.Context, filename string) (storage.ExistingItem, error) {
	item := &Item{store: a.store, key: a.key(filename)}
	ok, err := item.exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrNotFound
	}
	return item, nil
}

func (a *Album) CreateItem(fields storage.ItemFields) storage.PendingItem {
	return &Item{store: a.store, key: a.key(fields.Filename), fields: fields}
}

// Item is one object.
type Item struct {
	store  *Storage
	key    string
	fields storage.ItemFields
}

func (i *Item) Name() string { return i.key }

func (i *Item) Fields() storage.ItemFields { return i.fields }

// Merge is a HEAD request on the object key.
func (i *Item) Merge(ctx context.Context) (bool, error) {
	return i.exists(ctx)
}

func (i *Item) exists(ctx context.Context) (bool, error) {
	_, err := i.store.api.StatObject(ctx, i.store.bucket, i.key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, storage.Wrap("stat", i.key, err)
}

// SaveContent streams r with an unknown length, sniffing the content type from the first bytes.
func (i *Item) SaveContent(ctx context.Context, r io.Reader) error {
	src := storage.NewSourceReader(r)
	br := bufio.NewReaderSize(src, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return err
	}

	opts := minio.PutObjectOptions{
		ContentType:  mimetype.Detect(head).String(),
		UserMetadata: i.userMetadata(),
	}
	if _, err := i.store.api.PutObject(ctx, i.store.bucket, i.key, br, -1, opts); err != nil {
		if rerr := src.Err(); rerr != nil {
			return rerr
		}
		return storage.Wrap("put", i.key, err)
	}
	return nil
}

func (i *Item) userMetadata() map[string]string {
	f := i.fields
	md := map[string]string{
		"mtime":  strconv.FormatInt(f.Created.Unix(), 10),
		"kind":   f.Kind.String(),
		"rating": strconv.Itoa(f.Rating),
	}
	if f.Title != "" {
		md["title"] = url.QueryEscape(f.Title)
	}
	if f.Description != "" {
		md["description"] = url.QueryEscape(f.Description)
	}
	if f.Latitude != nil && f.Longitude != nil {
		md["latitude"] = strconv.FormatFloat(*f.Latitude, 'f', -1, 64)
		md["longitude"] = strconv.FormatFloat(*f.Longitude, 'f', -1, 64)
	}
	return md
}

// Delete removes the object. S3 treats deleting a missing key as success.
func (i *Item) Delete(ctx context.Context) error {
	if err := i.store.api.RemoveObject(ctx, i.store.bucket, i.key, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return storage.Wrap("delete", i.key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == 404
}
