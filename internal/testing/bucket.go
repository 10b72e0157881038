package testing

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
)

// BucketObject is one stored object of a [MemoryBucket].
type BucketObject struct {
	Data []byte
	Opts minio.PutObjectOptions
}

// MemoryBucket is an in-memory S3 bucket serving the calls the objectstore backend makes.
// PutObject drains its reader the way a real upload does, so reader failures surface from it.
type MemoryBucket struct {
	mu sync.Mutex

	Objects map[string]BucketObject
	PutErr  error
	Stats   int
	Puts    int
}

func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{Objects: map[string]BucketObject{}}
}

func noSuchKey() error {
	return minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound, Message: "The specified key does not exist."}
}

func (b *MemoryBucket) StatObject(_ context.Context, _, key string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Stats++
	obj, ok := b.Objects[key]
	if !ok {
		return minio.ObjectInfo{}, noSuchKey()
	}
	return minio.ObjectInfo{Key: key, Size: int64(len(obj.Data))}, nil
}

func (b *MemoryBucket) PutObject(_ context.Context, _, key string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	b.mu.Lock()
	b.Puts++
	putErr := b.PutErr
	b.mu.Unlock()
	if putErr != nil {
		return minio.UploadInfo{}, putErr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.Objects[key] = BucketObject{Data: data, Opts: opts}
	return minio.UploadInfo{Key: key, Size: int64(len(data))}, nil
}

func (b *MemoryBucket) RemoveObject(_ context.Context, _, key string, _ minio.RemoveObjectOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.Objects, key)
	return nil
}

func (b *MemoryBucket) ListObjects(_ context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	var keys []string
	for k := range b.Objects {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	ch := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		ch <- minio.ObjectInfo{Key: k}
	}
	close(ch)
	return ch
}
