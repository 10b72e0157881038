package tasks

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/desertthunder/phx/internal/formatter"
	"github.com/desertthunder/phx/internal/models"
	"github.com/desertthunder/phx/internal/pacer"
	"github.com/desertthunder/phx/internal/shared"
	"github.com/desertthunder/phx/internal/storage"
	"github.com/desertthunder/phx/internal/storage/filesystem"
	"github.com/desertthunder/phx/internal/storage/objectstore"
	tu "github.com/desertthunder/phx/internal/testing"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var connReset = &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}

func day(d int) time.Time {
	return time.Date(2024, 5, d, 10, 0, 0, 0, time.UTC)
}

type failureLog struct {
	names []string
}

func (f *failureLog) RecordFailure(_ context.Context, filename, _ string) error {
	f.names = append(f.names, filename)
	return nil
}

type harness struct {
	src      *tu.MockSource
	st       *tu.MemoryStorage
	dest     storage.Storage
	out      *bytes.Buffer
	msgs     []string
	sleeps   int
	failures *failureLog
	engine   *SyncEngine
}

func newHarness(items ...*models.RemoteItem) *harness {
	st := tu.NewMemoryStorage()
	h := newHarnessOver(st, items...)
	h.st = st
	return h
}

// newHarnessOver runs the engine against a real backend instead of the memory storage.
func newHarnessOver(dest storage.Storage, items ...*models.RemoteItem) *harness {
	h := &harness{
		src:      &tu.MockSource{Items: items},
		dest:     dest,
		out:      &bytes.Buffer{},
		failures: &failureLog{},
	}
	p := pacer.New(
		pacer.WithSleep(func(context.Context, time.Duration) error { h.sleeps++; return nil }),
		pacer.WithNotify(func(m string) { h.msgs = append(h.msgs, m) }),
	)
	h.engine = NewSyncEngine(h.src, h.dest, EngineOpts{Pacer: p, Output: h.out, Recorder: h.failures})
	return h
}

func (h *harness) run(t *testing.T, opts Options) *RunResult {
	t.Helper()
	result, err := h.engine.Run(context.Background(), opts, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func (h *harness) seed(item *models.RemoteItem, size models.Rendition) {
	h.st.Put(formatter.DatePath(item.Created), formatter.FilenameWithSize(item.Filename, size), "existing")
}

func TestRunTransfersNewItems(t *testing.T) {
	h := newHarness(
		tu.Item("IMG_0003.JPG", day(3)),
		tu.Item("IMG_0002.png", day(2)),
		tu.Item("IMG_0001.jpeg", day(1)),
	)

	result := h.run(t, Options{})

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.Transferred)
	assert.Zero(t, result.Existing)
	assert.False(t, result.Stopped)
	assert.Equal(t, []string{"2024/05/03", "2024/05/02", "2024/05/01"}, h.st.Created)

	assert.Equal(t, "data:"+tu.VersionURL(models.Original, "IMG_0003.JPG"), h.st.Content("2024/05/03", "IMG_0003.JPG"))
	fields := h.st.Fields("2024/05/03", "IMG_0003.JPG")
	assert.Equal(t, models.KindPhoto, fields.Kind)
	assert.Equal(t, day(3), fields.Created)

	var want int64
	for _, name := range []string{"IMG_0003.JPG", "IMG_0002.png", "IMG_0001.jpeg"} {
		want += int64(len("data:" + tu.VersionURL(models.Original, name)))
	}
	assert.Equal(t, want, result.Bytes)
}

func TestRunMergeNeverDownloads(t *testing.T) {
	items := []*models.RemoteItem{tu.Item("a.jpg", day(2)), tu.Item("b.jpg", day(1))}
	h := newHarness(items...)
	for _, item := range items {
		h.seed(item, models.Original)
	}

	result := h.run(t, Options{})

	assert.Equal(t, 2, result.Existing)
	assert.Zero(t, result.Transferred)
	assert.Zero(t, h.src.DownloadCount())
	assert.Empty(t, h.st.Saves)
	assert.Equal(t, "existing", h.st.Content("2024/05/02", "a.jpg"))
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(tu.Item("a.jpg", day(2)), tu.Item("b.png", day(1)), tu.Item("c.jpg", day(1)))

	first := h.run(t, Options{})
	require.Equal(t, 3, first.Transferred)
	downloads := h.src.DownloadCount()

	second := h.run(t, Options{})
	assert.Zero(t, second.Transferred)
	assert.Equal(t, 3, second.Existing)
	assert.Equal(t, downloads, h.src.DownloadCount())
}

func TestRunSkipsNonPhotos(t *testing.T) {
	items := []*models.RemoteItem{
		tu.Item("clip.MOV", day(3)),
		tu.Item("IMG_1.HEIC", day(2)),
		tu.Item("IMG_2.JPG", day(1)),
	}

	t.Run("photos only", func(t *testing.T) {
		h := newHarness(items...)
		result := h.run(t, Options{})

		assert.Equal(t, 2, result.Skipped)
		assert.Equal(t, 1, result.Transferred)
		assert.Equal(t, 3, result.Processed)
		assert.Equal(t, []tu.AlbumCall{{Path: "2024/05/01", Create: true}}, h.st.AlbumCalls)
	})

	t.Run("with videos", func(t *testing.T) {
		h := newHarness(items...)
		result := h.run(t, Options{DownloadVideos: true})

		assert.Zero(t, result.Skipped)
		assert.Equal(t, 3, result.Transferred)
		assert.Equal(t, models.KindVideo, h.st.Fields("2024/05/03", "clip.MOV").Kind)
	})
}

func TestRunRenditionFallback(t *testing.T) {
	tests := []struct {
		name        string
		item        *models.RemoteItem
		opts        Options
		transferred int
		unresolved  int
		downloads   []string
		merges      []string
		saved       string
	}{
		{
			name:        "missing medium falls back to original once",
			item:        tu.Item("photo1.jpg", day(1)),
			opts:        Options{Size: models.Medium},
			transferred: 1,
			downloads:   []string{tu.VersionURL(models.Original, "photo1.jpg")},
			merges:      []string{"2024/05/01/photo1-medium.jpg", "2024/05/01/photo1.jpg"},
			saved:       "photo1.jpg",
		},
		{
			name:        "available medium is used",
			item:        tu.Item("photo1.jpg", day(1), models.Medium),
			opts:        Options{Size: models.Medium},
			transferred: 1,
			downloads:   []string{tu.VersionURL(models.Medium, "photo1.jpg")},
			merges:      []string{"2024/05/01/photo1-medium.jpg"},
			saved:       "photo1-medium.jpg",
		},
		{
			name:       "forced size never falls back",
			item:       tu.Item("photo1.jpg", day(1)),
			opts:       Options{Size: models.Thumb, ForceSize: true},
			unresolved: 1,
			merges:     []string{"2024/05/01/photo1-thumb.jpg"},
		},
		{
			name: "fallback does not cascade when original is missing too",
			item: func() *models.RemoteItem {
				item := tu.Item("photo1.jpg", day(1))
				delete(item.Versions, models.Original)
				return item
			}(),
			opts:       Options{Size: models.Medium},
			unresolved: 1,
			merges:     []string{"2024/05/01/photo1-medium.jpg", "2024/05/01/photo1.jpg"},
		},
		{
			name: "original without a URL is unresolved",
			item: func() *models.RemoteItem {
				item := tu.Item("photo1.jpg", day(1))
				item.Versions[models.Original] = models.Version{Filename: "photo1.jpg"}
				return item
			}(),
			unresolved: 1,
			merges:     []string{"2024/05/01/photo1.jpg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.item)
			result := h.run(t, tt.opts)

			assert.Equal(t, tt.transferred, result.Transferred)
			assert.Equal(t, tt.unresolved, result.Unresolved)
			assert.Equal(t, tt.downloads, h.src.Downloads)
			assert.Equal(t, tt.merges, h.st.Merges)
			assert.Zero(t, result.Failed)
			if tt.saved != "" {
				assert.True(t, h.st.Has("2024/05/01", tt.saved))
			}
		})
	}
}

func TestRunPrefersEditedOriginal(t *testing.T) {
	item := tu.Item("IMG_9.JPG", day(1))
	item.Edited = &models.Version{Filename: "IMG_9.JPG", URL: "https://photos.test/edited/IMG_9.JPG"}
	h := newHarness(item)

	h.run(t, Options{})
	assert.Equal(t, []string{"https://photos.test/edited/IMG_9.JPG"}, h.src.Downloads)
}

func TestRunUntilFound(t *testing.T) {
	t.Run("stops after threshold", func(t *testing.T) {
		items := []*models.RemoteItem{
			tu.Item("new.jpg", day(5)),
			tu.Item("old1.jpg", day(4)),
			tu.Item("old2.jpg", day(3)),
			tu.Item("old3.jpg", day(2)),
			tu.Item("new-but-older.jpg", day(1)),
		}
		h := newHarness(items...)
		for _, item := range items[1:4] {
			h.seed(item, models.Original)
		}

		result := h.run(t, Options{UntilFound: 2})

		assert.True(t, result.Stopped)
		assert.Equal(t, -1, result.Total)
		assert.Equal(t, 3, result.Processed)
		assert.Equal(t, 1, result.Transferred)
		assert.Equal(t, 2, result.Existing)
		assert.Equal(t, 3, h.src.NextCalls)
		assert.False(t, h.st.Has("2024/05/01", "new-but-older.jpg"))
	})

	t.Run("new item resets the counter", func(t *testing.T) {
		items := []*models.RemoteItem{
			tu.Item("old1.jpg", day(5)),
			tu.Item("new.jpg", day(4)),
			tu.Item("old2.jpg", day(3)),
			tu.Item("old3.jpg", day(2)),
			tu.Item("old4.jpg", day(1)),
		}
		h := newHarness(items...)
		for _, item := range []*models.RemoteItem{items[0], items[2], items[3], items[4]} {
			h.seed(item, models.Original)
		}

		result := h.run(t, Options{UntilFound: 2})

		assert.True(t, result.Stopped)
		assert.Equal(t, 4, result.Processed)
	})

	t.Run("threshold never reached", func(t *testing.T) {
		h := newHarness(tu.Item("a.jpg", day(2)), tu.Item("b.jpg", day(1)))
		result := h.run(t, Options{UntilFound: 1})

		assert.False(t, result.Stopped)
		assert.Equal(t, 2, result.Transferred)
	})
}

func TestRunRecent(t *testing.T) {
	items := []*models.RemoteItem{
		tu.Item("e.jpg", day(5)),
		tu.Item("d.jpg", day(4)),
		tu.Item("c.jpg", day(3)),
		tu.Item("b.jpg", day(2)),
		tu.Item("a.jpg", day(1)),
	}

	tests := []struct {
		name      string
		recent    int
		seeded    bool
		processed int
	}{
		{name: "fewer than the collection", recent: 2, processed: 2},
		{name: "more than the collection", recent: 10, processed: 5},
		{name: "no early stop", recent: 4, seeded: true, processed: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(items...)
			if tt.seeded {
				for _, item := range items {
					h.seed(item, models.Original)
				}
			}

			result := h.run(t, Options{Recent: tt.recent})

			assert.Equal(t, tt.processed, result.Total)
			assert.Equal(t, tt.processed, result.Processed)
			assert.False(t, result.Stopped)
		})
	}
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "recent with until-found", opts: Options{Recent: 1, UntilFound: 1}},
		{name: "negative recent", opts: Options{Recent: -1}},
		{name: "unknown size", opts: Options{Size: "huge"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tu.Item("a.jpg", day(1)))
			result, err := h.engine.Run(context.Background(), tt.opts, nil)
			assert.ErrorIs(t, err, shared.ErrInvalidFlag)
			assert.NotNil(t, result)
			assert.Empty(t, h.st.AlbumCalls)
		})
	}
}

func TestRunDryRun(t *testing.T) {
	items := []*models.RemoteItem{
		tu.Item("present.jpg", day(3)),
		tu.Item("missing.jpg", day(3)),
		tu.Item("fresh.jpg", day(1)),
		tu.Item("clip.mov", day(1)),
	}
	h := newHarness(items...)
	h.seed(items[0], models.Medium)

	result := h.run(t, Options{DryRun: true, Size: models.Medium, AutoDelete: true})

	assert.Equal(t, "missing-medium.jpg\nfresh-medium.jpg\n", h.out.String())
	assert.Equal(t, 2, result.Printed)
	assert.Equal(t, 1, result.Existing)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, h.st.Created)
	assert.Empty(t, h.st.Saves)
	assert.Zero(t, h.src.DownloadCount())
	for _, call := range h.st.AlbumCalls {
		assert.False(t, call.Create, "dry run must not create %s", call.Path)
	}
}

func TestRunRetriesWholeItem(t *testing.T) {
	h := newHarness(tu.Item("a.jpg", day(1)))
	calls := 0
	h.st.AlbumErr = func(string, bool) error {
		calls++
		if calls <= 2 {
			return connReset
		}
		return nil
	}

	result := h.run(t, Options{})

	assert.Equal(t, 1, result.Transferred)
	assert.Len(t, h.st.AlbumCalls, 3)
	assert.Equal(t, 2, h.sleeps)
	assert.Len(t, h.msgs, 2)
}

func TestRunItemExhaustionContinues(t *testing.T) {
	h := newHarness(tu.Item("bad.jpg", day(2)), tu.Item("good.jpg", day(1)))
	h.st.AlbumErr = func(p string, _ bool) error {
		if p == "2024/05/02" {
			return connReset
		}
		return nil
	}

	result := h.run(t, Options{})

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Transferred)
	assert.Equal(t, []string{"bad.jpg"}, h.failures.names)
	assert.Equal(t, pacer.DefaultMaxAttempts-1, h.sleeps)
	assert.Contains(t, h.msgs[len(h.msgs)-1], "giving up")
}

func TestRunDownloadRetries(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		h := newHarness(tu.Item("a.jpg", day(1)))
		h.src.DownloadErr = func(call int, _ models.Version) error {
			if call < 3 {
				return connReset
			}
			return nil
		}

		result := h.run(t, Options{})
		assert.Equal(t, 1, result.Transferred)
		assert.Equal(t, 3, h.src.DownloadCount())
		assert.Len(t, h.st.AlbumCalls, 1)
	})

	t.Run("gives up without restarting the item", func(t *testing.T) {
		h := newHarness(tu.Item("a.jpg", day(2)), tu.Item("b.jpg", day(1)))
		h.src.DownloadErr = func(_ int, v models.Version) error {
			if strings.HasSuffix(v.URL, "a.jpg") {
				return connReset
			}
			return nil
		}

		result := h.run(t, Options{})
		assert.Equal(t, 1, result.Failed)
		assert.Equal(t, 1, result.Transferred)
		assert.Equal(t, pacer.DefaultMaxAttempts+1, h.src.DownloadCount())
		assert.Equal(t, []string{"a.jpg"}, h.failures.names)
		assert.False(t, h.st.Has("2024/05/02", "a.jpg"))
	})

	t.Run("read failure mid stream is retried", func(t *testing.T) {
		h := newHarness(tu.Item("a.jpg", day(1)))
		calls := 0
		h.st.SaveErr = func(string) error {
			calls++
			if calls == 1 {
				return connReset
			}
			return nil
		}

		result := h.run(t, Options{})
		assert.Equal(t, 1, result.Transferred)
		assert.Equal(t, 2, h.src.DownloadCount())
	})
}

func TestRunStorageErrors(t *testing.T) {
	items := []*models.RemoteItem{tu.Item("a.jpg", day(2)), tu.Item("b.jpg", day(1))}

	t.Run("abort by default", func(t *testing.T) {
		h := newHarness(items...)
		h.st.SaveErr = func(key string) error {
			return storage.Wrap("save", key, syscall.ENOSPC)
		}

		result, err := h.engine.Run(context.Background(), Options{}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, storage.ErrStorage)
		assert.Equal(t, 1, result.Processed)
		assert.Zero(t, h.sleeps)
	})

	t.Run("keep going", func(t *testing.T) {
		h := newHarness(items...)
		h.st.SaveErr = func(key string) error {
			if strings.HasSuffix(key, "a.jpg") {
				return storage.Wrap("save", key, syscall.EACCES)
			}
			return nil
		}

		result := h.run(t, Options{KeepGoing: true})
		assert.Equal(t, 1, result.Failed)
		assert.Equal(t, 1, result.Transferred)
		assert.Equal(t, []string{"a.jpg"}, h.failures.names)
	})

	t.Run("network cause is not retried", func(t *testing.T) {
		h := newHarness(items[0])
		saves := 0
		h.st.SaveErr = func(key string) error {
			saves++
			return storage.Wrap("save", key, connReset)
		}

		_, err := h.engine.Run(context.Background(), Options{}, nil)
		assert.ErrorIs(t, err, storage.ErrStorage)
		assert.Equal(t, 1, saves)
		assert.Zero(t, h.sleeps)
	})

	t.Run("full disk aborts the run", func(t *testing.T) {
		h := newHarnessOver(filesystem.New(&tu.FullDisk{Fs: afero.NewMemMapFs()}, "/photos"), items...)

		result, err := h.engine.Run(context.Background(), Options{}, nil)
		assert.ErrorIs(t, err, storage.ErrStorage)
		assert.ErrorIs(t, err, syscall.ENOSPC)
		assert.Equal(t, 1, result.Processed)
		assert.Zero(t, h.sleeps)
	})

	t.Run("full disk with keep going", func(t *testing.T) {
		h := newHarnessOver(filesystem.New(&tu.FullDisk{Fs: afero.NewMemMapFs()}, "/photos"), items...)

		result := h.run(t, Options{KeepGoing: true})
		assert.Equal(t, 2, result.Failed)
		assert.Zero(t, result.Transferred)
		assert.Equal(t, []string{"a.jpg", "b.jpg"}, h.failures.names)
	})
}

func TestRunSourceResetDuringUpload(t *testing.T) {
	bucket := tu.NewMemoryBucket()
	h := newHarnessOver(objectstore.New(bucket, "bucket", "p"), tu.Item("a.jpg", day(1)))
	h.src.Stream = func(call int, _ models.Version) io.Reader {
		if call == 1 {
			return io.MultiReader(strings.NewReader(strings.Repeat("x", 8<<10)), &tu.FCloser{Err: connReset})
		}
		return nil
	}

	result := h.run(t, Options{})
	assert.Equal(t, 1, result.Transferred)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 2, h.src.DownloadCount())
	assert.Equal(t, 1, h.sleeps)

	obj, ok := bucket.Objects["p/2024/05/01/a.jpg"]
	require.True(t, ok)
	assert.Equal(t, "data:"+tu.VersionURL(models.Original, "a.jpg"), string(obj.Data))
}

func TestRunCleanup(t *testing.T) {
	synced := tu.Item("synced.jpg", day(3))
	neverSynced := tu.Item("elsewhere.jpg", day(9))
	missingFile := tu.Item("gone.jpg", day(3))

	t.Run("deletes trashed items that were synced", func(t *testing.T) {
		h := newHarness()
		h.src.Deleted = []*models.RemoteItem{synced, neverSynced, missingFile}
		h.seed(synced, models.Original)

		result := h.run(t, Options{AutoDelete: true})

		assert.Equal(t, 1, result.Deleted)
		assert.Equal(t, []string{"2024/05/03/synced.jpg"}, h.st.Deletes)
		assert.False(t, h.st.Has("2024/05/03", "synced.jpg"))
		assert.Equal(t, []string{"2024/05/03"}, h.st.Albums())
		for _, call := range h.st.AlbumCalls {
			assert.False(t, call.Create)
		}
	})

	t.Run("matches the requested size", func(t *testing.T) {
		h := newHarness()
		h.src.Deleted = []*models.RemoteItem{synced}
		h.seed(synced, models.Original)
		h.seed(synced, models.Thumb)

		result := h.run(t, Options{AutoDelete: true, Size: models.Thumb})

		assert.Equal(t, 1, result.Deleted)
		assert.Equal(t, []string{"2024/05/03/synced-thumb.jpg"}, h.st.Deletes)
		assert.True(t, h.st.Has("2024/05/03", "synced.jpg"))
	})

	t.Run("skipped without auto delete", func(t *testing.T) {
		h := newHarness()
		h.src.Deleted = []*models.RemoteItem{synced}
		h.seed(synced, models.Original)

		result := h.run(t, Options{})
		assert.Zero(t, result.Deleted)
		assert.Empty(t, h.st.Deletes)
	})

	t.Run("transient failure is not retried", func(t *testing.T) {
		h := newHarness()
		h.src.Deleted = []*models.RemoteItem{synced}
		h.seed(synced, models.Original)
		calls := 0
		h.src.DeletedErr = func(int) error {
			calls++
			return connReset
		}

		result := h.run(t, Options{AutoDelete: true})
		assert.Zero(t, result.Deleted)
		assert.Equal(t, 1, calls)
		assert.Zero(t, h.sleeps)
	})
}

func TestRunPassesMetadata(t *testing.T) {
	item := tu.Item("IMG_1.JPG", day(1))
	item.Favorite = true
	item.AssetFields = models.Fields{
		"captionEnc": {Type: "ENCRYPTED_BYTES", Value: base64.StdEncoding.EncodeToString([]byte("Beach day"))},
	}
	h := newHarness(item)

	h.run(t, Options{})

	fields := h.st.Fields("2024/05/01", "IMG_1.JPG")
	assert.Equal(t, "Beach day", fields.Title)
	assert.Equal(t, 1, fields.Rating)
	assert.Nil(t, fields.Latitude)
}

func TestRunProgress(t *testing.T) {
	t.Run("reports phases in order", func(t *testing.T) {
		h := newHarness(tu.Item("a.jpg", day(2)), tu.Item("b.mov", day(1)))
		h.src.Deleted = []*models.RemoteItem{tu.Item("a.jpg", day(2))}
		progress := make(chan ProgressUpdate, 64)

		_, err := h.engine.Run(context.Background(), Options{AutoDelete: true}, progress)
		require.NoError(t, err)
		close(progress)

		var updates []ProgressUpdate
		for u := range progress {
			updates = append(updates, u)
		}
		require.NotEmpty(t, updates)
		assert.Equal(t, Enumerate, updates[0].Phase)

		last := updates[len(updates)-1]
		assert.Equal(t, Complete, last.Phase)
		assert.Equal(t, 1, last.Data.Transferred)
		assert.Equal(t, 1, last.Data.Skipped)
		assert.Equal(t, 1, last.Data.Deleted)
		assert.Contains(t, last.Message, "1 downloaded")

		var phases []Phase
		for _, u := range updates {
			if len(phases) == 0 || phases[len(phases)-1] != u.Phase {
				phases = append(phases, u.Phase)
			}
		}
		assert.Equal(t, []Phase{Enumerate, Sync, Cleanup, Complete}, phases)
	})

	t.Run("never blocks on a full channel", func(t *testing.T) {
		h := newHarness(tu.Item("a.jpg", day(2)), tu.Item("b.jpg", day(1)))
		progress := make(chan ProgressUpdate)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, err := h.engine.Run(context.Background(), Options{}, progress)
			assert.NoError(t, err)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Run blocked on progress channel")
		}
	})
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(tu.Item("a.jpg", day(1)))
	ctx, cancel := context.WithCancel(context.Background())
	h.src.NextErr = func(int) error {
		cancel()
		return context.Canceled
	}

	_, err := h.engine.Run(ctx, Options{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{Enumerate, "enumerate"},
		{Sync, "sync"},
		{Cleanup, "cleanup"},
		{Complete, "complete"},
		{Phase(99), ""},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestOptionsMode(t *testing.T) {
	assert.Equal(t, "all", Options{}.Mode())
	assert.Equal(t, "recent:5", Options{Recent: 5}.Mode())
	assert.Equal(t, "until-found:3", Options{UntilFound: 3}.Mode())
}
