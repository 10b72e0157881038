package filesystem

import (
	"context"
	"errors"
	"io"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/desertthunder/phx/internal/storage"
	tu "github.com/desertthunder/phx/internal/testing"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2019, 6, 1, 12, 30, 0, 0, time.UTC)

func newStore(t *testing.T, opts ...Option) (*Storage, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/photos", 0o755))
	return New(fsys, "/photos", opts...), fsys
}

func TestAlbum(t *testing.T) {
	ctx := context.Background()

	t.Run("missing without create", func(t *testing.T) {
		s, fsys := newStore(t)
		_, err := s.Album(ctx, "2019/06/01", false)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		exists, _ := afero.DirExists(fsys, "/photos/2019")
		assert.False(t, exists, "lookup must not create directories")
	})

	t.Run("created on demand", func(t *testing.T) {
		s, fsys := newStore(t)
		a, err := s.Album(ctx, "2019/06/01", true)
		require.NoError(t, err)
		assert.Equal(t, "/photos/2019/06/01", a.Path())

		exists, _ := afero.DirExists(fsys, "/photos/2019/06/01")
		assert.True(t, exists)

		again, err := s.Album(ctx, "2019/06/01", false)
		require.NoError(t, err)
		assert.Equal(t, a.Path(), again.Path())
	})

	t.Run("file in the way", func(t *testing.T) {
		s, fsys := newStore(t)
		require.NoError(t, afero.WriteFile(fsys, "/photos/2019", []byte("x"), 0o644))
		_, err := s.Album(ctx, "2019", true)
		assert.ErrorIs(t, err, storage.ErrStorage)
	})

	t.Run("read-only fs", func(t *testing.T) {
		ro := New(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/photos")
		_, err := ro.Album(ctx, "2019/06/01", true)
		assert.ErrorIs(t, err, storage.ErrStorage)
	})
}

func TestItem(t *testing.T) {
	ctx := context.Background()

	t.Run("save then merge", func(t *testing.T) {
		s, fsys := newStore(t)
		a, err := s.Album(ctx, "2019/06/01", true)
		require.NoError(t, err)

		item := a.CreateItem(storage.ItemFields{Filename: "IMG_0001.JPG", Created: created})
		present, err := item.Merge(ctx)
		require.NoError(t, err)
		assert.False(t, present)

		require.NoError(t, item.SaveContent(ctx, strings.NewReader("jpeg bytes")))

		data, err := afero.ReadFile(fsys, "/photos/2019/06/01/IMG_0001.JPG")
		require.NoError(t, err)
		assert.Equal(t, "jpeg bytes", string(data))

		info, err := fsys.Stat("/photos/2019/06/01/IMG_0001.JPG")
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(created), "mtime %v", info.ModTime())

		exists, _ := afero.Exists(fsys, "/photos/2019/06/01/IMG_0001.JPG"+partSuffix)
		assert.False(t, exists)

		present, err = a.CreateItem(storage.ItemFields{Filename: "IMG_0001.JPG"}).Merge(ctx)
		require.NoError(t, err)
		assert.True(t, present)
	})

	t.Run("merge does not touch existing file", func(t *testing.T) {
		s, fsys := newStore(t)
		a, _ := s.Album(ctx, "2019/06/01", true)
		p := "/photos/2019/06/01/IMG_0002.JPG"
		require.NoError(t, afero.WriteFile(fsys, p, []byte("existing"), 0o644))
		old := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, fsys.Chtimes(p, old, old))

		present, err := a.CreateItem(storage.ItemFields{Filename: "IMG_0002.JPG", Created: created}).Merge(ctx)
		require.NoError(t, err)
		assert.True(t, present)

		data, _ := afero.ReadFile(fsys, p)
		assert.Equal(t, "existing", string(data))
		info, _ := fsys.Stat(p)
		assert.True(t, info.ModTime().Equal(old))
	})

	t.Run("failed stream leaves nothing behind", func(t *testing.T) {
		s, fsys := newStore(t)
		a, _ := s.Album(ctx, "2019/06/01", true)
		item := a.CreateItem(storage.ItemFields{Filename: "IMG_0003.JPG", Created: created})

		boom := errors.New("connection reset")
		err := item.SaveContent(ctx, io.MultiReader(strings.NewReader("partial"), errReader{boom}))
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, storage.ErrStorage)

		present, err := item.Merge(ctx)
		require.NoError(t, err)
		assert.False(t, present)
		exists, _ := afero.Exists(fsys, "/photos/2019/06/01/IMG_0003.JPG"+partSuffix)
		assert.False(t, exists)
	})

	t.Run("write failure is a storage error", func(t *testing.T) {
		base := afero.NewMemMapFs()
		require.NoError(t, base.MkdirAll("/photos/2019/06/01", 0o755))
		fsys := &tu.FullDisk{Fs: base}
		a, err := New(fsys, "/photos").Album(ctx, "2019/06/01", false)
		require.NoError(t, err)
		item := a.CreateItem(storage.ItemFields{Filename: "IMG_0005.JPG", Created: created})

		err = item.SaveContent(ctx, strings.NewReader("content"))
		assert.ErrorIs(t, err, storage.ErrStorage)
		assert.ErrorIs(t, err, syscall.ENOSPC)

		exists, _ := afero.Exists(base, "/photos/2019/06/01/IMG_0005.JPG"+partSuffix)
		assert.False(t, exists)
	})

	t.Run("lookup and delete", func(t *testing.T) {
		s, fsys := newStore(t)
		a, _ := s.Album(ctx, "2019/06/01", true)
		require.NoError(t, afero.WriteFile(fsys, "/photos/2019/06/01/IMG_0004.JPG", []byte("x"), 0o644))

		_, err := a.Item(ctx, "missing.jpg")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		existing, err := a.Item(ctx, "IMG_0004.JPG")
		require.NoError(t, err)
		require.NoError(t, existing.Delete(ctx))
		require.NoError(t, existing.Delete(ctx), "delete must be idempotent")

		exists, _ := afero.Exists(fsys, "/photos/2019/06/01/IMG_0004.JPG")
		assert.False(t, exists)
	})
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

type fakeRunner struct {
	calls  [][]string
	result Result
	err    error
	fsys   afero.Fs
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (Result, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err == nil && f.result.ExitCode == 0 && f.fsys != nil {
		afero.WriteFile(f.fsys, args[len(args)-1], []byte("jpeg"), 0o644)
	}
	return f.result, f.err
}

func TestConversion(t *testing.T) {
	ctx := context.Background()

	t.Run("heic saved and converted", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		runner := &fakeRunner{fsys: fsys}
		s := New(fsys, "/photos", WithConverter(NewHEICConverter("", runner)))

		a, err := s.Album(ctx, "2019/06/01", true)
		require.NoError(t, err)
		require.NoError(t, a.CreateItem(storage.ItemFields{Filename: "IMG_0005.HEIC", Created: created}).SaveContent(ctx, strings.NewReader("heic")))

		require.Len(t, runner.calls, 1)
		assert.Equal(t, []string{"heif-convert", "-q", "95", "/photos/2019/06/01/IMG_0005.HEIC", "/photos/2019/06/01/IMG_0005.JPG"}, runner.calls[0])

		info, err := fsys.Stat("/photos/2019/06/01/IMG_0005.JPG")
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(created))
	})

	t.Run("non-heic skipped", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		runner := &fakeRunner{fsys: fsys}
		s := New(fsys, "/photos", WithConverter(NewHEICConverter("", runner)))
		a, _ := s.Album(ctx, "x", true)
		require.NoError(t, a.CreateItem(storage.ItemFields{Filename: "a.png", Created: created}).SaveContent(ctx, strings.NewReader("png")))
		assert.Empty(t, runner.calls)
	})

	t.Run("converter failure is not a save failure", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		runner := &fakeRunner{result: Result{ExitCode: 1, Stderr: "bad input"}}
		s := New(fsys, "/photos", WithConverter(NewHEICConverter("", runner)))
		a, _ := s.Album(ctx, "x", true)
		err := a.CreateItem(storage.ItemFields{Filename: "b.heic", Created: created}).SaveContent(ctx, strings.NewReader("heic"))
		require.NoError(t, err)

		exists, _ := afero.Exists(fsys, "/photos/x/b.jpg")
		assert.False(t, exists)
	})

	t.Run("exit status reported", func(t *testing.T) {
		c := NewHEICConverter("heif-convert", &fakeRunner{result: Result{ExitCode: 2, Stderr: "unsupported\n"}})
		_, err := c.Convert(ctx, "/x/a.heic")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 2: unsupported")
	})
}

func TestJPEGPath(t *testing.T) {
	tests := map[string]string{
		"/a/IMG_1.HEIC": "/a/IMG_1.JPG",
		"/a/img_1.heic": "/a/img_1.jpg",
		"/a/img.Heic":   "/a/img.jpg",
	}
	for in, want := range tests {
		assert.Equal(t, want, JPEGPath(in), in)
	}
}
