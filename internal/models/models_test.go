package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRendition(t *testing.T) {
	tests := []struct {
		in      string
		want    Rendition
		wantErr bool
	}{
		{"original", Original, false},
		{" Medium ", Medium, false},
		{"THUMB", Thumb, false},
		{"large", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRendition(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindFromType(t *testing.T) {
	assert.Equal(t, KindPhoto, KindFromType("public.jpeg"))
	assert.Equal(t, KindPhoto, KindFromType("public.heic"))
	assert.Equal(t, KindPhoto, KindFromType("com.adobe.raw-image"))
	assert.Equal(t, KindPhoto, KindFromType("public.image"))
	assert.Equal(t, KindVideo, KindFromType("com.apple.quicktime-movie"))
	assert.Equal(t, KindVideo, KindFromType(""))
	assert.Equal(t, "video", KindVideo.String())
}

func TestRemoteItem(t *testing.T) {
	item := &RemoteItem{
		Filename: "IMG_0001.JPG",
		ItemType: "public.jpeg",
		Versions: map[Rendition]Version{
			Original: {URL: "https://example.com/orig", Size: 100},
			Thumb:    {URL: "https://example.com/thumb", Size: 10},
		},
		AssetFields:  Fields{"captionEnc": {Type: "ENCRYPTED_BYTES", Value: "aGk="}},
		MasterFields: Fields{"captionEnc": {Type: "STRING", Value: "master"}, "filenameEnc": {Type: "STRING", Value: "x"}},
	}

	t.Run("extension and kind", func(t *testing.T) {
		assert.Equal(t, "jpg", item.Ext())
		assert.Equal(t, KindPhoto, item.Kind())
	})

	t.Run("version availability", func(t *testing.T) {
		assert.True(t, item.HasVersion(Original))
		assert.False(t, item.HasVersion(Medium))
	})

	t.Run("edited version replaces original only", func(t *testing.T) {
		edited := *item
		edited.Edited = &Version{URL: "https://example.com/edit", Size: 120}

		v, ok := edited.TransferVersion(Original)
		require.True(t, ok)
		assert.Equal(t, "https://example.com/edit", v.URL)

		v, ok = edited.TransferVersion(Thumb)
		require.True(t, ok)
		assert.Equal(t, "https://example.com/thumb", v.URL)

		_, ok = edited.TransferVersion(Medium)
		assert.False(t, ok)
	})

	t.Run("asset fields shadow master fields", func(t *testing.T) {
		f, ok := item.Field("captionEnc")
		require.True(t, ok)
		s, _ := f.String()
		assert.Equal(t, "aGk=", s)

		_, ok = item.Field("filenameEnc")
		assert.True(t, ok)

		_, ok = item.Field("missing")
		assert.False(t, ok)
	})
}

func TestSyncRun(t *testing.T) {
	t.Run("new run validates", func(t *testing.T) {
		run := NewSyncRun("/photos", "filesystem", "full", "original")
		require.NoError(t, run.Validate())
		assert.Equal(t, RunRunning, run.Status())
		assert.Equal(t, -1, run.Counts().Total)
	})

	t.Run("finish statuses", func(t *testing.T) {
		run := NewSyncRun("/photos", "filesystem", "until-found", "original")
		run.Finish(RunCounts{Processed: 3, Existing: 3}, true, nil)
		assert.Equal(t, RunStopped, run.Status())
		assert.True(t, run.StoppedEarly())
		require.NoError(t, run.Validate())

		failed := NewSyncRun("/photos", "filesystem", "full", "original")
		failed.Finish(RunCounts{}, false, errors.New("disk full"))
		assert.Equal(t, RunFailed, failed.Status())
		assert.Equal(t, "disk full", failed.ErrorMessage())
		assert.GreaterOrEqual(t, failed.Duration(), time.Duration(0))
	})

	t.Run("missing destination", func(t *testing.T) {
		run := NewSyncRun("", "filesystem", "full", "original")
		assert.Error(t, run.Validate())
	})
}
