package models

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Rendition is a named size variant of a remote asset.
type Rendition string

const (
	Original Rendition = "original"
	Medium   Rendition = "medium"
	Thumb    Rendition = "thumb"
)

// Renditions lists every rendition in preference order.
var Renditions = []Rendition{Original, Medium, Thumb}

// ParseRendition validates a user-supplied size name.
func ParseRendition(s string) (Rendition, error) {
	r := Rendition(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case Original, Medium, Thumb:
		return r, nil
	}
	return "", fmt.Errorf("unknown size %q (want original, medium or thumb)", s)
}

func (r Rendition) String() string { return string(r) }

// Kind distinguishes still images from everything else.
type Kind int

const (
	KindPhoto Kind = iota
	KindVideo
)

func (k Kind) String() string {
	if k == KindPhoto {
		return "photo"
	}
	return "video"
}

// photoTypes are the uniform type identifiers reported for still images. All of them carry
// their location in embedded image metadata.
var photoTypes = map[string]bool{
	"public.jpeg":             true,
	"public.png":              true,
	"public.heic":             true,
	"public.heif":             true,
	"public.tiff":             true,
	"public.camera-raw-image": true,
	"com.adobe.raw-image":     true,
	"com.compuserve.gif":      true,
	"com.canon.cr2-raw-image": true,
	"com.nikon.raw-image":     true,
	"com.sony.arw-raw-image":  true,
}

// KindFromType maps a remote type tag to a [Kind]. Unknown tags are treated as video.
func KindFromType(tag string) Kind {
	if photoTypes[tag] || strings.HasPrefix(tag, "public.image") {
		return KindPhoto
	}
	return KindVideo
}

// Version is one downloadable rendition.
type Version struct {
	Filename string
	URL      string
	Size     int64
	Type     string
}

// Field is one raw record field as reported by the remote library.
type Field struct {
	Type  string
	Value any
}

// String returns the field value when it is a string.
func (f Field) String() (string, bool) {
	s, ok := f.Value.(string)
	return s, ok
}

// Fields is a record's field map.
type Fields map[string]Field

// RemoteItem is a read-only handle into the remote collection.
type RemoteItem struct {
	ID       string
	Filename string
	ItemType string
	Created  time.Time
	Size     int64
	Favorite bool

	Versions map[Rendition]Version
	// Edited is the full-resolution edited rendition, when the asset was edited remotely.
	Edited *Version

	// MasterFields and AssetFields hold the raw record fields, including encoded sub-payloads.
	MasterFields Fields
	AssetFields  Fields
}

// Kind reports whether the item is a photo or a video.
func (i *RemoteItem) Kind() Kind {
	return KindFromType(i.ItemType)
}

// Ext returns the lower-cased filename extension without the dot.
func (i *RemoteItem) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(i.Filename)), ".")
}

// HasVersion reports whether the rendition is available for this item.
func (i *RemoteItem) HasVersion(r Rendition) bool {
	_, ok := i.Versions[r]
	return ok
}

// TransferVersion returns the version to download for r.
// An edited rendition takes precedence over the stored original.
func (i *RemoteItem) TransferVersion(r Rendition) (Version, bool) {
	if r == Original && i.Edited != nil && i.Edited.URL != "" {
		return *i.Edited, true
	}
	v, ok := i.Versions[r]
	return v, ok
}

// Field looks a raw field up on the asset record first, then on the master record.
func (i *RemoteItem) Field(name string) (Field, bool) {
	if f, ok := i.AssetFields[name]; ok {
		return f, true
	}
	f, ok := i.MasterFields[name]
	return f, ok
}
