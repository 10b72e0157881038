// Package metadata decodes the optional encoded payloads carried on remote asset records.
//
// Three fields are read, each optional:
//   - locationEnc (asset record): base64 binary plist with lat/lon, read for videos only
//   - mediaMetaDataEnc (master record): base64 binary plist with an ImageDescription entry
//   - captionEnc (asset record): base64 raw bytes used verbatim as the title
//
// Absent fields yield zero values. Malformed payloads are reported but never stop extraction
// of the remaining fields.
package metadata

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/desertthunder/phx/internal/models"
	"howett.net/plist"
)

const (
	FieldLocation  = "locationEnc"
	FieldMediaMeta = "mediaMetaDataEnc"
	FieldCaption   = "captionEnc"
	FieldFavorite  = "isFavorite"
	keyLatitude    = "lat"
	keyLongitude   = "lon"
	keyDescription = "ImageDescription"
)

// Metadata is the decoded per-item descriptive data.
type Metadata struct {
	Title       string
	Description string
	Latitude    *float64
	Longitude   *float64
	Rating      int
}

// HasLocation reports whether both coordinates were decoded.
func (m Metadata) HasLocation() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// Extract decodes the optional payloads of item. The returned Metadata is always usable;
// a non-nil error lists payloads that were present but could not be decoded.
func Extract(item *models.RemoteItem) (Metadata, error) {
	var md Metadata
	var errs []error

	if item.Kind() != models.KindPhoto {
		if raw, ok := encoded(item.AssetFields, FieldLocation); ok {
			lat, lon, err := decodeLocation(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", FieldLocation, err))
			}
			md.Latitude, md.Longitude = lat, lon
		}
	}

	if raw, ok := encoded(item.MasterFields, FieldMediaMeta); ok {
		desc, err := decodeDescription(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", FieldMediaMeta, err))
		}
		md.Description = desc
	}

	if raw, ok := encoded(item.AssetFields, FieldCaption); ok {
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", FieldCaption, err))
		} else {
			md.Title = string(b)
		}
	}

	if f, ok := item.AssetFields[FieldFavorite]; ok {
		md.Rating = toInt(f.Value)
	} else if item.Favorite {
		md.Rating = 1
	}

	return md, errors.Join(errs...)
}

func encoded(fields models.Fields, name string) (string, bool) {
	f, ok := fields[name]
	if !ok {
		return "", false
	}
	s, ok := f.String()
	return s, ok && s != ""
}

func decodePlist(raw string) (map[string]any, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if _, err := plist.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeLocation(raw string) (*float64, *float64, error) {
	dict, err := decodePlist(raw)
	if err != nil {
		return nil, nil, err
	}
	lat, latOK := toFloat(dict[keyLatitude])
	lon, lonOK := toFloat(dict[keyLongitude])
	if !latOK || !lonOK {
		return nil, nil, nil
	}
	return &lat, &lon, nil
}

func decodeDescription(raw string) (string, error) {
	dict, err := decodePlist(raw)
	if err != nil {
		return "", err
	}
	s, _ := dict[keyDescription].(string)
	return s, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) int {
	switch n := v.(type) {
	case bool:
		if n {
			return 1
		}
	case float64:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	}
	return 0
}
