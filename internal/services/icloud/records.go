package icloud

import (
	"github.com/desertthunder/phx/internal/models"
)

type record struct {
	RecordName string        `json:"recordName"`
	RecordType string        `json:"recordType"`
	Fields     models.Fields `json:"fields"`
}

var desiredKeys = []string{
	"resOriginalRes", "resOriginalFileType",
	"resJPEGFullRes", "resJPEGFullFileType",
	"resJPEGMedRes", "resJPEGMedFileType",
	"resJPEGThumbRes", "resJPEGThumbFileType",
	"resVidMedRes", "resVidMedFileType",
	"resVidSmallRes", "resVidSmallFileType",
	"itemType", "filenameEnc", "assetDate", "addedDate", "isFavorite",
	"captionEnc", "locationEnc", "mediaMetaDataEnc",
	"masterRef", "recordName", "recordType",
}

// renditionFields maps each rendition to its field prefix on the master record.
var renditionFields = map[models.Kind]map[models.Rendition]string{
	models.KindPhoto: {
		models.Original: "resOriginal",
		models.Medium:   "resJPEGMed",
		models.Thumb:    "resJPEGThumb",
	},
	models.KindVideo: {
		models.Original: "resOriginal",
		models.Medium:   "resVidMed",
		models.Thumb:    "resVidSmall",
	},
}

const editedField = "resJPEGFull"

// pairRecords joins CPLAsset and CPLMaster records into items, keeping master order.
// It also returns the number of masters seen, which is what the rank advances by.
func pairRecords(records []record) ([]*models.RemoteItem, int) {
	assets := make(map[string]record)
	var masters []record
	for _, r := range records {
		switch r.RecordType {
		case "CPLAsset":
			if ref := masterRef(r.Fields); ref != "" {
				assets[ref] = r
			}
		case "CPLMaster":
			masters = append(masters, r)
		}
	}

	items := make([]*models.RemoteItem, 0, len(masters))
	for _, m := range masters {
		asset, ok := assets[m.RecordName]
		if !ok {
			continue
		}
		items = append(items, toRemoteItem(m, asset))
	}
	return items, len(masters)
}

func masterRef(fields models.Fields) string {
	ref, ok := fields["masterRef"].Value.(map[string]any)
	if !ok {
		return ""
	}
	name, _ := ref["recordName"].(string)
	return name
}

func toRemoteItem(master, asset record) *models.RemoteItem {
	item := &models.RemoteItem{
		ID:           master.RecordName,
		Filename:     decodeFilename(master.Fields["filenameEnc"]),
		Created:      msToTime(asset.Fields["assetDate"].Value),
		MasterFields: master.Fields,
		AssetFields:  asset.Fields,
		Versions:     make(map[models.Rendition]models.Version),
	}
	item.ItemType, _ = master.Fields["itemType"].String()
	if fav, ok := asset.Fields["isFavorite"].Value.(float64); ok {
		item.Favorite = fav == 1
	}

	for r, prefix := range renditionFields[item.Kind()] {
		if v, ok := version(master.Fields, prefix, item.Filename); ok {
			item.Versions[r] = v
		}
	}
	if v, ok := item.Versions[models.Original]; ok {
		item.Size = v.Size
	}
	if v, ok := version(asset.Fields, editedField, item.Filename); ok {
		item.Edited = &v
	}
	return item
}

func version(fields models.Fields, prefix, filename string) (models.Version, bool) {
	res, ok := fields[prefix+"Res"].Value.(map[string]any)
	if !ok {
		return models.Version{}, false
	}
	v := models.Version{Filename: filename}
	v.URL, _ = res["downloadURL"].(string)
	if size, ok := res["size"].(float64); ok {
		v.Size = int64(size)
	}
	v.Type, _ = fields[prefix+"FileType"].String()
	return v, true
}
