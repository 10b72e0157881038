package icloud

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/desertthunder/phx/internal/models"
	"github.com/desertthunder/phx/internal/services"
	"github.com/desertthunder/phx/internal/shared"
)

const (
	defaultPageSize = 100
	primaryZone     = "PrimarySync"
)

// listQuery names the CloudKit indexes backing a smart album.
type listQuery struct {
	name       string
	objectType string
	listType   string
}

var (
	allPhotos = listQuery{
		name:       "All Photos",
		objectType: "CPLAssetByAssetDateWithoutHiddenOrDeleted",
		listType:   "CPLAssetAndMasterByAssetDateWithoutHiddenOrDeleted",
	}
	recentlyDeleted = listQuery{
		name:       "Recently Deleted",
		objectType: "CPLAssetDeletedByExpungedDate",
		listType:   "CPLAssetAndMasterDeletedByExpungedDate",
	}
)

// PhotosOption configures a [Photos] library handle.
type PhotosOption func(*Photos)

// WithPageSize sets the number of items fetched per query.
func WithPageSize(n int) PhotosOption {
	return func(p *Photos) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// Photos is the iCloud photo library. It implements [services.Source].
type Photos struct {
	client   *Client
	endpoint string
	pageSize int
}

var _ services.Source = (*Photos)(nil)

// All returns the library ordered newest first.
func (p *Photos) All(ctx context.Context) (services.Collection, error) {
	return &Collection{photos: p, query: allPhotos}, nil
}

// RecentlyDeleted returns the trash ordered newest first.
func (p *Photos) RecentlyDeleted(ctx context.Context) (services.Collection, error) {
	return &Collection{photos: p, query: recentlyDeleted}, nil
}

// Download opens the content stream for v.
func (p *Photos) Download(ctx context.Context, v models.Version) (io.ReadCloser, error) {
	if v.URL == "" {
		return nil, services.ErrNoURL
	}
	if err := p.client.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: download %s returned status %d", shared.ErrAPIRequest, v.Filename, resp.StatusCode)
	}
	return resp.Body, nil
}

func (p *Photos) checkIndexingState(ctx context.Context) error {
	q := map[string]any{
		"query":  map[string]any{"recordType": "CheckIndexingState"},
		"zoneID": map[string]string{"zoneName": primaryZone},
	}

	var resp struct {
		Records []struct {
			Fields struct {
				State struct {
					Value string `json:"value"`
				} `json:"state"`
			} `json:"fields"`
		} `json:"records"`
	}
	if err := p.query(ctx, "records/query", q, &resp); err != nil {
		return fmt.Errorf("failed to check indexing state: %w", err)
	}
	if len(resp.Records) == 0 || resp.Records[0].Fields.State.Value != "FINISHED" {
		return shared.ErrIndexing
	}
	return nil
}

func (p *Photos) count(ctx context.Context, objectType string) (int, error) {
	q := map[string]any{
		"batch": []map[string]any{{
			"resultsLimit": 1,
			"query": map[string]any{
				"filterBy": map[string]any{
					"fieldName":  "indexCountID",
					"fieldValue": map[string]any{"type": "STRING_LIST", "value": []string{objectType}},
					"comparator": "IN",
				},
				"recordType": "HyperionIndexCountLookup",
			},
			"zoneWide": true,
			"zoneID":   map[string]string{"zoneName": primaryZone},
		}},
	}

	var resp struct {
		Batch []struct {
			Records []struct {
				Fields struct {
					ItemCount struct {
						Value int `json:"value"`
					} `json:"itemCount"`
				} `json:"fields"`
			} `json:"records"`
		} `json:"batch"`
	}
	if err := p.query(ctx, "internal/records/query/batch", q, &resp); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	if len(resp.Batch) == 0 || len(resp.Batch[0].Records) == 0 {
		return 0, nil
	}
	return resp.Batch[0].Records[0].Fields.ItemCount.Value, nil
}

// page fetches up to pageSize items walking down from rank. It also reports how many ranks
// the page covered.
func (p *Photos) page(ctx context.Context, q listQuery, rank int) ([]*models.RemoteItem, int, error) {
	body := map[string]any{
		"query": map[string]any{
			"filterBy": []map[string]any{
				{
					"fieldName":  "startRank",
					"fieldValue": map[string]any{"type": "INT64", "value": rank},
					"comparator": "EQUALS",
				},
				{
					"fieldName":  "direction",
					"fieldValue": map[string]any{"type": "STRING", "value": "DESCENDING"},
					"comparator": "EQUALS",
				},
			},
			"recordType": q.listType,
		},
		// each item is an asset record plus its master record
		"resultsLimit": p.pageSize * 2,
		"desiredKeys":  desiredKeys,
		"zoneID":       map[string]string{"zoneName": primaryZone},
	}

	var resp struct {
		Records []record `json:"records"`
	}
	if err := p.query(ctx, "records/query", body, &resp); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch %s: %w", q.name, err)
	}
	items, n := pairRecords(resp.Records)
	return items, n, nil
}

func (p *Photos) query(ctx context.Context, endpoint string, body, out any) error {
	params := url.Values{
		"remapEnums":          {"true"},
		"getCurrentSyncToken": {"true"},
	}
	for k, v := range p.client.params() {
		params[k] = v
	}
	return p.client.request(ctx, http.MethodPost, p.endpoint+"/"+endpoint, params, body, "text/plain", out)
}

// Collection is one smart album of the library.
type Collection struct {
	photos *Photos
	query  listQuery

	mu    sync.Mutex
	count *int
}

var _ services.Collection = (*Collection)(nil)

func (c *Collection) Name() string { return c.query.name }

// Len returns the item count, fetched once and cached.
func (c *Collection) Len(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count != nil {
		return *c.count, nil
	}
	n, err := c.photos.count(ctx, c.query.objectType)
	if err != nil {
		return 0, err
	}
	c.count = &n
	return n, nil
}

// Iterator walks the collection from rank len-1 downwards so the newest item comes first.
func (c *Collection) Iterator() services.Iterator {
	return &iterator{coll: c, rank: -1}
}

type iterator struct {
	coll    *Collection
	rank    int
	started bool
	done    bool
	buf     []*models.RemoteItem
}

func (it *iterator) Next(ctx context.Context) (*models.RemoteItem, error) {
	for len(it.buf) == 0 {
		if it.done {
			return nil, io.EOF
		}
		if err := it.fill(ctx); err != nil {
			return nil, err
		}
	}
	item := it.buf[0]
	it.buf = it.buf[1:]
	return item, nil
}

// fill loads the next page. A failed fetch leaves the position unchanged so Next can be retried.
func (it *iterator) fill(ctx context.Context) error {
	if !it.started {
		n, err := it.coll.Len(ctx)
		if err != nil {
			return err
		}
		it.rank = n - 1
		it.started = true
	}
	if it.rank < 0 {
		it.done = true
		return nil
	}

	items, n, err := it.coll.photos.page(ctx, it.coll.query, it.rank)
	if err != nil {
		return err
	}
	if n == 0 {
		it.done = true
		return nil
	}
	it.rank -= n
	it.buf = items
	return nil
}

func msToTime(v any) time.Time {
	ms, ok := v.(float64)
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

func decodeFilename(f models.Field) string {
	s, ok := f.String()
	if !ok {
		return ""
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return string(b)
	}
	return s
}
