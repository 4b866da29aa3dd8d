package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/umputun/spacefeed/pkg/domain"
)

// Decoder turns raw feed payloads into records for the store.
// A payload which can't be decoded completely is rejected as a whole.
type Decoder struct {
	MaxDatasets int // records taken from one catalog payload, default 10
	Now         func() time.Time

	policy *bluemonday.Policy
}

// NewDecoder makes a decoder keeping at most maxDatasets catalog entries per payload
func NewDecoder(maxDatasets int) *Decoder {
	if maxDatasets <= 0 {
		maxDatasets = 10
	}
	return &Decoder{MaxDatasets: maxDatasets, Now: time.Now, policy: bluemonday.StrictPolicy()}
}

// Decode converts payload of the feed into upsert records, all errors are permanent *Error
func (d *Decoder) Decode(feed domain.FeedID, payload []byte) ([]domain.Record, error) {
	var recs []domain.Record
	var err error
	switch feed {
	case domain.FeedISS:
		recs, err = d.decodeISS(payload)
	case domain.FeedAPOD:
		recs, err = d.decodeAPOD(payload)
	case domain.FeedOSDR:
		recs, err = d.decodeDatasets(payload)
	case domain.FeedImages:
		recs, err = d.decodeImages(payload)
	default:
		err = errors.New("no decoder")
	}
	if err != nil {
		return nil, permanent(feed, fmt.Errorf("decode payload: %w", err))
	}
	return recs, nil
}

type issResponse struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Position  *struct {
		Latitude  json.Number `json:"latitude"`
		Longitude json.Number `json:"longitude"`
	} `json:"iss_position"`
}

func (d *Decoder) decodeISS(payload []byte) ([]domain.Record, error) {
	var resp issResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}
	if resp.Message != "" && resp.Message != "success" {
		return nil, fmt.Errorf("upstream message %q", resp.Message)
	}
	if resp.Position == nil || resp.Timestamp <= 0 {
		return nil, errors.New("missing position or timestamp")
	}

	lat, err := resp.Position.Latitude.Float64()
	if err != nil {
		return nil, fmt.Errorf("latitude: %w", err)
	}
	lon, err := resp.Position.Longitude.Float64()
	if err != nil {
		return nil, fmt.Errorf("longitude: %w", err)
	}

	pos := domain.ISSPosition{Timestamp: resp.Timestamp, Latitude: lat, Longitude: lon, Visibility: "visible"}
	if err := pos.Validate(); err != nil {
		return nil, err
	}
	return []domain.Record{{Entity: domain.EntityPositions, Key: pos.Timestamp, Fields: pos.Fields()}}, nil
}

type apodResponse struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	URL         string `json:"url"`
	HDURL       string `json:"hdurl"`
	MediaType   string `json:"media_type"`
	Copyright   string `json:"copyright"`
}

// decodeAPOD accepts a single picture or a list of them, as returned with the count parameter
func (d *Decoder) decodeAPOD(payload []byte) ([]domain.Record, error) {
	var list []apodResponse
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
	} else {
		var one apodResponse
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, err
		}
		list = append(list, one)
	}

	now := d.Now()
	recs := make([]domain.Record, 0, len(list))
	for _, p := range list {
		if _, err := time.Parse("2006-01-02", p.Date); err != nil {
			return nil, fmt.Errorf("picture date %q: %w", p.Date, err)
		}
		if p.MediaType == "" {
			p.MediaType = "image"
		}
		recs = append(recs, domain.Record{Entity: domain.EntityPictures, Key: p.Date, Fields: map[string]any{
			"title":       p.Title,
			"explanation": p.Explanation,
			"url":         p.URL,
			"hd_url":      p.HDURL,
			"media_type":  p.MediaType,
			"copyright":   strings.TrimSpace(p.Copyright),
			"fetched_at":  now,
		}})
	}
	return recs, nil
}

// decodeDatasets accepts the catalog either as a list of objects with "id"
// or as an object keyed by dataset id. Keyed entries are taken in id order.
func (d *Decoder) decodeDatasets(payload []byte) ([]domain.Record, error) {
	type entry struct {
		id   string
		item map[string]any
	}
	var entries []entry

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []map[string]any
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		for _, item := range list {
			entries = append(entries, entry{id: str(item["id"]), item: item})
		}
	} else {
		var keyed map[string]map[string]any
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(keyed))
		for id := range keyed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			entries = append(entries, entry{id: id, item: keyed[id]})
		}
	}

	now := d.Now()
	recs := make([]domain.Record, 0, d.MaxDatasets)
	for _, e := range entries {
		if len(recs) >= d.MaxDatasets {
			break
		}
		if e.id == "" {
			return nil, errors.New("dataset without id")
		}
		raw, err := json.Marshal(e.item)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", e.id, err)
		}
		recs = append(recs, domain.Record{Entity: domain.EntityDatasets, Key: e.id, Fields: map[string]any{
			"title":        str(e.item["title"]),
			"description":  str(e.item["description"]),
			"mission":      str(e.item["mission"]),
			"instrument":   str(e.item["instrument"]),
			"data_type":    str(e.item["data_type"]),
			"file_size_mb": num(e.item["file_size_mb"]),
			"raw_data":     string(raw),
			"fetched_at":   now,
			"updated_at":   now,
		}})
	}
	return recs, nil
}

func (d *Decoder) decodeImages(payload []byte) ([]domain.Record, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	now := d.Now()
	recs := make([]domain.Record, 0, len(feed.Items))
	for _, item := range feed.Items {
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		if guid == "" {
			continue
		}

		published := now
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}

		recs = append(recs, domain.Record{Entity: domain.EntityImages, Key: guid, Fields: map[string]any{
			"title":       strings.TrimSpace(item.Title),
			"link":        item.Link,
			"description": strings.TrimSpace(d.policy.Sanitize(item.Description)),
			"image_url":   imageURL(item),
			"published":   published.UTC(),
			"fetched_at":  now,
		}})
	}
	return recs, nil
}

// imageURL returns the item image, enclosure or first img of the item html, whichever is set first
func imageURL(item *gofeed.Item) string {
	if item.Image != nil {
		if u := strings.TrimSpace(item.Image.URL); u != "" {
			return u
		}
	}
	for _, enc := range item.Enclosures {
		if enc == nil || !strings.HasPrefix(enc.Type, "image/") {
			continue
		}
		if u := strings.TrimSpace(enc.URL); u != "" {
			return u
		}
	}
	return firstImg(item.Content + item.Description)
}

// firstImg returns src of the first img tag in the html fragment
func firstImg(fragment string) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

func str(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// num returns nil for missing or non-numeric values so the column stays NULL
func num(v any) *float64 {
	switch val := v.(type) {
	case float64:
		return &val
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return &f
		}
	}
	return nil
}
