// Package reporting mirrors notification log entries into Elasticsearch for
// dashboards and searches them back.
package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/common/logger"
	"expiry-reminders/internal/models"
)

const maxSearchSize = 100

// Indexer writes log entries to one index, keyed by entry id so a re-index
// of the same entry overwrites rather than duplicates.
type Indexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "log-indexer", "index": index}),
	}
}

type document struct {
	models.LogEntry
	Key string `json:"key"`
}

// Index implements reminder.LogSink.
func (i *Indexer) Index(ctx context.Context, entry models.LogEntry) error {
	body, err := json.Marshal(document{LogEntry: entry, Key: entry.Key().String()})
	if err != nil {
		return apperrors.NewIndexingFailedError(i.index, err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: entry.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return apperrors.NewIndexingFailedError(i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.NewIndexingFailedError(i.index, fmt.Errorf("index entry %s: %s", entry.ID, res.Status()))
	}
	i.logger.Debug("log entry indexed", map[string]interface{}{"entryId": entry.ID})
	return nil
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":                {"type": "keyword"},
      "key":               {"type": "keyword"},
      "batchId":           {"type": "keyword"},
      "itemId":            {"type": "long"},
      "recipientId":       {"type": "long"},
      "channel":           {"type": "keyword"},
      "offset":            {"type": "integer"},
      "status":            {"type": "keyword"},
      "attempts":          {"type": "integer"},
      "message":           {"type": "text"},
      "providerMessageId": {"type": "keyword"},
      "errorDetail":       {"type": "text"},
      "sentAt":            {"type": "date"}
    }
  }
}`

// EnsureIndex creates the index with keyword mappings when it is missing.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	exists, err := esapi.IndicesExistsRequest{Index: []string{i.index}}.Do(ctx, i.client)
	if err != nil {
		return apperrors.NewExternalServiceError("elasticsearch", err)
	}
	exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}

	res, err := esapi.IndicesCreateRequest{Index: i.index, Body: strings.NewReader(indexMapping)}.Do(ctx, i.client)
	if err != nil {
		return apperrors.NewExternalServiceError("elasticsearch", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 400 {
		return apperrors.NewExternalServiceError("elasticsearch", fmt.Errorf("create index %s: %s", i.index, res.Status()))
	}
	i.logger.Info("log index ready", nil)
	return nil
}

// Filter narrows a log search. Zero values match everything.
type Filter struct {
	ItemID  int64
	Channel models.ChannelName
	Status  models.LogStatus
	BatchID string
	Since   time.Time
	From    int
	Size    int
}

type SearchResult struct {
	Total   int64             `json:"total"`
	Entries []models.LogEntry `json:"entries"`
}

// Search returns entries matching f, newest first.
func (i *Indexer) Search(ctx context.Context, f Filter) (*SearchResult, error) {
	body, err := json.Marshal(buildQuery(f))
	if err != nil {
		return nil, err
	}

	size := f.Size
	if size <= 0 {
		size = 20
	}
	if size > maxSearchSize {
		size = maxSearchSize
	}
	from := max(f.From, 0)

	req := esapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, apperrors.NewExternalServiceError("elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, apperrors.NewExternalServiceError("elasticsearch", fmt.Errorf("search failed: %s: %s", res.Status(), raw))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.LogEntry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewExternalServiceError("elasticsearch", err)
	}

	out := &SearchResult{Total: parsed.Hits.Total.Value, Entries: make([]models.LogEntry, 0, len(parsed.Hits.Hits))}
	for _, hit := range parsed.Hits.Hits {
		out.Entries = append(out.Entries, hit.Source)
	}
	return out, nil
}

func buildQuery(f Filter) map[string]interface{} {
	filters := []interface{}{}
	if f.ItemID != 0 {
		filters = append(filters, term("itemId", f.ItemID))
	}
	if f.Channel != "" {
		filters = append(filters, term("channel", string(f.Channel)))
	}
	if f.Status != "" {
		filters = append(filters, term("status", string(f.Status)))
	}
	if f.BatchID != "" {
		filters = append(filters, term("batchId", f.BatchID))
	}
	if !f.Since.IsZero() {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{
				"sentAt": map[string]interface{}{"gte": f.Since.UTC().Format(time.RFC3339)},
			},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		},
		"sort": []interface{}{
			map[string]interface{}{"sentAt": map[string]interface{}{"order": "desc"}},
		},
	}
}

func term(field string, value interface{}) map[string]interface{} {
	return map[string]interface{}{"term": map[string]interface{}{field: value}}
}
