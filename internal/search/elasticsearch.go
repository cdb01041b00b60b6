package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticIndex implements Index against a single Elasticsearch index.
type ElasticIndex struct {
	client *elasticsearch.Client
	index  string
	logger *slog.Logger
}

// NewElasticIndex connects to Elasticsearch and creates the index if it
// does not exist yet.
func NewElasticIndex(ctx context.Context, url, index string, logger *slog.Logger) (*ElasticIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	idx := &ElasticIndex{
		client: client,
		index:  index,
		logger: logger.With("component", "elastic_index"),
	}
	if err := idx.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (e *ElasticIndex) ensureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{e.index}}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("check index %q: %w", e.index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index %q: %s", e.index, res.String())
	}

	createRes, err := esapi.IndicesCreateRequest{Index: e.index}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("create index %q: %w", e.index, err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		return fmt.Errorf("create index %q: %s", e.index, createRes.String())
	}
	e.logger.Info("created search index", "index", e.index)
	return nil
}

func (e *ElasticIndex) Upsert(ctx context.Context, doc IndexedDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode projection %d: %w", doc.ID, err)
	}

	res, err := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: strconv.FormatUint(doc.ID, 10),
		Body:       bytes.NewReader(body),
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("upsert projection %d: %w", doc.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("upsert projection %d: %s", doc.ID, res.String())
	}
	return nil
}

func (e *ElasticIndex) Delete(ctx context.Context, id uint64) error {
	res, err := esapi.DeleteRequest{
		Index:      e.index,
		DocumentID: strconv.FormatUint(id, 10),
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("delete projection %d: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete projection %d: %s", id, res.String())
	}
	return nil
}

func (e *ElasticIndex) Search(ctx context.Context, query string, tags []string, limit int) ([]Hit, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	body, err := json.Marshal(map[string]any{
		"size":  limit,
		"query": buildQuery(query, tags),
	})
	if err != nil {
		return nil, err
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID    string   `json:"_id"`
				Score *float64 `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		id, err := strconv.ParseUint(h.ID, 10, 64)
		if err != nil {
			continue
		}
		score := 0.0
		if h.Score != nil {
			score = *h.Score
		}
		hits = append(hits, Hit{DocumentID: id, Score: score})
	}
	return hits, nil
}

func buildQuery(query string, tags []string) map[string]any {
	hasQuery := query != ""
	hasTags := len(tags) > 0

	if !hasQuery && !hasTags {
		return map[string]any{"match_all": map[string]any{}}
	}

	must := map[string]any{"match_all": map[string]any{}}
	if hasQuery {
		must = map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"content", "filename", "tags"},
			},
		}
	}

	boolQuery := map[string]any{"must": must}
	if hasTags {
		boolQuery["filter"] = map[string]any{
			"terms": map[string]any{"tags.keyword": tags},
		}
	}
	return map[string]any{"bool": boolQuery}
}

var _ Index = (*ElasticIndex)(nil)
