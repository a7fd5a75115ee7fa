package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/samber/lo"
)

// mapping is the projection schema. The text lives in "message", matching
// the field name used by the document store.
const mapping = `{
  "mappings": {
    "properties": {
      "id":        { "type": "text" },
      "message":   { "type": "text" },
      "createdAt": { "type": "date" }
    }
  }
}`

type document struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type hit struct {
	Source document `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []hit `json:"hits"`
	} `json:"hits"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// Index is the search side projection of messages.
type Index struct {
	es    *elasticsearch.Client
	name  string
	ready atomic.Bool
}

func NewIndex(es *elasticsearch.Client, name string) *Index {
	return &Index{es: es, name: name}
}

func (i *Index) Name() string {
	return i.name
}

// EnsureIndex creates the index with the projection mapping unless it
// already exists. Safe to call from several processes at once.
func (i *Index) EnsureIndex(ctx context.Context) error {
	res, err := i.es.Indices.Exists([]string{i.name}, i.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: check index %s: %w", message.ErrIndexUnavailable, i.name, err)
	}
	drain(res)

	switch res.StatusCode {
	case http.StatusOK:
		i.ready.Store(true)
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("%w: check index %s: status %d", message.ErrIndexUnavailable, i.name, res.StatusCode)
	}

	res, err = i.es.Indices.Create(i.name,
		i.es.Indices.Create.WithContext(ctx),
		i.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("%w: create index %s: %w", message.ErrIndexUnavailable, i.name, err)
	}
	defer drain(res)

	if res.IsError() {
		apiErr := decodeError(res)
		if apiErr.Error.Type == "resource_already_exists_exception" {
			i.ready.Store(true)
			return nil
		}
		return fmt.Errorf("%w: create index %s: %s", message.ErrIndexUnavailable, i.name, describe(res.StatusCode, apiErr))
	}

	i.ready.Store(true)
	return nil
}

// Upsert writes the projection of m under its id. Writing the same message
// twice leaves a single document.
func (i *Index) Upsert(ctx context.Context, m message.Message) error {
	if !i.ready.Load() {
		// Never let the first write create the index with a dynamic mapping.
		if err := i.EnsureIndex(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(toDocument(m))
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", m.ID, err)
	}

	res, err := i.es.Index(i.name, bytes.NewReader(body),
		i.es.Index.WithContext(ctx),
		i.es.Index.WithDocumentID(m.ID),
	)
	if err != nil {
		return fmt.Errorf("%w: index document %s: %w", message.ErrIndexUnavailable, m.ID, err)
	}
	defer drain(res)

	if res.IsError() {
		return fmt.Errorf("%w: index document %s: %s", message.ErrIndexUnavailable, m.ID, describe(res.StatusCode, decodeError(res)))
	}

	return nil
}

// Search runs a match query against the message text.
func (i *Index) Search(ctx context.Context, text string, from, size int) (*message.SearchResult, error) {
	query := map[string]any{
		"query": map[string]any{
			"match": map[string]any{
				"message": text,
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	res, err := i.es.Search(
		i.es.Search.WithContext(ctx),
		i.es.Search.WithIndex(i.name),
		i.es.Search.WithBody(bytes.NewReader(body)),
		i.es.Search.WithFrom(from),
		i.es.Search.WithSize(size),
		i.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", message.ErrIndexUnavailable, err)
	}
	defer drain(res)

	if res.IsError() {
		return nil, fmt.Errorf("%w: search: %s", message.ErrIndexUnavailable, describe(res.StatusCode, decodeError(res)))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %w", message.ErrIndexUnavailable, err)
	}

	results := lo.Map(sr.Hits.Hits, func(h hit, _ int) message.Message {
		return h.Source.toDomain()
	})

	return &message.SearchResult{
		Results: results,
		Total:   sr.Hits.Total.Value,
	}, nil
}

// Health reports the cluster status: green, yellow or red.
func (i *Index) Health(ctx context.Context) (string, error) {
	res, err := i.es.Cluster.Health(i.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("%w: cluster health: %w", message.ErrIndexUnavailable, err)
	}
	defer drain(res)

	if res.IsError() {
		return "", fmt.Errorf("%w: cluster health: %s", message.ErrIndexUnavailable, describe(res.StatusCode, decodeError(res)))
	}

	var hr healthResponse
	if err := json.NewDecoder(res.Body).Decode(&hr); err != nil {
		return "", fmt.Errorf("%w: decode cluster health: %w", message.ErrIndexUnavailable, err)
	}
	return hr.Status, nil
}

func toDocument(m message.Message) document {
	return document{ID: m.ID, Message: m.Text, CreatedAt: m.CreatedAt}
}

func (d document) toDomain() message.Message {
	return message.Message{ID: d.ID, Text: d.Message, CreatedAt: d.CreatedAt}
}

func decodeError(res *esapi.Response) errorResponse {
	var er errorResponse
	_ = json.NewDecoder(res.Body).Decode(&er)
	return er
}

func describe(status int, er errorResponse) string {
	if er.Error.Type == "" {
		return fmt.Sprintf("status %d", status)
	}
	return fmt.Sprintf("status %d: %s: %s", status, er.Error.Type, er.Error.Reason)
}

func drain(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
