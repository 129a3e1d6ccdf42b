// Package search stores analysis records in Elasticsearch and queries them.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sirupsen/logrus"

	cfg "github.com/maastricht-university/audio-analyzer/config"
	"github.com/maastricht-university/audio-analyzer/errs"
)

// MaxPageSize caps List and Search page sizes.
const MaxPageSize = 200

// Document is a stored record. Reads include "id" and, for searches, "score".
type Document map[string]any

// Stats summarises the index.
type Stats struct {
	Total             int64            `json:"total"`
	Emotions          map[string]int64 `json:"emotions"`
	AverageConfidence float64          `json:"averageConfidence"`
	TopEmotion        string           `json:"topEmotion"`
}

// ClusterInfo is the subset of the root endpoint we report.
type ClusterInfo struct {
	ClusterName string `json:"cluster_name"`
	Version     struct {
		Number string `json:"number"`
	} `json:"version"`
}

// Index is a facade over one Elasticsearch index.
type Index struct {
	es   *elasticsearch.Client
	name string
	log  logrus.FieldLogger
}

// New builds a client. It does not contact the cluster.
func New(c cfg.Elastic, log logrus.FieldLogger) (*Index, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: c.Addresses,
		APIKey:    c.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}
	return &Index{es: es, name: c.Index, log: log.WithField("index", c.Index)}, nil
}

func (x *Index) Name() string { return x.name }

// mapping mirrors the fields written by the analysis pipeline.
var mapping = map[string]any{
	"settings": map[string]any{
		"number_of_shards": 1,
		"analysis": map[string]any{
			"analyzer": map[string]any{
				"default": map[string]any{"type": "standard"},
			},
		},
	},
	"mappings": map[string]any{
		"properties": map[string]any{
			"fileName":            map[string]any{"type": "text"},
			"trackId":             map[string]any{"type": "keyword"},
			"transcription":       map[string]any{"type": "text"},
			"transcriptionVector": map[string]any{"type": "dense_vector", "dims": 384, "index": true, "similarity": "cosine"},
			"title":               map[string]any{"type": "text"},
			"artist":              map[string]any{"type": "text"},
			"album":               map[string]any{"type": "text"},
			"genre":               map[string]any{"type": "keyword"},
			"emotions":            map[string]any{"type": "keyword"},
			"primaryEmotions":     map[string]any{"type": "keyword"},
			"keywords":            map[string]any{"type": "text"},
			"confidence":          map[string]any{"type": "integer"},
			"duration":            map[string]any{"type": "float"},
			"bitRate":             map[string]any{"type": "integer"},
			"timestamp":           map[string]any{"type": "date"},
			"scores":              map[string]any{"type": "object"},
		},
	},
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (x *Index) EnsureIndex(ctx context.Context) error {
	res, err := x.es.Indices.Exists([]string{x.name}, x.es.Indices.Exists.WithContext(ctx))
	switch err := x.check("exists", res, err); {
	case err == nil:
		res.Body.Close()
		return nil
	case !errors.Is(err, errs.ErrNotFound):
		return err
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	res, err = x.es.Indices.Create(x.name,
		x.es.Indices.Create.WithContext(ctx),
		x.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return x.check("create index", res, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		if strings.Contains(string(raw), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("search: create index: %s: %s", res.Status(), strings.TrimSpace(string(raw)))
	}
	x.log.Info("index created")
	return nil
}

// Save indexes doc and returns the generated id.
func (x *Index) Save(ctx context.Context, doc any) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", errs.Wrap(errs.ErrInvalidInput, "search", "save", "encode document", err)
	}
	res, err := x.es.Index(x.name, bytes.NewReader(body), x.es.Index.WithContext(ctx))
	var out struct {
		ID string `json:"_id"`
	}
	if err := x.decode("save", res, err, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Get returns one document with its id merged in.
func (x *Index) Get(ctx context.Context, id string) (Document, error) {
	res, err := x.es.Get(x.name, id, x.es.Get.WithContext(ctx))
	var out struct {
		ID     string   `json:"_id"`
		Source Document `json:"_source"`
	}
	if err := x.decode("get", res, err, &out); err != nil {
		return nil, err
	}
	return withID(out.Source, out.ID, nil), nil
}

// Update merges fields into an existing document.
func (x *Index) Update(ctx context.Context, id string, fields map[string]any) error {
	body, err := json.Marshal(map[string]any{"doc": fields, "doc_as_upsert": false})
	if err != nil {
		return errs.Wrap(errs.ErrInvalidInput, "search", "update", "encode document", err)
	}
	res, err := x.es.Update(x.name, id, bytes.NewReader(body), x.es.Update.WithContext(ctx))
	return x.decode("update", res, err, nil)
}

func (x *Index) Delete(ctx context.Context, id string) error {
	res, err := x.es.Delete(x.name, id, x.es.Delete.WithContext(ctx))
	return x.decode("delete", res, err, nil)
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string   `json:"_id"`
			Score  *float64 `json:"_score"`
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		Emotions struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int64  `json:"doc_count"`
			} `json:"buckets"`
		} `json:"emotions_count"`
		AvgConfidence struct {
			Value *float64 `json:"value"`
		} `json:"avg_confidence"`
	} `json:"aggregations"`
}

// List returns the newest documents first.
func (x *Index) List(ctx context.Context, size int) ([]Document, error) {
	body := map[string]any{"query": map[string]any{"match_all": map[string]any{}}}
	resp, err := x.search(ctx, "list", body,
		x.es.Search.WithSize(clampSize(size)),
		x.es.Search.WithSort("timestamp:desc"),
	)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		docs = append(docs, withID(h.Source, h.ID, nil))
	}
	return docs, nil
}

// Search runs a full-text query; an empty query matches everything.
// It returns one page of hits and the total number of matches.
func (x *Index) Search(ctx context.Context, q string, size, from int) ([]Document, int64, error) {
	query := map[string]any{"match_all": map[string]any{}}
	if q = strings.TrimSpace(q); q != "" {
		query = map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"transcription", "primaryEmotions", "title", "keywords"},
			},
		}
	}
	if from < 0 {
		from = 0
	}
	resp, err := x.search(ctx, "search", map[string]any{"query": query},
		x.es.Search.WithSize(clampSize(size)),
		x.es.Search.WithFrom(from),
	)
	if err != nil {
		return nil, 0, err
	}
	docs := make([]Document, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		docs = append(docs, withID(h.Source, h.ID, h.Score))
	}
	return docs, resp.Hits.Total.Value, nil
}

// Stats aggregates primary emotions and confidence. A missing index yields
// zero stats.
func (x *Index) Stats(ctx context.Context) (Stats, error) {
	body := map[string]any{
		"aggs": map[string]any{
			"emotions_count": map[string]any{"terms": map[string]any{"field": "primaryEmotions", "size": 20}},
			"avg_confidence": map[string]any{"avg": map[string]any{"field": "confidence"}},
		},
	}
	st := Stats{Emotions: map[string]int64{}}
	resp, err := x.search(ctx, "stats", body, x.es.Search.WithSize(0))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return st, nil
		}
		return st, err
	}
	st.Total = resp.Hits.Total.Value
	buckets := resp.Aggregations.Emotions.Buckets
	for _, b := range buckets {
		if b.Key != "" {
			st.Emotions[b.Key] = b.DocCount
		}
	}
	if len(buckets) > 0 {
		st.TopEmotion = buckets[0].Key
	}
	if v := resp.Aggregations.AvgConfidence.Value; v != nil {
		st.AverageConfidence = math.Round(*v*100) / 100
	}
	return st, nil
}

// Ping reports whether the cluster answers.
func (x *Index) Ping(ctx context.Context) bool {
	res, err := x.es.Ping(x.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

func (x *Index) Info(ctx context.Context) (ClusterInfo, error) {
	res, err := x.es.Info(x.es.Info.WithContext(ctx))
	var info ClusterInfo
	err = x.decode("info", res, err, &info)
	return info, err
}

func (x *Index) search(ctx context.Context, op string, body map[string]any, opts ...func(*esapi.SearchRequest)) (*searchResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	opts = append([]func(*esapi.SearchRequest){
		x.es.Search.WithContext(ctx),
		x.es.Search.WithIndex(x.name),
		x.es.Search.WithBody(bytes.NewReader(raw)),
	}, opts...)
	res, err := x.es.Search(opts...)
	var out searchResponse
	if err := x.decode(op, res, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// check maps transport failures and error statuses onto the error taxonomy
// and closes the body on failure.
func (x *Index) check(op string, res *esapi.Response, err error) error {
	if err != nil {
		return errs.Wrap(errs.ErrUpstreamUnavailable, "search", op, "elasticsearch unreachable", err)
	}
	if !res.IsError() {
		return nil
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	switch res.StatusCode {
	case http.StatusNotFound:
		return errs.Wrap(errs.ErrNotFound, "search", op, "not found", nil)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return errs.Wrap(errs.ErrUpstreamUnavailable, "search", op, res.Status(), nil)
	}
	return fmt.Errorf("search: %s: %s: %s", op, res.Status(), strings.TrimSpace(string(raw)))
}

func (x *Index) decode(op string, res *esapi.Response, err error, out any) error {
	if err := x.check(op, res, err); err != nil {
		return err
	}
	defer res.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errs.Wrap(errs.ErrUnexpectedResponse, "search", op, "decode response", err)
	}
	return nil
}

func withID(src Document, id string, score *float64) Document {
	doc := make(Document, len(src)+2)
	for k, v := range src {
		doc[k] = v
	}
	doc["id"] = id
	if score != nil {
		doc["score"] = *score
	}
	return doc
}

func clampSize(size int) int {
	if size < 1 {
		return 1
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}
