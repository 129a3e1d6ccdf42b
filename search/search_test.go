package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	cfg "github.com/maastricht-university/audio-analyzer/config"
	"github.com/maastricht-university/audio-analyzer/errs"
	"github.com/maastricht-university/audio-analyzer/logging"
)

// fakeES is an in-memory stand-in for the handful of endpoints the facade uses.
type fakeES struct {
	mu       sync.Mutex
	exists   bool
	docs     map[string]map[string]any
	seq      int
	lastBody map[string]any
	lastURL  string
	stats    string
}

func newFakeES() *fakeES { return &fakeES{docs: map[string]map[string]any{}} }

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.lastBody = body
	f.lastURL = r.URL.String()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/" && r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/":
		fmt.Fprint(w, `{"cluster_name":"docker-cluster","version":{"number":"8.14.0"}}`)
	case len(parts) == 1 && r.Method == http.MethodHead:
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
		}
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.exists = true
		fmt.Fprintf(w, `{"acknowledged":true,"index":%q}`, parts[0])
	case len(parts) == 2 && parts[1] == "_doc" && r.Method == http.MethodPost:
		f.seq++
		id := fmt.Sprintf("doc-%d", f.seq)
		f.docs[id] = body
		fmt.Fprintf(w, `{"_id":%q,"result":"created"}`, id)
	case len(parts) == 3 && parts[1] == "_doc":
		doc, ok := f.docs[parts[2]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"_id":%q,"found":false}`, parts[2])
			return
		}
		if r.Method == http.MethodDelete {
			delete(f.docs, parts[2])
			fmt.Fprintf(w, `{"_id":%q,"result":"deleted"}`, parts[2])
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"_id": parts[2], "found": true, "_source": doc})
	case len(parts) == 3 && parts[1] == "_update":
		doc, ok := f.docs[parts[2]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"document_missing_exception"},"status":404}`)
			return
		}
		if patch, ok := body["doc"].(map[string]any); ok {
			for k, v := range patch {
				doc[k] = v
			}
		}
		fmt.Fprintf(w, `{"_id":%q,"result":"updated"}`, parts[2])
	case len(parts) == 2 && parts[1] == "_search":
		if f.stats != "" {
			if f.stats == "missing" {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"error":{"type":"index_not_found_exception"},"status":404}`)
				return
			}
			fmt.Fprint(w, f.stats)
			return
		}
		hits := make([]map[string]any, 0, len(f.docs))
		for id, d := range f.docs {
			hits = append(hits, map[string]any{"_id": id, "_score": 1.5, "_source": d})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hits": map[string]any{"total": map[string]any{"value": len(hits) + 40}, "hits": hits},
		})
	default:
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error":"unexpected %s %s"}`, r.Method, r.URL.Path)
	}
}

func newIndex(t *testing.T, h http.Handler) *Index {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	x, err := New(cfg.Elastic{Addresses: []string{srv.URL}, Index: "audio_analysis"}, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return x
}

func TestEnsureIndexCreatesMapping(t *testing.T) {
	fake := newFakeES()
	x := newIndex(t, fake)
	if err := x.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if !fake.exists {
		t.Fatal("index was not created")
	}
	props := fake.lastBody["mappings"].(map[string]any)["properties"].(map[string]any)
	vec := props["transcriptionVector"].(map[string]any)
	if vec["type"] != "dense_vector" || vec["dims"] != float64(384) {
		t.Fatalf("unexpected vector mapping %v", vec)
	}
	if props["primaryEmotions"].(map[string]any)["type"] != "keyword" {
		t.Fatalf("primaryEmotions must be keyword")
	}

	fake.lastBody = nil
	if err := x.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("second EnsureIndex: %v", err)
	}
	if fake.lastBody != nil {
		t.Fatal("existing index must not be recreated")
	}
}

func TestSaveGetUpdateDelete(t *testing.T) {
	fake := newFakeES()
	x := newIndex(t, fake)
	ctx := context.Background()

	id, err := x.Save(ctx, map[string]any{"fileName": "song.mp3", "confidence": 91})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	doc, err := x.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc["id"] != id || doc["fileName"] != "song.mp3" {
		t.Fatalf("unexpected doc %v", doc)
	}

	if err := x.Update(ctx, id, map[string]any{"title": "Song"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if doc, _ = x.Get(ctx, id); doc["title"] != "Song" {
		t.Fatalf("update not applied: %v", doc)
	}

	if err := x.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := x.Get(ctx, id); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := x.Update(ctx, id, map[string]any{"title": "x"}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if err := x.Delete(ctx, id); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

func TestSearchAndList(t *testing.T) {
	fake := newFakeES()
	x := newIndex(t, fake)
	ctx := context.Background()
	if _, err := x.Save(ctx, map[string]any{"transcription": "happy days"}); err != nil {
		t.Fatal(err)
	}

	docs, total, err := x.Search(ctx, "happy", 500, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 41 || len(docs) != 1 || docs[0]["score"] != 1.5 {
		t.Fatalf("unexpected search result total=%d docs=%v", total, docs)
	}
	mm := fake.lastBody["query"].(map[string]any)["multi_match"].(map[string]any)
	if mm["query"] != "happy" {
		t.Fatalf("unexpected query %v", fake.lastBody)
	}
	if !strings.Contains(fake.lastURL, "size=200") || !strings.Contains(fake.lastURL, "from=10") {
		t.Fatalf("size must be capped and from forwarded: %s", fake.lastURL)
	}

	if _, _, err := x.Search(ctx, "  ", 5, 0); err != nil {
		t.Fatal(err)
	}
	if _, ok := fake.lastBody["query"].(map[string]any)["match_all"]; !ok {
		t.Fatalf("blank query should match all: %v", fake.lastBody)
	}

	list, err := x.List(ctx, 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0]["id"] == "" {
		t.Fatalf("unexpected list %v", list)
	}
	if !strings.Contains(fake.lastURL, "sort=timestamp") {
		t.Fatalf("list must sort by timestamp: %s", fake.lastURL)
	}
}

func TestStats(t *testing.T) {
	fake := newFakeES()
	fake.stats = `{"hits":{"total":{"value":12}},"aggregations":{
		"emotions_count":{"buckets":[{"key":"joy","doc_count":7},{"key":"sadness","doc_count":5}]},
		"avg_confidence":{"value":81.23456}}}`
	x := newIndex(t, fake)

	st, err := x.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 12 || st.TopEmotion != "joy" || st.Emotions["sadness"] != 5 || st.AverageConfidence != 81.23 {
		t.Fatalf("unexpected stats %+v", st)
	}

	fake.stats = "missing"
	st, err = x.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats on missing index: %v", err)
	}
	if st.Total != 0 || len(st.Emotions) != 0 || st.TopEmotion != "" || st.AverageConfidence != 0 {
		t.Fatalf("expected zero stats, got %+v", st)
	}
}

func TestPingInfoAndUnavailable(t *testing.T) {
	x := newIndex(t, newFakeES())
	if !x.Ping(context.Background()) {
		t.Fatal("expected ping to succeed")
	}
	info, err := x.Info(context.Background())
	if err != nil || info.ClusterName != "docker-cluster" {
		t.Fatalf("Info = %+v, %v", info, err)
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	down, err := New(cfg.Elastic{Addresses: []string{srv.URL}, Index: "audio_analysis"}, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if down.Ping(context.Background()) {
		t.Fatal("expected ping to fail")
	}
	if _, err := down.Get(context.Background(), "x"); !errors.Is(err, errs.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}
