package testsupport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// FakeElastic is an in-memory stand-in for the Elasticsearch endpoints cvasr uses.
type FakeElastic struct {
	Server *httptest.Server

	mu sync.Mutex
	// Indexes maps index name to its creation body.
	Indexes map[string]json.RawMessage
	// Docs maps index name to every document received through _bulk.
	Docs map[string][]map[string]any
	// BulkRequests counts _bulk calls.
	BulkRequests int
	// CreateStatus, when non-zero, is returned for index creation instead of success.
	CreateStatus int
	// RejectDoc, when set, marks matching documents as rejected in bulk responses.
	RejectDoc func(doc map[string]any) bool
	// SearchResponse is returned verbatim for _search.
	SearchResponse string
	// LastSearch is the most recent _search body.
	LastSearch json.RawMessage
}

// NewFakeElastic starts a fake cluster closed at test cleanup.
func NewFakeElastic(t testing.TB) *FakeElastic {
	t.Helper()
	f := &FakeElastic{
		Indexes: make(map[string]json.RawMessage),
		Docs:    make(map[string][]map[string]any),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the cluster address.
func (f *FakeElastic) URL() string {
	return f.Server.URL
}

// DocCount returns how many documents index received.
func (f *FakeElastic) DocCount(index string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Docs[index])
}

func (f *FakeElastic) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		_, _ = io.WriteString(w, `{"name":"fake","cluster_name":"test","version":{"number":"8.8.2"},"tagline":"You Know, for Search"}`)
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.createIndex(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "_bulk":
		f.bulk(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "_search":
		body, _ := io.ReadAll(r.Body)
		f.LastSearch = body
		resp := f.SearchResponse
		if resp == "" {
			resp = `{"hits":{"total":{"value":0},"hits":[]}}`
		}
		_, _ = io.WriteString(w, resp)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"not_found","reason":"no handler"},"status":404}`)
	}
}

func (f *FakeElastic) createIndex(w http.ResponseWriter, r *http.Request, name string) {
	if f.CreateStatus != 0 {
		w.WriteHeader(f.CreateStatus)
		_, _ = io.WriteString(w, `{"error":{"type":"cluster_block_exception","reason":"index creation blocked"},"status":403}`)
		return
	}
	if _, ok := f.Indexes[name]; ok {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"resource_already_exists_exception","reason":"index [`+name+`] already exists"},"status":400}`)
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.Indexes[name] = body
	_, _ = io.WriteString(w, `{"acknowledged":true,"shards_acknowledged":true,"index":"`+name+`"}`)
}

func (f *FakeElastic) bulk(w http.ResponseWriter, r *http.Request, name string) {
	f.BulkRequests++
	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	var items []string
	hasErrors := false
	expectDoc := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !expectDoc {
			expectDoc = true
			continue
		}
		expectDoc = false
		var doc map[string]any
		if err := json.Unmarshal(line, &doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"type":"parse_exception","reason":"bad document"},"status":400}`)
			return
		}
		if f.RejectDoc != nil && f.RejectDoc(doc) {
			hasErrors = true
			items = append(items, `{"index":{"status":400,"error":{"type":"mapper_parsing_exception","reason":"failed to parse"}}}`)
			continue
		}
		f.Docs[name] = append(f.Docs[name], doc)
		items = append(items, `{"index":{"status":201,"result":"created"}}`)
	}
	errFlag := "false"
	if hasErrors {
		errFlag = "true"
	}
	_, _ = io.WriteString(w, `{"took":1,"errors":`+errFlag+`,"items":[`+strings.Join(items, ",")+`]}`)
}
