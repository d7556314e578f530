package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/tidwall/gjson"

	"github.com/jye-lim/wav2vec2-asr/internal/services"
)

const alreadyExistsType = "resource_already_exists_exception"

// ElasticConfig describes how to reach the cluster.
type ElasticConfig struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Elastic is an Engine backed by Elasticsearch.
type Elastic struct {
	es      *elasticsearch.Client
	timeout time.Duration
}

// NewElastic builds a client. It does not contact the cluster.
func NewElastic(cfg ElasticConfig) (*Elastic, error) {
	url := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if url == "" {
		return nil, services.Wrap(services.ErrConfiguration, "search", "init", "search url is not configured", nil)
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  []string{url},
		Username:   cfg.Username,
		Password:   cfg.Password,
		Transport:  cfg.Transport,
		MaxRetries: 2,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "search", "init", "", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Elastic{es: es, timeout: timeout}, nil
}

func (e *Elastic) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

// Ping reports the cluster version when it is reachable.
func (e *Elastic) Ping(ctx context.Context) (string, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res, err := e.es.Info(e.es.Info.WithContext(ctx))
	if err != nil {
		return "", services.Wrap(services.ErrNetwork, "search", "ping", "", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", services.Wrap(services.ErrNetwork, "search", "ping", "read response", err)
	}
	if res.IsError() {
		return "", services.Wrap(services.ErrNetwork, "search", "ping", errorSummary(res.StatusCode, body), nil)
	}
	return gjson.GetBytes(body, "version.number").String(), nil
}

// CreateIndex creates name with schema. An index that already exists is
// IndexExists, not an error; any other rejection is services.ErrIndexCreation.
func (e *Elastic) CreateIndex(ctx context.Context, name string, schema Schema) (CreateResult, error) {
	payload, err := schema.Body()
	if err != nil {
		return "", services.Wrap(services.ErrIndexCreation, "search", "create", "encode schema", err)
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res, err := e.es.Indices.Create(name,
		e.es.Indices.Create.WithBody(bytes.NewReader(payload)),
		e.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return "", services.Wrap(services.ErrIndexCreation, "search", "create", name, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", services.Wrap(services.ErrIndexCreation, "search", "create", "read response", err)
	}
	if !res.IsError() {
		return IndexCreated, nil
	}
	if gjson.GetBytes(body, "error.type").String() == alreadyExistsType {
		return IndexExists, nil
	}
	return "", services.Wrap(services.ErrIndexCreation, "search", "create", errorSummary(res.StatusCode, body), nil)
}

// BulkIndex loads docs into name with a single bulk request. Per-document
// rejections are counted; if any occur the error is services.ErrBulkIndex and
// the result still carries the counts.
func (e *Elastic) BulkIndex(ctx context.Context, name string, docs []Document) (BulkResult, error) {
	if len(docs) == 0 {
		return BulkResult{}, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range docs {
		buf.WriteString("{\"index\":{}}\n")
		if err := enc.Encode(docs[i]); err != nil {
			return BulkResult{}, services.Wrap(services.ErrBulkIndex, "search", "bulk", fmt.Sprintf("encode document %d", i), err)
		}
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	res, err := e.es.Bulk(&buf,
		e.es.Bulk.WithIndex(name),
		e.es.Bulk.WithContext(ctx),
		e.es.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return BulkResult{Failed: len(docs)}, services.Wrap(services.ErrBulkIndex, "search", "bulk", "", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return BulkResult{Failed: len(docs)}, services.Wrap(services.ErrBulkIndex, "search", "bulk", "read response", err)
	}
	if res.IsError() {
		return BulkResult{Failed: len(docs)}, services.Wrap(services.ErrBulkIndex, "search", "bulk", errorSummary(res.StatusCode, body), nil)
	}

	result := summarizeBulk(body, len(docs))
	if result.Failed > 0 {
		return result, services.Wrap(services.ErrBulkIndex, "search", "bulk",
			fmt.Sprintf("%d of %d documents rejected", result.Failed, len(docs)), nil)
	}
	return result, nil
}

func summarizeBulk(body []byte, sent int) BulkResult {
	if !gjson.GetBytes(body, "errors").Bool() {
		return BulkResult{Succeeded: sent}
	}
	var result BulkResult
	gjson.GetBytes(body, "items").ForEach(func(_, item gjson.Result) bool {
		op := item.Get("index")
		if op.Get("status").Int() >= 300 || op.Get("error").Exists() {
			result.Failed++
			if result.FirstError == "" {
				result.FirstError = op.Get("error.reason").String()
			}
		} else {
			result.Succeeded++
		}
		return true
	})
	if missing := sent - result.Succeeded - result.Failed; missing > 0 {
		result.Failed += missing
	}
	return result
}

func errorSummary(status int, body []byte) string {
	reason := gjson.GetBytes(body, "error.reason").String()
	if reason == "" {
		reason = strings.TrimSpace(string(body))
		if len(reason) > 256 {
			reason = reason[:256]
		}
	}
	return fmt.Sprintf("status %d: %s", status, reason)
}

func drain(res *esapi.Response) []byte {
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	return body
}
