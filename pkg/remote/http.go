package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-formstate/internal/tmpl"
)

const (
	defaultValueField = "value"
	defaultLabelField = "label"
	maxResponseBytes  = 4 << 20
)

// HTTPFetcher resolves x-endpoint style remote configs over HTTP. Static
// Params are sent as is; DynamicParams and a URL containing `{{` are pongo2
// templates rendered against the form values plus `query`. GET requests carry
// parameters in the query string, other methods send them as a JSON object.
type HTTPFetcher struct {
	client    *http.Client
	templates *tmpl.Cache
}

// NewHTTPFetcher returns a fetcher using client, or a client with a ten
// second timeout when nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{client: client, templates: tmpl.NewCache()}
}

// Fetch performs the request described by req.Config.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (Result, error) {
	cfg := req.Config
	if cfg == nil || strings.TrimSpace(cfg.URL) == "" {
		return Result{}, ErrNoEndpoint
	}
	data := templateData(req)
	params, err := f.params(req, data)
	if err != nil {
		return Result{}, err
	}
	rawURL := cfg.URL
	if strings.Contains(rawURL, "{{") {
		if rawURL, err = f.templates.Render(rawURL, data); err != nil {
			return Result{}, fmt.Errorf("url template: %w", err)
		}
	}

	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodGet
	}
	reqURL, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("parse url: %w", err)
	}

	var body io.Reader
	if method == http.MethodGet {
		q := reqURL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		reqURL.RawQuery = q.Encode()
	} else {
		payload, err := json.Marshal(params)
		if err != nil {
			return Result{}, fmt.Errorf("encode params: %w", err)
		}
		body = strings.NewReader(string(payload))
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return Result{}, fmt.Errorf("request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode: %w", err)
	}

	valueField := firstNonEmpty(cfg.ValueField, defaultValueField)
	labelField := firstNonEmpty(cfg.LabelField, defaultLabelField)
	var choices []Choice
	for _, item := range extractResults(payload, cfg.ResultsPath) {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		value := pickValue(obj, valueField)
		if value == "" {
			continue
		}
		choices = append(choices, Choice{
			Value: value,
			Label: firstNonEmpty(pickValue(obj, labelField), value),
			Data:  obj,
		})
	}
	return Result{Options: choices}, nil
}

func templateData(req Request) tmpl.Context {
	data := tmpl.Context{}
	for k, v := range req.Snapshot.Values() {
		data[k] = v
	}
	data["query"] = req.Query
	return data
}

func (f *HTTPFetcher) params(req Request, data tmpl.Context) (map[string]string, error) {
	cfg := req.Config
	out := make(map[string]string, len(cfg.Params)+len(cfg.DynamicParams)+1)
	for k, v := range cfg.Params {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	if len(cfg.DynamicParams) > 0 {
		for k, src := range cfg.DynamicParams {
			v, err := f.templates.Render(src, data)
			if err != nil {
				return nil, fmt.Errorf("dynamic param %q: %w", k, err)
			}
			if strings.TrimSpace(v) != "" {
				out[k] = v
			}
		}
	}
	if cfg.SearchParam != "" && req.Query != "" {
		out[cfg.SearchParam] = req.Query
	}
	return out, nil
}

func extractResults(payload any, path string) []any {
	cur := payload
	if path != "" {
		for _, segment := range strings.Split(path, ".") {
			node, ok := cur.(map[string]any)
			if !ok {
				return nil
			}
			cur = node[segment]
		}
	}
	items, _ := cur.([]any)
	return items
}

func pickValue(m map[string]any, path string) string {
	var cur any = m
	for _, segment := range strings.Split(path, ".") {
		node, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = node[segment]
	}
	switch v := cur.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
