package net

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/tombee/stepflow/internal/action/base"
	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

var allowedMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

type httpAction struct {
	base.Base
	client  *http.Client
	maxSize int64
}

func newHTTP(opts Options) *httpAction {
	return &httpAction{
		Base: base.New(HTTPID, "HTTP request", category, "Send an HTTP request").
			WithInputs(
				base.Input("url", value.TypeString, true),
				workflow.InputDefinition{ID: "method", TypeID: value.TypeString, Default: http.MethodGet},
				base.Input("body", value.TypeAny, false),
				base.Input("headers", value.TypeDictionary, false),
				workflow.InputDefinition{ID: "fail_on_status", TypeID: value.TypeBoolean, Default: true},
			).
			WithOutputs(
				workflow.Output("status", value.TypeNumber),
				workflow.Output("ok", value.TypeBoolean),
				workflow.Output("body", value.TypeString),
				workflow.Output("json", value.TypeAny),
				workflow.Output("headers", value.TypeDictionary),
			),
		client:  opts.Client,
		maxSize: opts.MaxResponseSize,
	}
}

// Execute sends the request. Non-string bodies are sent as JSON. Responses
// with status 400 or above fail the step unless fail_on_status is false;
// the response outputs are kept either way.
func (a *httpAction) Execute(ctx context.Context, ec *workflow.ExecutionContext, progress workflow.ProgressFunc) workflow.Result {
	req, err := a.buildRequest(ctx, ec)
	if err != nil {
		return workflow.Fail("Invalid request", err.Error())
	}

	progress(fmt.Sprintf("%s %s", req.Method, req.URL.Redacted()))
	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return workflow.Fail("Cancelled", ctx.Err().Error())
		}
		return workflow.Fail("Request failed", err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, a.maxSize+1))
	if err != nil {
		return workflow.Fail("Request failed", fmt.Sprintf("reading response: %v", err))
	}
	if int64(len(raw)) > a.maxSize {
		return workflow.Failf("Response too large", "response exceeds %d bytes", a.maxSize)
	}

	outputs := map[string]any{
		"status":  resp.StatusCode,
		"ok":      resp.StatusCode < 400,
		"body":    string(raw),
		"json":    decodeJSON(resp.Header.Get("Content-Type"), raw),
		"headers": responseHeaders(resp.Header),
	}
	if resp.StatusCode >= 400 && ec.Bool("fail_on_status", true) {
		return workflow.Failure{
			Title:          "HTTP " + resp.Status,
			Message:        fmt.Sprintf("%s %s returned %d", req.Method, req.URL.Redacted(), resp.StatusCode),
			PartialOutputs: outputs,
		}
	}
	return workflow.Succeed(outputs)
}

func (a *httpAction) buildRequest(ctx context.Context, ec *workflow.ExecutionContext) (*http.Request, error) {
	rawURL := ec.String("url", "")
	if rawURL == "" {
		return nil, fmt.Errorf("parameter %q is required", "url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	method := strings.ToUpper(ec.String("method", http.MethodGet))
	if !slices.Contains(allowedMethods, method) {
		return nil, fmt.Errorf("invalid method %s (allowed: %s)", method, strings.Join(allowedMethods, ", "))
	}

	var (
		body        io.Reader
		contentType string
	)
	switch b := ec.Variable("body"); {
	case value.IsNull(b):
	case b.Kind() == value.KindString:
		if s := b.AsString(); s != "" {
			body = strings.NewReader(s)
		}
	default:
		encoded, err := json.Marshal(value.ToNative(b))
		if err != nil {
			return nil, fmt.Errorf("encoding body: %w", err)
		}
		body = strings.NewReader(string(encoded))
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if h, ok := ec.Variable("headers").(*value.Dictionary); ok {
		native, _ := value.ToNative(h).(map[string]any)
		for k, v := range native {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}
	return req, nil
}

// decodeJSON returns the parsed body for JSON responses and Null otherwise.
func decodeJSON(contentType string, raw []byte) value.Value {
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt != "application/json" && !strings.HasSuffix(mt, "+json") {
		return value.Null
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return value.Null
	}
	return value.From(v)
}

func responseHeaders(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k := range h {
		out[strings.ToLower(k)] = h.Get(k)
	}
	return out
}
