package net

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/value"
	"github.com/tombee/stepflow/pkg/workflow"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Trace", r.Header.Get("X-Trace"))
		_, _ = io.WriteString(w, `{"items":[1,2,3]}`)
	})
	mux.HandleFunc("POST /echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("X-Request-Type", r.Header.Get("Content-Type"))
		_, _ = io.Copy(w, r.Body)
	})
	mux.HandleFunc("GET /big", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, opts Options, params map[string]any) (workflow.Result, []string) {
	t.Helper()
	var msgs []string
	a := Actions(opts)[0]
	res := a.Execute(context.Background(), workflow.NewExecutionContext(params), func(m string) { msgs = append(msgs, m) })
	return res, msgs
}

func TestHTTP_GetJSON(t *testing.T) {
	srv := newTestServer(t)

	res, msgs := execute(t, Options{}, map[string]any{
		"url":     srv.URL + "/items",
		"headers": map[string]any{"X-Trace": "abc"},
	})
	ok, isOK := res.(workflow.Success)
	require.True(t, isOK, "%#v", res)

	assert.Equal(t, 200, ok.Outputs["status"])
	assert.Equal(t, true, ok.Outputs["ok"])
	assert.Equal(t, `{"items":[1,2,3]}`, ok.Outputs["body"])

	doc, isDict := ok.Outputs["json"].(*value.Dictionary)
	require.True(t, isDict)
	assert.Equal(t, map[string]any{"items": []any{1.0, 2.0, 3.0}}, value.ToNative(doc))

	headers := ok.Outputs["headers"].(map[string]any)
	assert.Equal(t, "abc", headers["x-trace"])
	assert.Equal(t, []string{"GET " + srv.URL + "/items"}, msgs)
}

func TestHTTP_PostBody(t *testing.T) {
	srv := newTestServer(t)

	t.Run("dictionary is sent as JSON", func(t *testing.T) {
		res, _ := execute(t, Options{}, map[string]any{
			"url":    srv.URL + "/echo",
			"method": "post",
			"body":   map[string]any{"name": "stepflow"},
		})
		ok, isOK := res.(workflow.Success)
		require.True(t, isOK, "%#v", res)

		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(ok.Outputs["body"].(string)), &got))
		assert.Equal(t, map[string]any{"name": "stepflow"}, got)
		assert.Equal(t, "application/json", ok.Outputs["headers"].(map[string]any)["x-request-type"])
		assert.True(t, value.IsNull(ok.Outputs["json"].(value.Value)), "text responses are not decoded")
	})

	t.Run("string is sent raw", func(t *testing.T) {
		res, _ := execute(t, Options{}, map[string]any{
			"url":    srv.URL + "/echo",
			"method": "POST",
			"body":   "plain text",
		})
		ok, isOK := res.(workflow.Success)
		require.True(t, isOK, "%#v", res)
		assert.Equal(t, "plain text", ok.Outputs["body"])
		assert.Empty(t, ok.Outputs["headers"].(map[string]any)["x-request-type"])
	})
}

func TestHTTP_Status(t *testing.T) {
	srv := newTestServer(t)

	res, _ := execute(t, Options{}, map[string]any{"url": srv.URL + "/missing"})
	f, isFail := res.(workflow.Failure)
	require.True(t, isFail, "%#v", res)
	assert.Equal(t, "HTTP 404 Not Found", f.Title)
	assert.Contains(t, f.Message, "returned 404")
	assert.Equal(t, 404, f.PartialOutputs["status"])
	assert.Equal(t, false, f.PartialOutputs["ok"])

	res, _ = execute(t, Options{}, map[string]any{"url": srv.URL + "/missing", "fail_on_status": false})
	ok, isOK := res.(workflow.Success)
	require.True(t, isOK, "%#v", res)
	assert.Equal(t, 404, ok.Outputs["status"])
}

func TestHTTP_Invalid(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"missing url", map[string]any{}, `"url" is required`},
		{"bad scheme", map[string]any{"url": "file:///etc/passwd"}, `unsupported scheme "file"`},
		{"bad method", map[string]any{"url": srv.URL, "method": "TRACE"}, "invalid method TRACE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := execute(t, Options{}, tt.params)
			f, isFail := res.(workflow.Failure)
			require.True(t, isFail)
			assert.Equal(t, "Invalid request", f.Title)
			assert.Contains(t, f.Message, tt.want)
		})
	}
}

func TestHTTP_ResponseTooLarge(t *testing.T) {
	srv := newTestServer(t)

	res, _ := execute(t, Options{MaxResponseSize: 16}, map[string]any{"url": srv.URL + "/big"})
	f, isFail := res.(workflow.Failure)
	require.True(t, isFail)
	assert.Equal(t, "Response too large", f.Title)
}

func TestHTTP_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	res, _ := execute(t, Options{Client: &http.Client{}}, map[string]any{"url": addr})
	f, isFail := res.(workflow.Failure)
	require.True(t, isFail)
	assert.Equal(t, "Request failed", f.Title)
}
