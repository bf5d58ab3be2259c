package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socaity/fastsdk-go/registry"
	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/service"
)

// serviceSpec is the document served at /openapi.json by the test server.
var serviceSpec = map[string]any{
	"openapi": "3.0.0",
	"info":    map[string]any{"title": "echo service"},
	"paths": map[string]any{
		"/echo": map[string]any{
			"post": map[string]any{
				"operationId": "echo",
				"requestBody": map[string]any{
					"content": map[string]any{
						"application/json": map[string]any{
							"schema": map[string]any{
								"type":     "object",
								"required": []any{"text"},
								"properties": map[string]any{
									"text": map[string]any{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	},
}

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/openapi.json":
			json.NewEncoder(w).Encode(serviceSpec)
		case "/echo":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(map[string]any{"echoed": body["text"]})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRuntimeEndToEnd(t *testing.T) {
	srv := echoServer(t)
	rt := New(WithHTTPClient(srv.Client()))

	// The spec is discovered behind the service URL and the address derives
	// from it.
	def, err := rt.AddService(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "echo service", def.DisplayName)
	require.NotNil(t, def.Address)
	assert.Equal(t, srv.URL, def.Address.URL)

	result, err := rt.Run(context.Background(), "echo service", "echo", map[string]any{"text": "ping"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echoed": "ping"}, result)
}

func TestRuntimeSubmitReturnsHandle(t *testing.T) {
	srv := echoServer(t)
	rt := New(WithHTTPClient(srv.Client()))
	_, err := rt.AddService(context.Background(), srv.URL, registry.WithServiceID("echo-svc"))
	require.NoError(t, err)

	job, err := rt.Submit(context.Background(), "echo-svc", "/echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	result, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echoed": "hi"}, result)
}

func TestRuntimeMissingService(t *testing.T) {
	rt := New()
	_, err := rt.Run(context.Background(), "nobody", "echo", nil)
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindNotFound))
}

func TestDefaultRuntimeIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestRunpodSpecFetcher(t *testing.T) {
	var statusCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/run":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			input, _ := body["input"].(map[string]any)
			assert.Equal(t, "/openapi.json", input["path"])
			assert.Equal(t, "Bearer rpa_secret", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]any{"id": "sj-1", "status": "IN_QUEUE"})
		case "/status/sj-1":
			statusCalls++
			if statusCalls == 1 {
				json.NewEncoder(w).Encode(map[string]any{"id": "sj-1", "status": "IN_PROGRESS"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "sj-1",
				"status": "COMPLETED",
				"output": serviceSpec,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := NewRunpodSpecFetcher(
		WithRunpodAPIKey("rpa_secret"),
		WithSpecHTTPClient(srv.Client()),
	)
	addr := &service.Address{Kind: service.AddressRunpod, URL: srv.URL, PodID: "pod"}

	doc, err := fetcher.FetchSpec(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, "echo service", doc["info"].(map[string]any)["title"])
	assert.GreaterOrEqual(t, statusCalls, 2)
}

func TestRunpodSpecFetcherRequiresKey(t *testing.T) {
	t.Setenv("RUNPOD_API_KEY", "")
	fetcher := NewRunpodSpecFetcher()
	_, err := fetcher.FetchSpec(context.Background(), &service.Address{URL: "https://api.runpod.ai/v2/pod"})
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindAPIKeyMissing))
}

func TestRunpodSpecFetcherFailedJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/run" {
			json.NewEncoder(w).Encode(map[string]any{"id": "sj-1", "status": "IN_QUEUE"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "sj-1", "status": "FAILED"})
	}))
	defer srv.Close()

	fetcher := NewRunpodSpecFetcher(WithRunpodAPIKey("rpa_secret"), WithSpecHTTPClient(srv.Client()))
	_, err := fetcher.FetchSpec(context.Background(), &service.Address{Kind: service.AddressRunpod, URL: srv.URL, PodID: "pod"})
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindSpecNotFound))
}

func TestDecodeSpecOutputShapes(t *testing.T) {
	inline, err := decodeSpecOutput(map[string]any{"openapi": "3.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "3.0.0", inline["openapi"])

	encoded, err := decodeSpecOutput(`{"openapi":"3.0.0"}`)
	require.NoError(t, err)
	assert.Equal(t, "3.0.0", encoded["openapi"])

	_, err = decodeSpecOutput(42.0)
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindSpecMalformed))

	_, err = decodeSpecOutput("not json")
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindSpecMalformed))
}
