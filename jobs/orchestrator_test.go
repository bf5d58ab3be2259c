package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socaity/fastsdk-go/media"
	"github.com/socaity/fastsdk-go/registry"
	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/service"
)

func asyncService(id string, withMedia bool) *service.Definition {
	params := []service.Parameter{
		{
			Name:        "text",
			Required:    true,
			Location:    service.InBody,
			Definitions: []service.ParamDefinition{{Type: service.TypeString}},
		},
	}
	if withMedia {
		params = append(params, service.Parameter{
			Name:        "image",
			Location:    service.InBody,
			Definitions: []service.ParamDefinition{{Type: service.TypeString, Format: service.FormatImage}},
		})
	}
	return &service.Definition{
		ID:            id,
		DisplayName:   id,
		Specification: service.SpecFastTaskAPI,
		Endpoints: []service.Endpoint{
			{ID: "predict", Path: "/predict", Method: "post", Parameters: params},
		},
	}
}

func newTestOrchestrator(t *testing.T, def *service.Definition, addr string, opts ...Option) *Orchestrator {
	t.Helper()
	t.Setenv("SOCAITY_API_KEY", "")
	reg := registry.New()
	_, err := reg.AddService(context.Background(), def, registry.WithAddress(addr))
	require.NoError(t, err)
	opts = append([]Option{WithPollInterval(time.Millisecond)}, opts...)
	return New(reg, opts...)
}

func TestBuildPlan(t *testing.T) {
	handler := media.NewHandler(media.Profile{})
	uploading := media.NewHandler(media.Profile{Uploader: noopUploader{}})

	syncDef := asyncService("s", false)
	syncDef.Specification = service.SpecOpenAPI
	assert.Equal(t,
		[]Stage{StagePreparing, StageSending, StageProcessing},
		BuildPlan(syncDef, &syncDef.Endpoints[0], handler))

	asyncDef := asyncService("a", false)
	assert.Equal(t,
		[]Stage{StagePreparing, StageSending, StagePolling, StageProcessing},
		BuildPlan(asyncDef, &asyncDef.Endpoints[0], handler))

	mediaDef := asyncService("m", true)
	assert.Equal(t,
		[]Stage{StagePreparing, StageLoadFiles, StageSending, StagePolling, StageProcessing},
		BuildPlan(mediaDef, &mediaDef.Endpoints[0], handler))

	assert.Equal(t,
		[]Stage{StagePreparing, StageLoadFiles, StageUploading, StageSending, StagePolling, StageProcessing},
		BuildPlan(mediaDef, &mediaDef.Endpoints[0], uploading))
}

type noopUploader struct{}

func (noopUploader) Upload(_ context.Context, files map[string]*media.MediaFile) (map[string]string, error) {
	out := make(map[string]string, len(files))
	for name := range files {
		out[name] = "https://cdn.example.com/" + name
	}
	return out, nil
}

func TestRunSynchronousService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"echoed"}`))
	}))
	defer srv.Close()

	def := asyncService("sync-svc", false)
	def.Specification = service.SpecOpenAPI
	o := newTestOrchestrator(t, def, srv.URL)

	job, err := o.Submit(context.Background(), "sync-svc", "predict", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.False(t, job.HasStage(StagePolling), "synchronous services never poll")

	result, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "echoed"}, result)
	assert.Equal(t, StateFinished, job.State())
}

func TestRunAsyncJobLifecycle(t *testing.T) {
	var polls atomic.Int64
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/predict":
			json.NewEncoder(w).Encode(map[string]any{
				"endpoint_protocol": "socaity",
				"id":                "job-1",
				"status":            "queued",
				"refresh_job_url":   srvURL + "/status/job-1",
			})
		case "/status/job-1":
			if polls.Add(1) < 3 {
				json.NewEncoder(w).Encode(map[string]any{
					"endpoint_protocol": "socaity",
					"id":                "job-1",
					"status":            "processing",
					"progress":          0.5,
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"endpoint_protocol": "socaity",
				"id":                "job-1",
				"status":            "finished",
				"result": map[string]any{
					"file_name":    "out.png",
					"content_type": "image/png",
					"content":      base64.StdEncoding.EncodeToString([]byte("image-bytes")),
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	def := asyncService("async-svc", false)
	o := newTestOrchestrator(t, def, srv.URL)

	job, err := o.Submit(context.Background(), "async-svc", "/predict", map[string]any{"text": "hi"})
	require.NoError(t, err)

	result, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateFinished, job.State())
	assert.GreaterOrEqual(t, polls.Load(), int64(3), "polling repeated until terminal")

	f, ok := result.(*media.MediaFile)
	require.True(t, ok, "file model results decode to media files")
	assert.Equal(t, "out.png", f.Name)
	assert.Equal(t, []byte("image-bytes"), f.Bytes())

	// Poll progress was observed and the refresh URL carried forward.
	progress, ok := job.StageProgress(StagePolling)
	require.True(t, ok)
	assert.Equal(t, StagePolling, progress.Stage)
}

func TestRunShipsFilesMultipart(t *testing.T) {
	var fileName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			if headers := r.MultipartForm.File["image"]; len(headers) > 0 {
				fileName = headers[0].Filename
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"endpoint_protocol": "socaity",
			"id":                "job-1",
			"status":            "finished",
			"result":            "done",
		})
	}))
	defer srv.Close()

	def := asyncService("media-svc", true)
	o := newTestOrchestrator(t, def, srv.URL)

	job, err := o.Submit(context.Background(), "media-svc", "predict", map[string]any{
		"text":  "hi",
		"image": []byte{0x89, 'P', 'N', 'G'},
	})
	require.NoError(t, err)
	require.True(t, job.HasStage(StageLoadFiles))

	result, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, "image", fileName, "the media parameter travelled as a form file")
}

func TestRunFailsBeforeDispatchOnMissingParameter(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, asyncService("strict-svc", false), srv.URL)
	job, err := o.Submit(context.Background(), "strict-svc", "predict", map[string]any{})
	require.NoError(t, err, "validation failures surface on the job, not at submit")

	_, err = job.Wait(context.Background())
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindMissingParameter))
	assert.Equal(t, StateFailed, job.State())
	assert.Zero(t, hits.Load(), "nothing was sent")
}

func TestRunRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"endpoint_protocol": "socaity",
			"id":                "job-1",
			"status":            "failed",
			"error":             "model exploded",
		})
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, asyncService("failing-svc", false), srv.URL)
	job, err := o.Submit(context.Background(), "failing-svc", "predict", map[string]any{"text": "hi"})
	require.NoError(t, err)

	_, err = job.Wait(context.Background())
	require.True(t, sdkerr.IsKind(err, sdkerr.KindServerJobFailed))
	assert.Contains(t, err.Error(), "model exploded")
	assert.Equal(t, StateFailed, job.State())
}

func TestRunToleratesTransientPollErrors(t *testing.T) {
	var statusCalls atomic.Int64
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/predict":
			json.NewEncoder(w).Encode(map[string]any{
				"endpoint_protocol": "socaity",
				"id":                "job-1",
				"status":            "queued",
				"refresh_job_url":   srvURL + "/status/job-1",
			})
		default:
			if statusCalls.Add(1) <= 3 {
				http.Error(w, "upstream hiccup", http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"endpoint_protocol": "socaity",
				"id":                "job-1",
				"status":            "finished",
				"result":            "recovered",
			})
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	o := newTestOrchestrator(t, asyncService("flaky-svc", false), srv.URL)
	job, err := o.Submit(context.Background(), "flaky-svc", "predict", map[string]any{"text": "hi"})
	require.NoError(t, err)

	result, err := job.Wait(context.Background())
	require.NoError(t, err, "three consecutive failures are tolerated")
	assert.Equal(t, "recovered", result)
}

func TestRunGivesUpAfterConsecutivePollErrors(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/predict" {
			json.NewEncoder(w).Encode(map[string]any{
				"endpoint_protocol": "socaity",
				"id":                "job-1",
				"status":            "queued",
				"refresh_job_url":   srvURL + "/status/job-1",
			})
			return
		}
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	srvURL = srv.URL

	o := newTestOrchestrator(t, asyncService("down-svc", false), srv.URL)
	job, err := o.Submit(context.Background(), "down-svc", "predict", map[string]any{"text": "hi"})
	require.NoError(t, err)

	_, err = job.Wait(context.Background())
	require.True(t, sdkerr.IsKind(err, sdkerr.KindHTTPError))
	assert.Equal(t, StateFailed, job.State())
}

func TestCancelDuringPolling(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/predict" {
			json.NewEncoder(w).Encode(map[string]any{
				"endpoint_protocol": "socaity",
				"id":                "job-1",
				"status":            "queued",
				"refresh_job_url":   srvURL + "/status/job-1",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"endpoint_protocol": "socaity",
			"id":                "job-1",
			"status":            "processing",
		})
	}))
	defer srv.Close()
	srvURL = srv.URL

	def := asyncService("endless-svc", false)
	o := newTestOrchestrator(t, def, srv.URL, WithPollInterval(20*time.Millisecond))

	job, err := o.Submit(context.Background(), "endless-svc", "predict", map[string]any{"text": "hi"})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	job.Cancel()

	_, err = job.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateCancelled, job.State())
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindServerJobCancelled))
}

func TestCancelLeavesInFlightPollAlone(t *testing.T) {
	entered := make(chan struct{})
	var once sync.Once
	var survived atomic.Bool
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/predict" {
			json.NewEncoder(w).Encode(map[string]any{
				"endpoint_protocol": "socaity",
				"id":                "job-1",
				"status":            "queued",
				"refresh_job_url":   srvURL + "/status/job-1",
			})
			return
		}
		once.Do(func() { close(entered) })
		time.Sleep(40 * time.Millisecond)
		if r.Context().Err() == nil {
			survived.Store(true)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"endpoint_protocol": "socaity",
			"id":                "job-1",
			"status":            "processing",
		})
	}))
	defer srv.Close()
	srvURL = srv.URL

	def := asyncService("inflight-svc", false)
	o := newTestOrchestrator(t, def, srv.URL)

	job, err := o.Submit(context.Background(), "inflight-svc", "predict", map[string]any{"text": "hi"})
	require.NoError(t, err)

	<-entered
	job.Cancel()

	_, err = job.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateCancelled, job.State())
	assert.True(t, survived.Load(), "the status request already in flight runs to completion")
}

func TestPollTimeout(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "queued"
		if r.URL.Path != "/predict" {
			status = "processing"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"endpoint_protocol": "socaity",
			"id":                "job-1",
			"status":            status,
			"refresh_job_url":   srvURL + "/status/job-1",
		})
	}))
	defer srv.Close()
	srvURL = srv.URL

	def := asyncService("slow-svc", false)
	o := newTestOrchestrator(t, def, srv.URL, WithPollCap(30*time.Millisecond))

	job, err := o.Submit(context.Background(), "slow-svc", "predict", map[string]any{"text": "hi"})
	require.NoError(t, err)

	_, err = job.Wait(context.Background())
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindPollTimeout))
	assert.Equal(t, StateFailed, job.State())
}

func TestSubmitUnknownServiceOrEndpoint(t *testing.T) {
	o := New(registry.New())
	_, err := o.Submit(context.Background(), "nobody", "predict", nil)
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindNotFound))

	def := asyncService("known-svc", false)
	reg := registry.New()
	_, err = reg.AddService(context.Background(), def, registry.WithAddress("http://localhost:1"))
	require.NoError(t, err)
	o = New(reg)
	_, err = o.Submit(context.Background(), "known-svc", "no-such-endpoint", nil)
	assert.True(t, sdkerr.IsKind(err, sdkerr.KindNotFound))
}
