package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/socaity/fastsdk-go/response"
	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/service"
	"github.com/socaity/fastsdk-go/spec"
	"github.com/socaity/fastsdk-go/telemetry"
)

// Runpod serverless hosts do not expose their OpenAPI document statically:
// the only way in is to run a job that asks the worker for it. The fetcher
// submits {"input": {"path": "/openapi.json"}} and polls until the document
// comes back.
type RunpodSpecFetcher struct {
	apiKey   string
	client   *http.Client
	timeout  time.Duration
	interval time.Duration
	logger   telemetry.Logger
}

var _ spec.ProxyFetcher = (*RunpodSpecFetcher)(nil)

// DefaultSpecFetchTimeout bounds the whole job-based spec fetch; cold
// serverless workers take minutes to boot.
const DefaultSpecFetchTimeout = 1800 * time.Second

// RunpodSpecOption configures a RunpodSpecFetcher.
type RunpodSpecOption func(*RunpodSpecFetcher)

// WithRunpodAPIKey sets the API key; defaults to RUNPOD_API_KEY.
func WithRunpodAPIKey(key string) RunpodSpecOption {
	return func(f *RunpodSpecFetcher) { f.apiKey = key }
}

// WithSpecFetchTimeout overrides the total fetch budget.
func WithSpecFetchTimeout(d time.Duration) RunpodSpecOption {
	return func(f *RunpodSpecFetcher) { f.timeout = d }
}

// WithSpecHTTPClient sets the HTTP client.
func WithSpecHTTPClient(c *http.Client) RunpodSpecOption {
	return func(f *RunpodSpecFetcher) { f.client = c }
}

// WithSpecLogger sets the fetcher logger.
func WithSpecLogger(l telemetry.Logger) RunpodSpecOption {
	return func(f *RunpodSpecFetcher) { f.logger = l }
}

// NewRunpodSpecFetcher creates the job-based spec fetcher.
func NewRunpodSpecFetcher(opts ...RunpodSpecOption) *RunpodSpecFetcher {
	f := &RunpodSpecFetcher{
		timeout:  DefaultSpecFetchTimeout,
		interval: time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if f.apiKey == "" {
		f.apiKey = os.Getenv("RUNPOD_API_KEY")
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.logger == nil {
		f.logger = telemetry.NoopLogger{}
	}
	return f
}

// FetchSpec runs the spec job against the serverless endpoint and returns
// the decoded document.
func (f *RunpodSpecFetcher) FetchSpec(ctx context.Context, addr *service.Address) (spec.Document, error) {
	if f.apiKey == "" {
		return nil, sdkerr.New(sdkerr.KindAPIKeyMissing,
			"fetching a spec from a Runpod endpoint requires RUNPOD_API_KEY")
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, err := f.post(ctx, addr.RunBaseURL()+"/run", map[string]any{
		"input": map[string]any{"path": "/openapi.json"},
	})
	if err != nil {
		return nil, err
	}
	jobID, _ := body["id"].(string)
	if jobID == "" {
		return nil, sdkerr.New(sdkerr.KindSpecNotFound, "runpod spec job was not accepted")
	}
	f.logger.Debug(ctx, "runpod spec job submitted", "pod_id", addr.PodID, "job_id", jobID)

	statusURL := addr.RunBaseURL() + "/status/" + jobID
	for {
		select {
		case <-ctx.Done():
			return nil, sdkerr.Wrap(sdkerr.KindSpecNotFound, ctx.Err(),
				"runpod spec job %s did not finish in time", jobID)
		case <-time.After(f.interval):
		}

		body, err := f.post(ctx, statusURL, nil)
		if err != nil {
			f.logger.Warn(ctx, "runpod spec poll failed", "job_id", jobID, "error", err)
			continue
		}
		rawStatus, _ := body["status"].(string)
		status, _ := response.RunpodStatus(rawStatus)
		switch status {
		case response.StatusFinished:
			return decodeSpecOutput(body["output"])
		case response.StatusFailed, response.StatusCancelled, response.StatusTimeout:
			return nil, sdkerr.New(sdkerr.KindSpecNotFound,
				"runpod spec job %s ended with status %s", jobID, rawStatus)
		}
	}
}

func (f *RunpodSpecFetcher) post(ctx context.Context, url string, payload map[string]any) (map[string]any, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode spec job payload: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := response.CheckStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", url, err)
	}
	return decoded, nil
}

// decodeSpecOutput accepts the document either inline or JSON-encoded in a
// string, the two shapes workers return.
func decodeSpecOutput(output any) (spec.Document, error) {
	switch v := output.(type) {
	case map[string]any:
		return v, nil
	case string:
		var doc spec.Document
		if err := json.Unmarshal([]byte(v), &doc); err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindSpecMalformed, err, "decode runpod spec job output")
		}
		return doc, nil
	default:
		return nil, sdkerr.New(sdkerr.KindSpecMalformed, "runpod spec job returned %T instead of a document", output)
	}
}
