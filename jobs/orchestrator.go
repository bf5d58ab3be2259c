package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/socaity/fastsdk-go/media"
	"github.com/socaity/fastsdk-go/registry"
	"github.com/socaity/fastsdk-go/request"
	"github.com/socaity/fastsdk-go/response"
	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/service"
	"github.com/socaity/fastsdk-go/telemetry"
)

const (
	// DefaultPollInterval paces the polling loop.
	DefaultPollInterval = time.Second
	// DefaultPollCap bounds the total polling time of one job.
	DefaultPollCap = 3600 * time.Second
	// maxConsecutivePollErrors is how many transient poll failures in a row
	// are tolerated; the next one terminates the job.
	maxConsecutivePollErrors = 3
)

// Orchestrator schedules jobs against registered services. Jobs run
// concurrently on their own goroutines; within a job, stages run in order.
type Orchestrator struct {
	registry *registry.Registry
	parser   *response.Parser
	decoder  *response.Decoder

	mu      sync.Mutex
	clients map[string]request.Client

	clientOpts   []request.Option
	pollInterval time.Duration
	pollCap      time.Duration

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClientOptions forwards options (API keys, HTTP client, uploaders) to
// every provider client the orchestrator constructs.
func WithClientOptions(opts ...request.Option) Option {
	return func(o *Orchestrator) { o.clientOpts = opts }
}

// WithPollInterval overrides the polling pace.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

// WithPollCap overrides the total polling budget per job.
func WithPollCap(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollCap = d }
}

// WithParser overrides the response parser.
func WithParser(p *response.Parser) Option {
	return func(o *Orchestrator) { o.parser = p }
}

// WithDecoder overrides the media result decoder.
func WithDecoder(d *response.Decoder) Option {
	return func(o *Orchestrator) { o.decoder = d }
}

// WithLogger sets the orchestrator logger.
func WithLogger(l telemetry.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the orchestrator metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer sets the orchestrator tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New creates an Orchestrator over a registry.
func New(reg *registry.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:     reg,
		clients:      make(map[string]request.Client),
		pollInterval: DefaultPollInterval,
		pollCap:      DefaultPollCap,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.parser == nil {
		o.parser = response.NewParser()
	}
	if o.decoder == nil {
		o.decoder = response.NewDecoder()
	}
	if o.logger == nil {
		o.logger = telemetry.NoopLogger{}
	}
	if o.metrics == nil {
		o.metrics = telemetry.NoopMetrics{}
	}
	if o.tracer == nil {
		o.tracer = telemetry.NoopTracer{}
	}
	return o
}

// Submit resolves the service and endpoint, computes the task plan and
// schedules the job. Resolution and client construction failures surface
// synchronously; everything after runs on the job's goroutine.
func (o *Orchestrator) Submit(ctx context.Context, serviceIDOrName, endpointIDOrPath string, input map[string]any) (*Job, error) {
	def, err := o.registry.Get(ctx, serviceIDOrName)
	if err != nil {
		return nil, err
	}
	endpoint := def.Endpoint(endpointIDOrPath)
	if endpoint == nil {
		return nil, sdkerr.New(sdkerr.KindNotFound,
			"service %q has no endpoint %q", def.ID, endpointIDOrPath)
	}
	client, err := o.client(def)
	if err != nil {
		return nil, err
	}

	plan := BuildPlan(def, endpoint, client.Handler())
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := newJob(def.ID, endpoint.ID, input, plan, cancel)

	o.logger.Info(ctx, "job submitted",
		"job_id", job.ID, "service", def.ID, "endpoint", endpoint.ID, "plan", fmt.Sprint(plan))
	o.metrics.IncCounter("jobs_submitted", 1, "specification", string(def.Specification))

	go o.run(jobCtx, job, def, endpoint, client)
	return job, nil
}

// BuildPlan computes the stage list for one endpoint call:
// preparing and sending always run, file stages only when the endpoint takes
// media, uploading only when an uploader is wired, polling only for
// asynchronous specifications, and processing decodes the final value.
func BuildPlan(def *service.Definition, endpoint *service.Endpoint, handler *media.Handler) []Stage {
	plan := []Stage{StagePreparing}
	if endpoint.HasMediaParameters() {
		plan = append(plan, StageLoadFiles)
	}
	if handler != nil && handler.HasUploader() {
		plan = append(plan, StageUploading)
	}
	plan = append(plan, StageSending)
	if def.Specification.Async() {
		plan = append(plan, StagePolling)
	}
	return append(plan, StageProcessing)
}

// client returns the cached provider client for a service, constructing and
// validating it on first use.
func (o *Orchestrator) client(def *service.Definition) (request.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.clients[def.ID]; ok {
		return c, nil
	}
	c, err := request.New(def, o.clientOpts...)
	if err != nil {
		return nil, err
	}
	o.clients[def.ID] = c
	return c, nil
}

// run drives one job through its plan.
func (o *Orchestrator) run(ctx context.Context, job *Job, def *service.Definition, endpoint *service.Endpoint, client request.Client) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "job")
	defer span.End()

	job.setState(StateRunning)

	var (
		data  *request.RequestData
		batch *media.Batch
		resp  *response.JobResponse
		final any
	)

	for _, stage := range job.Plan {
		if err := ctx.Err(); err != nil {
			o.terminate(job, StateCancelled,
				sdkerr.New(sdkerr.KindServerJobCancelled, "job %s was cancelled", job.ID), start, def)
			return
		}
		job.report(Progress{Stage: stage})

		var err error
		switch stage {
		case StagePreparing:
			data, err = client.FormatRequest(endpoint, job.Input)
			job.recordOutput(stage, data)

		case StageLoadFiles:
			batch, err = client.Handler().Load(ctx, data.Files)
			job.recordOutput(stage, batch)

		case StageUploading:
			if batch != nil {
				err = client.Handler().Upload(ctx, batch)
				job.recordOutput(stage, batch)
			}

		case StageSending:
			if batch != nil {
				attach(data, client.Handler().Attach(batch))
				batch = nil
			}
			resp, final, err = o.send(ctx, client, data)
			job.recordOutput(stage, resp)

		case StagePolling:
			if resp != nil {
				resp, err = o.poll(ctx, job, client, resp)
				job.recordOutput(stage, resp)
			}

		case StageProcessing:
			value := final
			if resp != nil {
				value = resp.Result
			}
			decoded := o.decoder.Decode(value)
			job.recordOutput(stage, decoded)
			job.report(Progress{Stage: stage, Fraction: 1})
			o.metrics.RecordTimer("job_duration", time.Since(start), "specification", string(def.Specification))
			o.metrics.IncCounter("jobs_finished", 1, "specification", string(def.Specification))
			o.logger.Info(ctx, "job finished", "job_id", job.ID, "duration", time.Since(start).String())
			job.finish(decoded)
			return
		}

		if err != nil {
			state := StateFailed
			if sdkerr.IsKind(err, sdkerr.KindServerJobCancelled) || ctx.Err() != nil {
				state = StateCancelled
			}
			o.terminate(job, state, err, start, def)
			return
		}
	}
}

func (o *Orchestrator) terminate(job *Job, state State, err error, start time.Time, def *service.Definition) {
	o.metrics.RecordTimer("job_duration", time.Since(start), "specification", string(def.Specification))
	o.metrics.IncCounter("jobs_failed", 1, "specification", string(def.Specification))
	o.logger.Error(context.Background(), "job terminated",
		"job_id", job.ID, "state", string(state), "error", err)
	job.fail(state, err)
}

// attach folds the prepared file fragment into the request: body values for
// URLs and base64 strings, parts for multipart attachment.
func attach(data *request.RequestData, prepared *media.Prepared) {
	for name, value := range prepared.Values {
		data.Body[name] = value
	}
	data.Parts = prepared.Parts
	data.Files = nil
}

// send performs the initial dispatch. Asynchronous services return a parsed
// job response; synchronous services return the decoded payload directly.
func (o *Orchestrator) send(ctx context.Context, client request.Client, data *request.RequestData) (*response.JobResponse, any, error) {
	raw, err := client.Send(ctx, data)
	if err != nil {
		return nil, nil, err
	}
	resp, err := o.parser.ParseHTTP(raw.StatusCode, raw.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp != nil {
		return resp, nil, nil
	}
	return nil, decodePayload(raw.Body), nil
}

// poll repeats the provider's status call until the response is terminal.
// Transient failures (transport errors, 5xx, undecodable payloads) are
// tolerated up to three consecutive times; queued/processing transitions in
// either direction are reported but never fatal.
func (o *Orchestrator) poll(ctx context.Context, job *Job, client request.Client, last *response.JobResponse) (*response.JobResponse, error) {
	limiter := rate.NewLimiter(rate.Every(o.pollInterval), 1)
	deadline := time.Now().Add(o.pollCap)
	consecutiveErrors := 0

	// Status requests ride a detached context: cancellation is observed at
	// tick boundaries, an in-flight request is left to finish.
	reqCtx := context.WithoutCancel(ctx)

	current := last
	for {
		if current.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			return nil, sdkerr.New(sdkerr.KindPollTimeout,
				"job %s still %s after %s of polling", job.ID, current.Status, o.pollCap)
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, sdkerr.New(sdkerr.KindServerJobCancelled, "job %s was cancelled while polling", job.ID)
		}

		next, err := o.pollOnce(reqCtx, client, current)
		if err != nil {
			if !transient(err) {
				return nil, err
			}
			consecutiveErrors++
			o.logger.Warn(ctx, "poll tick failed",
				"job_id", job.ID, "consecutive", consecutiveErrors, "error", err)
			if consecutiveErrors > maxConsecutivePollErrors {
				return nil, err
			}
			continue
		}
		consecutiveErrors = 0

		if next.Status != current.Status {
			o.logger.Debug(ctx, "job status changed",
				"job_id", job.ID, "from", string(current.Status), "to", string(next.Status))
		}
		job.report(Progress{Stage: StagePolling, Fraction: next.Progress, Message: next.ProgressMessage})
		current = next
	}

	switch current.Status {
	case response.StatusFailed:
		return nil, sdkerr.New(sdkerr.KindServerJobFailed, "job %s failed remotely: %s", job.ID, serverError(current))
	case response.StatusCancelled:
		return nil, sdkerr.New(sdkerr.KindServerJobCancelled, "job %s was cancelled remotely", job.ID)
	case response.StatusTimeout:
		return nil, sdkerr.New(sdkerr.KindPollTimeout, "job %s timed out remotely: %s", job.ID, serverError(current))
	}
	return current, nil
}

// pollOnce issues one status call and parses the payload. Responses the
// parser does not recognize count as poll failures.
func (o *Orchestrator) pollOnce(ctx context.Context, client request.Client, last *response.JobResponse) (*response.JobResponse, error) {
	raw, err := client.PollStatus(ctx, last)
	if err != nil {
		return nil, err
	}
	resp, err := o.parser.ParseHTTP(raw.StatusCode, raw.Body)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, sdkerr.New(sdkerr.KindRequestFailed, "poll payload was not recognized by any protocol")
	}
	// Providers drop the refresh URL from status payloads; keep the one we
	// have so the next tick still knows where to ask.
	if resp.RefreshURL == "" {
		resp.RefreshURL = last.RefreshURL
	}
	if resp.ID == "" {
		resp.ID = last.ID
	}
	return resp, nil
}

// transient reports whether a poll error is worth retrying: transport
// failures, server-side 5xx and unrecognized payloads. Client-side HTTP
// errors are final.
func transient(err error) bool {
	switch sdkerr.KindOf(err) {
	case sdkerr.KindRequestFailed:
		return true
	case sdkerr.KindHTTPError:
		var e *sdkerr.Error
		if errors.As(err, &e) {
			return e.StatusCode >= 500
		}
	}
	return false
}

func serverError(resp *response.JobResponse) string {
	if resp.Error != "" {
		return resp.Error
	}
	return "no error detail provided"
}

// decodePayload decodes a synchronous response body: JSON when possible,
// raw text otherwise.
func decodePayload(body []byte) any {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		return decoded
	}
	return string(body)
}
