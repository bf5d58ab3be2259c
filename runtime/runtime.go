// Package runtime ties the SDK together: a Runtime owns a registry, a spec
// loader with the Runpod proxy wired in and a job orchestrator. A
// package-scoped default instance keeps simple call sites to one line.
package runtime

import (
	"context"
	"net/http"
	"sync"

	"github.com/socaity/fastsdk-go/jobs"
	"github.com/socaity/fastsdk-go/registry"
	"github.com/socaity/fastsdk-go/registry/store"
	"github.com/socaity/fastsdk-go/request"
	"github.com/socaity/fastsdk-go/service"
	"github.com/socaity/fastsdk-go/spec"
	"github.com/socaity/fastsdk-go/telemetry"
)

// Runtime is the SDK entry point.
type Runtime struct {
	registry     *registry.Registry
	orchestrator *jobs.Orchestrator
}

// Option configures a Runtime.
type Option func(*config)

type config struct {
	store        store.Store
	httpClient   *http.Client
	clientOpts   []request.Option
	orchOpts     []jobs.Option
	specOpts     []RunpodSpecOption
	logger       telemetry.Logger
	metrics      telemetry.Metrics
	tracer       telemetry.Tracer
}

// WithStore persists registered services in a backing store.
func WithStore(s store.Store) Option {
	return func(c *config) { c.store = s }
}

// WithHTTPClient shares one HTTP client across loader, clients and fetchers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithClientOptions forwards options to every provider client.
func WithClientOptions(opts ...request.Option) Option {
	return func(c *config) { c.clientOpts = opts }
}

// WithOrchestratorOptions forwards options to the job orchestrator.
func WithOrchestratorOptions(opts ...jobs.Option) Option {
	return func(c *config) { c.orchOpts = opts }
}

// WithRunpodSpecOptions configures the job-based Runpod spec fetcher.
func WithRunpodSpecOptions(opts ...RunpodSpecOption) Option {
	return func(c *config) { c.specOpts = opts }
}

// WithLogger sets the logger shared by all components.
func WithLogger(l telemetry.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics sets the metrics recorder shared by all components.
func WithMetrics(m telemetry.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithTracer sets the tracer shared by all components.
func WithTracer(t telemetry.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

// New creates a Runtime.
func New(opts ...Option) *Runtime {
	var c config
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.logger == nil {
		c.logger = telemetry.NoopLogger{}
	}
	if c.metrics == nil {
		c.metrics = telemetry.NoopMetrics{}
	}
	if c.tracer == nil {
		c.tracer = telemetry.NoopTracer{}
	}

	specOpts := append([]RunpodSpecOption{
		WithSpecHTTPClient(c.httpClient),
		WithSpecLogger(c.logger),
	}, c.specOpts...)
	loader := spec.NewLoader(
		spec.WithHTTPClient(c.httpClient),
		spec.WithLogger(c.logger),
		spec.WithProxyFetcher(NewRunpodSpecFetcher(specOpts...)),
	)

	regOpts := []registry.Option{
		registry.WithLoader(loader),
		registry.WithLogger(c.logger),
		registry.WithMetrics(c.metrics),
	}
	if c.store != nil {
		regOpts = append(regOpts, registry.WithStore(c.store))
	}
	reg := registry.New(regOpts...)

	clientOpts := append([]request.Option{
		request.WithHTTPClient(c.httpClient),
		request.WithLogger(c.logger),
	}, c.clientOpts...)
	orchOpts := append([]jobs.Option{
		jobs.WithClientOptions(clientOpts...),
		jobs.WithLogger(c.logger),
		jobs.WithMetrics(c.metrics),
		jobs.WithTracer(c.tracer),
	}, c.orchOpts...)

	return &Runtime{
		registry:     reg,
		orchestrator: jobs.New(reg, orchOpts...),
	}
}

// Registry returns the service catalog.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// Orchestrator returns the job scheduler.
func (r *Runtime) Orchestrator() *jobs.Orchestrator { return r.orchestrator }

// AddService registers a service from a spec source (inline document, file
// path, URL or pre-built definition).
func (r *Runtime) AddService(ctx context.Context, source any, opts ...registry.AddOption) (*service.Definition, error) {
	return r.registry.AddService(ctx, source, opts...)
}

// Submit schedules a job and returns its handle immediately.
func (r *Runtime) Submit(ctx context.Context, serviceIDOrName, endpointIDOrPath string, input map[string]any) (*jobs.Job, error) {
	return r.orchestrator.Submit(ctx, serviceIDOrName, endpointIDOrPath, input)
}

// Run submits a job and blocks until its final decoded result.
func (r *Runtime) Run(ctx context.Context, serviceIDOrName, endpointIDOrPath string, input map[string]any) (any, error) {
	job, err := r.Submit(ctx, serviceIDOrName, endpointIDOrPath, input)
	if err != nil {
		return nil, err
	}
	return job.Wait(ctx)
}

var (
	defaultRuntime *Runtime
	defaultOnce    sync.Once
)

// Default returns the package-scoped Runtime, constructing it on first use.
func Default() *Runtime {
	defaultOnce.Do(func() {
		defaultRuntime = New()
	})
	return defaultRuntime
}

// AddService registers a service on the default Runtime.
func AddService(ctx context.Context, source any, opts ...registry.AddOption) (*service.Definition, error) {
	return Default().AddService(ctx, source, opts...)
}

// Submit schedules a job on the default Runtime.
func Submit(ctx context.Context, serviceIDOrName, endpointIDOrPath string, input map[string]any) (*jobs.Job, error) {
	return Default().Submit(ctx, serviceIDOrName, endpointIDOrPath, input)
}

// Run submits a job on the default Runtime and waits for the result.
func Run(ctx context.Context, serviceIDOrName, endpointIDOrPath string, input map[string]any) (any, error) {
	return Default().Run(ctx, serviceIDOrName, endpointIDOrPath, input)
}
