// Package spec loads and parses remote service specifications. The loader
// fetches a raw document from an inline map, a file or a URL; the parsers
// reduce every supported dialect (OpenAPI, FastTaskAPI, Cog v1/v2) to the
// normalized service model.
package spec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/service"
	"github.com/socaity/fastsdk-go/telemetry"
)

// Document is a decoded specification: a nested JSON/YAML object.
type Document = map[string]any

// ProxyFetcher retrieves a specification that is not statically exposed.
// Runpod serverless hosts only serve their OpenAPI document through a job, so
// the runtime wires a job-based fetcher here.
type ProxyFetcher interface {
	FetchSpec(ctx context.Context, addr *service.Address) (Document, error)
}

// DefaultTimeout bounds a single spec fetch over HTTP.
const DefaultTimeout = 30 * time.Second

// Loader fetches specification documents.
type Loader struct {
	client  *http.Client
	timeout time.Duration
	proxy   ProxyFetcher
	logger  telemetry.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHTTPClient sets the HTTP client used for URL sources.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *Loader) { l.client = c }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.timeout = d }
}

// WithProxyFetcher wires the job-based fetcher used for Runpod serverless
// hosts.
func WithProxyFetcher(p ProxyFetcher) LoaderOption {
	return func(l *Loader) { l.proxy = p }
}

// WithLogger sets the loader's logger.
func WithLogger(logger telemetry.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader builds a Loader with sane defaults.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{timeout: DefaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.client == nil {
		l.client = &http.Client{}
	}
	if l.logger == nil {
		l.logger = telemetry.NoopLogger{}
	}
	return l
}

// fallbackPaths are probed in order when a URL does not already point at an
// openapi.json document.
var fallbackPaths = []string{
	"/openapi.json",
	"/api/openapi.json",
	"/docs/openapi.json",
	"/redoc/openapi.json",
}

// Load returns the specification document behind source, which may be an
// inline Document, a file path or a URL.
func (l *Loader) Load(ctx context.Context, source any) (Document, error) {
	switch src := source.(type) {
	case Document:
		return src, nil
	case string:
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			return l.loadURL(ctx, src)
		}
		return l.loadFile(src)
	default:
		return nil, sdkerr.New(sdkerr.KindSpecMalformed, "unsupported spec source type %T", source)
	}
}

func (l *Loader) loadFile(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sdkerr.New(sdkerr.KindSpecNotFound, "specification file not found: %s", path)
		}
		return nil, sdkerr.Wrap(sdkerr.KindSpecNotFound, err, "read specification file %s", path)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSpecMalformed, err, "decode specification file %s", path)
	}
	return doc, nil
}

func (l *Loader) loadURL(ctx context.Context, rawURL string) (Document, error) {
	if strings.Contains(rawURL, "api.runpod.ai") && l.proxy != nil {
		addr, err := service.ParseAddress(rawURL, service.SpecRunpod)
		if err == nil {
			return l.proxy.FetchSpec(ctx, addr)
		}
		l.logger.Warn(ctx, "runpod spec proxy skipped", "url", rawURL, "error", err)
	}

	doc, err := l.fetch(ctx, rawURL)
	if err == nil {
		return doc, nil
	}

	base := strings.TrimRight(rawURL, "/")
	if !strings.HasSuffix(base, "openapi.json") {
		for _, p := range fallbackPaths {
			probe := base + p
			doc, probeErr := l.fetch(ctx, probe)
			if probeErr == nil {
				l.logger.Debug(ctx, "spec located at fallback path", "url", probe)
				return doc, nil
			}
			err = probeErr
		}
	}
	return nil, sdkerr.Wrap(sdkerr.KindSpecNotFound, err, "could not load spec from %s or fallback locations", rawURL)
}

func (l *Loader) fetch(ctx context.Context, rawURL string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decodeDocument(raw)
}

// decodeDocument parses JSON first and falls back to YAML, since OpenAPI
// documents ship in both encodings.
func decodeDocument(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err == nil {
		return doc, nil
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("document is neither valid JSON nor YAML: %w", err)
	}
	return normalizeYAML(doc).(Document), nil
}

// normalizeYAML rewrites map[any]any trees produced by older YAML payloads
// into map[string]any so the parsers see one shape.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeYAML(item)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []any:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}
