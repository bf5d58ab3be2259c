package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/socaity/fastsdk-go/media"
	"github.com/socaity/fastsdk-go/response"
	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/service"
	"github.com/socaity/fastsdk-go/telemetry"
)

// Client dispatches endpoint calls for one service. Implementations differ
// per provider in URL composition, body framing, authentication and polling.
type Client interface {
	// FormatRequest partitions and validates the input map for an endpoint.
	FormatRequest(endpoint *service.Endpoint, input map[string]any) (*RequestData, error)
	// Send performs the initial dispatch call.
	Send(ctx context.Context, data *RequestData) (*Result, error)
	// PollStatus refreshes the state of a previously dispatched job.
	PollStatus(ctx context.Context, last *response.JobResponse) (*Result, error)
	// ValidateAPIKey enforces the provider's key requirements.
	ValidateAPIKey() error
	// Handler returns the file handler configured for this provider.
	Handler() *media.Handler
	// Address returns the resolved service address.
	Address() *service.Address
}

// Option configures a client.
type Option func(*options)

type options struct {
	apiKey     string
	httpClient *http.Client
	uploader   media.Uploader
	profile    *media.Profile
	logger     telemetry.Logger
	keyPrefix  string
}

// WithAPIKey sets the API key explicitly, overriding the environment.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithHTTPClient sets the HTTP client shared by all calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithUploader wires an out-of-band uploader into the file handler.
func WithUploader(u media.Uploader) Option {
	return func(o *options) { o.uploader = u }
}

// WithFileProfile overrides the provider's default file handling profile.
func WithFileProfile(p media.Profile) Option {
	return func(o *options) { o.profile = &p }
}

// WithLogger sets the client logger.
func WithLogger(l telemetry.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithKeyPrefix overrides the expected API key prefix for providers that
// rotated their key format.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.keyPrefix = prefix }
}

// New builds the client variant matching the service's specification. The
// API key comes from the options or the provider's environment variable, and
// its format is validated before the client is returned.
func New(def *service.Definition, opts ...Option) (Client, error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if def.Address == nil {
		return nil, sdkerr.New(sdkerr.KindRequestFailed, "service %q has no address", def.ID)
	}

	b := &base{
		def:    def,
		addr:   def.Address,
		apiKey: o.apiKey,
		http:   o.httpClient,
		logger: o.logger,
	}
	if b.http == nil {
		b.http = &http.Client{}
	}
	if b.logger == nil {
		b.logger = telemetry.NoopLogger{}
	}

	profile := media.DefaultProfile(def.Specification)
	if o.profile != nil {
		profile = *o.profile
	}
	if o.uploader != nil {
		profile.Uploader = o.uploader
	}
	b.handler = media.NewHandler(profile, media.WithHTTPClient(b.http), media.WithLogger(b.logger))

	var client Client
	switch def.Specification {
	case service.SpecSocaity, service.SpecFastTaskAPI:
		if b.apiKey == "" {
			b.apiKey = envAPIKey("socaity")
		}
		client = &SocaityClient{base: b}
	case service.SpecRunpod:
		if b.apiKey == "" {
			b.apiKey = envAPIKey("runpod")
		}
		prefix := o.keyPrefix
		if prefix == "" {
			prefix = defaultRunpodKeyPrefix
		}
		client = &RunpodClient{base: b, keyPrefix: prefix}
	case service.SpecReplicate:
		if b.apiKey == "" {
			b.apiKey = envAPIKey("replicate")
		}
		client = &ReplicateClient{base: b}
	default:
		client = &GenericClient{base: b}
	}

	if err := client.ValidateAPIKey(); err != nil {
		return nil, err
	}
	return client, nil
}

// envAPIKey reads the conventional {PROVIDER}_API_KEY variable.
func envAPIKey(provider string) string {
	return os.Getenv(strings.ToUpper(provider) + "_API_KEY")
}

// base carries the state and helpers shared by all client variants.
type base struct {
	def     *service.Definition
	addr    *service.Address
	apiKey  string
	http    *http.Client
	handler *media.Handler
	logger  telemetry.Logger
}

// Handler returns the file handler.
func (b *base) Handler() *media.Handler { return b.handler }

// Address returns the resolved service address.
func (b *base) Address() *service.Address { return b.addr }

// FormatRequest partitions the input map into query, body, file and header
// buckets per parameter location, applies defaults, validates values and
// attaches the Authorization header when a key is configured.
func (b *base) FormatRequest(endpoint *service.Endpoint, input map[string]any) (*RequestData, error) {
	data := NewRequestData(endpoint)

	remaining := make(map[string]any, len(input))
	for k, v := range input {
		remaining[k] = v
	}

	for i := range endpoint.Parameters {
		param := &endpoint.Parameters[i]
		value, supplied := remaining[param.Name]
		delete(remaining, param.Name)

		if !supplied {
			if param.Default != nil {
				value = param.Default
			} else if param.Required {
				return nil, sdkerr.New(sdkerr.KindMissingParameter,
					"required parameter %q was not supplied", param.Name)
			} else {
				continue
			}
		} else if err := validateValue(param, value); err != nil {
			return nil, err
		}

		// Media parameters ship as files regardless of declared location.
		if param.IsMedia() {
			data.Files[param.Name] = value
			continue
		}

		switch param.Location {
		case service.InQuery:
			data.Query.Set(param.Name, stringify(value))
		case service.InPath:
			data.PathParams[param.Name] = stringify(value)
		case service.InHeader:
			data.Headers.Set(param.Name, stringify(value))
		case service.InCookie:
			data.Headers.Add("Cookie", param.Name+"="+stringify(value))
		default:
			data.Body[param.Name] = value
		}
	}

	// Unknown keys pass through in the body so servers with undeclared
	// parameters stay reachable.
	for name, value := range remaining {
		data.Body[name] = value
	}

	if b.apiKey != "" {
		data.Headers.Set("Authorization", "Bearer "+b.apiKey)
	}
	return data, nil
}

// buildURL composes {base}/{path}?{query} with path parameters substituted.
func (b *base) buildURL(data *RequestData) string {
	u := b.buildPathURL(data)
	if len(data.Query) > 0 {
		u += "?" + data.Query.Encode()
	}
	return u
}

// buildPathURL composes {base}/{path} without the query string, for
// providers that fold query parameters into the body.
func (b *base) buildPathURL(data *RequestData) string {
	path := data.Endpoint.Path
	for name, value := range data.PathParams {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}
	return joinURL(b.addr.URL, path)
}

// sendJSON dispatches a JSON body.
func (b *base) sendJSON(ctx context.Context, method, rawURL string, body any, data *RequestData) (*Result, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindRequestFailed, err, "encode request body")
	}
	return b.do(ctx, method, rawURL, "application/json", bytes.NewReader(encoded), data.Headers, data.Timeout)
}

// sendMultipart dispatches fields and file parts as multipart/form-data.
func (b *base) sendMultipart(ctx context.Context, method, rawURL string, fields map[string]any, data *RequestData) (*Result, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := writer.WriteField(name, stringify(value)); err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindRequestFailed, err, "write form field %q", name)
		}
	}
	for _, part := range data.Parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, part.Field, part.FileName))
		header.Set("Content-Type", part.ContentType)
		w, err := writer.CreatePart(header)
		if err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindRequestFailed, err, "create form part %q", part.Field)
		}
		if _, err := w.Write(part.Content); err != nil {
			return nil, sdkerr.Wrap(sdkerr.KindRequestFailed, err, "write form part %q", part.Field)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindRequestFailed, err, "finalize multipart body")
	}
	return b.do(ctx, method, rawURL, writer.FormDataContentType(), &buf, data.Headers, data.Timeout)
}

// get issues a bare request reusing the client's authorization.
func (b *base) get(ctx context.Context, method, rawURL string) (*Result, error) {
	headers := http.Header{}
	if b.apiKey != "" {
		headers.Set("Authorization", "Bearer "+b.apiKey)
	}
	return b.do(ctx, method, rawURL, "", nil, headers, DefaultTimeout)
}

func (b *base) do(ctx context.Context, method, rawURL, contentType string, body io.Reader, headers http.Header, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindRequestFailed, err, "build %s request for %s", method, rawURL)
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	b.logger.Debug(ctx, "dispatching request", "method", method, "url", rawURL)
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindRequestFailed, err, "%s %s", method, rawURL)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindRequestFailed, err, "read response from %s", rawURL)
	}
	return &Result{StatusCode: resp.StatusCode, Header: resp.Header, Body: payload}, nil
}

// resolveURL makes a possibly relative refresh URL absolute against the
// service address.
func (b *base) resolveURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return joinURL(b.addr.URL, ref)
}

func joinURL(baseURL, path string) string {
	if path == "" {
		return strings.TrimRight(baseURL, "/")
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// stringify renders a value for form fields and query strings. Non-scalar
// values serialize as JSON.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	case bool, int, int64, float64:
		return fmt.Sprint(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

// mergedBody folds the query bucket into the body map, the framing used by
// providers whose single endpoint takes every parameter in the body.
func mergedBody(data *RequestData) map[string]any {
	merged := make(map[string]any, len(data.Body)+len(data.Query))
	for name, value := range data.Body {
		merged[name] = value
	}
	for name := range data.Query {
		merged[name] = data.Query.Get(name)
	}
	return merged
}
