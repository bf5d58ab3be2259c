// Package request assembles and dispatches provider HTTP calls. A base
// client partitions endpoint input into query, body, file and header buckets
// and validates it against the parameter schemas; provider variants override
// URL composition, body framing, authentication and polling.
package request

import (
	"net/http"
	"net/url"
	"time"

	"github.com/socaity/fastsdk-go/media"
	"github.com/socaity/fastsdk-go/service"
)

type (
	// RequestData is the partitioned, validated input of one job dispatch.
	// The file handler consumes Files and fills Body values or Parts before
	// Send runs.
	RequestData struct {
		Endpoint   *service.Endpoint
		Query      url.Values
		PathParams map[string]string
		Body       map[string]any
		Files      map[string]any
		Headers    http.Header
		Parts      []media.Part
		Timeout    time.Duration
	}

	// Result is a raw HTTP response: status, headers and drained body.
	Result struct {
		StatusCode int
		Header     http.Header
		Body       []byte
	}
)

// DefaultTimeout bounds a single dispatch or poll request unless the
// endpoint declares its own.
const DefaultTimeout = 60 * time.Second

// NewRequestData creates an empty partition for an endpoint.
func NewRequestData(endpoint *service.Endpoint) *RequestData {
	timeout := DefaultTimeout
	if endpoint.TimeoutSeconds > 0 {
		timeout = time.Duration(endpoint.TimeoutSeconds * float64(time.Second))
	}
	return &RequestData{
		Endpoint:   endpoint,
		Query:      url.Values{},
		PathParams: make(map[string]string),
		Body:       make(map[string]any),
		Files:      make(map[string]any),
		Headers:    http.Header{},
		Timeout:    timeout,
	}
}

// HasFiles reports whether file inputs remain to be processed.
func (d *RequestData) HasFiles() bool { return len(d.Files) > 0 }
