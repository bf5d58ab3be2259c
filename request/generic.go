package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/socaity/fastsdk-go/response"
)

// GenericClient talks to plain OpenAPI services: query parameters in the
// URL, JSON body, multipart only when files travel inline, GET polling and
// optional authentication.
type GenericClient struct {
	*base
}

var _ Client = (*GenericClient)(nil)

// Send dispatches the endpoint call.
func (c *GenericClient) Send(ctx context.Context, data *RequestData) (*Result, error) {
	method := strings.ToUpper(data.Endpoint.HTTPMethod())
	if len(data.Parts) > 0 {
		return c.sendMultipart(ctx, method, c.buildURL(data), data.Body, data)
	}
	return c.sendJSON(ctx, method, c.buildURL(data), data.Body, data)
}

// PollStatus refreshes job state with a GET on the refresh URL.
func (c *GenericClient) PollStatus(ctx context.Context, last *response.JobResponse) (*Result, error) {
	return c.get(ctx, http.MethodGet, c.resolveURL(last.RefreshURL))
}

// ValidateAPIKey accepts any key; generic services may not need one.
func (c *GenericClient) ValidateAPIKey() error { return nil }
