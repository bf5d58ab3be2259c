package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/socaity/fastsdk-go/response"
	"github.com/socaity/fastsdk-go/sdkerr"
)

const (
	// defaultRunpodKeyPrefix matches the current key format; older keys
	// started with "r8_" and deployments can opt back via WithKeyPrefix.
	defaultRunpodKeyPrefix = "rpa_"
	runpodSignupURL        = "https://www.runpod.io"
)

// RunpodClient talks to Runpod serverless endpoints. Every call goes to the
// fixed {base}/run route; the endpoint path travels inside the input payload
// and polling POSTs against {base}/status/{id}.
type RunpodClient struct {
	*base

	keyPrefix string
}

var _ Client = (*RunpodClient)(nil)

// Send frames the call as {"input": {...params, "path": endpointPath}} and
// POSTs it to the run route.
func (c *RunpodClient) Send(ctx context.Context, data *RequestData) (*Result, error) {
	input := mergedBody(data)
	if path := data.Endpoint.Path; path != "" && path != "/" {
		input["path"] = path
	}
	body := map[string]any{"input": input}
	return c.sendJSON(ctx, http.MethodPost, joinURL(c.addr.URL, "/run"), body, data)
}

// PollStatus refreshes job state with a POST on the status route.
func (c *RunpodClient) PollStatus(ctx context.Context, last *response.JobResponse) (*Result, error) {
	return c.get(ctx, http.MethodPost, joinURL(c.addr.URL, "/status/"+last.ID))
}

// ValidateAPIKey requires a key with the configured prefix.
func (c *RunpodClient) ValidateAPIKey() error {
	if c.apiKey == "" {
		return sdkerr.New(sdkerr.KindAPIKeyMissing,
			"a Runpod API key is required, create one at %s", runpodSignupURL)
	}
	if !strings.HasPrefix(c.apiKey, c.keyPrefix) {
		return sdkerr.New(sdkerr.KindAPIKeyInvalid,
			"Runpod API keys start with %q, check your key at %s", c.keyPrefix, runpodSignupURL)
	}
	return nil
}
