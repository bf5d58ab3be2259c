package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/socaity/fastsdk-go/response"
	"github.com/socaity/fastsdk-go/sdkerr"
)

const (
	replicateKeyPrefix = "r8_"
	replicateSignupURL = "https://replicate.com/account/api-tokens"
)

// ReplicateClient talks to the Replicate predictions API: a single endpoint
// that takes {"input": {...}} with the model version injected, and GET
// polling on the prediction's own URL.
type ReplicateClient struct {
	*base
}

var _ Client = (*ReplicateClient)(nil)

// Send frames the call as {"input": {...}} and POSTs it to the predictions
// URL. A pinned version travels in the body whenever the request targets a
// predictions route.
func (c *ReplicateClient) Send(ctx context.Context, data *RequestData) (*Result, error) {
	body := map[string]any{"input": mergedBody(data)}
	url := c.dispatchURL()
	if c.addr.Version != "" && strings.Contains(url, "/predictions") {
		body["version"] = c.addr.Version
	}
	return c.sendJSON(ctx, http.MethodPost, url, body, data)
}

// dispatchURL is the address URL with the version marker stripped; the
// version travels in the body instead.
func (c *ReplicateClient) dispatchURL() string {
	u := c.addr.URL
	if c.addr.Version != "" {
		u = strings.Replace(u, ":"+c.addr.Version, "", 1)
		u = strings.TrimSuffix(u, "/"+c.addr.Version)
	}
	return u
}

// PollStatus refreshes job state with a GET on the prediction URL.
func (c *ReplicateClient) PollStatus(ctx context.Context, last *response.JobResponse) (*Result, error) {
	return c.get(ctx, http.MethodGet, c.resolveURL(last.RefreshURL))
}

// ValidateAPIKey requires a key with the Replicate prefix.
func (c *ReplicateClient) ValidateAPIKey() error {
	if c.apiKey == "" {
		return sdkerr.New(sdkerr.KindAPIKeyMissing,
			"a Replicate API token is required, create one at %s", replicateSignupURL)
	}
	if !strings.HasPrefix(c.apiKey, replicateKeyPrefix) {
		return sdkerr.New(sdkerr.KindAPIKeyInvalid,
			"Replicate API tokens start with %q, check your token at %s", replicateKeyPrefix, replicateSignupURL)
	}
	return nil
}
