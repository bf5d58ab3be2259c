package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/socaity/fastsdk-go/response"
	"github.com/socaity/fastsdk-go/sdkerr"
)

const (
	socaityKeyPrefix    = "sk_"
	socaityMinKeyLength = 67
	socaitySignupURL    = "https://www.socaity.ai"
)

// SocaityClient talks to Socaity-hosted FastTaskAPI services: every request
// ships as multipart form data with query parameters folded into the fields,
// and polling uses POST on the job's refresh URL.
type SocaityClient struct {
	*base
}

var _ Client = (*SocaityClient)(nil)

// Send dispatches the endpoint call as multipart form data.
func (c *SocaityClient) Send(ctx context.Context, data *RequestData) (*Result, error) {
	method := strings.ToUpper(data.Endpoint.HTTPMethod())
	return c.sendMultipart(ctx, method, c.buildPathURL(data), mergedBody(data), data)
}

// PollStatus refreshes job state with a POST on the refresh URL.
func (c *SocaityClient) PollStatus(ctx context.Context, last *response.JobResponse) (*Result, error) {
	return c.get(ctx, http.MethodPost, c.resolveURL(last.RefreshURL))
}

// ValidateAPIKey requires a key for the hosted platform and enforces its
// format. Self-hosted FastTaskAPI services run keyless.
func (c *SocaityClient) ValidateAPIKey() error {
	hosted := strings.Contains(c.addr.URL, "api.socaity.ai")
	if c.apiKey == "" {
		if !hosted {
			return nil
		}
		return sdkerr.New(sdkerr.KindAPIKeyMissing,
			"a Socaity API key is required, create one at %s", socaitySignupURL)
	}
	if !strings.HasPrefix(c.apiKey, socaityKeyPrefix) || len(c.apiKey) < socaityMinKeyLength {
		return sdkerr.New(sdkerr.KindAPIKeyInvalid,
			"Socaity API keys start with %q and are at least %d characters, check your key at %s",
			socaityKeyPrefix, socaityMinKeyLength, socaitySignupURL)
	}
	return nil
}
