package response

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/telemetry"
)

// Strategy recognizes and decodes one response dialect. Strategies run in
// order; the first whose CanParse accepts the body wins.
type Strategy struct {
	Name     string
	CanParse func(body map[string]any) bool
	Parse    func(body map[string]any) *JobResponse
}

// Parser decodes provider payloads into JobResponses.
type Parser struct {
	strategies []Strategy
	logger     telemetry.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithStrategies replaces the default strategy list.
func WithStrategies(strategies ...Strategy) ParserOption {
	return func(p *Parser) { p.strategies = strategies }
}

// WithLogger sets the parser logger.
func WithLogger(l telemetry.Logger) ParserOption {
	return func(p *Parser) { p.logger = l }
}

// NewParser creates a Parser with the built-in Socaity, Runpod and Replicate
// strategies in that order.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		strategies: []Strategy{socaityStrategy(), runpodStrategy(), replicateStrategy()},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = telemetry.NoopLogger{}
	}
	return p
}

// Parse runs the strategies over a decoded body. The second return reports
// whether any strategy recognized the payload.
func (p *Parser) Parse(body map[string]any) (*JobResponse, bool) {
	for _, s := range p.strategies {
		if !s.CanParse(body) {
			continue
		}
		resp := s.Parse(body)
		return p.recoverNested(resp), true
	}
	return nil, false
}

// ParseHTTP maps the HTTP status, decodes the JSON body and runs the
// strategies. Unrecognized 200 payloads return (nil, nil) so callers can
// treat them as plain synchronous results.
func (p *Parser) ParseHTTP(statusCode int, body []byte) (*JobResponse, error) {
	if err := CheckStatus(statusCode, body); err != nil {
		return nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, nil
	}
	resp, ok := p.Parse(decoded)
	if !ok {
		return nil, nil
	}
	// A healthy 200 with an unmappable status is a completed prediction on
	// hosts that omit the status field once results are ready.
	if resp.Protocol == ProtocolReplicate && resp.Status == StatusUnknown && statusCode == http.StatusOK {
		resp.Status = StatusFinished
		resp.Progress = 1
	}
	return resp, nil
}

// recoverNested re-parses a Runpod result that is itself a JSON-encoded
// response from another protocol and merges it over the outer payload. The
// inner fields win; outer fields survive only where the inner has none.
func (p *Parser) recoverNested(resp *JobResponse) *JobResponse {
	if resp.Protocol != ProtocolRunpod {
		return resp
	}
	encoded, ok := resp.Result.(string)
	if !ok || !strings.HasPrefix(strings.TrimSpace(encoded), "{") {
		return resp
	}
	var nested map[string]any
	if err := json.Unmarshal([]byte(encoded), &nested); err != nil {
		return resp
	}
	inner, ok := p.Parse(nested)
	if !ok {
		return resp
	}
	inner.merge(resp)
	return inner
}

func socaityStrategy() Strategy {
	return Strategy{
		Name: "socaity",
		CanParse: func(body map[string]any) bool {
			protocol, _ := body["endpoint_protocol"].(string)
			return strings.EqualFold(protocol, "socaity") && has(body, "id") && has(body, "status")
		},
		Parse: func(body map[string]any) *JobResponse {
			status, _ := UnifiedStatus(str(body, "status"))
			resp := &JobResponse{
				ID:         str(body, "id"),
				Status:     status,
				Error:      errorText(body),
				Result:     body["result"],
				RefreshURL: str(body, "refresh_job_url"),
				CancelURL:  str(body, "cancel_job_url"),
				Protocol:   ProtocolSocaity,
				Socaity: &SocaityMeta{
					CreatedAt:           str(body, "created_at"),
					ExecutionStartedAt:  str(body, "execution_started_at"),
					ExecutionFinishedAt: str(body, "execution_finished_at"),
				},
			}
			resp.Progress, resp.ProgressMessage = extractProgress(body, resp.Status)
			return resp
		},
	}
}

func runpodStrategy() Strategy {
	return Strategy{
		Name: "runpod",
		CanParse: func(body map[string]any) bool {
			if !has(body, "id") || !has(body, "status") {
				return false
			}
			_, ok := RunpodStatus(str(body, "status"))
			return ok
		},
		Parse: func(body map[string]any) *JobResponse {
			status, _ := RunpodStatus(str(body, "status"))
			resp := &JobResponse{
				ID:       str(body, "id"),
				Status:   status,
				Error:    errorText(body),
				Result:   body["output"],
				Protocol: ProtocolRunpod,
				Runpod: &RunpodMeta{
					DelayTimeMS:     num(body, "delayTime"),
					ExecutionTimeMS: num(body, "executionTime"),
					Retries:         num(body, "retries"),
					WorkerID:        str(body, "workerId"),
				},
			}
			resp.Progress, resp.ProgressMessage = extractProgress(body, resp.Status)
			return resp
		},
	}
}

func replicateStrategy() Strategy {
	return Strategy{
		Name: "replicate",
		CanParse: func(body map[string]any) bool {
			urls, _ := body["urls"].(map[string]any)
			get, _ := urls["get"].(string)
			return strings.Contains(get, "api.replicate.com")
		},
		Parse: func(body map[string]any) *JobResponse {
			urls, _ := body["urls"].(map[string]any)
			status, ok := ReplicateStatus(str(body, "status"))
			if !ok {
				status = StatusUnknown
			}
			metrics, _ := body["metrics"].(map[string]any)
			dataRemoved, _ := body["data_removed"].(bool)
			get, _ := urls["get"].(string)
			cancel, _ := urls["cancel"].(string)
			stream, _ := urls["stream"].(string)
			resp := &JobResponse{
				ID:         str(body, "id"),
				Status:     status,
				Error:      errorText(body),
				Result:     body["output"],
				RefreshURL: get,
				CancelURL:  cancel,
				Protocol:   ProtocolReplicate,
				Replicate: &ReplicateMeta{
					Metrics:     metrics,
					StreamURL:   stream,
					Version:     str(body, "version"),
					Logs:        str(body, "logs"),
					DataRemoved: dataRemoved,
				},
			}
			resp.Progress, resp.ProgressMessage = extractProgress(body, resp.Status)
			return resp
		},
	}
}

// extractProgress tolerates the progress shapes seen in the wild: a bare
// number, a {progress, message} object, or nothing. Finished jobs always
// report 1.0.
func extractProgress(body map[string]any, status JobStatus) (float64, string) {
	if status == StatusFinished {
		return 1, ""
	}
	switch v := body["progress"].(type) {
	case float64:
		return v, ""
	case int:
		return float64(v), ""
	case map[string]any:
		message, _ := v["message"].(string)
		return num(v, "progress"), message
	}
	return 0, ""
}

// CheckStatus maps an HTTP status to the transport error kinds. 2xx passes.
func CheckStatus(statusCode int, body []byte) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return sdkerr.New(sdkerr.KindUnauthorized,
			"request rejected with status %d, check that the API key is set and valid", statusCode).
			WithStatus(statusCode)
	case statusCode == http.StatusNotFound:
		return sdkerr.New(sdkerr.KindNotFound, "resource not found (status 404)").WithStatus(statusCode)
	default:
		return sdkerr.New(sdkerr.KindHTTPError, "request failed with status %d: %s", statusCode, snippet(body)).
			WithStatus(statusCode)
	}
}

// snippet truncates a body for error messages.
func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func has(m map[string]any, key string) bool {
	v, ok := m[key]
	return ok && v != nil
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func num(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// errorText renders the server error field, which arrives as a string or a
// structured object.
func errorText(m map[string]any) string {
	switch v := m["error"].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "unrecognized server error"
		}
		return string(encoded)
	}
}
