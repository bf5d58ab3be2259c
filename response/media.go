package response

import (
	"context"
	"net/http"
	"strings"

	"github.com/socaity/fastsdk-go/media"
)

// MediaRef is a lazily fetched remote media result. Replicate delivery URLs
// decode to refs so large outputs download only on demand.
type MediaRef struct {
	URL string

	client *http.Client
}

// Fetch downloads the referenced content.
func (r *MediaRef) Fetch(ctx context.Context) (*media.MediaFile, error) {
	return media.FromURL(ctx, r.client, r.URL)
}

// Decoder converts result payloads carrying conventional file models or
// delivery URLs into media values.
type Decoder struct {
	client *http.Client
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithHTTPClient sets the client used by lazily fetched refs.
func WithHTTPClient(c *http.Client) DecoderOption {
	return func(d *Decoder) { d.client = c }
}

// NewDecoder creates a media result decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.client == nil {
		d.client = &http.Client{}
	}
	return d
}

// Decode walks a result value and converts the media shapes it recognizes:
// {file_name, content_type, content} objects become MediaFiles, lists are
// converted element-wise and delivery URLs become lazy MediaRefs. Everything
// else passes through untouched.
func (d *Decoder) Decode(result any) any {
	switch v := result.(type) {
	case map[string]any:
		if isFileModel(v) {
			if f, err := media.Normalize("result", v); err == nil {
				return f
			}
		}
		return v
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = d.Decode(item)
		}
		return out
	case string:
		if isDeliveryURL(v) {
			return &MediaRef{URL: v, client: d.client}
		}
		return v
	default:
		return v
	}
}

func isFileModel(m map[string]any) bool {
	_, hasName := m["file_name"]
	_, hasType := m["content_type"]
	_, hasContent := m["content"]
	return hasName && hasType && hasContent
}

func isDeliveryURL(s string) bool {
	return media.IsURL(s) && strings.Contains(s, "replicate.delivery")
}
