package media

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/service"
	"github.com/socaity/fastsdk-go/telemetry"
)

type (
	// Uploader pushes a batch of media files out of band and returns one
	// accessible URL per input key.
	Uploader interface {
		Upload(ctx context.Context, files map[string]*MediaFile) (map[string]string, error)
	}

	// AttachFormat selects how inline files ship on the wire.
	AttachFormat string

	// Profile is the per-provider file handling configuration.
	Profile struct {
		// Uploader handles out-of-band uploads. Nil disables uploading.
		Uploader Uploader
		// UploadThresholdMB switches from inline attachment to upload when
		// the batch total strictly exceeds it. Zero disables the switch.
		UploadThresholdMB float64
		// MaxUploadMB is the hard batch limit. Zero means unlimited.
		MaxUploadMB float64
		// AttachFormat is the inline encoding for files below the threshold.
		AttachFormat AttachFormat
	}

	// Part is a multipart form field carrying file content.
	Part struct {
		Field       string
		FileName    string
		ContentType string
		Content     []byte
	}

	// Batch is the normalized file input of one job: URL references pass
	// through in URLs, everything else materializes into Files. The Upload
	// stage moves entries from Files to URLs; Attach encodes the rest.
	Batch struct {
		URLs  map[string]string
		Files map[string]*MediaFile
	}

	// Prepared is the wire fragment produced from a batch: body values
	// (URLs or base64 strings) and multipart parts.
	Prepared struct {
		Values map[string]any
		Parts  []Part
	}
)

const (
	AttachMultipart AttachFormat = "multipart"
	AttachBase64    AttachFormat = "base64"
)

const megabyte = 1 << 20

// DefaultProfile returns the file handling configuration a provider expects.
// Uploaders are wired separately since they carry credentials.
func DefaultProfile(specification service.Specification) Profile {
	switch specification {
	case service.SpecRunpod:
		return Profile{AttachFormat: AttachBase64, MaxUploadMB: 300}
	case service.SpecSocaity, service.SpecFastTaskAPI:
		return Profile{AttachFormat: AttachMultipart, UploadThresholdMB: 3, MaxUploadMB: 3000}
	case service.SpecReplicate, service.SpecCog, service.SpecCog2:
		return Profile{AttachFormat: AttachBase64, UploadThresholdMB: 10, MaxUploadMB: 300}
	default:
		return Profile{AttachFormat: AttachMultipart}
	}
}

// Handler normalizes mixed file inputs (paths, bytes, URLs, data URIs) into
// a batch and decides between inline attachment and out-of-band upload.
type Handler struct {
	profile Profile
	client  *http.Client
	logger  telemetry.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHTTPClient sets the client used to materialize URL inputs when a
// provider needs their bytes.
func WithHTTPClient(c *http.Client) HandlerOption {
	return func(h *Handler) { h.client = c }
}

// WithLogger sets the handler logger.
func WithLogger(l telemetry.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a Handler for the given profile.
func NewHandler(profile Profile, opts ...HandlerOption) *Handler {
	h := &Handler{profile: profile}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.client == nil {
		h.client = &http.Client{}
	}
	if h.logger == nil {
		h.logger = telemetry.NoopLogger{}
	}
	return h
}

// Profile returns the handler configuration.
func (h *Handler) Profile() Profile { return h.profile }

// HasUploader reports whether out-of-band uploads are possible.
func (h *Handler) HasUploader() bool { return h.profile.Uploader != nil }

// Load materializes the file inputs into a batch and enforces the hard size
// limit. URL inputs are never downloaded or re-uploaded; they pass through
// as references.
func (h *Handler) Load(_ context.Context, inputs map[string]any) (*Batch, error) {
	batch := &Batch{
		URLs:  make(map[string]string),
		Files: make(map[string]*MediaFile),
	}
	for name, value := range inputs {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			if IsURL(v) {
				batch.URLs[name] = v
				continue
			}
			f, err := h.materializeString(name, v)
			if err != nil {
				return nil, err
			}
			batch.Files[name] = f
		default:
			f, err := Normalize(name, value)
			if err != nil {
				return nil, err
			}
			batch.Files[name] = f
		}
	}

	if total := batch.size(); h.profile.MaxUploadMB > 0 && float64(total) > h.profile.MaxUploadMB*megabyte {
		return nil, sdkerr.New(sdkerr.KindFileTooLarge,
			"file batch is %.1f MB, limit is %.0f MB", float64(total)/megabyte, h.profile.MaxUploadMB)
	}
	return batch, nil
}

// Upload decides whether the batch ships out of band. When the batch total
// strictly exceeds the threshold and an uploader is configured, every
// materialized file is uploaded and replaced by its URL; otherwise the batch
// is left untouched for inline attachment.
func (h *Handler) Upload(ctx context.Context, batch *Batch) error {
	if len(batch.Files) == 0 || !h.shouldUpload(batch.size()) {
		return nil
	}
	urls, err := h.profile.Uploader.Upload(ctx, batch.Files)
	if err != nil {
		return sdkerr.Wrap(sdkerr.KindUploadFailed, err, "upload %d file(s)", len(batch.Files))
	}
	for name := range batch.Files {
		url, ok := urls[name]
		if !ok {
			return sdkerr.New(sdkerr.KindUploadFailed, "uploader returned no URL for %q", name)
		}
		batch.URLs[name] = url
		delete(batch.Files, name)
	}
	h.logger.Debug(ctx, "file batch uploaded", "count", len(batch.URLs))
	return nil
}

// Attach encodes the files still carrying bytes per the profile format and
// returns the complete wire fragment, URL references included.
func (h *Handler) Attach(batch *Batch) *Prepared {
	prepared := &Prepared{Values: make(map[string]any, len(batch.URLs)+len(batch.Files))}
	for name, url := range batch.URLs {
		prepared.Values[name] = url
	}
	for name, f := range batch.Files {
		switch h.profile.AttachFormat {
		case AttachBase64:
			prepared.Values[name] = f.DataURI()
		default:
			prepared.Parts = append(prepared.Parts, Part{
				Field:       name,
				FileName:    f.Name,
				ContentType: f.ContentType,
				Content:     f.Bytes(),
			})
		}
	}
	return prepared
}

// Process runs Load, Upload and Attach back to back.
func (h *Handler) Process(ctx context.Context, inputs map[string]any) (*Prepared, error) {
	batch, err := h.Load(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if err := h.Upload(ctx, batch); err != nil {
		return nil, err
	}
	return h.Attach(batch), nil
}

func (b *Batch) size() int64 {
	var total int64
	for _, f := range b.Files {
		total += f.Size()
	}
	return total
}

// shouldUpload implements the strict-greater-than threshold: a batch exactly
// at the threshold still ships inline.
func (h *Handler) shouldUpload(total int64) bool {
	if h.profile.Uploader == nil || h.profile.UploadThresholdMB <= 0 {
		return false
	}
	return float64(total) > h.profile.UploadThresholdMB*megabyte
}

func (h *Handler) materializeString(name, v string) (*MediaFile, error) {
	if strings.HasPrefix(v, "data:") {
		return FromBase64(name, v)
	}
	if _, err := os.Stat(v); err == nil {
		return FromPath(v)
	}
	return nil, sdkerr.New(sdkerr.KindFileNotReadable,
		"value for %q is neither a URL, a data URI nor a readable file path", name)
}

// Normalize coerces the supported in-memory shapes into a MediaFile.
func Normalize(name string, value any) (*MediaFile, error) {
	switch v := value.(type) {
	case *MediaFile:
		return v, nil
	case MediaFile:
		return &v, nil
	case []byte:
		return FromBytes(name, v), nil
	case map[string]any:
		// The conventional file model object: {file_name, content_type, content}.
		encoded, ok := v["content"].(string)
		if !ok {
			return nil, sdkerr.New(sdkerr.KindFileNotReadable, "file object for %q has no content", name)
		}
		fileName, _ := v["file_name"].(string)
		if fileName == "" {
			fileName = name
		}
		f, err := FromBase64(fileName, encoded)
		if err != nil {
			return nil, err
		}
		if ct, _ := v["content_type"].(string); ct != "" {
			f.ContentType = ct
		}
		return f, nil
	default:
		return nil, sdkerr.New(sdkerr.KindFileNotReadable, "unsupported file input type %T for %q", value, name)
	}
}

// IsURL reports whether the string is an http(s) reference.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// String implements fmt.Stringer for logging without dumping content.
func (f *MediaFile) String() string {
	return fmt.Sprintf("MediaFile(%s, %s, %d bytes)", f.Name, f.ContentType, f.Size())
}
