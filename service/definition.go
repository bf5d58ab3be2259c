// Package service defines the normalized in-memory model for remote inference
// services: service definitions, endpoints, parameters and typed service
// addresses. Parsers reduce every supported specification dialect to these
// types and the rest of the runtime only ever sees them.
package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Specification identifies the dialect a service definition was parsed from.
type Specification string

const (
	SpecSocaity     Specification = "socaity"
	SpecFastTaskAPI Specification = "fasttaskapi"
	SpecRunpod      Specification = "runpod"
	SpecCog         Specification = "cog"
	SpecCog2        Specification = "cog2"
	SpecReplicate   Specification = "replicate"
	SpecOpenAI      Specification = "openai"
	SpecOpenAPI     Specification = "openapi"
	SpecOther       Specification = "other"
)

// Async reports whether the specification uses job-queue semantics, meaning
// submitted jobs must be polled until a terminal status.
func (s Specification) Async() bool {
	switch s {
	case SpecFastTaskAPI, SpecSocaity, SpecRunpod, SpecReplicate:
		return true
	}
	return false
}

// ParamType is the JSON-schema base type of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
	TypeNull    ParamType = "null"
)

// Format refines a parameter type, most importantly marking media-carrying
// strings.
type Format string

const (
	FormatNone   Format = ""
	FormatFile   Format = "file"
	FormatImage  Format = "image"
	FormatVideo  Format = "video"
	FormatAudio  Format = "audio"
	FormatURI    Format = "uri"
	FormatBinary Format = "binary"
)

// Media reports whether the format denotes file content that the file
// handler must materialize and ship.
func (f Format) Media() bool {
	switch f {
	case FormatFile, FormatImage, FormatVideo, FormatAudio, FormatBinary:
		return true
	}
	return false
}

// Location says where a parameter travels on the wire.
type Location string

const (
	InQuery  Location = "query"
	InPath   Location = "path"
	InHeader Location = "header"
	InCookie Location = "cookie"
	InBody   Location = "body"
)

type (
	// ParamDefinition is a single (type, format) alternative for a
	// parameter, together with the validation facets preserved from the
	// source schema.
	ParamDefinition struct {
		Type                 ParamType
		Format               Format
		Enum                 []any
		MinLength            *int
		MaxLength            *int
		Minimum              *float64
		Maximum              *float64
		AdditionalProperties any
	}

	// Parameter describes one endpoint parameter. Definitions holds one or
	// many alternatives (anyOf/oneOf/allOf collapse into a set deduplicated
	// by (type, format)).
	Parameter struct {
		Name        string
		Definitions []ParamDefinition
		Required    bool
		Default     any
		Location    Location
		RawSchema   map[string]any
		Description string
	}

	// Endpoint describes a callable operation on a service. Path is kept
	// verbatim for request assembly.
	Endpoint struct {
		ID          string
		Path        string
		DisplayName string
		Description string
		ShortDesc   string
		Method      string
		Parameters  []Parameter
		Responses   map[string]map[string]any
		// TimeoutSeconds hints how long a request to this endpoint may
		// take. Zero means use the client default.
		TimeoutSeconds float64
	}

	// Model references a base model a service runs on.
	Model struct {
		ID          string
		DisplayName string
		Author      string
		License     string
		PaperURL    string
	}

	// Category groups services by capability, for example text2image.
	Category struct {
		ID            string
		DisplayName   string
		Description   string
		InputDomains  []string
		OutputDomains []string
	}

	// Family bundles services that expose the same underlying model on
	// different hosts.
	Family struct {
		ID          string
		DisplayName string
		Description string
	}

	// Definition is the normalized description of a remote service.
	Definition struct {
		ID            string
		DisplayName   string
		Description   string
		ShortDesc     string
		Specification Specification
		Endpoints     []Endpoint
		Address       *Address
		Category      []string
		FamilyID      string
		UsedModels    []Model
		CreatedAt     time.Time
		// Version is the SHA-1 of the canonical JSON of the source
		// specification.
		Version    string
		RawSchemas map[string]any
	}
)

// MediaFormat returns the first media format in the parameter's definition
// set, or FormatNone.
func (p *Parameter) MediaFormat() Format {
	for _, def := range p.Definitions {
		if def.Format.Media() {
			return def.Format
		}
	}
	return FormatNone
}

// IsMedia reports whether any alternative of the parameter carries file
// content.
func (p *Parameter) IsMedia() bool { return p.MediaFormat() != FormatNone }

// IsArray reports whether any alternative of the parameter is an array.
func (p *Parameter) IsArray() bool {
	for _, def := range p.Definitions {
		if def.Type == TypeArray {
			return true
		}
	}
	return false
}

// Omittable reports whether a caller may leave the parameter out entirely.
func (p *Parameter) Omittable() bool { return !p.Required }

// HTTPMethod returns the endpoint method, defaulting to POST.
func (e *Endpoint) HTTPMethod() string {
	if e.Method == "" {
		return "POST"
	}
	return strings.ToUpper(e.Method)
}

// MediaParameters returns the endpoint parameters whose definition set
// includes a media format.
func (e *Endpoint) MediaParameters() []Parameter {
	var media []Parameter
	for _, p := range e.Parameters {
		if p.IsMedia() {
			media = append(media, p)
		}
	}
	return media
}

// HasMediaParameters reports whether the endpoint accepts at least one file
// parameter.
func (e *Endpoint) HasMediaParameters() bool {
	for _, p := range e.Parameters {
		if p.IsMedia() {
			return true
		}
	}
	return false
}

// Endpoint looks an endpoint up by id, falling back to a verbatim or
// normalized path match.
func (d *Definition) Endpoint(idOrPath string) *Endpoint {
	for i := range d.Endpoints {
		if d.Endpoints[i].ID == idOrPath {
			return &d.Endpoints[i]
		}
	}
	for i := range d.Endpoints {
		if d.Endpoints[i].Path == idOrPath || strings.Trim(d.Endpoints[i].Path, "/") == strings.Trim(idOrPath, "/") {
			return &d.Endpoints[i]
		}
	}
	normalized := NormalizeName(idOrPath)
	for i := range d.Endpoints {
		if NormalizeName(d.Endpoints[i].Path) == normalized || NormalizeName(d.Endpoints[i].ID) == normalized {
			return &d.Endpoints[i]
		}
	}
	return nil
}

// EnsureIdentity fills the generated fallbacks the parsers rely on: a uuid
// service id, a display name derived from the id and per-endpoint ids derived
// from method and path.
func (d *Definition) EnsureIdentity() {
	if d.ID == "" {
		d.ID = "gen-" + uuid.NewString()
	}
	if d.DisplayName == "" {
		d.DisplayName = "unnamed_service_" + d.ID
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	for i := range d.Endpoints {
		e := &d.Endpoints[i]
		if e.ID == "" {
			e.ID = EndpointID(e.Method, e.Path)
		}
		if e.DisplayName == "" {
			e.DisplayName = e.ID
		}
		if e.ShortDesc == "" {
			e.ShortDesc = e.DisplayName
		}
	}
}

// EndpointID derives the fallback endpoint id used when the source document
// carries no operation id.
func EndpointID(method, path string) string {
	m := strings.ToLower(method)
	if m == "" {
		m = "post"
	}
	p := strings.Trim(strings.ReplaceAll(path, "/", "_"), "_")
	if p == "" {
		return m
	}
	return fmt.Sprintf("%s_%s", m, p)
}
