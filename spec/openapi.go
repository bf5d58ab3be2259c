package spec

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/socaity/fastsdk-go/service"
)

// httpMethods are the path item keys treated as operations.
var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true,
	"patch": true, "head": true, "options": true, "trace": true,
}

// openAPIParser walks a generic OpenAPI 3.x document. Dialect parsers reuse
// it and install hooks for their specialized type resolution and body
// handling.
type openAPIParser struct {
	doc     Document
	schemas map[string]any

	// typeHook resolves dialect-specific schema shapes before the generic
	// rules run. Returning nil falls through.
	typeHook func(schema map[string]any) []service.ParamDefinition

	// bodyHook replaces request-body extraction for a path. Returning
	// (nil, false) falls through to the generic body rules.
	bodyHook func(path string, operation map[string]any) ([]service.Parameter, bool)
}

func newOpenAPIParser(doc Document) *openAPIParser {
	return &openAPIParser{doc: doc, schemas: componentSchemas(doc)}
}

func (p *openAPIParser) parse() (*service.Definition, error) {
	info := getMap(p.doc, "info")
	def := &service.Definition{
		ID:          getString(info, "x-service-id"),
		DisplayName: getString(info, "title"),
		Description: getString(info, "description"),
		ShortDesc:   getString(info, "summary"),
		RawSchemas:  p.schemas,
		Version:     VersionHash(p.doc),
	}

	// Map iteration shuffles on every decode; sorted walks keep endpoint
	// and parameter order stable across parses of the same document.
	paths := getMap(p.doc, "paths")
	for _, path := range slices.Sorted(maps.Keys(paths)) {
		item, ok := paths[path].(map[string]any)
		if !ok {
			continue
		}
		pathParams := p.parseParameterList(getSlice(item, "parameters"))
		for _, method := range slices.Sorted(maps.Keys(item)) {
			if !httpMethods[strings.ToLower(method)] {
				continue
			}
			op, ok := item[method].(map[string]any)
			if !ok {
				continue
			}
			def.Endpoints = append(def.Endpoints, p.parseEndpoint(path, strings.ToLower(method), op, pathParams))
		}
	}
	return def, nil
}

func (p *openAPIParser) parseEndpoint(path, method string, op map[string]any, pathParams []service.Parameter) service.Endpoint {
	endpoint := service.Endpoint{
		ID:          getString(op, "operationId"),
		Path:        path,
		Description: getString(op, "description"),
		ShortDesc:   getString(op, "summary"),
		Method:      method,
	}
	if timeout, ok := getFloat(op, "x-timeout"); ok {
		endpoint.TimeoutSeconds = timeout
	}

	all := append([]service.Parameter{}, pathParams...)
	all = append(all, p.parseParameterList(getSlice(op, "parameters"))...)
	all = append(all, p.parseBody(path, op)...)

	// Deduplicate by (name, location); every body content type shares one
	// bucket.
	seen := make(map[[2]string]bool, len(all))
	for _, param := range all {
		loc := string(param.Location)
		if param.Location == service.InBody {
			loc = "body"
		}
		key := [2]string{param.Name, loc}
		if seen[key] {
			continue
		}
		seen[key] = true
		endpoint.Parameters = append(endpoint.Parameters, param)
	}

	if responses := getMap(op, "responses"); len(responses) > 0 {
		endpoint.Responses = make(map[string]map[string]any, len(responses))
		for code, raw := range responses {
			if schema, ok := raw.(map[string]any); ok {
				endpoint.Responses[code] = schema
			}
		}
	}
	return endpoint
}

// parseParameterList handles path- and operation-level parameter arrays.
func (p *openAPIParser) parseParameterList(raw []any) []service.Parameter {
	var params []service.Parameter
	for _, entry := range raw {
		data, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		data = p.resolve(data)
		name := getString(data, "name")
		if name == "" {
			continue
		}
		location := service.Location(getString(data, "in"))
		if location == "" {
			location = service.InQuery
		}
		params = append(params, p.makeParam(
			name,
			getMap(data, "schema"),
			location,
			getBool(data, "required"),
			getString(data, "description"),
		))
	}
	return params
}

// parseBody extracts request-body parameters. JSON and multipart object
// bodies unwrap into per-property parameters; anything else becomes a single
// body parameter.
func (p *openAPIParser) parseBody(path string, op map[string]any) []service.Parameter {
	if p.bodyHook != nil {
		if params, ok := p.bodyHook(path, op); ok {
			return params
		}
	}

	body := p.resolve(getMap(op, "requestBody"))
	content := getMap(body, "content")
	for _, mime := range []string{"application/json", "multipart/form-data"} {
		media, ok := content[mime].(map[string]any)
		if !ok {
			continue
		}
		schema := p.resolve(getMap(media, "schema"))
		if schema == nil {
			continue
		}
		if getString(schema, "type") == "object" && getMap(schema, "properties") != nil {
			return p.objectProperties(schema)
		}
		name := getString(schema, "title")
		if name == "" {
			name = "body"
		}
		return []service.Parameter{p.makeParam(name, schema, service.InBody, getBool(body, "required"), getString(schema, "description"))}
	}
	return nil
}

// objectProperties turns an object schema into one body parameter per
// property.
func (p *openAPIParser) objectProperties(schema map[string]any) []service.Parameter {
	requiredNames := make(map[string]bool)
	for _, r := range getSlice(schema, "required") {
		if s, ok := r.(string); ok {
			requiredNames[s] = true
		}
	}
	props := getMap(schema, "properties")
	params := make([]service.Parameter, 0, len(props))
	for _, name := range slices.Sorted(maps.Keys(props)) {
		propSchema, _ := props[name].(map[string]any)
		params = append(params, p.makeParam(name, propSchema, service.InBody, requiredNames[name], ""))
	}
	return params
}

func (p *openAPIParser) makeParam(name string, schema map[string]any, location service.Location, required bool, description string) service.Parameter {
	resolved := p.resolve(schema)
	if description == "" {
		description = getString(resolved, "description")
	}
	var def any
	if resolved != nil {
		def = resolved["default"]
	}
	return service.Parameter{
		Name:        name,
		Definitions: p.definitions(schema),
		Required:    required,
		Default:     def,
		Location:    location,
		RawSchema:   resolved,
		Description: description,
	}
}

// resolve follows a $ref pointer into components.schemas.
func (p *openAPIParser) resolve(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	ref := getString(schema, "$ref")
	if ref == "" {
		return schema
	}
	parts := strings.Split(ref, "/")
	name := parts[len(parts)-1]
	resolved, _ := p.schemas[name].(map[string]any)
	return resolved
}

// definitions computes the parameter definition set for a schema:
// a single (type, format) pair for direct types, the item type for arrays,
// and the deduplicated union for composition keywords.
func (p *openAPIParser) definitions(schema map[string]any) []service.ParamDefinition {
	return dedupDefinitions(p.rawDefinitions(schema))
}

func (p *openAPIParser) rawDefinitions(schema map[string]any) []service.ParamDefinition {
	schema = p.resolve(schema)
	if schema == nil {
		return []service.ParamDefinition{{Type: service.TypeObject}}
	}
	if p.typeHook != nil {
		if defs := p.typeHook(schema); defs != nil {
			return defs
		}
	}

	if typ := getString(schema, "type"); typ != "" {
		switch typ {
		case "array":
			return []service.ParamDefinition{p.arrayDefinition(schema)}
		case "string":
			def := p.facets(schema, service.ParamDefinition{Type: service.TypeString})
			switch getString(schema, "format") {
			case "binary", "byte":
				def.Format = service.FormatBinary
			case "uri":
				def.Format = service.FormatURI
			}
			return []service.ParamDefinition{def}
		case "file":
			// Pre-3.0 leftover some Cog documents still emit.
			return []service.ParamDefinition{{Type: service.TypeString, Format: service.FormatFile}}
		default:
			return []service.ParamDefinition{p.facets(schema, service.ParamDefinition{Type: service.ParamType(typ)})}
		}
	}

	for _, keyword := range []string{"anyOf", "oneOf", "allOf"} {
		alternatives := getSlice(schema, keyword)
		if len(alternatives) == 0 {
			continue
		}
		var union []service.ParamDefinition
		for _, alt := range alternatives {
			altSchema, ok := alt.(map[string]any)
			if !ok {
				continue
			}
			union = append(union, p.rawDefinitions(altSchema)...)
		}
		if len(union) > 0 {
			return union
		}
	}

	return []service.ParamDefinition{{Type: service.TypeObject}}
}

func (p *openAPIParser) arrayDefinition(schema map[string]any) service.ParamDefinition {
	def := p.facets(schema, service.ParamDefinition{Type: service.TypeArray})
	items := p.rawDefinitions(getMap(schema, "items"))
	if len(items) > 0 {
		if items[0].Format != service.FormatNone {
			def.Format = items[0].Format
		} else {
			def.Format = service.Format(items[0].Type)
		}
	}
	return def
}

// facets copies the validation facets the request layer needs.
func (p *openAPIParser) facets(schema map[string]any, def service.ParamDefinition) service.ParamDefinition {
	def.Enum = getSlice(schema, "enum")
	if v, ok := getFloat(schema, "minLength"); ok {
		n := int(v)
		def.MinLength = &n
	}
	if v, ok := getFloat(schema, "maxLength"); ok {
		n := int(v)
		def.MaxLength = &n
	}
	if v, ok := getFloat(schema, "minimum"); ok {
		def.Minimum = &v
	}
	if v, ok := getFloat(schema, "maximum"); ok {
		def.Maximum = &v
	}
	if ap, ok := schema["additionalProperties"]; ok {
		def.AdditionalProperties = ap
	}
	return def
}

func dedupDefinitions(defs []service.ParamDefinition) []service.ParamDefinition {
	seen := make(map[[2]string]bool, len(defs))
	out := defs[:0]
	for _, def := range defs {
		key := [2]string{string(def.Type), string(def.Format)}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, def)
	}
	return out
}

// VersionHash is the SHA-1 of the canonical JSON encoding of the document.
// encoding/json sorts map keys, so equal documents hash equal regardless of
// source ordering.
func VersionHash(doc Document) string {
	canonical, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	sum := sha1.Sum(canonical)
	return hex.EncodeToString(sum[:])
}
