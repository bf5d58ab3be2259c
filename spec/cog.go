package spec

import (
	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/service"
)

// defaultCogSeed patches the missing default on Cog seed parameters; the
// upstream documents omit it even though the servers apply one.
const defaultCogSeed = 42

// newCogParser wires the Cog v1 conventions into the common OpenAPI walk:
// the /predictions request body wraps an Input object reference, and uri or
// file typed strings carry files.
func newCogParser(doc Document) *openAPIParser {
	p := newOpenAPIParser(doc)
	p.typeHook = cogTypeHook
	p.bodyHook = func(path string, op map[string]any) ([]service.Parameter, bool) {
		if path != "/predictions" {
			return nil, false
		}
		return cogInputParameters(p, op), true
	}
	return p
}

func cogTypeHook(schema map[string]any) []service.ParamDefinition {
	if getString(schema, "type") == "string" && getString(schema, "format") == "uri" {
		return []service.ParamDefinition{{Type: service.TypeString, Format: service.FormatFile}}
	}
	if getString(schema, "type") == "file" {
		return []service.ParamDefinition{{Type: service.TypeString, Format: service.FormatFile}}
	}
	return nil
}

// cogInputParameters unwraps requestBody.schema.properties.input into
// per-field body parameters.
func cogInputParameters(p *openAPIParser, op map[string]any) []service.Parameter {
	body := p.resolve(getMap(op, "requestBody"))
	media := getMap(getMap(body, "content"), "application/json")
	schema := p.resolve(getMap(media, "schema"))
	input := p.resolve(getMap(getMap(schema, "properties"), "input"))
	if input == nil || getString(input, "type") != "object" {
		return nil
	}
	return patchCogDefaults(p.objectProperties(input))
}

// patchCogDefaults applies the seed compensation to a parameter list.
func patchCogDefaults(params []service.Parameter) []service.Parameter {
	for i := range params {
		if params[i].Name == "seed" && params[i].Default == nil {
			params[i].Default = defaultCogSeed
			params[i].Required = false
		}
	}
	return params
}

// parseCog2 handles the newer Cog documents that drop paths entirely: the
// /predictions endpoint is synthesized from components.schemas.Input and
// Output.
func parseCog2(doc Document) (*service.Definition, error) {
	schemas := componentSchemas(doc)
	input, _ := schemas["Input"].(map[string]any)
	if input == nil {
		return nil, sdkerr.New(sdkerr.KindUnsupportedSpec, "cog2 specification has no Input schema")
	}

	p := newOpenAPIParser(doc)
	p.typeHook = cogTypeHook

	info := getMap(doc, "info")
	def := &service.Definition{
		DisplayName: getString(info, "title"),
		Description: getString(info, "description"),
		ShortDesc:   getString(info, "summary"),
		RawSchemas:  schemas,
		Version:     VersionHash(doc),
	}

	endpoint := service.Endpoint{
		ID:     "predictions",
		Path:   "/predictions",
		Method: "post",
	}
	if getString(input, "type") == "object" {
		endpoint.Parameters = patchCogDefaults(p.objectProperties(input))
	}
	if _, ok := schemas["Output"]; ok {
		endpoint.Responses = map[string]map[string]any{
			"200": {
				"description": "Successful prediction",
				"content": map[string]any{
					"application/json": map[string]any{
						"schema": map[string]any{"$ref": "#/components/schemas/Output"},
					},
				},
			},
		}
	}
	def.Endpoints = append(def.Endpoints, endpoint)
	return def, nil
}
