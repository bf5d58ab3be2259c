package spec

import (
	"strings"

	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/service"
)

// Detect classifies a specification document. The source URL, when known,
// contributes provider hints. Priority order:
//
//  1. "fast-task-api" key in info.
//  2. A component schema named JobResult or ending in "filemodel".
//  3. info.title == "cog" (cog2 when paths is empty and Input/Output exist).
//  4. Provider hints from the source URL or an OpenAI title.
//  5. Plain openapi.
func Detect(doc Document, sourceURL string) service.Specification {
	info := getMap(doc, "info")
	schemas := componentSchemas(doc)

	if _, ok := info["fast-task-api"]; ok {
		return service.SpecFastTaskAPI
	}
	for name := range schemas {
		lower := strings.ToLower(name)
		if lower == "jobresult" || strings.HasSuffix(lower, "filemodel") {
			return service.SpecFastTaskAPI
		}
	}

	title := strings.ToLower(getString(info, "title"))
	if title == "cog" {
		paths := getMap(doc, "paths")
		_, hasInput := schemas["Input"]
		_, hasOutput := schemas["Output"]
		if len(paths) == 0 && hasInput && hasOutput {
			return service.SpecCog2
		}
		return service.SpecCog
	}

	src := strings.ToLower(sourceURL)
	switch {
	case strings.Contains(src, "replicate"):
		return service.SpecReplicate
	case strings.Contains(src, "runpod"):
		return service.SpecRunpod
	case strings.Contains(src, "api.socaity.ai"):
		return service.SpecSocaity
	case strings.Contains(title, "openai"):
		return service.SpecOpenAI
	}
	return service.SpecOpenAPI
}

// Parse reduces a specification document to a service definition. The source
// URL, when known, feeds dialect detection and becomes the default service
// address.
func Parse(doc Document, sourceURL string) (*service.Definition, error) {
	if doc == nil {
		return nil, sdkerr.New(sdkerr.KindSpecMalformed, "nil specification document")
	}
	dialect := Detect(doc, sourceURL)

	var (
		def *service.Definition
		err error
	)
	switch dialect {
	case service.SpecCog2:
		def, err = parseCog2(doc)
	case service.SpecCog, service.SpecReplicate:
		// Replicate hosts cog models; their documents follow the cog
		// conventions whether or not the title says so.
		def, err = newCogParser(doc).parse()
	case service.SpecFastTaskAPI, service.SpecSocaity:
		def, err = newFastTaskAPIParser(doc).parse()
	default:
		def, err = newOpenAPIParser(doc).parse()
	}
	if err != nil {
		return nil, err
	}
	def.Specification = dialect
	if len(def.Endpoints) == 0 {
		return nil, sdkerr.New(sdkerr.KindUnsupportedSpec, "specification %q defines no endpoints", def.DisplayName)
	}
	def.EnsureIdentity()
	return def, nil
}

func componentSchemas(doc Document) map[string]any {
	return getMap(getMap(doc, "components"), "schemas")
}

func getMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

func getSlice(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	v, _ := m[key].([]any)
	return v
}

func getBool(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	v, _ := m[key].(bool)
	return v
}

func getFloat(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
