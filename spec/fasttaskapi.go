package spec

import (
	"strings"

	"github.com/socaity/fastsdk-go/service"
)

// newFastTaskAPIParser wires the FastTaskAPI conventions into the common
// OpenAPI walk: component schemas whose title names a file model, or whose
// shape is {file_name, content_type, content}, resolve to media-typed string
// parameters.
func newFastTaskAPIParser(doc Document) *openAPIParser {
	p := newOpenAPIParser(doc)
	p.typeHook = fastTaskTypeHook
	return p
}

func fastTaskTypeHook(schema map[string]any) []service.ParamDefinition {
	if getString(schema, "type") == "string" {
		switch getString(schema, "format") {
		case "binary", "byte":
			return []service.ParamDefinition{{Type: service.TypeString, Format: service.FormatFile}}
		}
	}

	title := strings.ToLower(getString(schema, "title"))
	for keyword, format := range map[string]service.Format{
		"imagefilemodel": service.FormatImage,
		"videofilemodel": service.FormatVideo,
		"audiofilemodel": service.FormatAudio,
	} {
		if strings.Contains(title, keyword) {
			return []service.ParamDefinition{
				{Type: service.TypeString, Format: format},
				{Type: service.TypeString, Format: service.FormatFile},
			}
		}
	}

	if strings.Contains(title, "filemodel") || isFileModelShape(schema) {
		return []service.ParamDefinition{{Type: service.TypeString, Format: service.FormatFile}}
	}
	return nil
}

// isFileModelShape recognizes the conventional file model object even when
// the title gives nothing away.
func isFileModelShape(schema map[string]any) bool {
	props := getMap(schema, "properties")
	if props == nil {
		return false
	}
	_, hasName := props["file_name"]
	_, hasType := props["content_type"]
	return hasName && hasType
}
