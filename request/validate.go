package request

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/socaity/fastsdk-go/sdkerr"
	"github.com/socaity/fastsdk-go/service"
)

// validateValue checks a supplied parameter value against the parameter's
// raw JSON schema. Media parameters and parameters without a schema pass;
// schemas that fail to compile pass too, since full spec validation is not
// this layer's job.
func validateValue(param *service.Parameter, value any) error {
	if param.RawSchema == nil || param.IsMedia() {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("param.json", normalizeJSON(param.RawSchema)); err != nil {
		return nil
	}
	schema, err := compiler.Compile("param.json")
	if err != nil {
		return nil
	}
	if err := schema.Validate(normalizeJSON(value)); err != nil {
		return sdkerr.Wrap(sdkerr.KindInvalidParameterValue, err,
			"value for parameter %q does not match its schema", param.Name)
	}
	return nil
}

// normalizeJSON round-trips a value through JSON so the validator sees the
// canonical decoded types (float64 numbers, map[string]any objects).
func normalizeJSON(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
