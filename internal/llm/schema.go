package llm

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema is a named JSON schema for structured output.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// GenerateSchema reflects T into a schema that satisfies strict structured
// output rules: no additional properties and every property required.
func GenerateSchema[T any](name, description string) Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	b, err := reflector.Reflect(v).MarshalJSON()
	if err != nil {
		panic(err)
	}
	var def map[string]any
	if err := json.Unmarshal(b, &def); err != nil {
		panic(err)
	}
	delete(def, "$schema")
	delete(def, "$id")
	enforceStrict(def)
	return Schema{Name: name, Description: description, Definition: def}
}

func enforceStrict(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if m, ok := p.(map[string]any); ok {
				enforceStrict(m)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		enforceStrict(items)
	}
}
