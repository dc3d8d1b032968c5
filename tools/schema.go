package tools

// Schema helpers for tool input definitions (JSON Schema).

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property.
func StringProperty(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

// WithThought returns a copy of schema with an optional "thought" property
// for the agent's reasoning.
func WithThought(schema map[string]any) map[string]any {
	result := make(map[string]any, len(schema))
	for k, v := range schema {
		result[k] = v
	}

	props := make(map[string]any)
	if existing, ok := result["properties"].(map[string]any); ok {
		for k, v := range existing {
			props[k] = v
		}
	}
	props["thought"] = StringProperty("Why you are looking this up and what you expect to find.")
	result["properties"] = props
	return result
}

// BuildSchemaWithThought creates an ObjectSchema with thought support.
func BuildSchemaWithThought(properties map[string]any, required ...string) map[string]any {
	return WithThought(ObjectSchema(properties, required...))
}
