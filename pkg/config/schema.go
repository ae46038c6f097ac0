package config

import "github.com/invopop/jsonschema"

// Schema is the JSON Schema of the configuration file, generated from
// the typed structs so it cannot drift from the loader.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&Config{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "mattermost-dl configuration"
	schema.Description = "Configuration schema for the mattermost-dl archiver"
	return schema
}
