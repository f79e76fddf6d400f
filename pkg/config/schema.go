package config

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaVersion is the configuration schema version embedded in this binary
const SchemaVersion = "1.0.0"

//go:embed schemas/addonsync-config-v1.json
var schemaV1 []byte

// ValidateSettings validates merged settings (as returned by viper.AllSettings)
// against the embedded schema.
func ValidateSettings(settings map[string]interface{}) error {
	return validate(gojsonschema.NewGoLoader(settings))
}

// ValidateDocument validates raw JSON configuration bytes against the embedded schema.
func ValidateDocument(configData []byte) error {
	return validate(gojsonschema.NewBytesLoader(configData))
}

func validate(documentLoader gojsonschema.JSONLoader) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaV1), documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %v", err)
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}
