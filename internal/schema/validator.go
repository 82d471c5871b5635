package schema

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/draftfix/internal/assets"
	"github.com/fulmenhq/draftfix/pkg/bundle"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Path    string `json:"path,omitempty"` // e.g. "materials.audios.0.path"
	Message string `json:"message"`
}

// Result holds the validation result.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// registry holds pre-compiled schemas keyed by assets.Registry name.
var registry = make(map[string]*gojsonschema.Schema)

// init compiles every embedded schema. Embedded YAML is converted to JSON for gojsonschema.
func init() {
	for _, info := range assets.Registry {
		schemaBytes, ok := assets.GetSchema(info.Path)
		if !ok {
			continue
		}
		schema, err := compile(schemaBytes)
		if err != nil {
			continue
		}
		registry[info.Name] = schema
	}
}

func compile(schemaBytes []byte) (*gojsonschema.Schema, error) {
	var schemaData interface{}
	if err := yaml.Unmarshal(schemaBytes, &schemaData); err != nil {
		return nil, err
	}
	jsonBytes, err := json.Marshal(schemaData)
	if err != nil {
		return nil, err
	}
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(jsonBytes))
}

// Validate validates data (interface{}) against the named schema.
func Validate(data interface{}, schemaName string) (*Result, error) {
	schema, ok := registry[schemaName]
	if !ok {
		return nil, fmt.Errorf("schema %s not found in registry", schemaName)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	res := &Result{Valid: result.Valid()}
	if !result.Valid() {
		for _, verr := range result.Errors() {
			field := verr.Field()
			if field == "" || field == "(root)" {
				field = "root"
			}
			res.Errors = append(res.Errors, ValidationError{
				Path:    field,
				Message: verr.Description(),
			})
		}
	}

	return res, nil
}

// SchemaFor returns the registry name checked for a manifest role.
func SchemaFor(role bundle.Role) string {
	if role == bundle.RoleMeta {
		return "meta-manifest-v1"
	}
	return "draft-manifest-v1"
}

// ManifestValidator checks manifests against the embedded schemas. It satisfies
// bundle.ShapeValidator.
type ManifestValidator struct{}

// NewManifestValidator fails when the embedded manifest schemas did not compile.
func NewManifestValidator() (*ManifestValidator, error) {
	for _, role := range bundle.Roles() {
		if _, ok := registry[SchemaFor(role)]; !ok {
			return nil, fmt.Errorf("schema %s not found in registry", SchemaFor(role))
		}
	}
	return &ManifestValidator{}, nil
}

// ValidateManifest returns one "path: message" line per violation.
func (ManifestValidator) ValidateManifest(role bundle.Role, doc interface{}) ([]string, error) {
	res, err := Validate(doc, SchemaFor(role))
	if err != nil {
		return nil, err
	}
	problems := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		problems = append(problems, e.Path+": "+e.Message)
	}
	return problems, nil
}
