package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "framebatch-job.schema.json"

// LoadOptions configures how a job is loaded.
type LoadOptions struct {
	// Path to the job file. Empty loads the defaults.
	ConfigPath string

	// Optional file merged on top of the job file.
	OverridesPath string
}

// Loader reads job files.
type Loader struct {
	opts LoadOptions
}

// Create a new job loader.
func NewLoader(opts LoadOptions) *Loader {
	return &Loader{opts: opts}
}

// Load the job file and its overrides, validate the merged document
// against the job schema and decode it on top of the defaults.
func (l *Loader) Load() (*Job, error) {
	doc, err := l.loadFile(l.opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", l.opts.ConfigPath, err)
	}

	if l.opts.OverridesPath != "" {
		if _, err := os.Stat(l.opts.OverridesPath); err == nil {
			overrides, err := l.loadFile(l.opts.OverridesPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load overrides from %s: %w", l.opts.OverridesPath, err)
			}
			doc = mergeConfigs(doc, overrides)
		}
	}

	if err = validateSchema(doc); err != nil {
		return nil, err
	}

	return decode(doc)
}

// loadFile reads and parses a YAML file into a map.
func (l *Loader) loadFile(path string) (map[string]interface{}, error) {
	if path == "" {
		return make(map[string]interface{}), nil
	}

	if !filepath.IsAbs(path) {
		var err error
		path, err = filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var data map[string]interface{}
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML from %s: %w", path, err)
	}
	if data == nil {
		data = make(map[string]interface{})
	}

	return data, nil
}

// mergeConfigs recursively merges override into base. Arrays are replaced,
// objects are merged recursively.
func mergeConfigs(base, override map[string]interface{}) map[string]interface{} {
	for key, val := range override {
		if baseVal, exists := base[key]; exists {
			if baseMap, ok := baseVal.(map[string]interface{}); ok {
				if overrideMap, ok := val.(map[string]interface{}); ok {
					base[key] = mergeConfigs(baseMap, overrideMap)
					continue
				}
			}
		}
		base[key] = val
	}
	return base
}

// validateSchema checks a YAML document against the embedded job schema.
// The document is round-tripped through JSON so the validator sees JSON
// value types.
func validateSchema(doc map[string]interface{}) error {
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("config: invalid job schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err = compiler.AddResource(schemaURL, schemaDoc); err != nil {
		return fmt.Errorf("config: invalid job schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("config: invalid job schema: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: failed to encode job: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("config: failed to encode job: %w", err)
	}

	if err = schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidJob, err)
	}
	return nil
}

// decode applies a validated document on top of the defaults.
func decode(doc map[string]interface{}) (*Job, error) {
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("config: failed to encode job: %w", err)
	}

	job := Default()
	if err = yaml.Unmarshal(raw, job); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJob, err)
	}
	return job, nil
}
