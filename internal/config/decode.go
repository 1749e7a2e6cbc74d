package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// decodeConfig decodes a JSON config, or YAML when the extension says so.
// Both formats go through the same strict JSON decoder, so an unknown key or
// a second document is an error either way.
func decodeConfig(path string, data []byte) (*Config, error) {
	name := filepath.Base(path)
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		var err error
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: unexpected data after config", name)
	}
	return &cfg, nil
}

// yamlToJSON converts a single YAML document. An empty file is an empty
// config.
func yamlToJSON(data []byte) ([]byte, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []byte("{}"), nil
		}
		return nil, fmt.Errorf("yaml: %w", err)
	}
	var extra any
	switch err := dec.Decode(&extra); {
	case err == nil:
		return nil, errors.New("yaml: only one document is allowed")
	case !errors.Is(err, io.EOF):
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return json.Marshal(stringKeys(doc))
}

// stringKeys rewrites map[any]any (non-string YAML keys) into JSON objects.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = stringKeys(e)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case []any:
		for i, e := range x {
			x[i] = stringKeys(e)
		}
		return x
	}
	return v
}
