// Package config loads security manifest documents. Manifests may be YAML or
// JSON; both are checked against an embedded JSON Schema before they reach
// the canonicalizer.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	apperrors "github.com/reglet-dev/netgate/internal/application/errors"
	"github.com/reglet-dev/netgate/internal/domain/manifest"
)

// MaxManifestSize bounds a manifest document.
const MaxManifestSize = 1 << 20

//go:embed manifest.schema.json
var manifestSchema []byte

// ManifestLoader reads manifest files and validates their structure.
type ManifestLoader struct {
	schema *jsonschema.Schema
}

// NewManifestLoader compiles the embedded schema.
func NewManifestLoader() (*ManifestLoader, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("manifest.schema.json", bytes.NewReader(manifestSchema)); err != nil {
		return nil, fmt.Errorf("failed to add manifest schema: %w", err)
	}
	schema, err := compiler.Compile("manifest.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile manifest schema: %w", err)
	}
	return &ManifestLoader{schema: schema}, nil
}

// LoadManifest loads a manifest document from path.
func (l *ManifestLoader) LoadManifest(path string) (manifest.SecurityManifest, error) {
	root, err := os.OpenRoot(filepath.Dir(path))
	if err != nil {
		return manifest.SecurityManifest{}, fmt.Errorf("failed to open manifest directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	file, err := root.Open(filepath.Base(path))
	if err != nil {
		return manifest.SecurityManifest{}, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(file, MaxManifestSize+1))
	if err != nil {
		return manifest.SecurityManifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	return l.LoadManifestBytes(data)
}

// document distinguishes an absent api key from an empty one.
type document struct {
	API          *[]string `json:"api"`
	Destinations []string  `json:"destinations"`
	Requires     string    `json:"requires"`
}

// LoadManifestBytes decodes and validates a YAML or JSON manifest. Every
// failure is a *apperrors.ManifestError.
func (l *ManifestLoader) LoadManifestBytes(data []byte) (manifest.SecurityManifest, error) {
	if len(data) > MaxManifestSize {
		return manifest.SecurityManifest{}, apperrors.NewManifestError(
			fmt.Sprintf("manifest exceeds %d bytes", MaxManifestSize), nil)
	}

	// JSON is a subset of YAML, so one decoder covers both
	raw, err := yaml.YAMLToJSON(data)
	if err != nil {
		return manifest.SecurityManifest{}, apperrors.NewManifestError("failed to decode manifest", err)
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return manifest.SecurityManifest{}, apperrors.NewManifestError("failed to decode manifest", err)
	}
	if err := l.schema.Validate(instance); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			return manifest.SecurityManifest{}, apperrors.NewManifestError("manifest validation failed", formatSchemaValidationError(validationErr))
		}
		return manifest.SecurityManifest{}, apperrors.NewManifestError("manifest validation failed", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return manifest.SecurityManifest{}, apperrors.NewManifestError("failed to decode manifest", err)
	}

	m := manifest.SecurityManifest{Destinations: doc.Destinations, Requires: doc.Requires}
	if doc.API != nil {
		m.API = append([]string{}, *doc.API...)
	}
	return m, nil
}

// formatSchemaValidationError flattens nested schema errors into one message.
func formatSchemaValidationError(err *jsonschema.ValidationError) error {
	var messages []string

	var collect func(*jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if e.Message != "" && len(e.Causes) == 0 {
			location := e.InstanceLocation
			if location == "" {
				location = "(root)"
			}
			messages = append(messages, fmt.Sprintf("%s: %s", location, e.Message))
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(err)

	if len(messages) == 0 {
		return errors.New(err.Message)
	}
	return errors.New(strings.Join(messages, "; "))
}
