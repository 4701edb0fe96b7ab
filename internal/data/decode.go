// Package data holds helpers shared by the static table loaders
// (rule table, weapon registry, skill catalog).
package data

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeFile reads path and decodes it into v.
// Files ending in .json are decoded strictly as JSON; everything else as YAML.
func DecodeFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := Decode(raw, filepath.Ext(path), v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Decode decodes raw bytes using the format implied by ext (".json", ".yaml", ".yml").
func Decode(raw []byte, ext string, v any) error {
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(v)
}
