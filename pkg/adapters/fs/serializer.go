package fs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/aether/pkg/core"
)

// Serializer defines how one row is read from and written to a file.
type Serializer interface {
	// Parse reads a single row from r.
	Parse(r io.Reader) (core.Fields, error)
	// Serialize converts a row to bytes.
	Serialize(row core.Fields) ([]byte, error)
}

// DefaultSerializers returns the standard set of serializers by extension.
func DefaultSerializers(strict bool) map[string]Serializer {
	return map[string]Serializer{
		".json": NewJSONSerializer(strict),
		".yaml": NewYAMLSerializer(strict),
		".yml":  NewYAMLSerializer(strict),
	}
}

// --- JSON Serializer ---

// JSONSerializer handles reading and writing JSON rows.
type JSONSerializer struct {
	// Strict decodes numbers as json.Number to avoid float64 precision loss.
	Strict bool
}

// NewJSONSerializer creates a new JSON serializer.
func NewJSONSerializer(strict bool) *JSONSerializer {
	return &JSONSerializer{Strict: strict}
}

func (s *JSONSerializer) Parse(r io.Reader) (core.Fields, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var row core.Fields
	decoder := json.NewDecoder(bytes.NewReader(data))
	if s.Strict {
		decoder.UseNumber()
	}
	if err := decoder.Decode(&row); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("invalid json: row is not an object")
	}
	return row, nil
}

func (s *JSONSerializer) Serialize(row core.Fields) ([]byte, error) {
	data, err := json.MarshalIndent(row, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// --- YAML Serializer ---

// YAMLSerializer handles reading and writing YAML rows.
type YAMLSerializer struct {
	// Strict converts numbers to json.Number, matching JSON strict mode.
	Strict bool
}

// NewYAMLSerializer creates a new YAML serializer.
func NewYAMLSerializer(strict bool) *YAMLSerializer {
	return &YAMLSerializer{Strict: strict}
}

func (s *YAMLSerializer) Parse(r io.Reader) (core.Fields, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("invalid yaml: empty document")
	}

	row := make(core.Fields, len(payload))
	for k, v := range payload {
		row[k] = normalize(v, s.Strict)
	}
	return row, nil
}

func (s *YAMLSerializer) Serialize(row core.Fields) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(map[string]any(row)); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalize maps YAML-native scalars onto the JSON value space used by the
// rest of the store. Timestamps go back to their stored text form.
func normalize(val any, strict bool) any {
	switch v := val.(type) {
	case time.Time:
		return core.NewTimestamp(v).String()
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[k] = normalize(val, strict)
		}
		return m
	case []any:
		l := make([]any, len(v))
		for i, val := range v {
			l[i] = normalize(val, strict)
		}
		return l
	case int:
		if strict {
			return json.Number(fmt.Sprintf("%d", v))
		}
		return v
	case float64:
		if strict {
			return json.Number(fmt.Sprintf("%v", v))
		}
		return v
	default:
		return v
	}
}
