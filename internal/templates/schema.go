package templates

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema of a templates file, for editor completion
// and CI checks of files passed to LoadFile. Property names follow the YAML
// keys.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		FieldNameTag:   "yaml",
		DoNotReference: true,
	}
	s := r.Reflect(&File{})
	s.Title = "chatextract templates file"
	return s
}

// WriteSchema writes Schema as indented JSON.
func WriteSchema(w io.Writer) error {
	b, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
