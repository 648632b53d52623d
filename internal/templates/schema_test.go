package templates

import (
	"bytes"
	"encoding/json"
	"testing"
)

// TestWriteSchema checks the schema uses YAML key names, marks the keys every
// template needs as required, and lists the styles.
func TestWriteSchema(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteSchema(&buf); err != nil {
		t.Fatalf("WriteSchema: %v", err)
	}

	var doc struct {
		Title      string   `json:"title"`
		Required   []string `json:"required"`
		Properties struct {
			Templates struct {
				Type  string `json:"type"`
				Items struct {
					Required   []string `json:"required"`
					Properties map[string]struct {
						Enum []string `json:"enum"`
					} `json:"properties"`
				} `json:"items"`
			} `json:"templates"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("schema is not json: %v\n%s", err, buf.String())
	}

	if doc.Title == "" || len(doc.Required) != 1 || doc.Required[0] != "templates" {
		t.Fatalf("top level: %+v", doc)
	}
	items := doc.Properties.Templates.Items
	if doc.Properties.Templates.Type != "array" {
		t.Fatalf("templates type = %q", doc.Properties.Templates.Type)
	}
	for _, key := range []string{"id", "style", "container", "role_attribute", "role_values", "user_selector", "model_selector", "content"} {
		if _, ok := items.Properties[key]; !ok {
			t.Fatalf("missing property %q in %v", key, items.Properties)
		}
	}
	if len(items.Properties["style"].Enum) != 3 {
		t.Fatalf("style enum = %v", items.Properties["style"].Enum)
	}

	req := map[string]bool{}
	for _, r := range items.Required {
		req[r] = true
	}
	if !req["id"] || !req["style"] || !req["container"] || req["content"] {
		t.Fatalf("required = %v", items.Required)
	}
}
