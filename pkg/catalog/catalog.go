// Package catalog describes the streams the tap can sync: their JSON
// schemas, key properties, and which streams a run has selected. The
// built-in schemas are embedded; Discover returns them all, and Load
// reads a catalog file that may narrow the selection.
package catalog

import (
	"embed"
	"fmt"
	"os"
	"sort"

	json "github.com/goccy/go-json"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// keyProperties maps each built-in stream to its primary key fields.
var keyProperties = map[string][]string{
	"shipments": {"shipment_id"},
	"orders":    {"orderId"},
}

// Schema is a JSON schema for a stream's records. Raw preserves the full
// document for emission; Properties is the parsed field map used when
// shaping records.
type Schema struct {
	Raw        map[string]any
	Properties map[string]Property
}

// Property is one declared record field.
type Property struct {
	// Types lists the allowed JSON types. A schema may declare a single
	// type string or an array of them; both parse into this slice.
	Types []string

	// Format is the JSON-schema format annotation, e.g. "date-time".
	Format string
}

// Has reports whether the property allows the given JSON type.
func (p Property) Has(typ string) bool {
	for _, t := range p.Types {
		if t == typ {
			return true
		}
	}
	return false
}

// Stream is one syncable resource.
type Stream struct {
	ID            string
	Schema        Schema
	KeyProperties []string
	Selected      bool
}

// Catalog is the set of known streams, ordered by stream ID.
type Catalog struct {
	Streams []Stream
}

// Discover builds a catalog from the embedded schemas with every stream
// selected.
func Discover() (*Catalog, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("reading embedded schemas: %w", err)
	}

	cat := &Catalog{}
	for _, entry := range entries {
		name := entry.Name()
		id := name[:len(name)-len(".json")]

		data, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", name, err)
		}
		schema, err := parseSchema(data)
		if err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", name, err)
		}

		cat.Streams = append(cat.Streams, Stream{
			ID:            id,
			Schema:        schema,
			KeyProperties: keyProperties[id],
			Selected:      true,
		})
	}

	sort.Slice(cat.Streams, func(i, j int) bool {
		return cat.Streams[i].ID < cat.Streams[j].ID
	})
	return cat, nil
}

// Selected returns the selected streams in catalog order.
func (c *Catalog) Selected() []Stream {
	var out []Stream
	for _, s := range c.Streams {
		if s.Selected {
			out = append(out, s)
		}
	}
	return out
}

// Stream returns the stream with the given ID.
func (c *Catalog) Stream(id string) (Stream, bool) {
	for _, s := range c.Streams {
		if s.ID == id {
			return s, true
		}
	}
	return Stream{}, false
}

// catalogFile is the on-disk catalog layout.
type catalogFile struct {
	Streams []streamEntry `json:"streams"`
}

type streamEntry struct {
	TapStreamID string          `json:"tap_stream_id"`
	Stream      string          `json:"stream"`
	Schema      map[string]any  `json:"schema"`
	Metadata    []metadataEntry `json:"metadata"`
}

type metadataEntry struct {
	Breadcrumb []string       `json:"breadcrumb"`
	Metadata   map[string]any `json:"metadata"`
}

// Load reads a catalog file and applies its stream selection on top of the
// discovered catalog. Streams absent from the file stay unselected; a
// stream entry without explicit selection metadata counts as selected.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}

	discovered, err := Discover()
	if err != nil {
		return nil, err
	}

	for i := range discovered.Streams {
		discovered.Streams[i].Selected = false
	}
	for _, entry := range file.Streams {
		id := entry.TapStreamID
		if id == "" {
			id = entry.Stream
		}
		for i := range discovered.Streams {
			if discovered.Streams[i].ID != id {
				continue
			}
			discovered.Streams[i].Selected = entrySelected(entry.Metadata)
		}
	}
	return discovered, nil
}

func entrySelected(metadata []metadataEntry) bool {
	for _, m := range metadata {
		if len(m.Breadcrumb) != 0 {
			continue
		}
		if v, ok := m.Metadata["selected"].(bool); ok {
			return v
		}
	}
	return true
}

func parseSchema(data []byte) (Schema, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Schema{}, err
	}

	schema := Schema{Raw: raw, Properties: map[string]Property{}}
	props, ok := raw["properties"].(map[string]any)
	if !ok {
		return schema, nil
	}

	for name, v := range props {
		def, ok := v.(map[string]any)
		if !ok {
			continue
		}
		var prop Property
		switch t := def["type"].(type) {
		case string:
			prop.Types = []string{t}
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					prop.Types = append(prop.Types, s)
				}
			}
		}
		if f, ok := def["format"].(string); ok {
			prop.Format = f
		}
		schema.Properties[name] = prop
	}
	return schema, nil
}
