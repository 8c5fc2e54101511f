package sync

import (
	"time"

	"github.com/helmsync/shipstation-tap/pkg/catalog"
	"github.com/helmsync/shipstation-tap/pkg/client"
)

// timestampLayouts are the formats the upstream API has been seen using
// for timestamp fields, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp parses a timestamp in any of the known upstream layouts.
func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeTimestamp fills the canonical timestamp field, candidates[0],
// from the first later candidate that holds a non-empty value. Some
// upstream records arrive without their primary timestamp set, and the
// fallback fields have proven reliable substitutes.
func normalizeTimestamp(record client.Record, candidates []string) {
	if len(candidates) == 0 {
		return
	}
	key := candidates[0]
	if v, ok := record[key].(string); ok && v != "" {
		return
	}
	for _, candidate := range candidates[1:] {
		if v, ok := record[candidate].(string); ok && v != "" {
			record[key] = v
			return
		}
	}
}

// shape projects a record onto its stream schema: undeclared fields are
// dropped and date-time fields are rewritten to RFC 3339 when parseable.
// Values that fail to parse pass through untouched rather than being
// nulled out.
func shape(record client.Record, schema catalog.Schema) client.Record {
	if len(schema.Properties) == 0 {
		return record
	}

	out := make(client.Record, len(schema.Properties))
	for name, prop := range schema.Properties {
		value, ok := record[name]
		if !ok {
			continue
		}
		if prop.Format == "date-time" {
			if s, ok := value.(string); ok && s != "" {
				if t, ok := parseTimestamp(s); ok {
					value = t.Format(time.RFC3339)
				}
			}
		}
		out[name] = value
	}
	return out
}
