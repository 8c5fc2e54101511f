package emit

import (
	"bytes"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/helmsync/shipstation-tap/pkg/catalog"
)

func TestWriter_Emit(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.now = func() time.Time {
		return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	}

	if err := w.Emit("shipments", map[string]any{"shipment_id": "se-123"}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	line := strings.TrimRight(buf.String(), "\n")
	if strings.Contains(line, "\n") {
		t.Fatalf("Emit() wrote multiple lines: %q", line)
	}

	var msg map[string]any
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if msg["type"] != "RECORD" {
		t.Errorf("type = %v, want RECORD", msg["type"])
	}
	if msg["stream"] != "shipments" {
		t.Errorf("stream = %v, want shipments", msg["stream"])
	}
	if msg["time_extracted"] != "2024-03-01T10:30:00Z" {
		t.Errorf("time_extracted = %v", msg["time_extracted"])
	}
	record := msg["record"].(map[string]any)
	if record["shipment_id"] != "se-123" {
		t.Errorf("record = %v", record)
	}

	if got := w.RecordCount("shipments"); got != 1 {
		t.Errorf("RecordCount() = %d, want 1", got)
	}
}

func TestWriter_EmitSchema(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	stream := catalog.Stream{
		ID: "orders",
		Schema: catalog.Schema{
			Raw: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"orderId": map[string]any{"type": []any{"integer", "null"}},
				},
			},
		},
		KeyProperties: []string{"orderId"},
	}

	if err := w.EmitSchema(stream); err != nil {
		t.Fatalf("EmitSchema() error = %v", err)
	}

	var msg map[string]any
	if err := json.Unmarshal(buf.Bytes(), &msg); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if msg["type"] != "SCHEMA" {
		t.Errorf("type = %v, want SCHEMA", msg["type"])
	}
	keys := msg["key_properties"].([]any)
	if len(keys) != 1 || keys[0] != "orderId" {
		t.Errorf("key_properties = %v, want [orderId]", keys)
	}
	if _, ok := msg["schema"].(map[string]any)["properties"]; !ok {
		t.Error("schema properties missing from message")
	}
}

func TestWriter_EmitState(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	bookmarks := map[string]map[string]string{
		"shipments": {"created_at": "2024-03-01 00:00:00"},
	}
	if err := w.EmitState(bookmarks); err != nil {
		t.Fatalf("EmitState() error = %v", err)
	}

	var msg map[string]any
	if err := json.Unmarshal(buf.Bytes(), &msg); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if msg["type"] != "STATE" {
		t.Errorf("type = %v, want STATE", msg["type"])
	}
	value := msg["value"].(map[string]any)
	marks := value["bookmarks"].(map[string]any)
	shipments := marks["shipments"].(map[string]any)
	if shipments["created_at"] != "2024-03-01 00:00:00" {
		t.Errorf("bookmark = %v", shipments["created_at"])
	}
}

func TestWriter_OneLinePerMessage(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	for i := 0; i < 3; i++ {
		if err := w.Emit("orders", map[string]any{"orderId": i}); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("wrote %d lines, want 3", len(lines))
	}
	for _, line := range lines {
		var msg map[string]any
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Errorf("line is not valid JSON: %q", line)
		}
	}

	if got := w.RecordCount("orders"); got != 3 {
		t.Errorf("RecordCount() = %d, want 3", got)
	}
}
