// Package emit writes the tap's output stream: newline-delimited JSON
// messages carrying stream schemas, records, and state snapshots. Records
// go to stdout in production; all diagnostics belong on the logger, never
// on the message stream.
package emit

import (
	"fmt"
	"io"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/helmsync/shipstation-tap/pkg/catalog"
)

// Message types on the output stream.
const (
	TypeSchema = "SCHEMA"
	TypeRecord = "RECORD"
	TypeState  = "STATE"
)

// Message is one output line before encoding.
type Message struct {
	Type          string         `json:"type"`
	Stream        string         `json:"stream,omitempty"`
	Schema        map[string]any `json:"schema,omitempty"`
	KeyProperties []string       `json:"key_properties,omitempty"`
	Record        map[string]any `json:"record,omitempty"`
	TimeExtracted string         `json:"time_extracted,omitempty"`
	Value         map[string]any `json:"value,omitempty"`
}

// Writer encodes messages onto an io.Writer, one per line. Safe for use
// from a single goroutine per stream; the mutex only guards against
// interleaved lines when state snapshots and records share a writer.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time

	records map[string]uint64
}

// NewWriter returns a Writer emitting to out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{
		out:     out,
		now:     time.Now,
		records: map[string]uint64{},
	}
}

// EmitSchema writes a stream's schema message. Emitted once per stream
// before its first record.
func (w *Writer) EmitSchema(stream catalog.Stream) error {
	return w.write(Message{
		Type:          TypeSchema,
		Stream:        stream.ID,
		Schema:        stream.Schema.Raw,
		KeyProperties: stream.KeyProperties,
	})
}

// Emit writes one record with the current extraction time.
func (w *Writer) Emit(stream string, record map[string]any) error {
	return w.write(Message{
		Type:          TypeRecord,
		Stream:        stream,
		Record:        record,
		TimeExtracted: w.now().UTC().Format(time.RFC3339),
	})
}

// EmitState writes a state snapshot of all bookmarks.
func (w *Writer) EmitState(bookmarks map[string]map[string]string) error {
	value := map[string]any{"bookmarks": bookmarks}
	return w.write(Message{
		Type:  TypeState,
		Value: value,
	})
}

// RecordCount returns how many records have been emitted for a stream.
func (w *Writer) RecordCount(stream string) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records[stream]
}

func (w *Writer) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msg.Type, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing %s message: %w", msg.Type, err)
	}
	if msg.Type == TypeRecord {
		w.records[msg.Stream]++
	}
	return nil
}
