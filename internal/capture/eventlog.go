package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const eventLogSchemaURL = "keyprint://schema/event-log.json"

// eventLogSchema describes the key event arrays produced by browser front ends.
const eventLogSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "array",
	"items": {
		"type": "object",
		"required": ["key", "type", "time"],
		"properties": {
			"key": {"type": "string"},
			"type": {"type": "string"},
			"time": {"type": "number", "minimum": 0}
		}
	}
}`

var compiledEventLogSchema = mustCompileEventLogSchema()

func mustCompileEventLogSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(eventLogSchemaURL, strings.NewReader(eventLogSchema)); err != nil {
		panic(fmt.Sprintf("event log schema: %v", err))
	}
	return compiler.MustCompile(eventLogSchemaURL)
}

type logEntry struct {
	Key  string  `json:"key"`
	Type string  `json:"type"`
	Time float64 `json:"time"`
}

// ParseEventLog reads a JSON event log such as
//
//	[{"key": "h", "type": "keydown", "time": 1234567890.123}, ...]
//
// Times are milliseconds and are converted to seconds. Entries with an
// unknown type are skipped. File order is preserved.
func ParseEventLog(r io.Reader) ([]RawEvent, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode event log: %w", err)
	}
	if err := compiledEventLogSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid event log: %w", err)
	}

	var entries []logEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode event log: %w", err)
	}
	events := make([]RawEvent, 0, len(entries))
	for _, e := range entries {
		var kind Kind
		switch strings.ToLower(e.Type) {
		case "keydown":
			kind = KeyDown
		case "keyup":
			kind = KeyUp
		default:
			continue
		}
		events = append(events, RawEvent{Key: e.Key, Kind: kind, Time: e.Time / 1000})
	}
	return events, nil
}
