// Package realtime turns Postgres row change notifications into an
// in-process feed that HTTP streams and notification sessions subscribe to.
package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAny    EventType = "*"
)

// Change is one committed row change as published by the
// notify_row_change() trigger.
type Change struct {
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Type            EventType       `json:"type"`
	Record          json.RawMessage `json:"record"`
	OldRecord       json.RawMessage `json:"old_record"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`

	fields    map[string]any
	oldFields map[string]any
}

// ParseChange decodes a trigger payload.
func ParseChange(payload []byte) (Change, error) {
	var change Change
	if err := json.Unmarshal(payload, &change); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	if change.Table == "" || change.Type == "" {
		return Change{}, fmt.Errorf("decode change: missing table or type")
	}
	if err := change.index(); err != nil {
		return Change{}, err
	}
	return change, nil
}

// NewChange builds a Change from already-decoded records, mainly for
// publishing synthetic changes in tests.
func NewChange(schema, table string, eventType EventType, record, oldRecord any) (Change, error) {
	change := Change{
		Schema:          schema,
		Table:           table,
		Type:            eventType,
		CommitTimestamp: time.Now().UTC(),
	}
	var err error
	if record != nil {
		if change.Record, err = json.Marshal(record); err != nil {
			return Change{}, fmt.Errorf("encode record: %w", err)
		}
	}
	if oldRecord != nil {
		if change.OldRecord, err = json.Marshal(oldRecord); err != nil {
			return Change{}, fmt.Errorf("encode old record: %w", err)
		}
	}
	if err := change.index(); err != nil {
		return Change{}, err
	}
	return change, nil
}

func (c *Change) index() error {
	var err error
	if c.fields, err = decodeFields(c.Record); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if c.oldFields, err = decodeFields(c.OldRecord); err != nil {
		return fmt.Errorf("decode old record: %w", err)
	}
	return nil
}

func decodeFields(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Value returns column from the new record, or from the old record for
// deletes. Scalars are rendered the way they appear in filter values.
func (c Change) Value(column string) (string, bool) {
	fields := c.fields
	if fields == nil {
		fields = c.oldFields
	}
	raw, ok := fields[column]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(encoded), true
	}
}

// DecodeRecord unmarshals the new record into dst.
func (c Change) DecodeRecord(dst any) error {
	if len(c.Record) == 0 || string(c.Record) == "null" {
		return fmt.Errorf("change on %s has no record", c.Table)
	}
	return json.Unmarshal(c.Record, dst)
}

// DecodeOldRecord unmarshals the previous record into dst.
func (c Change) DecodeOldRecord(dst any) error {
	if len(c.OldRecord) == 0 || string(c.OldRecord) == "null" {
		return fmt.Errorf("change on %s has no old record", c.Table)
	}
	return json.Unmarshal(c.OldRecord, dst)
}
