package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EventKind identifies the kind of an agent event. The set is closed: every kind
// must also be handled by the publishing filter.
type EventKind string

const (
	// Lifecycle
	KindStarted   EventKind = "started"
	KindCompleted EventKind = "completed"

	// Content blocks from assistant/user messages
	KindText       EventKind = "text"
	KindThinking   EventKind = "thinking"
	KindToolUse    EventKind = "tool_use"
	KindToolResult EventKind = "tool_result"

	// Tool execution lifecycle from hooks
	KindToolStart EventKind = "tool_start"
	KindToolEnd   EventKind = "tool_end"
	KindToolError EventKind = "tool_error"
	KindFileRead  EventKind = "file_read"
	KindFileWrite EventKind = "file_write"

	KindResult     EventKind = "result"
	KindSystem     EventKind = "system"
	KindError      EventKind = "error"
	KindUserPrompt EventKind = "user_prompt"
)

var allEventKinds = []EventKind{
	KindStarted,
	KindCompleted,
	KindText,
	KindThinking,
	KindToolUse,
	KindToolResult,
	KindToolStart,
	KindToolEnd,
	KindToolError,
	KindFileRead,
	KindFileWrite,
	KindResult,
	KindSystem,
	KindError,
	KindUserPrompt,
}

// AllEventKinds returns every known event kind in declaration order.
func AllEventKinds() []EventKind {
	out := make([]EventKind, len(allEventKinds))
	copy(out, allEventKinds)
	return out
}

// Valid reports whether k belongs to the closed kind set.
func (k EventKind) Valid() bool {
	for _, known := range allEventKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k EventKind) String() string { return string(k) }

// Field is a single key/value entry of event data.
type Field struct {
	Key   string
	Value any
}

// Data is an ordered mapping of event attributes. It serializes as a JSON object
// whose keys keep insertion order.
type Data []Field

// F is shorthand for building a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Get returns the value stored under key.
func (d Data) Get(key string) (any, bool) {
	for _, f := range d {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// String returns the value under key when it is a string.
func (d Data) String(key string) string {
	v, ok := d.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Keys returns field keys in order.
func (d Data) Keys() []string {
	keys := make([]string, len(d))
	for i, f := range d {
		keys[i] = f.Key
	}
	return keys
}

// MarshalJSON implements json.Marshaler preserving field order.
func (d Data) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler preserving field order.
func (d *Data) UnmarshalJSON(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*d = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("event data must be a JSON object")
	}
	var out Data
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode field %q: %w", key, err)
		}
		out = append(out, Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}

// Event is an immutable record of one observable occurrence during a run.
type Event struct {
	kind      EventKind
	timestamp time.Time
	data      Data
}

// NewEvent builds an event. It panics on a kind outside the closed set; callers
// inside this module only use the declared constants.
func NewEvent(kind EventKind, ts time.Time, fields ...Field) Event {
	if !kind.Valid() {
		panic(fmt.Sprintf("domain: unknown event kind %q", kind))
	}
	data := make(Data, len(fields))
	copy(data, fields)
	return Event{kind: kind, timestamp: ts, data: data}
}

// Kind returns the event kind.
func (e Event) Kind() EventKind { return e.kind }

// Timestamp returns when the event was created.
func (e Event) Timestamp() time.Time { return e.timestamp }

// Data returns a copy of the event attributes.
func (e Event) Data() Data {
	out := make(Data, len(e.data))
	copy(out, e.data)
	return out
}

// Get looks up a single attribute.
func (e Event) Get(key string) (any, bool) { return e.data.Get(key) }

// IsZero reports whether e was never constructed.
func (e Event) IsZero() bool { return e.kind == "" }

type eventWire struct {
	Type      EventKind `json:"type"`
	Timestamp float64   `json:"timestamp"`
	Data      Data      `json:"data"`
}

// MarshalJSON renders {type, timestamp, data} with timestamp in unix seconds.
func (e Event) MarshalJSON() ([]byte, error) {
	data := e.data
	if data == nil {
		data = Data{}
	}
	return json.Marshal(eventWire{
		Type:      e.kind,
		Timestamp: float64(e.timestamp.UnixNano()) / float64(time.Second),
		Data:      data,
	})
}

// UnmarshalJSON decodes the wire representation. Unknown kinds are rejected.
func (e *Event) UnmarshalJSON(raw []byte) error {
	var wire eventWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	if !wire.Type.Valid() {
		return fmt.Errorf("unknown event kind %q", wire.Type)
	}
	sec := int64(wire.Timestamp)
	nsec := int64((wire.Timestamp - float64(sec)) * float64(time.Second))
	*e = Event{kind: wire.Type, timestamp: time.Unix(sec, nsec), data: wire.Data}
	return nil
}
