// Package tailer follows temme's JSON log file and emits parsed entries.
//
// Every host appends zap production JSON to .temme/log/temme.log. Lines are
// parsed defensively: a line that is not an object is reported, never fatal,
// and unknown keys are kept as fields.
package tailer

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Entry is one decoded log line.
type Entry struct {
	Time    time.Time // zero if "ts" is missing or unparseable
	Level   string
	Logger  string
	Caller  string
	Message string
	Fields  map[string]any // every other key
}

var reserved = map[string]bool{
	"ts": true, "level": true, "logger": true, "caller": true, "msg": true,
	"stacktrace": true,
}

// timeLayouts covers zap's ISO8601 encoder and RFC 3339 variants.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000Z0700",
	time.RFC3339Nano,
	time.RFC3339,
}

// ParseLine decodes one zap JSON line. Blank input returns nil, nil.
func ParseLine(line []byte) (*Entry, error) {
	if len(line) == 0 {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("parse log line: %w", err)
	}

	e := &Entry{
		Level:   str(raw["level"]),
		Logger:  str(raw["logger"]),
		Caller:  str(raw["caller"]),
		Message: str(raw["msg"]),
	}
	switch ts := raw["ts"].(type) {
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, ts); err == nil {
				e.Time = t
				break
			}
		}
	case float64:
		// epoch seconds from the default production encoder
		sec := int64(ts)
		e.Time = time.Unix(sec, int64((ts-float64(sec))*1e9))
	}
	for k, v := range raw {
		if reserved[k] {
			continue
		}
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		e.Fields[k] = v
	}
	return e, nil
}

// FieldKeys returns the field names in sorted order.
func (e *Entry) FieldKeys() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AtLeast reports whether the entry's level is min or more severe.
// Unknown levels always pass.
func (e *Entry) AtLeast(min string) bool {
	have, ok := levelRank[e.Level]
	if !ok {
		return true
	}
	want, ok := levelRank[min]
	if !ok {
		return true
	}
	return have >= want
}

var levelRank = map[string]int{
	"debug": 0, "info": 1, "warn": 2, "error": 3, "dpanic": 4, "panic": 5, "fatal": 6,
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
