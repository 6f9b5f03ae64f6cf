package apiclient

import (
	"bytes"
	"encoding/json"
	"strings"
)

// listKeys are the wrapper fields the backend has used for collections, in
// the order they are probed.
var listKeys = []string{"items", "data", "orders", "products", "results", "docs"}

// Items extracts the item array from a payload. It is the one place that
// knows the collection shapes the backend returns:
//
//	[...]
//	{"items": [...]}            also "orders", "products", "results", "docs"
//	{"data": [...]}
//	{"data": {"items": [...]}}  and any nesting of the above
//
// Anything else yields an empty, non-nil slice.
func Items(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []json.RawMessage{}
	}

	switch raw[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return []json.RawMessage{}
		}
		return arr
	case '{':
		obj := ParseObject(raw)
		for _, key := range listKeys {
			v, ok := obj[key]
			if !ok {
				continue
			}
			v = bytes.TrimSpace(v)
			if len(v) > 0 && (v[0] == '[' || v[0] == '{') {
				if items := Items(v); len(items) > 0 || v[0] == '[' {
					return items
				}
			}
		}
	}
	return []json.RawMessage{}
}

// Object is a loosely typed JSON object for decoding payloads whose field
// names vary between backend versions.
type Object map[string]json.RawMessage

// ParseObject decodes raw as an object. Non-objects yield nil.
func ParseObject(raw json.RawMessage) Object {
	var obj Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

// Raw returns the first present, non-null value among keys
func (o Object) Raw(keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := o[k]; ok && !isNull(v) {
			return v
		}
	}
	return nil
}

// String returns the first key holding a non-empty string or number, as text
func (o Object) String(keys ...string) string {
	for _, k := range keys {
		v, ok := o[k]
		if !ok {
			continue
		}
		if s := scalarText(v); s != "" {
			return s
		}
	}
	return ""
}

// Object returns the first key holding a nested object
func (o Object) Object(keys ...string) Object {
	for _, k := range keys {
		if v, ok := o[k]; ok {
			if nested := ParseObject(v); nested != nil {
				return nested
			}
		}
	}
	return nil
}

// Has reports whether key is present and not null
func (o Object) Has(key string) bool {
	v, ok := o[key]
	return ok && !isNull(v)
}

func scalarText(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return ""
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(v)
	}
	return ""
}

func isNull(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}
