package document

import (
	"reflect"
	"sort"
)

// Document is a single indexable record: field name to value.
// Values are usually string, []string or []any as decoded from JSON.
type Document map[string]any

// String returns the value of field when it holds a single string.
func (d Document) String(field string) (string, bool) {
	v, ok := d[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Has reports whether field is present.
func (d Document) Has(field string) bool {
	_, ok := d[field]
	return ok
}

// Clone returns a deep copy of the document. Slices and nested maps are
// copied so that processing the clone never touches the original.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []string:
		cp := make([]string, len(val))
		copy(cp, val)
		return cp
	case []any:
		cp := make([]any, len(val))
		for i, e := range val {
			cp[i] = cloneValue(e)
		}
		return cp
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, e := range val {
			cp[k] = cloneValue(e)
		}
		return cp
	case Document:
		return val.Clone()
	default:
		return v
	}
}

// MapText rewrites the textual value of field with fn. A single string is
// rewritten directly; for multi-valued fields every string element is
// rewritten and other elements are kept. It reports whether the field held
// any text at all.
func (d Document) MapText(field string, fn func(string) string) bool {
	v, ok := d[field]
	if !ok {
		return false
	}

	switch val := v.(type) {
	case string:
		d[field] = fn(val)
		return true
	case []string:
		for i, s := range val {
			val[i] = fn(s)
		}
		return true
	case []any:
		text := false
		for i, e := range val {
			if s, ok := e.(string); ok {
				val[i] = fn(s)
				text = true
			}
		}
		return text
	default:
		return false
	}
}

// Changed returns the sorted names of fields whose value differs between
// before and after, including fields present in only one of them.
func Changed(before, after Document) []string {
	var changed []string
	for k, v := range after {
		old, ok := before[k]
		if !ok || !reflect.DeepEqual(old, v) {
			changed = append(changed, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}
