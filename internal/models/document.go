package models

import (
	"sort"
	"strconv"
	"strings"
)

// Document is the core domain object: a stored record of field name to
// JSON-compatible value. Shared between the server and storage layers.
type Document map[string]any

// Fields are raw request parameters, before validation.
type Fields map[string]string

// Collection names a document type and the field holding its primary key.
type Collection struct {
	Name string
	Key  string
}

var (
	Clouds = Collection{Name: "clouds", Key: "cloud"}
	Hosts  = Collection{Name: "hosts", Key: "host"}
)

// Text renders a field as the string a client would send for it.
// Lists are joined with commas; a missing field is "".
func (d Document) Text(field string) string {
	return text(d[field])
}

// Match reports whether the field equals want. List fields match when any
// element equals want, boolean fields compare by parsed value.
func (d Document) Match(field, want string) bool {
	v, ok := d[field]
	if !ok {
		return false
	}
	switch tv := v.(type) {
	case bool:
		b, err := strconv.ParseBool(want)
		return err == nil && b == tv
	case []any:
		for _, e := range tv {
			if text(e) == want {
				return true
			}
		}
	case []string:
		for _, e := range tv {
			if e == want {
				return true
			}
		}
	}
	return text(v) == want
}

// Clone copies the document and any nested property maps.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		if m, ok := v.(map[string]any); ok {
			cp := make(map[string]any, len(m))
			for ik, iv := range m {
				cp[ik] = iv
			}
			v = cp
		}
		out[k] = v
	}
	return out
}

// Property returns the nested item map stored under name, or nil.
func (d Document) Property(name string) map[string]any {
	m, _ := d[name].(map[string]any)
	return m
}

// Update describes a partial modification of a stored document. A path is
// either a top-level field or "<property>.<item>".
type Update struct {
	Set   map[string]any
	Unset []string
}

// Apply mutates doc in place. Unset runs after Set.
func (u Update) Apply(doc Document) {
	keys := make([]string, 0, len(u.Set))
	for k := range u.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, path := range keys {
		prop, item, nested := strings.Cut(path, ".")
		if !nested {
			doc[prop] = u.Set[path]
			continue
		}
		m := doc.Property(prop)
		if m == nil {
			m = map[string]any{}
		}
		m[item] = u.Set[path]
		doc[prop] = m
	}
	for _, path := range u.Unset {
		prop, item, nested := strings.Cut(path, ".")
		if !nested {
			delete(doc, prop)
			continue
		}
		if m := doc.Property(prop); m != nil {
			delete(m, item)
		}
	}
}

func text(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case bool:
		return strconv.FormatBool(tv)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case int:
		return strconv.Itoa(tv)
	case int64:
		return strconv.FormatInt(tv, 10)
	case []string:
		return strings.Join(tv, ",")
	case []any:
		parts := make([]string, 0, len(tv))
		for _, e := range tv {
			parts = append(parts, text(e))
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}
