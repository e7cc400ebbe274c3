package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ScalarKey holds the value of a step declared with the scalar shorthand,
// e.g. `- docker-pull: alpine`.
const ScalarKey = "_"

// Spec is the free-form mapping attached to a step or service.
type Spec map[string]any

// Has reports whether key is present.
func (s Spec) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// String returns the value of the first present key rendered as a string.
// Lists are joined with single spaces.
func (s Spec) String(keys ...string) string {
	value, ok := s.lookup(keys...)
	if !ok {
		return ""
	}
	return strings.Join(flatten(value), " ")
}

// Fields returns the value of the first present key as a list of words.
// Strings are split on whitespace; lists contribute one word per element.
func (s Spec) Fields(keys ...string) []string {
	value, ok := s.lookup(keys...)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range flatten(value) {
		out = append(out, strings.Fields(item)...)
	}
	return out
}

// Strings returns the value of the first present key as a list without
// splitting: a string is a single element.
func (s Spec) Strings(keys ...string) []string {
	value, ok := s.lookup(keys...)
	if !ok {
		return nil
	}
	return flatten(value)
}

// Bool returns the value of key interpreted as a boolean.
func (s Spec) Bool(key string) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && parsed
	case int:
		return v != 0
	case float64:
		return v != 0
	default:
		return false
	}
}

// StringMap returns a mapping value with every entry rendered as a string.
// Keys are not reordered; callers needing determinism should use Keys.
func (s Spec) StringMap(key string) map[string]string {
	raw, ok := s[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = strings.Join(flatten(v), " ")
	}
	return out
}

// Keys returns the spec keys in sorted order.
func (s Spec) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s Spec) lookup(keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := s[key]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

func flatten(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, flatten(item)...)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case float64:
		return []string{strconv.FormatFloat(v, 'f', -1, 64)}
	default:
		return []string{fmt.Sprint(v)}
	}
}

// specFromValue normalises a decoded step value: null becomes an empty spec,
// a mapping is used as-is, anything else lands under ScalarKey.
func specFromValue(value any) Spec {
	switch v := value.(type) {
	case nil:
		return Spec{}
	case map[string]any:
		return Spec(v)
	case Spec:
		return v
	default:
		return Spec{ScalarKey: v}
	}
}
