package policy

import (
	"reflect"
	"strings"
)

// NormalizeSubreddit lower-cases a subreddit name, trims whitespace and strips an
// optional leading "r/".
func NormalizeSubreddit(input string) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	return strings.TrimPrefix(normalized, "r/")
}

// NormalizeSubreddits normalizes and de-duplicates names, dropping empty entries.
// First-seen order is preserved.
func NormalizeSubreddits(input []string) []string {
	seen := make(map[string]struct{}, len(input))
	out := make([]string, 0, len(input))
	for _, value := range input {
		normalized := NormalizeSubreddit(value)
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

// StringFielder is the only view of call parameters the guard relies on.
type StringFielder interface {
	StringField(key string) (string, bool)
}

// Args adapts decoded JSON object parameters.
type Args map[string]any

// StringField returns the value at key when it is a string.
func (a Args) StringField(key string) (string, bool) {
	if a == nil {
		return "", false
	}
	value, ok := a[key].(string)
	return value, ok
}

var argsType = reflect.TypeFor[Args]()

// fieldsOf narrows arbitrary params. Anything other than an object, meaning a
// map with string keys and any values, has no fields. The bridge forwards the
// same set of values as the call's arguments.
func fieldsOf(params any) StringFielder {
	switch typed := params.(type) {
	case Args:
		return typed
	case map[string]any:
		return Args(typed)
	case nil:
		return Args(nil)
	}

	value := reflect.ValueOf(params)
	if value.Kind() != reflect.Map || !value.Type().ConvertibleTo(argsType) {
		return Args(nil)
	}
	return value.Convert(argsType).Interface().(Args)
}

// subredditOf extracts and normalizes the subreddit field. Empty means absent.
func subredditOf(params any) string {
	value, ok := fieldsOf(params).StringField("subreddit")
	if !ok {
		return ""
	}
	return NormalizeSubreddit(value)
}
