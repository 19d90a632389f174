package submodule

import "strings"

// Config readers: submodule config arrives as a loosely typed JSON map;
// these helpers apply declared defaults and tolerate numeric JSON decoding
// as float64.

// IntOption reads an integer config value with a default.
func IntOption(config map[string]any, key string, def int) int {
	v, ok := config[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// BoolOption reads a boolean config value with a default.
func BoolOption(config map[string]any, key string, def bool) bool {
	v, ok := config[key]
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// StringOption reads a string config value with a default.
func StringOption(config map[string]any, key string, def string) string {
	v, ok := config[key]
	if !ok {
		return def
	}
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

// StringsOption reads a string-list config value. Accepts []string,
// []any of strings, or a comma-separated string.
func StringsOption(config map[string]any, key string, def []string) []string {
	v, ok := config[key]
	if !ok {
		return def
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if list == "" {
			return def
		}
		parts := strings.Split(list, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	default:
		return def
	}
}
