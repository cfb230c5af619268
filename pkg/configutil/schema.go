package configutil

import (
	"sort"
	"strings"
)

// Schema names the keys a vendor settings block may carry.
type Schema struct {
	Required []string
	Optional []string
	// AllowUnknown passes keys the schema does not name.
	AllowUnknown bool
}

// SettingsError reports every problem in a settings block at once so a
// broken config file can be fixed in one pass.
type SettingsError struct {
	Missing []string
	Unknown []string
}

func (e *SettingsError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required setting(s) "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unrecognised setting(s) "+strings.Join(e.Unknown, ", "))
	}
	return strings.Join(parts, "; ")
}

// ValidateSettings checks input against schema. Keys match regardless of
// case, "_" or "-", so api_key, apiKey and API-Key are the same setting.
// A required key holding a blank string counts as missing.
func ValidateSettings(input map[string]any, schema Schema) error {
	present := make(map[string]bool, len(input))
	var unknown []string
	known := schema.keys()
	for k, v := range input {
		nk := normalizeKey(k)
		if !isBlank(v) {
			present[nk] = true
		}
		if _, ok := known[nk]; !ok && !schema.AllowUnknown {
			unknown = append(unknown, k)
		}
	}
	var missing []string
	for _, k := range schema.Required {
		if !present[normalizeKey(k)] {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	return &SettingsError{Missing: missing, Unknown: unknown}
}

func (s Schema) keys() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Required)+len(s.Optional))
	for _, k := range s.Required {
		out[normalizeKey(k)] = struct{}{}
	}
	for _, k := range s.Optional {
		out[normalizeKey(k)] = struct{}{}
	}
	return out
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
