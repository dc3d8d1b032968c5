package core

import "fmt"

// SourceKind identifies the external source a Record came from.
type SourceKind string

const (
	// SourceDevice is the device inventory source.
	SourceDevice SourceKind = "device"
	// SourceEnv is the person/location (environment) source.
	SourceEnv SourceKind = "env"
)

// Record is one raw item fetched from an external source. Attributes vary
// by source kind; device records carry deviceId/deviceName/spaceId/functions
// and person records carry personName/spaceId.
type Record map[string]any

// String returns the attribute as display text, or fallback when absent.
func (r Record) String(key, fallback string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; ids are integral in practice
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

// Records returns a nested list attribute (e.g. device functions).
// Entries that are not objects are skipped.
func (r Record) Records(key string) []Record {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}
