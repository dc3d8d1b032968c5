package source

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MichaelIeong/SAGE/core"
)

// Materialize renders one Document per record using the template for kind.
// Unknown kinds fall back to the record's JSON encoding.
func Materialize(records []core.Record, kind core.SourceKind) []core.Document {
	docs := make([]core.Document, 0, len(records))
	for _, r := range records {
		docs = append(docs, core.Document{
			Text: sentence(r, kind),
			Kind: kind,
		})
	}
	return docs
}

func sentence(r core.Record, kind core.SourceKind) string {
	switch kind {
	case core.SourceDevice:
		return deviceSentence(r)
	case core.SourceEnv:
		return personSentence(r)
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Sprint(map[string]any(r))
		}
		return string(b)
	}
}

func deviceSentence(r core.Record) string {
	fns := r.Records("functions")
	names := make([]string, 0, len(fns))
	for _, f := range fns {
		names = append(names, f.String("functionName", "Unnamed"))
	}
	functions := "no functions"
	if len(names) > 0 {
		functions = strings.Join(names, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b,
		"In space %s, there is a device named '%s' with ID %s. This device supports the following functions: %s.",
		r.String("spaceId", "N/A"),
		r.String("deviceName", "unknown"),
		r.String("deviceId", "N/A"),
		functions,
	)
	for i, f := range fns {
		b.WriteByte(' ')
		writeFunction(&b, names[i], f)
	}
	return b.String()
}

// writeFunction describes how to call one device function. URL and
// parameters are the inputs of a device-control request.
func writeFunction(b *strings.Builder, name string, f core.Record) {
	fmt.Fprintf(b, "Function '%s' (function ID: %s)", name, f.String("functionId", "N/A"))
	url := f.String("functionUrl", "")
	if url != "" {
		fmt.Fprintf(b, " can be accessed via functionUrl '%s'", url)
	}
	if params := functionParams(f["functionParams"]); params != "" {
		if url != "" {
			b.WriteString(" and")
		}
		fmt.Fprintf(b, " requires parameters: %s", params)
	}
	b.WriteByte('.')
}

// functionParams renders parameters as given: strings verbatim, anything
// else as JSON. Empty values render as "".
func functionParams(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		if len(t) == 0 {
			return ""
		}
	case []any:
		if len(t) == 0 {
			return ""
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func personSentence(r core.Record) string {
	return fmt.Sprintf("Person '%s' is currently located in space %s.",
		r.String("personName", "unknown"),
		r.String("spaceId", "N/A"),
	)
}
