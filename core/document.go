package core

// Document is one natural-language sentence derived from a Record. It is
// the unit that gets embedded and indexed.
type Document struct {
	// Text is the sentence that is embedded and returned by searches.
	Text string

	// Kind records which source produced the document, if known.
	Kind SourceKind

	// Metadata carries optional provenance (e.g. the original record fields).
	Metadata map[string]string
}

// NewDocument creates a Document with no provenance.
func NewDocument(text string) Document {
	return Document{Text: text}
}
