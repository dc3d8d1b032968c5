package core

// BaseInput provides common fields for all memory tool inputs.
// Tools embed this struct so every call carries the agent's reasoning
// alongside the retrieval query.
type BaseInput struct {
	// Thought contains the agent's reasoning about why it is querying memory.
	// Optional; it is logged but never used for retrieval.
	Thought string `json:"thought,omitempty"`

	// Query is the natural-language text to search for.
	Query string `json:"query"`
}
