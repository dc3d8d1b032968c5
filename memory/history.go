package memory

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"

	"github.com/MichaelIeong/SAGE/core"
	"github.com/m-mizutani/goerr/v2"
)

// Shape is the structural variant of a bank's history.
type Shape int

const (
	// ShapeAuto lets LoadHistory detect the shape from file content.
	ShapeAuto Shape = iota
	// ShapePerUser is user -> date -> utterances.
	ShapePerUser
	// ShapeFlat is an ordered list of documents from one source.
	ShapeFlat
)

func (s Shape) String() string {
	switch s {
	case ShapePerUser:
		return "per_user"
	case ShapeFlat:
		return "flat"
	default:
		return "auto"
	}
}

// ParseShape converts a config value ("per_user", "flat", "" / "auto").
func ParseShape(s string) (Shape, error) {
	switch s {
	case "", "auto":
		return ShapeAuto, nil
	case "per_user", "per-user", "user":
		return ShapePerUser, nil
	case "flat":
		return ShapeFlat, nil
	default:
		return ShapeAuto, goerr.New("unknown history shape", goerr.V("shape", s))
	}
}

// History is the in-memory content of a bank. It is either PerUserHistory
// or FlatHistory; the variant is fixed when the history is created.
type History interface {
	Shape() Shape
	// Len returns the number of stored utterances or documents.
	Len() int
	// Corpus normalizes the history into index manager input.
	Corpus() Corpus

	history()
}

// UserHistory is one user's entry in a PerUserHistory.
type UserHistory struct {
	// History maps a calendar date (YYYY-MM-DD) to utterances in call order.
	History map[string][]string `json:"history"`
	// Profile is a derived preference summary, filled by Bank.Save.
	Profile string `json:"profile,omitempty"`
}

// PerUserHistory maps user name to that user's dialogue history.
type PerUserHistory map[string]*UserHistory

// FlatHistory is an ordered list of documents from one source kind.
type FlatHistory []core.Document

func (PerUserHistory) history() {}
func (FlatHistory) history()    {}

func (PerUserHistory) Shape() Shape { return ShapePerUser }
func (FlatHistory) Shape() Shape    { return ShapeFlat }

func (h PerUserHistory) Len() int {
	total := 0
	for _, u := range h {
		for _, qs := range u.History {
			total += len(qs)
		}
	}
	return total
}

func (h FlatHistory) Len() int { return len(h) }

// Utterances flattens one user's history: dates ascending, call order
// within a date.
func (u *UserHistory) Utterances() []string {
	var out []string
	for _, date := range slices.Sorted(maps.Keys(u.History)) {
		out = append(out, u.History[date]...)
	}
	return out
}

func (h PerUserHistory) Corpus() Corpus {
	c := make(PerUserCorpus, len(h))
	for user, u := range h {
		c[user] = u.Utterances()
	}
	return c
}

// Corpus extracts the document texts, discarding provenance.
func (h FlatHistory) Corpus() Corpus {
	c := make(FlatCorpus, 0, len(h))
	for _, d := range h {
		c = append(c, d.Text)
	}
	return c
}

// DetectShape infers the history shape of raw file content. Content is
// per-user only when it is a single JSON object whose every value is an
// object with a "history" key; anything else, including empty content and
// one-line caches, is flat.
func DetectShape(data []byte) Shape {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ShapeFlat
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return ShapeFlat
	}
	for _, v := range obj {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(v, &entry); err != nil {
			return ShapeFlat
		}
		if _, ok := entry["history"]; !ok {
			return ShapeFlat
		}
	}
	return ShapePerUser
}

// ParsePerUserHistory decodes an aggregate per-user file. Every user entry
// must be an object with a "history" key.
func ParsePerUserHistory(data []byte) (PerUserHistory, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, goerr.Wrap(ErrInvalidHistoryFormat, "aggregate file is not a JSON object",
			goerr.V("cause", err.Error()))
	}

	h := make(PerUserHistory, len(raw))
	for user, msg := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(msg, &fields); err != nil {
			return nil, goerr.Wrap(ErrInvalidHistoryFormat, "user entry is not an object",
				goerr.V("user", user))
		}
		if _, ok := fields["history"]; !ok {
			return nil, goerr.Wrap(ErrInvalidHistoryFormat, "user entry has no history",
				goerr.V("user", user))
		}

		var u UserHistory
		if err := json.Unmarshal(msg, &u); err != nil {
			return nil, goerr.Wrap(ErrInvalidHistoryFormat, "user entry has unexpected types",
				goerr.V("user", user), goerr.V("cause", err.Error()))
		}
		if u.History == nil {
			u.History = make(map[string][]string)
		}
		h[user] = &u
	}
	return h, nil
}
