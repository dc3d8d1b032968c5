// Package feed applies live location updates to the environment namespace.
// Each message is one person record; it is rendered with the env template
// and appended to the live index without a rebuild.
package feed

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"

	"github.com/MichaelIeong/SAGE/core"
	"github.com/MichaelIeong/SAGE/logging"
	"github.com/MichaelIeong/SAGE/source"
)

// Appender receives materialized documents. *memory.Bank implements it.
type Appender interface {
	Append(ctx context.Context, doc core.Document) error
}

// Source delivers raw messages to a Handler until ctx is done or the
// upstream closes.
type Source interface {
	Run(ctx context.Context, h *Handler) error
}

// Handler turns feed messages into environment documents.
type Handler struct {
	target Appender
}

// NewHandler creates a Handler appending to target.
func NewHandler(target Appender) *Handler {
	return &Handler{target: target}
}

// Handle decodes one location record and appends it.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var rec core.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return goerr.Wrap(err, "invalid location message")
	}
	if _, ok := rec["personName"]; !ok {
		return goerr.New("location message has no personName", goerr.V("payload", string(payload)))
	}

	doc := source.Materialize([]core.Record{rec}, core.SourceEnv)[0]
	doc.Metadata = make(map[string]string, len(rec))
	for k := range rec {
		doc.Metadata[k] = rec.String(k, "")
	}

	if err := h.target.Append(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to append location", goerr.V("text", doc.Text))
	}
	logging.From(ctx).Info("applied location update", "text", doc.Text)
	return nil
}

// dispatch handles one message and logs failures; a bad message never
// stops a feed.
func (h *Handler) dispatch(ctx context.Context, payload []byte) {
	if err := h.Handle(ctx, payload); err != nil {
		logging.From(ctx).Warn("failed to process feed message", "error", err)
	}
}
