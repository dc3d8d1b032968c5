// Package source fetches raw records from the smart-home REST API and turns
// them into natural-language documents cached on disk.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MichaelIeong/SAGE/core"
	"github.com/MichaelIeong/SAGE/logging"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultTimeout bounds every fetch.
const DefaultTimeout = 5 * time.Second

// DefaultBaseURL is the local smart-home API.
const DefaultBaseURL = "http://localhost:8080/api"

// Ingestor fetches records from the device/environment API. Fetch never
// fails: any error is logged and reported as "no data".
type Ingestor struct {
	baseURL   string
	projectID int
	client    *http.Client
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithProjectID sets the project queried for devices (default 1).
func WithProjectID(id int) Option {
	return func(i *Ingestor) {
		i.projectID = id
	}
}

// WithTimeout overrides the per-request timeout. Non-positive values keep
// the default.
func WithTimeout(d time.Duration) Option {
	return func(i *Ingestor) {
		if d > 0 {
			i.client.Timeout = d
		}
	}
}

// NewIngestor creates an Ingestor for the API rooted at baseURL.
func NewIngestor(baseURL string, opts ...Option) *Ingestor {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	i := &Ingestor{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: 1,
		client:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Fetch returns the records for kind, or an empty slice on any failure.
func (i *Ingestor) Fetch(ctx context.Context, kind core.SourceKind) []core.Record {
	records, err := i.TryFetch(ctx, kind)
	if err != nil {
		logging.From(ctx).Warn("failed to fetch records, continuing without them",
			"kind", kind, "error", err)
		return []core.Record{}
	}
	return records
}

// TryFetch is Fetch with the failure reported. Errors match ErrFetch.
func (i *Ingestor) TryFetch(ctx context.Context, kind core.SourceKind) ([]core.Record, error) {
	records, err := i.fetch(ctx, kind)
	if err != nil {
		return nil, errors.Join(ErrFetch, err)
	}
	return records, nil
}

func (i *Ingestor) endpoint(kind core.SourceKind) (string, error) {
	switch kind {
	case core.SourceDevice:
		q := url.Values{"project": {strconv.Itoa(i.projectID)}}
		return i.baseURL + "/devices?" + q.Encode(), nil
	case core.SourceEnv:
		return i.baseURL + "/person", nil
	default:
		return "", goerr.New("unknown source kind", goerr.V("kind", kind))
	}
}

func (i *Ingestor) fetch(ctx context.Context, kind core.SourceKind) ([]core.Record, error) {
	endpoint, err := i.endpoint(kind)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request", goerr.V("url", endpoint))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "request failed", goerr.V("url", endpoint))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, goerr.New("unexpected status",
			goerr.V("url", endpoint), goerr.V("status", resp.StatusCode))
	}

	var records []core.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, goerr.Wrap(err, "failed to decode records", goerr.V("url", endpoint))
	}
	if records == nil {
		records = []core.Record{}
	}

	logging.From(ctx).Debug("fetched records", "kind", kind, "count", len(records))
	return records, nil
}
