// Package artifact names and encodes the per-page artifacts written by the
// file and object-store sinks.
package artifact

import (
	"fmt"
	"path"
	"sync"

	"github.com/ajitpratap0/nebula-extract/pkg/compression"
	"github.com/ajitpratap0/nebula-extract/pkg/json"
	"github.com/ajitpratap0/nebula-extract/pkg/models"
	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// Namer hands out artifact keys of the form
// <prefix>/<job_id>/<run_id>/part-000000.jsonl[.ext]. Empty segments are
// dropped. The sequence restarts at every BeginRun.
type Namer struct {
	mu     sync.Mutex
	prefix string
	ext    string
	jobID  string
	runID  string
	seq    int
}

// NewNamer creates a namer for artifacts compressed with alg.
func NewNamer(prefix string, alg compression.Algorithm) *Namer {
	return &Namer{prefix: prefix, ext: ".jsonl" + alg.Extension()}
}

// BeginRun implements core.RunAware.
func (n *Namer) BeginRun(jobID, runID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobID, n.runID = jobID, runID
	n.seq = 0
}

// Next returns the key of the next artifact.
func (n *Namer) Next() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := path.Join(n.prefix, n.jobID, n.runID, fmt.Sprintf("part-%06d%s", n.seq, n.ext))
	n.seq++
	return key
}

// Encoder renders a page as line-delimited JSON compressed with one algorithm.
type Encoder struct {
	alg compression.Algorithm
}

// NewEncoder parses the compression name of a sink config.
func NewEncoder(name string) (*Encoder, error) {
	alg, err := compression.Parse(name)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "invalid sink compression")
	}
	return &Encoder{alg: alg}, nil
}

// Algorithm returns the compression algorithm.
func (e *Encoder) Algorithm() compression.Algorithm { return e.alg }

// Encode returns the artifact body for records.
func (e *Encoder) Encode(records []models.Record) ([]byte, error) {
	raw, err := json.MarshalRecordsLines(records)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeSink, "failed to encode page")
	}
	body, err := compression.Compress(e.alg, raw)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeSink, "failed to compress page").
			WithDetail("compression", string(e.alg))
	}
	return body, nil
}

// ContentType is the MIME type of an encoded artifact.
func (e *Encoder) ContentType() string {
	return "application/x-ndjson"
}
