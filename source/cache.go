package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MichaelIeong/SAGE/core"
	"github.com/m-mizutani/goerr/v2"
)

// cacheLine is the on-disk shape of one cached document.
type cacheLine struct {
	Instruction string `json:"instruction"`
}

// EnsureCache materializes records and writes them to path, one
// {"instruction": ...} object per line. Empty input leaves path untouched so
// a transient fetch failure never wipes a previous cache.
func EnsureCache(path string, records []core.Record, kind core.SourceKind) error {
	if len(records) == 0 {
		return nil
	}
	return WriteCache(path, Materialize(records, kind))
}

// WriteCache writes docs to path through a temp file in the same directory.
func WriteCache(path string, docs []core.Document) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create cache directory", goerr.V("dir", dir))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, d := range docs {
		if err := enc.Encode(cacheLine{Instruction: d.Text}); err != nil {
			return goerr.Wrap(err, "failed to encode cache line")
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp cache file", goerr.V("dir", dir))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to write cache", goerr.V("path", path))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close cache", goerr.V("path", path))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return goerr.Wrap(err, "failed to move cache into place", goerr.V("path", path))
	}
	return nil
}

// DecodeCache reads line-delimited cache documents in file order. A line
// that is not an object with a string "instruction" is reported through
// onMalformed (1-based line number) and skipped. Blank lines are ignored.
func DecodeCache(r io.Reader, onMalformed func(line int, err error)) ([]core.Document, error) {
	var docs []core.Document

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		doc, err := decodeLine([]byte(line))
		if err != nil {
			if onMalformed != nil {
				onMalformed(n, errors.Join(ErrMalformedCacheLine, err))
			}
			continue
		}
		docs = append(docs, doc)
	}
	if err := sc.Err(); err != nil {
		return docs, goerr.Wrap(err, "failed to read cache")
	}
	return docs, nil
}

func decodeLine(line []byte) (core.Document, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return core.Document{}, goerr.Wrap(err, "invalid JSON")
	}

	raw, ok := fields["instruction"]
	if !ok {
		return core.Document{}, goerr.New("missing instruction field")
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return core.Document{}, goerr.Wrap(err, "instruction is not a string")
	}

	doc := core.Document{Text: text}
	for k, v := range fields {
		if k == "instruction" {
			continue
		}
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]string)
		}
		var s string
		if json.Unmarshal(v, &s) == nil {
			doc.Metadata[k] = s
		} else {
			doc.Metadata[k] = string(v)
		}
	}
	return doc, nil
}

// ReadCache opens path and decodes it with DecodeCache.
func ReadCache(path string, onMalformed func(line int, err error)) ([]core.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open cache", goerr.V("path", path))
	}
	defer f.Close()
	return DecodeCache(f, onMalformed)
}
