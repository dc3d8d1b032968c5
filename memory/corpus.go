package memory

import (
	"maps"
	"path"
	"slices"
	"strings"
)

// Corpus is index manager input: PerUserCorpus or FlatCorpus.
type Corpus interface {
	// Partitions lists the independent indexes to build for namespace.
	Partitions(namespace string) []Partition

	corpus()
}

// Partition is the text of one persisted index.
type Partition struct {
	// Key identifies the handle: the lower-cased user for per-user corpora,
	// the namespace for flat ones.
	Key string
	// Path is the index location relative to the store root.
	Path string
	// Texts are indexed in this order.
	Texts []string
}

// PerUserCorpus maps user to that user's utterances.
type PerUserCorpus map[string][]string

// FlatCorpus is one ordered document list.
type FlatCorpus []string

func (PerUserCorpus) corpus() {}
func (FlatCorpus) corpus()    {}

// Partitions returns one partition per user under "<namespace>/<user>",
// sorted by key. Users that differ only by case share one partition.
func (c PerUserCorpus) Partitions(namespace string) []Partition {
	merged := make(map[string][]string, len(c))
	for _, user := range slices.Sorted(maps.Keys(c)) {
		key := UserKey(user)
		merged[key] = append(merged[key], c[user]...)
	}

	out := make([]Partition, 0, len(merged))
	for _, key := range slices.Sorted(maps.Keys(merged)) {
		out = append(out, Partition{
			Key:   key,
			Path:  path.Join(namespace, pathSegment(key)),
			Texts: merged[key],
		})
	}
	return out
}

// Partitions returns the single partition stored under "<namespace>".
func (c FlatCorpus) Partitions(namespace string) []Partition {
	return []Partition{{Key: namespace, Path: namespace, Texts: []string(c)}}
}

// UserKey normalizes a user name for index lookup.
func UserKey(user string) string {
	return strings.ToLower(strings.TrimSpace(user))
}

// pathSegment keeps a user key from escaping its namespace directory.
func pathSegment(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_")
	seg := r.Replace(key)
	if seg == "" || seg == "." || seg == ".." {
		seg = "_" + seg
	}
	return seg
}
