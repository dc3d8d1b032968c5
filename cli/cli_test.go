package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
)

func newSourceAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"deviceId": 7, "deviceName": "TV", "spaceId": 1, "functions": []map[string]any{{"functionName": "power"}}},
		})
	})
	mux.HandleFunc("/api/person", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"personName": "alice", "spaceId": 3},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	root := newRoot()
	root.Writer = &buf
	gt.NoError(t, root.Run(context.Background(), append([]string{"sage"}, args...)))
	return buf.String()
}

func TestIndexAndSearch(t *testing.T) {
	dir := t.TempDir()
	api := newSourceAPI(t)
	common := []string{"--root", dir, "--embedding-model", "mock", "--source-url", api.URL + "/api", "--log-level", "error"}

	gt.NoError(t, os.MkdirAll(filepath.Join(dir, "memory_data"), 0o755))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "memory_data", "memory_bank.json"),
		[]byte(`{"alice": {"history": {"2024-01-01": ["turn on tv", "play jazz music"]}}}`), 0o644))

	out := run(t, append([]string{"index"}, common...)...)
	gt.S(t, out).Contains("chroma_userprofile")
	gt.S(t, out).Contains("keys=[alice]")
	gt.S(t, out).Contains("chroma_deviceinfo")

	_, err := os.Stat(filepath.Join(dir, "memory_data", "device_info.json"))
	gt.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "memory_data", "vectorstore", "chroma_userprofile", "alice"))
	gt.NoError(t, err)

	out = run(t, append([]string{"search", "--key", "alice", "--query", "turn on tv", "--top-k", "1"}, common...)...)
	gt.Equal(t, out, "1. turn on tv\n")

	out = run(t, append([]string{"tool", "--name", "environment_info_tool",
		"--input", `{"query": "where is alice", "user_name": "alice"}`}, common...)...)
	gt.Equal(t, out, "Person 'alice' is currently located in space 3.\n")
}

func TestAddQuery(t *testing.T) {
	dir := t.TempDir()
	snapshots := filepath.Join(dir, "snapshots")
	common := []string{"--root", dir, "--embedding-model", "mock", "--log-level", "error"}

	run(t, append([]string{"add-query", "--user", "bob", "--text", "dim the lights", "--date", "2024-03-01"}, common...)...)
	out := run(t, append([]string{"add-query", "--user", "bob", "--text", "play jazz", "--date", "2024-03-01",
		"--snapshot-dir", snapshots}, common...)...)
	gt.S(t, out).Contains("(2 entries)")
	gt.S(t, out).Contains(filepath.Join(snapshots, "snapshot_0.json"))

	raw, err := os.ReadFile(filepath.Join(dir, "memory_data", "memory_bank.json"))
	gt.NoError(t, err)
	var saved map[string]struct {
		History map[string][]string `json:"history"`
	}
	gt.NoError(t, json.Unmarshal(raw, &saved))
	gt.Equal(t, saved["bob"].History["2024-03-01"], []string{"dim the lights", "play jazz"})
}

func TestSearchUnknownKey(t *testing.T) {
	dir := t.TempDir()
	root := newRoot()
	root.Writer = &bytes.Buffer{}
	err := root.Run(context.Background(), []string{"sage", "search",
		"--root", dir, "--embedding-model", "mock", "--source-url", "http://127.0.0.1:1/api",
		"--log-level", "error", "--key", "nobody", "--query", "tv"})
	gt.Error(t, err)
}
