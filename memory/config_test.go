package memory_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/MichaelIeong/SAGE/core"
	"github.com/MichaelIeong/SAGE/memory"
)

func TestDefaultConfig(t *testing.T) {
	cfg := memory.DefaultConfig("/srv/home")
	gt.NoError(t, cfg.Validate())
	gt.Equal(t, cfg.VectorstorePath, filepath.Join("/srv/home", "memory_data", "vectorstore"))
	gt.A(t, cfg.Namespaces).Length(3)

	ns, ok := cfg.Namespace(memory.NamespaceDeviceInfo)
	gt.True(t, ok)
	gt.Equal(t, ns.Source, core.SourceDevice)
	gt.Equal(t, ns.Shape, "flat")
	gt.Equal(t, ns.CachePath, filepath.Join("/srv/home", "memory_data", "device_info.json"))

	ns, ok = cfg.Namespace(memory.NamespaceUserProfile)
	gt.True(t, ok)
	gt.Equal(t, ns.Shape, "per_user")
	gt.Equal(t, ns.Source, core.SourceKind(""))
}

func TestLoadConfig(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "sage.yaml")
	writeFile(t, path, `
vectorstore_path: stores
embedding_model: openai:text-embedding-3-small
load_existing: true
top_k: 3
source:
  base_url: http://hub.local/api
  project_id: 7
  timeout: 2s
namespaces:
  - name: devices
    shape: flat
    cache_path: data/devices.jsonl
    source: device
`)

	cfg, err := memory.LoadConfig(path, root)
	gt.NoError(t, err)
	gt.Equal(t, cfg.VectorstorePath, filepath.Join(root, "stores"))
	gt.Equal(t, cfg.EmbeddingModel, "openai:text-embedding-3-small")
	gt.True(t, cfg.LoadExisting)
	gt.Equal(t, cfg.TopK, 3)
	gt.Equal(t, cfg.Source.ProjectID, 7)
	gt.Equal(t, cfg.Source.Timeout, 2*time.Second)
	gt.Equal(t, cfg.Feed.Channel, "env_update")
	gt.A(t, cfg.Namespaces).Length(1)
	gt.Equal(t, cfg.Namespaces[0].CachePath, filepath.Join(root, "data", "devices.jsonl"))
}

func TestLoadConfig_InvalidShape(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "sage.yaml")
	writeFile(t, path, `
namespaces:
  - name: devices
    shape: tree
`)
	_, err := memory.LoadConfig(path, root)
	gt.Error(t, err)
}
