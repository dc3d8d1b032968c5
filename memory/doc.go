// Package memory is the retrieval core of SAGE: named vector-indexed
// namespaces holding what the home agent knows about its users, devices
// and occupants.
//
// Architecture:
//   - Bank: one namespace's history and its live indexes (Empty -> Loaded -> Indexed)
//   - Shared: one independent Bank per configured namespace
//   - IndexManager: builds or loads persisted indexes (store/chromem)
//   - Embedder: text-to-vector conversion (embedder registry: ollama, openai, gemini, onnx, mock)
//   - Ingestor: REST source for device and person records (package source)
//
// A namespace is either per-user (user -> date -> utterances, one index per
// user under "<namespace>/<user>") or flat (one document list, one index
// under "<namespace>"). The shape is fixed when history is loaded and
// carried as a PerUserHistory or FlatHistory value.
//
// Data flow:
//   - Startup: Ingestor -> cache file -> Bank.LoadHistory -> Bank.IndexAll
//   - Query: tool adapters -> Shared.Search -> Index.Search
//   - Live: location feed -> Bank.Append (environment namespace only)
package memory
