// Package embedder generates vector embeddings for code chunks.
//
// Three providers are available:
//
//   - openai: any OpenAI-compatible /v1/embeddings endpoint, authenticated
//     with an API key (config or OPENAI_API_KEY).
//   - ollama: a local Ollama server's /api/embed endpoint.
//   - local: deterministic hash-derived vectors, for offline use and tests.
//
// HTTP providers retry transient failures with exponential backoff (3
// attempts, 100ms base delay, capped at 5s). An error surfacing from
// EmbedBatch therefore means the provider is genuinely unavailable; callers
// treat it as a per-file failure and retry on a later cycle.
//
// The factory wraps every provider in an LRU cache keyed by content hash,
// so re-embedding unchanged text is free while the entry stays resident:
//
//	emb, err := embedder.New(cfg.Embedder)
//	vecs, err := emb.EmbedBatch(ctx, texts)
package embedder
