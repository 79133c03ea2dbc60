package embedder

import "context"

// Embedder is a pure function mapping text to a fixed-dimension unit-norm
// vector (§4.4). D is fixed at process startup; a mismatch with the vector
// store is a fatal startup error, checked in cmd/*/main.go.
type Embedder interface {
	Dim() int
	Identity() Identity
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Identity names the embedder implementation + version, recorded in the
// runtime manifest (SPEC_FULL §5) so a Reconciler-driven re-embed can detect
// a migration (§4.4 Determinism).
type Identity struct {
	Name    string
	Version string
}
