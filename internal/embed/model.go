// Package embed defines the embedding capability the episodic core trains
// against. Any implementation of Model substitutes freely; the core never
// looks inside parameters.
package embed

import "context"

// Gradient is the training signal handed to a model after one episode.
// Inputs[i] is a raw input from the episode's batched embed call and
// Outputs[i] is dLoss/dEmbedding for the vector it produced. The model owns
// the rest of the chain rule down to its parameters.
type Gradient struct {
	Inputs  [][]float64
	Outputs [][]float64
}

// Parameters is an opaque handle to a model's trainable state. Snapshot
// exists so evaluation can verify read-only behavior; it must return a
// defensive copy.
type Parameters interface {
	Snapshot() []float64
}

// Model maps raw inputs to fixed-length vectors and owns its trainable
// parameters. Embed is deterministic for fixed parameters and input, and
// all vectors of one call share the same dimension.
type Model interface {
	Embed(ctx context.Context, batch [][]float64) ([][]float64, error)
	Parameters() Parameters
	Step(grad Gradient) error
}
