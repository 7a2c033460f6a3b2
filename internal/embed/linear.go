package embed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
)

// Linear embeds x as Wx with W of shape [embeddingDim][inputDim], trained by
// plain SGD. It is the reference trainable model for the episodic loop.
type Linear struct {
	inputDim     int
	embeddingDim int
	learningRate float64
	weights      [][]float64
}

func NewLinear(inputDim, embeddingDim int, learningRate float64, seed int64) (*Linear, error) {
	if inputDim < 1 {
		return nil, fmt.Errorf("input dimension must be >= 1, got %d", inputDim)
	}
	if embeddingDim < 1 {
		return nil, fmt.Errorf("embedding dimension must be >= 1, got %d", embeddingDim)
	}
	if learningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be > 0, got %f", learningRate)
	}

	rng := rand.New(rand.NewSource(seed))
	scale := 1.0 / math.Sqrt(float64(inputDim))
	weights := make([][]float64, embeddingDim)
	for e := range weights {
		row := make([]float64, inputDim)
		for d := range row {
			row[d] = (rng.Float64()*2 - 1) * scale
		}
		weights[e] = row
	}

	return &Linear{
		inputDim:     inputDim,
		embeddingDim: embeddingDim,
		learningRate: learningRate,
		weights:      weights,
	}, nil
}

func (m *Linear) Embed(ctx context.Context, batch [][]float64) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float64, len(batch))
	for i, input := range batch {
		if len(input) != m.inputDim {
			return nil, fmt.Errorf("input %d has dimension %d, model expects %d", i, len(input), m.inputDim)
		}
		vector := make([]float64, m.embeddingDim)
		for e, row := range m.weights {
			sum := 0.0
			for d, w := range row {
				sum += w * input[d]
			}
			vector[e] = sum
		}
		out[i] = vector
	}
	return out, nil
}

func (m *Linear) Parameters() Parameters {
	return linearParameters{model: m}
}

// Step applies one SGD update: W <- W - lr * sum_i g_i x_i^T.
func (m *Linear) Step(grad Gradient) error {
	if len(grad.Inputs) != len(grad.Outputs) {
		return fmt.Errorf("gradient has %d inputs and %d outputs", len(grad.Inputs), len(grad.Outputs))
	}
	for i := range grad.Inputs {
		input, g := grad.Inputs[i], grad.Outputs[i]
		if len(input) != m.inputDim {
			return fmt.Errorf("gradient input %d has dimension %d, model expects %d", i, len(input), m.inputDim)
		}
		if len(g) != m.embeddingDim {
			return fmt.Errorf("gradient output %d has dimension %d, model expects %d", i, len(g), m.embeddingDim)
		}
		for e := range m.weights {
			row := m.weights[e]
			step := m.learningRate * g[e]
			for d := range row {
				row[d] -= step * input[d]
			}
		}
	}
	return nil
}

type linearParameters struct {
	model *Linear
}

func (p linearParameters) Snapshot() []float64 {
	out := make([]float64, 0, p.model.embeddingDim*p.model.inputDim)
	for _, row := range p.model.weights {
		out = append(out, row...)
	}
	return out
}
