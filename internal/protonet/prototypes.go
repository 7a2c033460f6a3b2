package protonet

import "fmt"

// EmptySupportError reports a support class with no embeddings. The sampler
// guarantees this never happens; seeing it means a sampler bug, so it is
// fatal and never skipped.
type EmptySupportError struct {
	Class int
}

func (e *EmptySupportError) Error() string {
	return fmt.Sprintf("support class %d has no embeddings", e.Class)
}

// ShapeMismatchError reports an embedding dimension disagreement, which
// violates the embedding model contract.
type ShapeMismatchError struct {
	Want int
	Got  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// Prototypes reduces per-class support embeddings to one component-wise mean
// vector per class. With a single support embedding the prototype equals it
// exactly.
func Prototypes(supportByClass [][][]float64) ([][]float64, error) {
	if len(supportByClass) == 0 {
		return nil, fmt.Errorf("no support classes")
	}

	dim := -1
	out := make([][]float64, len(supportByClass))
	for class, group := range supportByClass {
		if len(group) == 0 {
			return nil, &EmptySupportError{Class: class}
		}
		for _, embedding := range group {
			if dim == -1 {
				dim = len(embedding)
			}
			if len(embedding) != dim {
				return nil, &ShapeMismatchError{Want: dim, Got: len(embedding)}
			}
		}

		prototype := make([]float64, dim)
		for _, embedding := range group {
			for d, value := range embedding {
				prototype[d] += value
			}
		}
		for d := range prototype {
			prototype[d] /= float64(len(group))
		}
		out[class] = prototype
	}
	return out, nil
}
