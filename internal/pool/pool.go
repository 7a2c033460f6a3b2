package pool

import (
	"fmt"
	"math/rand"
	"sort"

	"protonet/internal/model"
)

// Pool is an immutable collection of labeled examples, indexable by
// position and queryable by label. It is fully materialized before any
// episode is sampled from it.
type Pool struct {
	examples []model.Example
	labels   []string
	byLabel  map[string][]int
}

func New(examples []model.Example) (*Pool, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("pool requires at least one example")
	}

	owned := make([]model.Example, len(examples))
	byLabel := make(map[string][]int)
	for i, example := range examples {
		if example.Label == "" {
			return nil, fmt.Errorf("example %d has an empty label", i)
		}
		if len(example.Input) == 0 {
			return nil, fmt.Errorf("example %d has an empty input", i)
		}
		input := make([]float64, len(example.Input))
		copy(input, example.Input)
		owned[i] = model.Example{Input: input, Label: example.Label}
		byLabel[example.Label] = append(byLabel[example.Label], i)
	}

	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	return &Pool{examples: owned, labels: labels, byLabel: byLabel}, nil
}

func (p *Pool) Len() int {
	return len(p.examples)
}

func (p *Pool) Example(i int) model.Example {
	return p.examples[i]
}

// Labels returns the distinct labels in stable sorted order.
func (p *Pool) Labels() []string {
	return append([]string(nil), p.labels...)
}

func (p *Pool) CountByLabel(label string) int {
	return len(p.byLabel[label])
}

// IndicesByLabel returns the pool positions holding the given label, in
// stable insertion order.
func (p *Pool) IndicesByLabel(label string) []int {
	return append([]int(nil), p.byLabel[label]...)
}

// Clustered builds a synthetic pool of labelCount Gaussian-ish clusters with
// perLabel examples each. Cluster centers are axis-aligned unit vectors
// scaled by their label index, so classes are separable when spread is small
// relative to the center distance.
func Clustered(labelCount, perLabel, dim int, spread float64, seed int64) (*Pool, error) {
	if labelCount < 1 || perLabel < 1 || dim < 1 {
		return nil, fmt.Errorf("clustered pool requires labelCount, perLabel and dim >= 1")
	}
	if spread < 0 {
		return nil, fmt.Errorf("clustered pool spread must be >= 0")
	}

	rng := rand.New(rand.NewSource(seed))
	examples := make([]model.Example, 0, labelCount*perLabel)
	for label := 0; label < labelCount; label++ {
		axis := label % dim
		for i := 0; i < perLabel; i++ {
			input := make([]float64, dim)
			for d := range input {
				input[d] = rng.NormFloat64() * spread
			}
			input[axis] += float64(label + 1)
			examples = append(examples, model.Example{
				Input: input,
				Label: fmt.Sprintf("class-%02d", label),
			})
		}
	}
	return New(examples)
}
