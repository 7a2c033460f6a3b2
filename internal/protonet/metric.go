// Package protonet implements prototype construction and distance-based
// episodic classification: per-class mean prototypes, pairwise distances
// under a pluggable metric, log-softmax scoring over negated distances, and
// the analytic embedding gradients the trainer feeds back to the model.
package protonet

import (
	"fmt"
	"math"
)

// Metric is a pairwise distance with its partial derivative with respect to
// the first argument. All metrics here are symmetric, so the derivative with
// respect to the second argument is Grad(b, a).
type Metric interface {
	Name() string
	Distance(a, b []float64) float64
	Grad(a, b []float64) []float64
}

const (
	MetricSquaredEuclidean = "squared_euclidean"
	MetricEuclidean        = "euclidean"
	MetricCosine           = "cosine"
)

// ParseMetric maps a configuration name to a metric. The empty name selects
// squared Euclidean, the conventional default for prototype classification.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "", MetricSquaredEuclidean:
		return SquaredEuclidean{}, nil
	case MetricEuclidean:
		return Euclidean{}, nil
	case MetricCosine:
		return Cosine{}, nil
	default:
		return nil, fmt.Errorf("unsupported distance metric: %s", name)
	}
}

type SquaredEuclidean struct{}

func (SquaredEuclidean) Name() string { return MetricSquaredEuclidean }

func (SquaredEuclidean) Distance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

func (SquaredEuclidean) Grad(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = 2 * (a[i] - b[i])
	}
	return out
}

type Euclidean struct{}

func (Euclidean) Name() string { return MetricEuclidean }

func (Euclidean) Distance(a, b []float64) float64 {
	return math.Sqrt(SquaredEuclidean{}.Distance(a, b))
}

func (Euclidean) Grad(a, b []float64) []float64 {
	out := make([]float64, len(a))
	d := Euclidean{}.Distance(a, b)
	if d == 0 {
		return out
	}
	for i := range a {
		out[i] = (a[i] - b[i]) / d
	}
	return out
}

// Cosine distance is 1 minus cosine similarity, in [0, 2]. Zero-norm inputs
// have no direction; their similarity is taken as 0 and the gradient there
// is zero.
type Cosine struct{}

func (Cosine) Name() string { return MetricCosine }

func (Cosine) Distance(a, b []float64) float64 {
	dot, normA, normB := dotAndNorms(a, b)
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(normA*normB)
}

func (Cosine) Grad(a, b []float64) []float64 {
	out := make([]float64, len(a))
	dot, normA, normB := dotAndNorms(a, b)
	if normA == 0 || normB == 0 {
		return out
	}
	for i := range a {
		similarityGrad := b[i]/(normA*normB) - dot*a[i]/(normA*normA*normA*normB)
		out[i] = -similarityGrad
	}
	return out
}

func dotAndNorms(a, b []float64) (dot, normA, normB float64) {
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	return dot, math.Sqrt(normA), math.Sqrt(normB)
}
