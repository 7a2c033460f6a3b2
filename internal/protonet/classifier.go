package protonet

import (
	"fmt"
	"math"
)

// Classifier scores query embeddings against class prototypes under one
// metric. Distances become log-probabilities through a softmax over their
// negation, so the nearest prototype is also the most probable class.
type Classifier struct {
	metric Metric
}

func NewClassifier(metric Metric) *Classifier {
	if metric == nil {
		metric = SquaredEuclidean{}
	}
	return &Classifier{metric: metric}
}

func (c *Classifier) Metric() Metric {
	return c.metric
}

// Result holds one episode's query scores. Rows index queries, columns index
// local classes.
type Result struct {
	Distances   [][]float64
	LogProbs    [][]float64
	Predictions []int
}

func (c *Classifier) Classify(prototypes, queries [][]float64) (Result, error) {
	if len(prototypes) == 0 {
		return Result{}, fmt.Errorf("no prototypes")
	}
	if len(queries) == 0 {
		return Result{}, fmt.Errorf("no queries")
	}
	dim := len(prototypes[0])
	for _, prototype := range prototypes {
		if len(prototype) != dim {
			return Result{}, &ShapeMismatchError{Want: dim, Got: len(prototype)}
		}
	}

	result := Result{
		Distances:   make([][]float64, len(queries)),
		LogProbs:    make([][]float64, len(queries)),
		Predictions: make([]int, len(queries)),
	}
	for i, query := range queries {
		if len(query) != dim {
			return Result{}, &ShapeMismatchError{Want: dim, Got: len(query)}
		}

		distances := make([]float64, len(prototypes))
		predicted := 0
		for class, prototype := range prototypes {
			distances[class] = c.metric.Distance(query, prototype)
			// Ties resolve to the lowest class index via strict <.
			if distances[class] < distances[predicted] {
				predicted = class
			}
		}
		result.Distances[i] = distances
		result.LogProbs[i] = logSoftmaxNegated(distances)
		result.Predictions[i] = predicted
	}
	return result, nil
}

// Loss is the mean negative log-probability of the true class over the
// query batch.
func Loss(result Result, truth []int) (float64, error) {
	if err := checkTruth(result, truth); err != nil {
		return 0, err
	}
	total := 0.0
	for i, class := range truth {
		total -= result.LogProbs[i][class]
	}
	return total / float64(len(truth)), nil
}

// Accuracy is the fraction of queries whose predicted class matches the
// true class.
func Accuracy(result Result, truth []int) (float64, error) {
	if err := checkTruth(result, truth); err != nil {
		return 0, err
	}
	correct := 0
	for i, class := range truth {
		if result.Predictions[i] == class {
			correct++
		}
	}
	return float64(correct) / float64(len(truth)), nil
}

func checkTruth(result Result, truth []int) error {
	if len(truth) != len(result.LogProbs) {
		return fmt.Errorf("truth has %d entries, result has %d queries", len(truth), len(result.LogProbs))
	}
	if len(truth) == 0 {
		return fmt.Errorf("no queries")
	}
	for i, class := range truth {
		if class < 0 || class >= len(result.LogProbs[i]) {
			return fmt.Errorf("truth class out of range at query %d: %d", i, class)
		}
	}
	return nil
}

// logSoftmaxNegated computes log softmax over logits = -distances, shifted
// by the row maximum for numerical stability.
func logSoftmaxNegated(distances []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, d := range distances {
		if -d > maxLogit {
			maxLogit = -d
		}
	}
	sum := 0.0
	for _, d := range distances {
		sum += math.Exp(-d - maxLogit)
	}
	logSumExp := maxLogit + math.Log(sum)

	out := make([]float64, len(distances))
	for i, d := range distances {
		out[i] = -d - logSumExp
	}
	return out
}
