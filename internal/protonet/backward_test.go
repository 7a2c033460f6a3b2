package protonet

import (
	"math"
	"testing"
)

// episodeLoss recomputes the scalar loss for given prototypes and queries,
// used to check the analytic gradients against finite differences.
func episodeLoss(t *testing.T, classifier *Classifier, prototypes, queries [][]float64, truth []int) float64 {
	t.Helper()
	result, err := classifier.Classify(prototypes, queries)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	loss, err := Loss(result, truth)
	if err != nil {
		t.Fatalf("loss failed: %v", err)
	}
	return loss
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	const h = 1e-6
	prototypes := [][]float64{{0.2, -0.4}, {1.1, 0.3}, {-0.5, 0.9}}
	queries := [][]float64{{0.1, 0.1}, {0.9, 0.2}, {-0.4, 1.0}, {0.3, 0.3}}
	truth := []int{0, 1, 2, 1}

	for _, metric := range []Metric{SquaredEuclidean{}, Euclidean{}, Cosine{}} {
		classifier := NewClassifier(metric)
		result, err := classifier.Classify(prototypes, queries)
		if err != nil {
			t.Fatalf("%s: classify failed: %v", metric.Name(), err)
		}
		queryGrads, protoGrads, err := classifier.Backward(prototypes, queries, result, truth)
		if err != nil {
			t.Fatalf("%s: backward failed: %v", metric.Name(), err)
		}

		for i := range queries {
			for d := range queries[i] {
				perturbed := copyMatrix(queries)
				perturbed[i][d] += h
				up := episodeLoss(t, classifier, prototypes, perturbed, truth)
				perturbed[i][d] -= 2 * h
				down := episodeLoss(t, classifier, prototypes, perturbed, truth)
				want := (up - down) / (2 * h)
				if math.Abs(queryGrads[i][d]-want) > 1e-4 {
					t.Fatalf("%s: query grad[%d][%d]: got=%f want=%f", metric.Name(), i, d, queryGrads[i][d], want)
				}
			}
		}
		for class := range prototypes {
			for d := range prototypes[class] {
				perturbed := copyMatrix(prototypes)
				perturbed[class][d] += h
				up := episodeLoss(t, classifier, perturbed, queries, truth)
				perturbed[class][d] -= 2 * h
				down := episodeLoss(t, classifier, perturbed, queries, truth)
				want := (up - down) / (2 * h)
				if math.Abs(protoGrads[class][d]-want) > 1e-4 {
					t.Fatalf("%s: proto grad[%d][%d]: got=%f want=%f", metric.Name(), class, d, protoGrads[class][d], want)
				}
			}
		}
	}
}

func TestBackwardValidation(t *testing.T) {
	classifier := NewClassifier(nil)
	prototypes := [][]float64{{0}, {1}}
	queries := [][]float64{{0.4}}
	result, err := classifier.Classify(prototypes, queries)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}

	if _, _, err := classifier.Backward(prototypes, queries, result, []int{0, 1}); err == nil {
		t.Fatal("expected truth length error")
	}
	if _, _, err := classifier.Backward(prototypes, nil, result, []int{0}); err == nil {
		t.Fatal("expected query count error")
	}
}
