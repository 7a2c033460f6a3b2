package protonet

import (
	"fmt"
	"math"
)

// Backward computes the loss gradient with respect to each query embedding
// and each prototype for one classified episode. The gradient of a class's
// support embeddings is the prototype gradient divided by the class's
// support count; that split is the caller's concern since support layout is
// episode-specific.
//
// With p = softmax(-distances) and n queries, dLoss/dDistance[i][c] is
// (1{c==truth[i]} - p[i][c]) / n, chained through the metric derivative.
func (c *Classifier) Backward(prototypes, queries [][]float64, result Result, truth []int) (queryGrads, protoGrads [][]float64, err error) {
	if err := checkTruth(result, truth); err != nil {
		return nil, nil, err
	}
	if len(queries) != len(result.LogProbs) {
		return nil, nil, fmt.Errorf("result covers %d queries, got %d", len(result.LogProbs), len(queries))
	}
	if len(prototypes) == 0 {
		return nil, nil, fmt.Errorf("no prototypes")
	}

	dim := len(prototypes[0])
	n := float64(len(queries))

	queryGrads = make([][]float64, len(queries))
	protoGrads = make([][]float64, len(prototypes))
	for class := range protoGrads {
		protoGrads[class] = make([]float64, dim)
	}

	for i, query := range queries {
		queryGrad := make([]float64, dim)
		for class, prototype := range prototypes {
			prob := math.Exp(result.LogProbs[i][class])
			dLossdDistance := -prob / n
			if class == truth[i] {
				dLossdDistance += 1 / n
			}
			if dLossdDistance == 0 {
				continue
			}

			for d, g := range c.metric.Grad(query, prototype) {
				queryGrad[d] += dLossdDistance * g
			}
			for d, g := range c.metric.Grad(prototype, query) {
				protoGrads[class][d] += dLossdDistance * g
			}
		}
		queryGrads[i] = queryGrad
	}
	return queryGrads, protoGrads, nil
}
