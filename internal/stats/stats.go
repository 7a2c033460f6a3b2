package stats

import (
	"fmt"
	"math"
)

// Mean returns the arithmetic mean of values.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("values must not be empty")
	}
	sum := 0.0
	for _, value := range values {
		sum += value
	}
	return sum / float64(len(values)), nil
}

// Std returns population standard deviation.
func Std(values []float64) (float64, error) {
	mean, err := Mean(values)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, value := range values {
		diff := mean - value
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values))), nil
}

// ConfidenceInterval95 returns the 95% half-width around the mean under the
// normal approximation, 1.96 * std / sqrt(n). With fewer than two values
// there is no spread to estimate and the half-width is 0.
func ConfidenceInterval95(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("values must not be empty")
	}
	if len(values) < 2 {
		return 0, nil
	}
	std, err := Std(values)
	if err != nil {
		return 0, err
	}
	return 1.96 * std / math.Sqrt(float64(len(values))), nil
}
