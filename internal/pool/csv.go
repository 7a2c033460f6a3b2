package pool

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"protonet/internal/model"
)

// LoadCSV reads a pool from a CSV file where every row is
// label,feature1,feature2,... All rows must carry the same feature count.
// A first row whose features do not parse as numbers is treated as a header
// and skipped.
func LoadCSV(path string) (*Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pool csv %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	examples := make([]model.Example, 0, 256)
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read pool csv row %d: %w", row+1, err)
		}
		row++

		if len(record) < 2 {
			return nil, fmt.Errorf("pool csv row %d needs a label and at least one feature", row)
		}
		input, err := parseFeatures(record[1:])
		if err != nil {
			if row == 1 && len(examples) == 0 {
				continue
			}
			return nil, fmt.Errorf("parse pool csv row %d: %w", row, err)
		}
		if len(examples) > 0 && len(input) != len(examples[0].Input) {
			return nil, fmt.Errorf("pool csv row %d has %d features, want %d", row, len(input), len(examples[0].Input))
		}
		examples = append(examples, model.Example{
			Input: input,
			Label: strings.TrimSpace(record[0]),
		})
	}

	if len(examples) == 0 {
		return nil, fmt.Errorf("pool csv %s contains no examples", path)
	}
	return New(examples)
}

func parseFeatures(fields []string) ([]float64, error) {
	input := make([]float64, len(fields))
	for i, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i+1, err)
		}
		input[i] = value
	}
	return input, nil
}
