// Package eval replays a golden question set against a built session and
// scores the answers with an LLM judge.
package eval

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// question columns, in order of preference
var questionColumns = []string{"user_input", "question"}

// referenceColumns hold an optional expected answer
var referenceColumns = []string{"reference", "ground_truth"}

// Question is one row of the golden dataset
type Question struct {
	Index     int    `json:"index"`
	Text      string `json:"question"`
	Reference string `json:"reference,omitempty"`
}

// LoadFile reads questions from a CSV file
func LoadFile(path string) ([]Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads questions from CSV with a header row.
// Rows with an empty question are skipped.
func Load(r io.Reader) ([]Question, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dataset is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}

	qCol := findColumn(header, questionColumns)
	if qCol < 0 {
		return nil, fmt.Errorf("dataset needs a %s column", strings.Join(questionColumns, " or "))
	}
	refCol := findColumn(header, referenceColumns)

	var questions []Question
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset row: %w", err)
		}
		if qCol >= len(row) || strings.TrimSpace(row[qCol]) == "" {
			continue
		}

		q := Question{Index: len(questions), Text: strings.TrimSpace(row[qCol])}
		if refCol >= 0 && refCol < len(row) {
			q.Reference = strings.TrimSpace(row[refCol])
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func findColumn(header, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), name) {
				return i
			}
		}
	}
	return -1
}
