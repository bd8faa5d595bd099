package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ErrEmptyDataset is returned when neither original nor feedback data exists.
var ErrEmptyDataset = errors.New("empty training dataset")

// Example provenance markers.
const (
	SourceOriginal = "original"
	SourceFeedback = "feedback"
)

// Example is one labeled training sample.
type Example struct {
	Text   string
	Label  int
	Source string
}

// Merge concatenates the original dataset and the feedback examples,
// original first, tagging provenance. Either side may be empty, but not
// both.
func Merge(original, feedback []Example) ([]Example, error) {
	if len(original) == 0 && len(feedback) == 0 {
		return nil, ErrEmptyDataset
	}
	merged := make([]Example, 0, len(original)+len(feedback))
	for _, e := range original {
		e.Source = SourceOriginal
		merged = append(merged, e)
	}
	for _, e := range feedback {
		e.Source = SourceFeedback
		merged = append(merged, e)
	}
	return merged, nil
}

// LoadOriginalCSV reads the base training set: a CSV with a header and
// text,label columns. A missing file is not an error — retraining can
// run on feedback alone — so (nil, nil) is returned.
func LoadOriginalCSV(path string) ([]Example, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening original dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	textCol, labelCol := -1, -1
	for i, name := range header {
		switch name {
		case "text":
			textCol = i
		case "label":
			labelCol = i
		}
	}
	if textCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("original dataset %s: need text and label columns, got %v", path, header)
	}

	var examples []Example
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}
		label, err := strconv.Atoi(record[labelCol])
		if err != nil || (label != 0 && label != 1) {
			return nil, fmt.Errorf("line %d: invalid label %q", line, record[labelCol])
		}
		examples = append(examples, Example{Text: record[textCol], Label: label, Source: SourceOriginal})
	}
	return examples, nil
}
