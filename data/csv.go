package data

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/AlexisAoun/brique/ml"
)

// LoadCSV reads a numeric CSV file where every row holds the features
// followed by the class label in the last column. A first row that does not
// parse as numbers is treated as a header and skipped.
func LoadCSV(path string) (X, Y *ml.Matrix, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	X, Y, err = ReadCSV(file)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return X, Y, nil
}

// ReadCSV is LoadCSV over an io.Reader.
func ReadCSV(r io.Reader) (X, Y *ml.Matrix, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) > 0 {
		if _, err := parseFloats(records[0]); err != nil {
			records = records[1:]
		}
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("CSV file has no samples")
	}

	width := len(records[0])
	if width < 2 {
		return nil, nil, fmt.Errorf("need at least one feature and a label, got %d columns", width)
	}

	X = ml.NewMatrix(len(records), width-1)
	Y = ml.NewMatrix(1, len(records))
	for i, record := range records {
		if len(record) != width {
			return nil, nil, fmt.Errorf("row %d: got %d columns, want %d", i+1, len(record), width)
		}
		values, err := parseFloats(record)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		X.SetRow(i, values[:width-1])
		Y.Set(0, i, values[width-1])
	}
	return X, Y, nil
}

// ReadMatrixBlocks reads matrices written as comma separated rows. Blank
// lines separate consecutive matrices; every row of a block must have the
// same number of values.
func ReadMatrixBlocks(r io.Reader) ([]*ml.Matrix, error) {
	var (
		blocks []*ml.Matrix
		rows   [][]float64
		lineNo int
	)
	flush := func() {
		if len(rows) > 0 {
			blocks = append(blocks, ml.NewMatrixFromRows(rows))
			rows = nil
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		values, err := parseFloats(strings.Split(line, ","))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(rows) > 0 && len(values) != len(rows[0]) {
			return nil, fmt.Errorf("line %d: got %d values, block rows have %d", lineNo, len(values), len(rows[0]))
		}
		rows = append(rows, values)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read matrix blocks: %w", err)
	}
	flush()
	return blocks, nil
}

// LoadMatrixBlocks reads a ReadMatrixBlocks file from disk.
func LoadMatrixBlocks(path string) ([]*ml.Matrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	blocks, err := ReadMatrixBlocks(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return blocks, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}
