package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineBytes = 64 * 1024 * 1024

type LoadResult struct {
	Rows      []any
	Malformed int
}

// LoadJSONL reads one JSON value per line. Lines that do not parse are
// skipped and only counted.
func LoadJSONL(path string) (LoadResult, error) {
	file, openError := os.Open(path)
	if openError != nil {
		return LoadResult{}, fmt.Errorf("open file: %w", openError)
	}
	defer file.Close()

	result, readError := ReadJSONL(file)
	if readError != nil {
		return LoadResult{}, fmt.Errorf("read %s: %w", path, readError)
	}
	return result, nil
}

func ReadJSONL(reader io.Reader) (LoadResult, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxLineBytes)

	result := LoadResult{Rows: make([]any, 0, 1024)}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		value, ok := parseLine(line)
		if !ok {
			result.Malformed++
			continue
		}
		result.Rows = append(result.Rows, value)
	}
	if scanError := scanner.Err(); scanError != nil {
		return LoadResult{}, fmt.Errorf("scan file: %w", scanError)
	}
	return result, nil
}

func parseLine(line string) (any, bool) {
	decoder := json.NewDecoder(strings.NewReader(line))
	decoder.UseNumber()

	var value any
	if decodeError := decoder.Decode(&value); decodeError != nil {
		return nil, false
	}
	// A line holds exactly one value.
	var trailing json.RawMessage
	if decoder.Decode(&trailing) != io.EOF {
		return nil, false
	}
	return value, true
}
