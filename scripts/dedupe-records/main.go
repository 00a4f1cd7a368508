package main

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BegaDeveloper/restoredit/internal/dataset"
)

func main() {
	inputFile := flag.String("file", "./train.jsonl", "path to JSONL records")
	outputFile := flag.String("out", "./train.deduped.jsonl", "path to write deduped JSONL records")
	root := flag.String("root", ".", "directory relative image paths are resolved against")
	flag.Parse()

	lines, duplicates, err := dedupe(*inputFile, *root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if writeError := writeLines(*outputFile, lines); writeError != nil {
		fmt.Fprintln(os.Stderr, writeError)
		os.Exit(1)
	}
	fmt.Printf("dedupe complete: in=%s out=%s kept=%d duplicates_removed=%d\n", *inputFile, *outputFile, len(lines), duplicates)
}

// dedupe keeps the first occurrence of every record. Lines are written back
// unchanged, so malformed lines survive for the loader to count.
func dedupe(path string, root string) ([]string, int, error) {
	file, openError := os.Open(path)
	if openError != nil {
		return nil, 0, fmt.Errorf("open file: %w", openError)
	}
	defer file.Close()

	lines := make([]string, 0, 1024)
	seen := map[string]bool{}
	duplicates := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key := recordIdentity(line, root)
		if seen[key] {
			duplicates++
			continue
		}
		seen[key] = true
		lines = append(lines, line)
	}
	if scanError := scanner.Err(); scanError != nil {
		return nil, 0, fmt.Errorf("scan file: %w", scanError)
	}
	return lines, duplicates, nil
}

// recordIdentity treats records as equal when they resolve to the same image
// pair and prompt, whichever key aliases they use.
func recordIdentity(line string, root string) string {
	payload := compactJSON(line)
	decoder := json.NewDecoder(strings.NewReader(line))
	decoder.UseNumber()
	var raw any
	if decoder.Decode(&raw) == nil {
		if resolved, err := dataset.Check(0, raw, root, dataset.DefaultPrompt); err == nil {
			payload = resolved.Source + "\n" + resolved.Target + "\n" + strings.TrimSpace(resolved.Prompt)
		}
	}
	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func compactJSON(raw string) string {
	buffer := bytes.Buffer{}
	if err := json.Compact(&buffer, []byte(strings.TrimSpace(raw))); err != nil {
		return strings.TrimSpace(raw)
	}
	return buffer.String()
}

func writeLines(path string, lines []string) error {
	file, createError := os.Create(path)
	if createError != nil {
		return fmt.Errorf("create output file: %w", createError)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, line := range lines {
		if _, writeError := writer.WriteString(line + "\n"); writeError != nil {
			return fmt.Errorf("write record: %w", writeError)
		}
	}
	if flushError := writer.Flush(); flushError != nil {
		return fmt.Errorf("flush output: %w", flushError)
	}
	return nil
}
