package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BegaDeveloper/restoredit/internal/dataset"
)

func main() {
	dataFile := flag.String("file", "./train.jsonl", "path to JSONL records")
	root := flag.String("root", ".", "directory relative image paths are resolved against")
	checkFiles := flag.Bool("check-files", true, "require both images to exist")
	flag.Parse()

	validationErrors := validateRecordsFile(*dataFile, *root, *checkFiles)
	if len(validationErrors) > 0 {
		for _, validationError := range validationErrors {
			fmt.Fprintln(os.Stderr, validationError)
		}
		os.Exit(1)
	}

	fmt.Printf("record validation passed: %s\n", *dataFile)
}

func validateRecordsFile(path string, root string, checkFiles bool) []string {
	file, openError := os.Open(path)
	if openError != nil {
		return []string{fmt.Sprintf("open file error: %v", openError)}
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	lineNumber := 0
	validationErrors := make([]string, 0)
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		validationErrors = append(validationErrors, validateLine(lineNumber, line, root, checkFiles)...)
	}
	if scanError := scanner.Err(); scanError != nil {
		validationErrors = append(validationErrors, fmt.Sprintf("scan file error: %v", scanError))
	}
	return validationErrors
}

func validateLine(lineNumber int, line string, root string, checkFiles bool) []string {
	decoder := json.NewDecoder(strings.NewReader(line))
	decoder.UseNumber()
	var raw any
	if parseError := decoder.Decode(&raw); parseError != nil {
		return []string{fmt.Sprintf("line %d: invalid JSON record: %v", lineNumber, parseError)}
	}

	resolved, checkError := dataset.Check(lineNumber, raw, root, dataset.DefaultPrompt)
	if checkError != nil {
		return []string{fmt.Sprintf("line %d: %v", lineNumber, checkError)}
	}
	if !checkFiles {
		return nil
	}

	errors := make([]string, 0)
	for _, image := range []struct {
		role string
		path string
	}{
		{role: "source", path: resolved.Source},
		{role: "target", path: resolved.Target},
	} {
		info, statError := os.Stat(image.path)
		if statError != nil {
			errors = append(errors, fmt.Sprintf("line %d: %s image %s does not exist", lineNumber, image.role, image.path))
			continue
		}
		if info.IsDir() {
			errors = append(errors, fmt.Sprintf("line %d: %s image %s is a directory", lineNumber, image.role, image.path))
		}
	}
	return errors
}
