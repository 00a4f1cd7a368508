package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const DefaultPrompt = "restore this image"

var (
	sourceKeys = []string{"source", "src", "input", "before"}
	targetKeys = []string{"target", "tgt", "output", "after"}
	promptKeys = []string{"instruction", "prompt"}
)

// Resolved is a record whose image references were found and resolved.
type Resolved struct {
	ID     string
	Source string
	Target string
	Prompt string
}

var (
	ErrNotObject     = errors.New("record is not a JSON object")
	ErrMissingSource = errors.New("no source field (source, src, input, before)")
	ErrMissingTarget = errors.New("no target field (target, tgt, output, after)")
)

// Normalize maps one raw record onto the fixed schema. index is the record's
// position in the loader output and becomes its id. The second return is
// false when the record must be dropped.
func Normalize(index int, raw any, root string, defaultPrompt string) (Resolved, bool) {
	resolved, err := Check(index, raw, root, defaultPrompt)
	return resolved, err == nil
}

// Check is Normalize with the reason a record is dropped.
func Check(index int, raw any, root string, defaultPrompt string) (Resolved, error) {
	record, ok := raw.(map[string]any)
	if !ok {
		return Resolved{}, ErrNotObject
	}

	sourceKey, ok := pickKey(record, sourceKeys)
	if !ok {
		return Resolved{}, ErrMissingSource
	}
	targetKey, ok := pickKey(record, targetKeys)
	if !ok {
		return Resolved{}, ErrMissingTarget
	}

	sourcePath, sourceError := ResolvePath(root, record[sourceKey])
	if sourceError != nil {
		return Resolved{}, fmt.Errorf("%s: %w", sourceKey, sourceError)
	}
	targetPath, targetError := ResolvePath(root, record[targetKey])
	if targetError != nil {
		return Resolved{}, fmt.Errorf("%s: %w", targetKey, targetError)
	}

	prompt := defaultPrompt
	if promptKey, found := pickKey(record, promptKeys); found {
		prompt = scalarText(record[promptKey])
	}

	return Resolved{
		ID:     strconv.Itoa(index),
		Source: sourcePath,
		Target: targetPath,
		Prompt: prompt,
	}, nil
}

func pickKey(record map[string]any, candidates []string) (string, bool) {
	for _, key := range candidates {
		if _, exists := record[key]; exists {
			return key, true
		}
	}
	return "", false
}

// ResolvePath returns absolute values unchanged and joins relative values to
// root before canonicalizing them.
func ResolvePath(root string, value any) (string, error) {
	text, textError := pathText(value)
	if textError != nil {
		return "", textError
	}
	text = strings.TrimSpace(text)
	if strings.ContainsRune(text, 0) {
		return "", fmt.Errorf("path contains NUL byte: %q", text)
	}
	if filepath.IsAbs(text) {
		return text, nil
	}
	return canonicalize(filepath.Join(root, text))
}

func pathText(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case json.Number:
		return typed.String(), nil
	default:
		return "", fmt.Errorf("unsupported path value of type %T", value)
	}
}

// canonicalize resolves symlinks along the longest existing prefix of path and
// keeps the remaining components as they are.
func canonicalize(path string) (string, error) {
	absolute, absError := filepath.Abs(path)
	if absError != nil {
		return "", fmt.Errorf("absolute path: %w", absError)
	}

	existing := absolute
	remainder := make([]string, 0, 4)
	for {
		resolved, evalError := filepath.EvalSymlinks(existing)
		if evalError == nil {
			parts := append([]string{resolved}, remainder...)
			return filepath.Join(parts...), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return absolute, nil
		}
		remainder = append([]string{filepath.Base(existing)}, remainder...)
		existing = parent
	}
}

func scalarText(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	case bool:
		return strconv.FormatBool(typed)
	default:
		encoded, marshalError := json.Marshal(typed)
		if marshalError != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	}
}
