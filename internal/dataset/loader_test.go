package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadJSONL_SkipsMalformedAndEmptyLines(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"source":"a.png","target":"b.png"}`,
		``,
		`   `,
		`{"source": broken`,
		`not json at all`,
		`{"a":1} {"b":2}`,
		`  {"src":"c.png","tgt":"d.png"}  `,
		`[1,2,3]`,
	}, "\n")

	result, readError := ReadJSONL(strings.NewReader(input))
	if readError != nil {
		t.Fatalf("read failed: %v", readError)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("expected 3 parsed rows, got %d: %#v", len(result.Rows), result.Rows)
	}
	if result.Malformed != 3 {
		t.Fatalf("expected 3 malformed lines, got %d", result.Malformed)
	}
	first, ok := result.Rows[0].(map[string]any)
	if !ok || first["source"] != "a.png" {
		t.Fatalf("unexpected first row: %#v", result.Rows[0])
	}
	if _, ok := result.Rows[2].([]any); !ok {
		t.Fatalf("expected array row to be kept as parsed, got %#v", result.Rows[2])
	}
}

func TestReadJSONL_NeverExceedsNonEmptyLines(t *testing.T) {
	t.Parallel()

	testCases := []string{
		"",
		"\n\n\n",
		"{}\n{}\n",
		"{\n}\n",
		"1\n\"x\"\nnull\n{bad}\n",
	}
	for _, input := range testCases {
		nonEmpty := 0
		for _, line := range strings.Split(input, "\n") {
			if strings.TrimSpace(line) != "" {
				nonEmpty++
			}
		}
		result, readError := ReadJSONL(strings.NewReader(input))
		if readError != nil {
			t.Fatalf("read failed for %q: %v", input, readError)
		}
		if len(result.Rows) > nonEmpty {
			t.Fatalf("input %q: %d rows from %d non-empty lines", input, len(result.Rows), nonEmpty)
		}
		if len(result.Rows)+result.Malformed != nonEmpty {
			t.Fatalf("input %q: rows and malformed lines should cover every non-empty line", input)
		}
	}
}

func TestReadJSONL_KeepsNumbersAsText(t *testing.T) {
	t.Parallel()

	result, readError := ReadJSONL(strings.NewReader(`{"source":12345678901234567890,"target":"b.png"}`))
	if readError != nil {
		t.Fatalf("read failed: %v", readError)
	}
	row := result.Rows[0].(map[string]any)
	number, ok := row["source"].(json.Number)
	if !ok || number.String() != "12345678901234567890" {
		t.Fatalf("expected json.Number, got %#v", row["source"])
	}
}

func TestLoadJSONL_MissingFile(t *testing.T) {
	t.Parallel()

	if _, loadError := LoadJSONL(filepath.Join(t.TempDir(), "missing.jsonl")); loadError == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadJSONL_ReadsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "train.jsonl")
	content := "{\"source\":\"a.png\",\"target\":\"b.png\"}\n{oops\n"
	if writeError := os.WriteFile(path, []byte(content), 0o644); writeError != nil {
		t.Fatalf("write fixture failed: %v", writeError)
	}
	result, loadError := LoadJSONL(path)
	if loadError != nil {
		t.Fatalf("load failed: %v", loadError)
	}
	if len(result.Rows) != 1 || result.Malformed != 1 {
		t.Fatalf("unexpected result: rows=%d malformed=%d", len(result.Rows), result.Malformed)
	}
}
