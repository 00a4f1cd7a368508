package dataset

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestBuildSplit_EndToEndFromFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "train.jsonl")
	content := strings.Join([]string{
		`{"source":"a.png","target":"b.png","instruction":"remove scratches"}`,
		`{"source":"c.png","target": `,
		`{"source":"e.png"}`,
	}, "\n")
	if writeError := os.WriteFile(path, []byte(content), 0o644); writeError != nil {
		t.Fatalf("write fixture failed: %v", writeError)
	}

	loaded, loadError := LoadJSONL(path)
	if loadError != nil {
		t.Fatalf("load failed: %v", loadError)
	}
	maskPath := filepath.Join(root, "dummy_mask.png")
	split := BuildSplit(loaded.Rows, root, maskPath)

	if split.Len() != 1 {
		t.Fatalf("expected exactly one record, got %d", split.Len())
	}
	if split.IDs[0] != "0" {
		t.Fatalf("expected id 0, got %q", split.IDs[0])
	}
	if split.Prompts[0] != "remove scratches" {
		t.Fatalf("unexpected prompt %q", split.Prompts[0])
	}
	if split.ControlMask[0] != maskPath {
		t.Fatalf("expected mask reference %q, got %q", maskPath, split.ControlMask[0])
	}
	if len(split.ControlImages[0]) != 1 || filepath.Base(split.ControlImages[0][0]) != "a.png" {
		t.Fatalf("unexpected control images %v", split.ControlImages[0])
	}
	if split.Skipped != 1 {
		t.Fatalf("expected one skipped record, got %d", split.Skipped)
	}
}

func TestBuildSplit_IDsKeepOriginalOffsets(t *testing.T) {
	t.Parallel()

	rows := []any{
		map[string]any{"source": "0.png", "target": "0t.png"},
		map[string]any{"source": "1.png"},
		"garbage",
		map[string]any{"before": "3.png", "after": "3t.png"},
		map[string]any{"tgt": "4t.png"},
		map[string]any{"input": "5.png", "output": "5t.png", "prompt": "fix"},
	}
	split := BuildSplit(rows, t.TempDir(), "/mask.png")

	if want := []string{"0", "3", "5"}; !reflect.DeepEqual(split.IDs, want) {
		t.Fatalf("expected ids %v, got %v", want, split.IDs)
	}
	if split.Skipped != 3 {
		t.Fatalf("expected 3 skipped, got %d", split.Skipped)
	}
	for name, column := range split.Columns() {
		if reflect.ValueOf(column).Len() != 3 {
			t.Fatalf("column %s has %d entries, expected 3", name, reflect.ValueOf(column).Len())
		}
	}
	if want := []string{DefaultPrompt, DefaultPrompt, "fix"}; !reflect.DeepEqual(split.Prompts, want) {
		t.Fatalf("expected prompts %v, got %v", want, split.Prompts)
	}
}

func TestBuildSplit_DroppingShrinksEveryColumnByOne(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	complete := []any{
		map[string]any{"source": "a.png", "target": "b.png"},
		map[string]any{"source": "c.png", "target": "d.png"},
	}
	withBroken := append(append([]any(nil), complete...), map[string]any{"source": "e.png"})

	full := BuildSplit(complete, root, "/mask.png")
	partial := BuildSplit(withBroken, root, "/mask.png")
	if !reflect.DeepEqual(full.Columns(), partial.Columns()) {
		t.Fatalf("expected the record without a target to be dropped from every column")
	}
}

func TestBuildSplit_Deterministic(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	rows := []any{
		map[string]any{"source": "a.png", "target": "b.png"},
		map[string]any{"src": "/abs/c.png", "tgt": "d.png", "instruction": "sharpen"},
	}
	first := BuildSplit(rows, root, "/mask.png")
	second := BuildSplit(rows, root, "/mask.png")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical splits for identical input")
	}
	if first.ControlImages[1][0] != "/abs/c.png" {
		t.Fatalf("expected absolute source to be kept, got %q", first.ControlImages[1][0])
	}
}

func TestBuildSplit_Empty(t *testing.T) {
	t.Parallel()

	split := BuildSplit(nil, t.TempDir(), "/mask.png")
	if split.Len() != 0 || split.Skipped != 0 {
		t.Fatalf("expected empty split, got %+v", split)
	}
}
