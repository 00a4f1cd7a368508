package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func writeImages(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if writeError := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); writeError != nil {
			t.Fatalf("write %s failed: %v", name, writeError)
		}
	}
}

func TestPlanShards(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		sizes []int64
		max   int64
		want  [][2]int
	}{
		{name: "empty", sizes: nil, max: 10, want: [][2]int{{0, 0}}},
		{name: "fits", sizes: []int64{3, 3, 3}, max: 10, want: [][2]int{{0, 3}}},
		{name: "splits", sizes: []int64{6, 6, 6}, max: 10, want: [][2]int{{0, 1}, {1, 2}, {2, 3}}},
		{name: "exact fit", sizes: []int64{5, 5, 5}, max: 10, want: [][2]int{{0, 2}, {2, 3}}},
		{name: "oversized row", sizes: []int64{50, 1}, max: 10, want: [][2]int{{0, 1}, {1, 2}}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			if got := planShards(testCase.sizes, testCase.max); !reflect.DeepEqual(got, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, got)
			}
		})
	}
}

func TestWriteShards_EmbedsImages(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeImages(t, root, map[string]string{
		"a.png":    "source-a",
		"b.png":    "target-b",
		"mask.png": "mask",
	})
	split := Split{
		IDs:           []string{"0"},
		ControlImages: [][]string{{filepath.Join(root, "a.png")}},
		ControlMask:   []string{filepath.Join(root, "mask.png")},
		TargetImage:   []string{filepath.Join(root, "b.png")},
		Prompts:       []string{"restore this image"},
	}
	table, castError := Cast(split, RestoreFeatures())
	if castError != nil {
		t.Fatalf("cast failed: %v", castError)
	}

	output := t.TempDir()
	stats, writeError := WriteShards(table, "train", output, 0)
	if writeError != nil {
		t.Fatalf("write shards failed: %v", writeError)
	}
	if len(stats.Shards) != 1 {
		t.Fatalf("expected one shard, got %d", len(stats.Shards))
	}
	shard := stats.Shards[0]
	if shard.RepoPath != "data/train-00000-of-00001.parquet" {
		t.Fatalf("unexpected repo path %q", shard.RepoPath)
	}
	if stats.Examples != 1 || shard.Rows != 1 || shard.Size <= 0 || stats.DownloadSize() != shard.Size {
		t.Fatalf("unexpected stats %+v", stats)
	}

	rows, readError := parquet.ReadFile[shardRow](shard.LocalPath)
	if readError != nil {
		t.Fatalf("read shard failed: %v", readError)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	row := rows[0]
	if row.ID != "0" || row.Prompt != "restore this image" {
		t.Fatalf("unexpected row %+v", row)
	}
	if len(row.ControlImages) != 1 || !bytes.Equal(row.ControlImages[0].Bytes, []byte("source-a")) || row.ControlImages[0].Path != "a.png" {
		t.Fatalf("unexpected control images %+v", row.ControlImages)
	}
	if string(row.ControlMask.Bytes) != "mask" || string(row.TargetImage.Bytes) != "target-b" {
		t.Fatalf("unexpected embedded images %+v", row)
	}

	file, openError := os.Open(shard.LocalPath)
	if openError != nil {
		t.Fatalf("open shard failed: %v", openError)
	}
	defer file.Close()
	info, _ := file.Stat()
	parquetFile, parseError := parquet.OpenFile(file, info.Size())
	if parseError != nil {
		t.Fatalf("parse shard failed: %v", parseError)
	}
	metadata, found := parquetFile.Lookup("huggingface")
	if !found || !strings.Contains(metadata, `"control_images":{"feature":{"_type":"Image"},"_type":"Sequence"}`) {
		t.Fatalf("unexpected huggingface metadata %q", metadata)
	}
}

func TestWriteShards_SplitsBySize(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeImages(t, root, map[string]string{
		"mask.png": "m",
		"a.png":    strings.Repeat("a", 40),
		"b.png":    strings.Repeat("b", 40),
	})
	split := BuildSplit([]any{
		map[string]any{"source": "a.png", "target": "b.png"},
		map[string]any{"source": "a.png", "target": "b.png"},
		map[string]any{"source": "b.png", "target": "a.png"},
	}, root, filepath.Join(root, "mask.png"))
	table, castError := Cast(split, RestoreFeatures())
	if castError != nil {
		t.Fatalf("cast failed: %v", castError)
	}

	stats, writeError := WriteShards(table, "test", t.TempDir(), 100)
	if writeError != nil {
		t.Fatalf("write shards failed: %v", writeError)
	}
	if len(stats.Shards) != 3 {
		t.Fatalf("expected 3 shards, got %d", len(stats.Shards))
	}
	if stats.Shards[2].RepoPath != "data/test-00002-of-00003.parquet" {
		t.Fatalf("unexpected last shard %q", stats.Shards[2].RepoPath)
	}
	total := 0
	for _, shard := range stats.Shards {
		total += shard.Rows
	}
	if total != 3 {
		t.Fatalf("expected 3 rows across shards, got %d", total)
	}
}

func TestWriteShards_EmptyTableWritesOneShard(t *testing.T) {
	t.Parallel()

	table, _ := Cast(Split{}, RestoreFeatures())
	stats, writeError := WriteShards(table, "test", t.TempDir(), 0)
	if writeError != nil {
		t.Fatalf("write shards failed: %v", writeError)
	}
	if len(stats.Shards) != 1 || stats.Shards[0].Rows != 0 {
		t.Fatalf("expected a single empty shard, got %+v", stats.Shards)
	}
}

func TestWriteShards_MissingImageFails(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	split := BuildSplit([]any{map[string]any{"source": "missing.png", "target": "also-missing.png"}}, root, filepath.Join(root, "mask.png"))
	table, _ := Cast(split, RestoreFeatures())
	if _, writeError := WriteShards(table, "train", t.TempDir(), 0); writeError == nil {
		t.Fatalf("expected missing image to fail the write")
	}
}
