package mask

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsure_CreatesGrayMask(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "dummy_mask.png")
	if ensureError := Ensure(path); ensureError != nil {
		t.Fatalf("ensure failed: %v", ensureError)
	}

	file, openError := os.Open(path)
	if openError != nil {
		t.Fatalf("open mask failed: %v", openError)
	}
	defer file.Close()

	decoded, decodeError := png.Decode(file)
	if decodeError != nil {
		t.Fatalf("decode mask failed: %v", decodeError)
	}
	gray, ok := decoded.(*image.Gray)
	if !ok {
		t.Fatalf("expected grayscale image, got %T", decoded)
	}
	if gray.Bounds().Dx() != Size || gray.Bounds().Dy() != Size {
		t.Fatalf("unexpected mask size: %v", gray.Bounds())
	}
	for _, pixel := range gray.Pix {
		if pixel != Value {
			t.Fatalf("expected every pixel to be %d, found %d", Value, pixel)
		}
	}
}

func TestEnsure_IsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dummy_mask.png")
	if ensureError := Ensure(path); ensureError != nil {
		t.Fatalf("first ensure failed: %v", ensureError)
	}
	first, readError := os.ReadFile(path)
	if readError != nil {
		t.Fatalf("read mask failed: %v", readError)
	}
	if ensureError := Ensure(path); ensureError != nil {
		t.Fatalf("second ensure failed: %v", ensureError)
	}
	second, readError := os.ReadFile(path)
	if readError != nil {
		t.Fatalf("read mask failed: %v", readError)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected second ensure to leave the mask untouched")
	}
}

func TestEnsure_LeavesExistingFileAlone(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dummy_mask.png")
	if writeError := os.WriteFile(path, []byte("not a png"), 0o644); writeError != nil {
		t.Fatalf("seed file failed: %v", writeError)
	}
	if ensureError := Ensure(path); ensureError != nil {
		t.Fatalf("ensure failed: %v", ensureError)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "not a png" {
		t.Fatalf("existing file was modified: %q", content)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestBlank_FillsValue(t *testing.T) {
	t.Parallel()

	canvas := Blank(4, 200)
	for _, pixel := range canvas.Pix {
		if pixel != 200 {
			t.Fatalf("expected fill value 200, got %d", pixel)
		}
	}
}
