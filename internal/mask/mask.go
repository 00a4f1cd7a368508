package mask

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

const (
	Size  = 512
	Value = 0
)

// Ensure writes the placeholder mask to path unless a file is already there.
func Ensure(path string) error {
	if _, statError := os.Stat(path); statError == nil {
		return nil
	} else if !os.IsNotExist(statError) {
		return fmt.Errorf("stat mask: %w", statError)
	}

	directory := filepath.Dir(path)
	if makeError := os.MkdirAll(directory, 0o755); makeError != nil {
		return fmt.Errorf("create mask directory: %w", makeError)
	}

	temporary, createError := os.CreateTemp(directory, ".mask-*.png")
	if createError != nil {
		return fmt.Errorf("create mask file: %w", createError)
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	if encodeError := png.Encode(temporary, Blank(Size, Value)); encodeError != nil {
		temporary.Close()
		return fmt.Errorf("encode mask: %w", encodeError)
	}
	if closeError := temporary.Close(); closeError != nil {
		return fmt.Errorf("close mask file: %w", closeError)
	}
	if chmodError := os.Chmod(temporaryPath, 0o644); chmodError != nil {
		return fmt.Errorf("chmod mask file: %w", chmodError)
	}
	if renameError := os.Rename(temporaryPath, path); renameError != nil {
		return fmt.Errorf("save mask: %w", renameError)
	}
	return nil
}

// Blank returns a size x size single-channel image filled with value.
func Blank(size int, value uint8) *image.Gray {
	canvas := image.NewGray(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Gray{Y: value}), image.Point{}, draw.Src)
	return canvas
}
