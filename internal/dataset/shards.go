package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

const (
	DefaultMaxShardSize int64 = 500 * 1000 * 1000
	DataDirectory             = "data"
	rowsPerRowGroup           = 100
)

type imageCell struct {
	Bytes []byte `parquet:"bytes"`
	Path  string `parquet:"path"`
}

type shardRow struct {
	ID            string      `parquet:"id"`
	ControlImages []imageCell `parquet:"control_images,list"`
	ControlMask   imageCell   `parquet:"control_mask"`
	TargetImage   imageCell   `parquet:"target_image"`
	Prompt        string      `parquet:"prompt"`
}

type ShardFile struct {
	Split     string
	LocalPath string
	RepoPath  string
	Rows      int
	Size      int64
}

// SplitStats describes what WriteShards produced for one split.
type SplitStats struct {
	Name     string
	Examples int
	NumBytes int64
	Shards   []ShardFile
}

func (stats SplitStats) DownloadSize() int64 {
	total := int64(0)
	for _, shard := range stats.Shards {
		total += shard.Size
	}
	return total
}

// WriteShards writes table as parquet files under dir/data, embedding the
// bytes of every referenced image. A shard is closed once the embedded bytes
// would exceed maxShardSize; every shard holds at least one row.
func WriteShards(table *Table, split string, dir string, maxShardSize int64) (SplitStats, error) {
	if maxShardSize <= 0 {
		maxShardSize = DefaultMaxShardSize
	}
	examples, examplesError := table.Examples()
	if examplesError != nil {
		return SplitStats{}, examplesError
	}

	sizes := make([]int64, 0, len(examples))
	for _, example := range examples {
		size, sizeError := exampleSize(example)
		if sizeError != nil {
			return SplitStats{}, fmt.Errorf("split %s row %s: %w", split, example.ID, sizeError)
		}
		sizes = append(sizes, size)
	}
	bounds := planShards(sizes, maxShardSize)

	metadata, metadataError := hubMetadata(table.Features)
	if metadataError != nil {
		return SplitStats{}, metadataError
	}

	outputDirectory := filepath.Join(dir, DataDirectory)
	if makeError := os.MkdirAll(outputDirectory, 0o755); makeError != nil {
		return SplitStats{}, fmt.Errorf("mkdir: %w", makeError)
	}

	stats := SplitStats{Name: split, Examples: len(examples)}
	cache := map[string][]byte{}
	for shardIndex, bound := range bounds {
		name := fmt.Sprintf("%s-%05d-of-%05d.parquet", split, shardIndex, len(bounds))
		localPath := filepath.Join(outputDirectory, name)
		numBytes, writeError := writeShard(localPath, examples[bound[0]:bound[1]], metadata, cache)
		if writeError != nil {
			return SplitStats{}, fmt.Errorf("write shard %s: %w", name, writeError)
		}
		info, statError := os.Stat(localPath)
		if statError != nil {
			return SplitStats{}, fmt.Errorf("stat shard %s: %w", name, statError)
		}
		stats.NumBytes += numBytes
		stats.Shards = append(stats.Shards, ShardFile{
			Split:     split,
			LocalPath: localPath,
			RepoPath:  DataDirectory + "/" + name,
			Rows:      bound[1] - bound[0],
			Size:      info.Size(),
		})
	}
	return stats, nil
}

// planShards returns [start, end) row ranges; an empty input still yields one
// empty shard.
func planShards(sizes []int64, maxShardSize int64) [][2]int {
	if len(sizes) == 0 {
		return [][2]int{{0, 0}}
	}
	bounds := make([][2]int, 0, 1)
	start := 0
	current := int64(0)
	for index, size := range sizes {
		if index > start && current+size > maxShardSize {
			bounds = append(bounds, [2]int{start, index})
			start = index
			current = 0
		}
		current += size
	}
	return append(bounds, [2]int{start, len(sizes)})
}

func exampleSize(example Example) (int64, error) {
	total := int64(len(example.ID) + len(example.Prompt))
	references := append(append([]ImageRef(nil), example.ControlImages...), example.ControlMask, example.TargetImage)
	for _, reference := range references {
		info, statError := os.Stat(reference.Path)
		if statError != nil {
			return 0, fmt.Errorf("image %s: %w", reference.Path, statError)
		}
		total += info.Size()
	}
	return total, nil
}

func writeShard(path string, examples []Example, metadata string, cache map[string][]byte) (int64, error) {
	file, createError := os.Create(path)
	if createError != nil {
		return 0, fmt.Errorf("create file: %w", createError)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[shardRow](file,
		parquet.Compression(&parquet.Snappy),
		parquet.MaxRowsPerRowGroup(rowsPerRowGroup),
		parquet.KeyValueMetadata("huggingface", metadata),
	)

	numBytes := int64(0)
	for _, example := range examples {
		row, rowError := buildRow(example, cache)
		if rowError != nil {
			return 0, fmt.Errorf("row %s: %w", example.ID, rowError)
		}
		if _, writeError := writer.Write([]shardRow{row}); writeError != nil {
			return 0, fmt.Errorf("write row %s: %w", example.ID, writeError)
		}
		numBytes += rowBytes(row)
	}
	if closeError := writer.Close(); closeError != nil {
		return 0, fmt.Errorf("close writer: %w", closeError)
	}
	if closeError := file.Close(); closeError != nil {
		return 0, fmt.Errorf("close file: %w", closeError)
	}
	return numBytes, nil
}

func buildRow(example Example, cache map[string][]byte) (shardRow, error) {
	controlImages := make([]imageCell, 0, len(example.ControlImages))
	for _, reference := range example.ControlImages {
		cell, cellError := embedImage(reference, nil)
		if cellError != nil {
			return shardRow{}, cellError
		}
		controlImages = append(controlImages, cell)
	}
	// Every row points at the same mask file.
	controlMask, maskError := embedImage(example.ControlMask, cache)
	if maskError != nil {
		return shardRow{}, maskError
	}
	targetImage, targetError := embedImage(example.TargetImage, nil)
	if targetError != nil {
		return shardRow{}, targetError
	}
	return shardRow{
		ID:            example.ID,
		ControlImages: controlImages,
		ControlMask:   controlMask,
		TargetImage:   targetImage,
		Prompt:        example.Prompt,
	}, nil
}

func embedImage(reference ImageRef, cache map[string][]byte) (imageCell, error) {
	if cached, ok := cache[reference.Path]; ok {
		return imageCell{Bytes: cached, Path: filepath.Base(reference.Path)}, nil
	}
	content, readError := os.ReadFile(reference.Path)
	if readError != nil {
		return imageCell{}, fmt.Errorf("read image: %w", readError)
	}
	if cache != nil {
		cache[reference.Path] = content
	}
	return imageCell{Bytes: content, Path: filepath.Base(reference.Path)}, nil
}

func rowBytes(row shardRow) int64 {
	total := int64(len(row.ID) + len(row.Prompt))
	for _, cell := range row.ControlImages {
		total += int64(len(cell.Bytes) + len(cell.Path))
	}
	total += int64(len(row.ControlMask.Bytes) + len(row.ControlMask.Path))
	total += int64(len(row.TargetImage.Bytes) + len(row.TargetImage.Path))
	return total
}

func hubMetadata(features Features) (string, error) {
	featuresJSON, featuresError := features.HubJSON()
	if featuresError != nil {
		return "", featuresError
	}
	return `{"info":{"features":` + string(featuresJSON) + `}}`, nil
}
