package dataset

import (
	"bytes"
	"fmt"
	"path"

	"gopkg.in/yaml.v3"
)

const CardFileName = "README.md"

type cardFeature struct {
	Name     string `yaml:"name"`
	DType    string `yaml:"dtype,omitempty"`
	Sequence string `yaml:"sequence,omitempty"`
}

type cardSplit struct {
	Name        string `yaml:"name"`
	NumBytes    int64  `yaml:"num_bytes"`
	NumExamples int    `yaml:"num_examples"`
}

type cardInfo struct {
	Features     []cardFeature `yaml:"features"`
	Splits       []cardSplit   `yaml:"splits"`
	DownloadSize int64         `yaml:"download_size"`
	DatasetSize  int64         `yaml:"dataset_size"`
}

type cardDataFile struct {
	Split string `yaml:"split"`
	Path  string `yaml:"path"`
}

type cardConfig struct {
	ConfigName string         `yaml:"config_name"`
	DataFiles  []cardDataFile `yaml:"data_files"`
}

type cardHeader struct {
	DatasetInfo cardInfo     `yaml:"dataset_info"`
	Configs     []cardConfig `yaml:"configs"`
}

// BuildCard renders the README.md the hub reads split and schema
// information from.
func BuildCard(repoID string, features Features, splits []SplitStats) ([]byte, error) {
	header := cardHeader{
		DatasetInfo: cardInfo{
			Features: make([]cardFeature, 0, len(features)),
			Splits:   make([]cardSplit, 0, len(splits)),
		},
		Configs: []cardConfig{{ConfigName: "default"}},
	}
	for _, feature := range features {
		entry, entryError := cardFeatureFor(feature)
		if entryError != nil {
			return nil, entryError
		}
		header.DatasetInfo.Features = append(header.DatasetInfo.Features, entry)
	}
	for _, split := range splits {
		header.DatasetInfo.Splits = append(header.DatasetInfo.Splits, cardSplit{
			Name:        split.Name,
			NumBytes:    split.NumBytes,
			NumExamples: split.Examples,
		})
		header.DatasetInfo.DownloadSize += split.DownloadSize()
		header.DatasetInfo.DatasetSize += split.NumBytes
		header.Configs[0].DataFiles = append(header.Configs[0].DataFiles, cardDataFile{
			Split: split.Name,
			Path:  path.Join(DataDirectory, split.Name+"-*"),
		})
	}

	var buffer bytes.Buffer
	buffer.WriteString("---\n")
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(2)
	if encodeError := encoder.Encode(header); encodeError != nil {
		return nil, fmt.Errorf("encode card header: %w", encodeError)
	}
	if closeError := encoder.Close(); closeError != nil {
		return nil, fmt.Errorf("encode card header: %w", closeError)
	}
	buffer.WriteString("---\n\n")
	fmt.Fprintf(&buffer, "# %s\n\n", path.Base(repoID))
	buffer.WriteString("Before/after image restoration pairs. Each row holds the degraded image in `control_images`, ")
	buffer.WriteString("a blank placeholder in `control_mask`, the restored image in `target_image` and the edit instruction in `prompt`.\n")
	return buffer.Bytes(), nil
}

func cardFeatureFor(feature Feature) (cardFeature, error) {
	switch feature.Type.Kind {
	case KindValue:
		return cardFeature{Name: feature.Name, DType: feature.Type.DType}, nil
	case KindImage:
		return cardFeature{Name: feature.Name, DType: "image"}, nil
	case KindSequence:
		if feature.Type.Inner == nil || feature.Type.Inner.Kind != KindImage {
			return cardFeature{}, fmt.Errorf("feature %s: unsupported sequence element", feature.Name)
		}
		return cardFeature{Name: feature.Name, Sequence: "image"}, nil
	default:
		return cardFeature{}, fmt.Errorf("feature %s: unknown kind", feature.Name)
	}
}
