package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// ImageRef points at an image on disk. The bytes are read when the table is
// written out, not when it is cast.
type ImageRef struct {
	Path string
}

// Example is one typed row of the restore schema.
type Example struct {
	ID            string
	ControlImages []ImageRef
	ControlMask   ImageRef
	TargetImage   ImageRef
	Prompt        string
}

// Table is a split whose columns carry declared types.
type Table struct {
	Features         Features
	rows             int
	stringColumns    map[string][]string
	imageColumns     map[string][]ImageRef
	imageListColumns map[string][][]ImageRef
}

// Cast applies features to split. Every feature needs a column of a matching
// shape and every column needs a feature.
func Cast(split Split, features Features) (*Table, error) {
	columns := split.Columns()
	if extra := unknownColumns(columns, features); len(extra) > 0 {
		return nil, fmt.Errorf("columns %s have no feature", strings.Join(extra, ", "))
	}

	table := &Table{
		Features:         features,
		rows:             -1,
		stringColumns:    map[string][]string{},
		imageColumns:     map[string][]ImageRef{},
		imageListColumns: map[string][][]ImageRef{},
	}
	for _, feature := range features {
		column, exists := columns[feature.Name]
		if !exists {
			return nil, fmt.Errorf("column %q is missing", feature.Name)
		}
		length, castError := table.castColumn(feature, column)
		if castError != nil {
			return nil, fmt.Errorf("cast column %q to %s: %w", feature.Name, feature.Type, castError)
		}
		if table.rows >= 0 && length != table.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", feature.Name, length, table.rows)
		}
		table.rows = length
	}
	if table.rows < 0 {
		table.rows = 0
	}
	return table, nil
}

func (table *Table) castColumn(feature Feature, column any) (int, error) {
	switch feature.Type.Kind {
	case KindValue:
		if feature.Type.DType != "string" {
			return 0, fmt.Errorf("unsupported dtype %q", feature.Type.DType)
		}
		values, ok := column.([]string)
		if !ok {
			return 0, fmt.Errorf("expected string column, got %T", column)
		}
		table.stringColumns[feature.Name] = values
		return len(values), nil
	case KindImage:
		paths, ok := column.([]string)
		if !ok {
			return 0, fmt.Errorf("expected image path column, got %T", column)
		}
		references, referenceError := imageRefs(paths)
		if referenceError != nil {
			return 0, referenceError
		}
		table.imageColumns[feature.Name] = references
		return len(references), nil
	case KindSequence:
		if feature.Type.Inner == nil || feature.Type.Inner.Kind != KindImage {
			return 0, fmt.Errorf("only sequences of images are supported")
		}
		lists, ok := column.([][]string)
		if !ok {
			return 0, fmt.Errorf("expected image list column, got %T", column)
		}
		converted := make([][]ImageRef, 0, len(lists))
		for rowIndex, paths := range lists {
			references, referenceError := imageRefs(paths)
			if referenceError != nil {
				return 0, fmt.Errorf("row %d: %w", rowIndex, referenceError)
			}
			converted = append(converted, references)
		}
		table.imageListColumns[feature.Name] = converted
		return len(converted), nil
	default:
		return 0, fmt.Errorf("unknown feature kind %d", feature.Type.Kind)
	}
}

func imageRefs(paths []string) ([]ImageRef, error) {
	references := make([]ImageRef, 0, len(paths))
	for index, path := range paths {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("empty image reference at index %d", index)
		}
		references = append(references, ImageRef{Path: path})
	}
	return references, nil
}

func unknownColumns(columns map[string]any, features Features) []string {
	extra := make([]string, 0)
	for name := range columns {
		if _, known := features.Lookup(name); !known {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return extra
}

func (table *Table) Len() int {
	return table.rows
}

func (table *Table) Strings(name string) []string {
	return table.stringColumns[name]
}

func (table *Table) Images(name string) []ImageRef {
	return table.imageColumns[name]
}

func (table *Table) ImageLists(name string) [][]ImageRef {
	return table.imageListColumns[name]
}

// Examples returns the table as restore-schema rows.
func (table *Table) Examples() ([]Example, error) {
	ids, hasIDs := table.stringColumns[ColumnID]
	controlImages, hasControlImages := table.imageListColumns[ColumnControlImages]
	controlMask, hasControlMask := table.imageColumns[ColumnControlMask]
	targetImage, hasTargetImage := table.imageColumns[ColumnTargetImage]
	prompts, hasPrompts := table.stringColumns[ColumnPrompt]
	if !hasIDs || !hasControlImages || !hasControlMask || !hasTargetImage || !hasPrompts {
		return nil, fmt.Errorf("table does not follow the restore schema (columns: %s)", strings.Join(table.Features.Names(), ", "))
	}

	examples := make([]Example, 0, table.rows)
	for index := 0; index < table.rows; index++ {
		examples = append(examples, Example{
			ID:            ids[index],
			ControlImages: controlImages[index],
			ControlMask:   controlMask[index],
			TargetImage:   targetImage[index],
			Prompt:        prompts[index],
		})
	}
	return examples, nil
}

// Dict is an ordered set of named tables.
type Dict struct {
	names  []string
	tables map[string]*Table
}

func NewDict() *Dict {
	return &Dict{tables: map[string]*Table{}}
}

func (dict *Dict) Add(name string, table *Table) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("split name is required")
	}
	if table == nil {
		return fmt.Errorf("split %q has no table", name)
	}
	if _, exists := dict.tables[name]; exists {
		return fmt.Errorf("split %q already added", name)
	}
	dict.names = append(dict.names, name)
	dict.tables[name] = table
	return nil
}

func (dict *Dict) Names() []string {
	return append([]string(nil), dict.names...)
}

func (dict *Dict) Table(name string) (*Table, bool) {
	table, exists := dict.tables[name]
	return table, exists
}
