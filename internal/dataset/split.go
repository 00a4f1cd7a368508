package dataset

const (
	ColumnID            = "id"
	ColumnControlImages = "control_images"
	ColumnControlMask   = "control_mask"
	ColumnTargetImage   = "target_image"
	ColumnPrompt        = "prompt"
)

// Split holds one dataset partition as parallel columns. Index i of every
// column describes the same record.
type Split struct {
	IDs           []string
	ControlImages [][]string
	ControlMask   []string
	TargetImage   []string
	Prompts       []string
	Skipped       int
}

func BuildSplit(rows []any, root string, maskPath string) Split {
	split := Split{
		IDs:           make([]string, 0, len(rows)),
		ControlImages: make([][]string, 0, len(rows)),
		ControlMask:   make([]string, 0, len(rows)),
		TargetImage:   make([]string, 0, len(rows)),
		Prompts:       make([]string, 0, len(rows)),
	}
	for index, row := range rows {
		resolved, ok := Normalize(index, row, root, DefaultPrompt)
		if !ok {
			split.Skipped++
			continue
		}
		split.IDs = append(split.IDs, resolved.ID)
		split.ControlImages = append(split.ControlImages, []string{resolved.Source})
		split.ControlMask = append(split.ControlMask, maskPath)
		split.TargetImage = append(split.TargetImage, resolved.Target)
		split.Prompts = append(split.Prompts, resolved.Prompt)
	}
	return split
}

func (split Split) Len() int {
	return len(split.IDs)
}

// Columns exposes the split by column name for schema casting.
func (split Split) Columns() map[string]any {
	return map[string]any{
		ColumnID:            split.IDs,
		ColumnControlImages: split.ControlImages,
		ColumnControlMask:   split.ControlMask,
		ColumnTargetImage:   split.TargetImage,
		ColumnPrompt:        split.Prompts,
	}
}
